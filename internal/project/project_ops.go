package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/smit-go/smit/internal/entry"
	"github.com/smit-go/smit/internal/issue"
	"github.com/smit-go/smit/internal/objectstore"
	"github.com/smit-go/smit/internal/projectconfig"
	"github.com/smit-go/smit/internal/smiterr"
	"github.com/smit-go/smit/internal/token"
)

// storeRefIssue writes issueID's new head entry id to refs/issues/<id>,
// the single pointer the repository walks to reconstruct the issue.
func (p *Project) storeRefIssue(issueID, entryID string) error {
	path := filepath.Join(p.IssuesDir(), issueID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("project: storeRefIssue mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "ref-*")
	if err != nil {
		return fmt.Errorf("project: storeRefIssue: %w", err)
	}
	if _, err := tmp.WriteString(entryID + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("project: storeRefIssue write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("project: storeRefIssue close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("project: storeRefIssue rename: %w", err)
	}
	return nil
}

// parseAssociation normalizes an association property's raw single
// value ("1, 2, 3") into a sorted list of issue ids, matching
// original_source/src/Project.cpp's parseAssociation.
func parseAssociation(values []string) []string {
	if len(values) != 1 {
		return values
	}
	parts := strings.FieldsFunc(values[0], func(r rune) bool {
		return r == ' ' || r == ',' || r == ';'
	})
	out := make([]string, 0, len(parts))
	for _, v := range parts {
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// cleanupMultiselect drops values not in selectOptions, and collapses
// more than one empty value to at most one (HTML forms submit a hidden
// empty input alongside real selections).
func cleanupMultiselect(values, selectOptions []string) []string {
	allowed := map[string]bool{}
	for _, o := range selectOptions {
		allowed[o] = true
	}
	out := make([]string, 0, len(values))
	gotEmpty := false
	for _, v := range values {
		if !allowed[v] {
			continue
		}
		if v == "" {
			if gotEmpty {
				continue
			}
			gotEmpty = true
		}
		out = append(out, v)
	}
	return out
}

// sanitizeProperties drops properties not declared by the project's
// config (except the reserved "summary" and the "+"-prefixed control
// keys), parses association values, and cleans up multiselect values.
// Mirrors addEntry's property-filtering pass.
func (p *Project) sanitizeProperties(props entry.Properties) entry.Properties {
	out := entry.Properties{}
	for name, values := range props {
		switch name {
		case entry.KeyMessage, entry.KeyFile, entry.KeyAmend:
			if len(values) > 0 && values[0] == "" {
				continue
			}
			out[name] = values
			continue
		}

		if name == "summary" {
			out[name] = values
			continue
		}

		spec, ok := p.config.GetPropertySpec(name)
		if !ok {
			continue // not a declared property: drop it
		}
		switch spec.Type {
		case projectconfig.Association:
			out[name] = parseAssociation(values)
		case projectconfig.MultiSelect:
			out[name] = cleanupMultiselect(values, spec.SelectOptions)
		default:
			out[name] = values
		}
	}
	return out
}

// AddEntry is the local-authoring path (spec §4.5): properties are
// sanitized against the config, then -- for an existing issue -- reduced
// to only the values that actually changed. If issueID is empty a new
// issue is allocated and its id returned. Returns (issueID, "", nil) with
// no error when addressing an existing issue and nothing actually changed.
func (p *Project) AddEntry(props entry.Properties, issueID, author string, now time.Time) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muConfig.RLock()
	defer p.muConfig.RUnlock()

	clean := p.sanitizeProperties(props)

	var iss *issue.Issue
	if issueID != "" {
		var ok bool
		iss, ok = p.issues[issueID]
		if !ok {
			return "", "", smiterr.UnknownIssue(issueID)
		}

		for name, values := range clean {
			if existing, ok := iss.Properties[name]; ok && stringSlicesEqual(existing, values) {
				delete(clean, name)
			}
		}
		if len(clean) == 0 {
			p.logf("project: addEntry no change for issue %s", issueID)
			return issueID, "", nil
		}
	}

	parent := entry.ParentNull
	if iss != nil {
		parent = iss.Head()
	}

	e := entry.New(clean, author, parent, now)
	if _, exists := p.entries[e.ID]; exists {
		return "", "", smiterr.ObjectExists(e.ID)
	}

	if _, _, err := entry.Write(p.store, e); err != nil {
		return "", "", err
	}

	if iss == nil {
		issueID = p.allocator.NextIssueID()
		iss = issue.New(issueID)
	}
	if err := iss.AddEntry(e); err != nil {
		return "", "", err
	}
	if err := p.storeRefIssue(issueID, e.ID); err != nil {
		return "", "", err
	}

	p.entries[e.ID] = e
	p.issues[issueID] = iss

	for name, values := range clean {
		if spec, ok := p.config.GetPropertySpec(name); ok && spec.Type == projectconfig.Association {
			p.updateAssociations(issueID, name, values)
		}
	}

	return issueID, e.ID, nil
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// PushEntry is the server-side ingestion path used by the sync protocol
// (spec §4.5/§4.8): data is an already-downloaded, not-yet-official
// entry body whose claimed id is entryID. The entry's author must equal
// username. If its parent is "null" a new issue is allocated; otherwise
// the parent must be the current head of issueID exactly (no merge is
// attempted here -- a divergent parent is rejected with NotFastForward
// and the caller is expected to fall back to the three-way merge path
// in internal/syncproto).
func (p *Project) PushEntry(issueID, entryID, username string, data []byte) (string, error) {
	e, err := entry.Load(data, entryID)
	if err != nil {
		return "", err
	}
	if e.Author != username {
		return "", smiterr.WrongAuthor(entryID, e.Author, username)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store.Exists(entryID) {
		return "", smiterr.ObjectExists(entryID)
	}

	var iss *issue.Issue
	newIssue := false
	if e.Parent == entry.ParentNull {
		issueID = p.allocator.NextIssueID()
		iss = issue.New(issueID)
		newIssue = true
	} else {
		var ok bool
		iss, ok = p.issues[issueID]
		if !ok {
			return "", smiterr.UnknownIssue(issueID)
		}
		if iss.Head() != e.Parent {
			return "", smiterr.NotFastForward(issueID)
		}
	}

	if _, _, err := entry.Write(p.store, e); err != nil {
		return "", err
	}
	if err := iss.AddEntry(e); err != nil {
		return "", err
	}
	if err := p.storeRefIssue(issueID, e.ID); err != nil {
		return "", err
	}

	p.entries[e.ID] = e
	if newIssue {
		p.issues[issueID] = iss
	}

	for name, values := range e.Properties {
		if spec, ok := p.config.GetPropertySpec(name); ok && spec.Type == projectconfig.Association {
			p.updateAssociations(issueID, name, values)
		}
	}

	return issueID, nil
}

// AmendEntry creates a new entry on issueID that amends targetEntryID
// with a replacement message (spec §4.2/§4.5). An empty message is how
// DeleteEntry is implemented: the original entry is left untouched, but
// its effective message becomes empty.
func (p *Project) AmendEntry(issueID, targetEntryID, message, author string, now time.Time) (string, error) {
	props := entry.Properties{
		entry.KeyAmend: {targetEntryID},
	}
	if message != "" {
		props[entry.KeyMessage] = []string{message}
	} else {
		props[entry.KeyMessage] = []string{""}
	}

	p.mu.Lock()
	iss, ok := p.issues[issueID]
	p.mu.Unlock()
	if !ok {
		return "", smiterr.UnknownIssue(issueID)
	}
	if _, ok := iss.Entry(targetEntryID); !ok {
		return "", smiterr.UnknownEntry(targetEntryID)
	}

	_, entryID, err := p.addEntryRaw(props, issueID, author, now)
	return entryID, err
}

// addEntryRaw bypasses sanitizeProperties' "drop undeclared property"
// rule for the control keys +amend/+message, used internally by
// AmendEntry/DeleteEntry which must always be able to write these.
func (p *Project) addEntryRaw(props entry.Properties, issueID, author string, now time.Time) (string, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	iss, ok := p.issues[issueID]
	if !ok {
		return "", "", smiterr.UnknownIssue(issueID)
	}

	e := entry.New(props, author, iss.Head(), now)
	if _, exists := p.entries[e.ID]; exists {
		return "", "", smiterr.ObjectExists(e.ID)
	}
	if _, _, err := entry.Write(p.store, e); err != nil {
		return "", "", err
	}
	if err := iss.AddEntry(e); err != nil {
		return "", "", err
	}
	if err := p.storeRefIssue(issueID, e.ID); err != nil {
		return "", "", err
	}
	p.entries[e.ID] = e
	return issueID, e.ID, nil
}

// DeleteEntry is only possible within DeleteWindow of the entry's
// creation, on the current HEAD entry, by its own author, and not on an
// already-amending entry (spec §4.5). It is implemented as amending the
// entry with an empty message, never as a real removal.
func (p *Project) DeleteEntry(issueID, entryID, username string, now time.Time) error {
	p.mu.RLock()
	iss, ok := p.issues[issueID]
	p.mu.RUnlock()
	if !ok {
		return smiterr.UnknownIssue(issueID)
	}
	e, ok := iss.Entry(entryID)
	if !ok {
		return smiterr.UnknownEntry(entryID)
	}

	if now.Unix()-e.CTime > int64(DeleteWindow.Seconds()) {
		return fmt.Errorf("project: delete window expired for entry %s: %w", entryID, smiterr.ErrInvalidInput)
	}
	if e.Parent == entry.ParentNull {
		return fmt.Errorf("project: cannot delete root entry %s: %w", entryID, smiterr.ErrInvalidInput)
	}
	if e.Author != username {
		return smiterr.WrongAuthor(entryID, e.Author, username)
	}
	if e.IsAmending() {
		return fmt.Errorf("project: cannot delete an amending entry %s: %w", entryID, smiterr.ErrInvalidInput)
	}
	if iss.Head() != entryID {
		return fmt.Errorf("project: can only delete the head entry, %s is not head of %s: %w", entryID, issueID, smiterr.ErrInvalidInput)
	}

	_, _, err := p.addEntryRaw(entry.Properties{
		entry.KeyAmend:   {entryID},
		entry.KeyMessage: {""},
	}, issueID, username, now)
	return err
}

// ToggleTag flips tagname on entryID within issueID, persisting the
// change as a marker file under refs/tags/<issueID>/<entryID>.<tagname>,
// and returns the new state.
func (p *Project) ToggleTag(issueID, entryID, tagname string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	iss, ok := p.issues[issueID]
	if !ok {
		return false, smiterr.UnknownIssue(issueID)
	}
	if _, ok := p.entries[entryID]; !ok {
		return false, smiterr.UnknownEntry(entryID)
	}

	on := iss.ToggleTag(entryID, tagname)

	dir := filepath.Join(p.TagsDir(), issueID)
	markerPath := filepath.Join(dir, entryID+"."+tagname)
	if on {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("project: toggleTag mkdir: %w", err)
		}
		if err := os.WriteFile(markerPath, nil, 0o644); err != nil {
			return false, fmt.Errorf("project: toggleTag write: %w", err)
		}
	} else {
		if err := os.Remove(markerPath); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("project: toggleTag remove: %w", err)
		}
	}
	return on, nil
}

// RenameIssue allocates a fresh id for oldID and moves its on-disk ref,
// used by the sync protocol to resolve a collision where a locally
// created issue stands in the way of a remote issue of the same id
// (spec §4.8 "rename-on-collision"). The issue keeps its entry chain
// and tags; only its id and its refs/issues/<id> pointer change.
func (p *Project) RenameIssue(oldID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	iss, ok := p.issues[oldID]
	if !ok {
		return "", smiterr.UnknownIssue(oldID)
	}
	newID := p.allocator.NextIssueID()
	return newID, p.renameIssueLocked(iss, newID)
}

// RenameIssueTo is RenameIssue with a caller-supplied target id, used
// when the sync protocol needs the new id to avoid a further collision
// with the remote's numbering.
func (p *Project) RenameIssueTo(oldID, newID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	iss, ok := p.issues[oldID]
	if !ok {
		return smiterr.UnknownIssue(oldID)
	}
	if _, exists := p.issues[newID]; exists {
		return smiterr.NameInUse(newID)
	}
	return p.renameIssueLocked(iss, newID)
}

// renameIssueLocked requires mu to be held for writing.
func (p *Project) renameIssueLocked(iss *issue.Issue, newID string) error {
	oldID := iss.ID
	iss.ID = newID
	p.issues[newID] = iss
	delete(p.issues, oldID)

	if err := p.storeRefIssue(newID, iss.Head()); err != nil {
		return err
	}
	oldPath := filepath.Join(p.IssuesDir(), oldID)
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("project: renameIssue unlink %s: %w", oldPath, err)
	}

	if assoc, ok := p.associations[oldID]; ok {
		p.associations[newID] = assoc
		delete(p.associations, oldID)
	}
	if rev, ok := p.reverseAssociations[oldID]; ok {
		p.reverseAssociations[newID] = rev
		delete(p.reverseAssociations, oldID)
	}
	return nil
}

// ModifyConfig parses tokenized verb lines as a complete config (spec
// §4.4) and replaces the project's config with the result, then
// persists it and recomputes associations from the new schema. Anything
// not declared in lines is dropped from the config; predefined views
// are not touched.
func (p *Project) ModifyConfig(lines [][]string, author string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muConfig.Lock()
	defer p.muConfig.Unlock()

	newConfig := projectconfig.Parse(lines)
	if err := os.WriteFile(filepath.Join(p.path, configFile), newConfig.Serialize(), 0o644); err != nil {
		return fmt.Errorf("project: write config: %w", err)
	}
	p.config = newConfig

	p.associations = map[string]map[string][]string{}
	p.reverseAssociations = map[string]map[string]map[string]bool{}
	p.computeAssociations()
	return nil
}

// SetPredefinedView adds or replaces a named view and persists the
// views file.
func (p *Project) SetPredefinedView(name string, v projectconfig.PredefinedView) error {
	p.muConfig.Lock()
	defer p.muConfig.Unlock()

	if p.views == nil {
		p.views = map[string]projectconfig.PredefinedView{}
	}
	v.Name = name
	p.views[name] = v
	if v.IsDefault {
		projectconfig.ClearOtherDefaults(p.views, name)
	}
	return p.storeViewsLocked()
}

// DeletePredefinedView removes a named view and persists the views
// file.
func (p *Project) DeletePredefinedView(name string) error {
	p.muConfig.Lock()
	defer p.muConfig.Unlock()

	if _, ok := p.views[name]; !ok {
		return smiterr.ErrNotFound
	}
	delete(p.views, name)
	return p.storeViewsLocked()
}

// GetPredefinedView returns the named view, if any.
func (p *Project) GetPredefinedView(name string) (projectconfig.PredefinedView, bool) {
	p.muConfig.RLock()
	defer p.muConfig.RUnlock()
	v, ok := p.views[name]
	return v, ok
}

// GetDefaultView returns the view marked isDefault, if any.
func (p *Project) GetDefaultView() (projectconfig.PredefinedView, bool) {
	p.muConfig.RLock()
	defer p.muConfig.RUnlock()
	for _, v := range p.views {
		if v.IsDefault {
			return v, true
		}
	}
	return projectconfig.PredefinedView{}, false
}

// storeViewsLocked requires muConfig to be held for writing.
func (p *Project) storeViewsLocked() error {
	data := projectconfig.SerializeViews(p.views)
	if err := os.WriteFile(filepath.Join(p.path, viewsFile), data, 0o644); err != nil {
		return fmt.Errorf("project: write views: %w", err)
	}
	return nil
}

// AddFile ingests a project attachment already staged at
// tmp/<objectID> (as uploaded, or as downloaded during a sync pull):
// verifies its hash and moves it into objects/. A byte-identical
// duplicate is a silent success; a hash mismatch or content collision
// is an error (spec §4.5 "attached files").
func (p *Project) AddFile(objectID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	srcPath := filepath.Join(p.TmpDir(), objectID)
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("project: addFile read: %w", err)
	}
	if objectstore.OID(data) != objectID {
		return fmt.Errorf("project: addFile sha1 mismatch for %s: %w", objectID, smiterr.ErrCorrupt)
	}

	if err := p.store.MoveIn(srcPath, objectID); err != nil {
		return err
	}
	return nil
}

// GetEntry returns the raw entry with the given id, if loaded.
func (p *Project) GetEntry(id string) (*entry.Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[id]
	return e, ok
}

// InstallIssueChain replaces issueID's entire entry chain with
// fullChain (root to head, inclusive) and refreshes the derived state
// (head ref, entry index, associations). Used by internal/syncproto to
// land the outcome of a pull -- a freshly cloned issue, a
// remote-is-longer fast-forward, or the reconciled chain after a
// three-way merge -- in one step, since in all three cases the final
// chain is fully known before anything needs to be written (spec
// §4.8). Entries not yet in the store are written; already-present
// entries are a no-op write.
func (p *Project) InstallIssueChain(issueID string, fullChain []*entry.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muConfig.RLock()
	defer p.muConfig.RUnlock()

	if len(fullChain) == 0 {
		return fmt.Errorf("project: installIssueChain %s: empty chain: %w", issueID, smiterr.ErrInvalidInput)
	}

	fresh := issue.New(issueID)
	for _, e := range fullChain {
		if _, _, err := entry.Write(p.store, e); err != nil {
			return err
		}
		if err := fresh.AddEntry(e); err != nil {
			return err
		}
		p.entries[e.ID] = e
	}

	if err := p.storeRefIssue(issueID, fresh.Head()); err != nil {
		return err
	}
	p.issues[issueID] = fresh

	if n, err := strconv.ParseUint(issueID, 10, 32); err == nil {
		p.allocator.Observe(uint32(n))
	}

	for name, values := range fresh.Properties {
		if spec, ok := p.config.GetPropertySpec(name); ok && spec.Type == projectconfig.Association {
			p.updateAssociations(issueID, name, values)
		}
	}
	return nil
}

// ParseConfigUpdate tokenizes raw config verb lines (e.g. the body of a
// remote config push received by the sync protocol) the same way
// ModifyConfig expects them.
func ParseConfigUpdate(data []byte) [][]string {
	return token.Tokenize(data)
}
