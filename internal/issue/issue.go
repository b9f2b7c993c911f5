// Package issue assembles and consolidates the ordered chain of entries
// that makes up a single issue (spec §3/§4.3). Loading walks parent links
// backwards from a stored head id to the root (parent == "null");
// consolidation replays the chain oldest-to-newest to produce the
// issue's current property view.
package issue

import (
	"sort"
	"strings"

	"github.com/smit-go/smit/internal/entry"
	"github.com/smit-go/smit/internal/objectstore"
	"github.com/smit-go/smit/internal/smiterr"
)

// Issue is an ordered chain of entries sharing an id, plus the
// consolidated view derived from replaying that chain.
type Issue struct {
	ID    string
	Entries []*entry.Entry // oldest first; Entries[0] is the root (parent == "null")
	byID  map[string]*entry.Entry

	Properties entry.Properties
	CTime      int64
	MTime      int64

	// Amendments maps an amended entry's id to the ids of the entries
	// that amend it, in the order they were applied.
	Amendments map[string][]string

	// Tags maps an entry id to the set of tag names attached to it.
	Tags map[string]map[string]bool
}

// New returns an empty issue ready to receive its first entry.
func New(id string) *Issue {
	return &Issue{
		ID:         id,
		byID:       map[string]*entry.Entry{},
		Properties: entry.Properties{},
		Amendments: map[string][]string{},
		Tags:       map[string]map[string]bool{},
	}
}

// Load walks parent links backwards from headOID until it reaches the
// root entry (parent == entry.ParentNull), then returns the assembled,
// consolidated issue. A missing parent or an entry that fails to load is
// a fatal error for this issue (the caller, typically the repository
// loader, is expected to log and skip rather than abort the whole
// project -- spec §7).
func Load(store *objectstore.Store, id, headOID string) (*Issue, error) {
	var chain []*entry.Entry
	cur := headOID
	seen := map[string]bool{}
	for cur != entry.ParentNull {
		if seen[cur] {
			return nil, smiterr.CorruptEntry(cur, errCycle)
		}
		seen[cur] = true

		e, err := entry.LoadFromStore(store, cur)
		if err != nil {
			return nil, smiterr.CorruptEntry(cur, err)
		}
		chain = append(chain, e)
		cur = e.Parent
	}

	// chain is newest-first; reverse to oldest-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	iss := New(id)
	for _, e := range chain {
		if err := iss.AddEntry(e); err != nil {
			return nil, err
		}
	}
	return iss, nil
}

var errCycle = smiterr.ErrCorrupt

// Head returns the id of the latest entry, or "" if the issue has no
// entries yet.
func (i *Issue) Head() string {
	if len(i.Entries) == 0 {
		return ""
	}
	return i.Entries[len(i.Entries)-1].ID
}

// Entry returns the entry with the given id within this issue, if any.
func (i *Issue) Entry(id string) (*entry.Entry, bool) {
	e, ok := i.byID[id]
	return e, ok
}

// AddEntry appends e to the chain (its Parent must be the current head,
// or entry.ParentNull for the first entry) and folds it into the
// consolidated view incrementally: a plain entry overwrites the
// properties it carries, an amending entry additionally rewrites the
// effective message of the entry it targets.
func (i *Issue) AddEntry(e *entry.Entry) error {
	if i.byID == nil {
		i.byID = map[string]*entry.Entry{}
	}
	i.Entries = append(i.Entries, e)
	i.byID[e.ID] = e

	i.consolidateWithSingleEntry(e)
	if target, ok := e.AmendTarget(); ok {
		i.consolidateAmendment(e, target)
	}
	return nil
}

// InsertEntry prepends e to the chain, for a caller that walks parent
// links backwards and so meets entries newest-first (Load itself
// reverses its collected chain and uses AddEntry instead). It does not
// fold e into the consolidated view; callers must re-run Consolidate()
// once the full chain is assembled.
func (i *Issue) InsertEntry(e *entry.Entry) {
	i.Entries = append([]*entry.Entry{e}, i.Entries...)
	if i.byID == nil {
		i.byID = map[string]*entry.Entry{}
	}
	i.byID[e.ID] = e
}

func (i *Issue) consolidateWithSingleEntry(e *entry.Entry) {
	if len(i.Entries) == 1 {
		i.CTime = e.CTime
	}
	i.MTime = e.CTime

	for name, values := range e.Properties {
		if strings.HasPrefix(name, "+") {
			continue
		}
		cp := make([]string, len(values))
		copy(cp, values)
		i.Properties[name] = cp
	}
}

func (i *Issue) consolidateAmendment(amender *entry.Entry, targetID string) {
	i.Amendments[targetID] = append(i.Amendments[targetID], amender.ID)
}

// Consolidate resets Properties, CTime and MTime and replays every entry
// oldest-to-newest, exactly matching a fresh AddEntry-by-AddEntry build.
// Running it twice on the same chain is deterministic (spec §8).
func (i *Issue) Consolidate() {
	i.Properties = entry.Properties{}
	i.Amendments = map[string][]string{}
	i.CTime = 0
	i.MTime = 0
	entries := i.Entries
	i.Entries = nil
	i.byID = map[string]*entry.Entry{}
	for _, e := range entries {
		_ = i.AddEntry(e)
	}
}

// EffectiveMessage returns the message that should be displayed for
// entry id: the message of the last entry amending it, or its own
// message if it has never been amended.
func (i *Issue) EffectiveMessage(id string) string {
	if amenders, ok := i.Amendments[id]; ok && len(amenders) > 0 {
		last := amenders[len(amenders)-1]
		if e, ok := i.byID[last]; ok {
			return e.Message()
		}
		return ""
	}
	if e, ok := i.byID[id]; ok {
		return e.Message()
	}
	return ""
}

// MakeSnapshot returns the consolidated properties of the issue as they
// stood using only entries with CTime <= atUnix, without mutating the
// issue itself.
func (i *Issue) MakeSnapshot(atUnix int64) entry.Properties {
	snap := New(i.ID)
	for _, e := range i.Entries {
		if e.CTime > atUnix {
			continue
		}
		_ = snap.AddEntry(e)
	}
	return snap.Properties
}

// ToggleTag flips membership of tagname on entryID and returns the new
// state (true == now tagged). The caller (project layer) is responsible
// for reflecting this on disk under refs/tags/.
func (i *Issue) ToggleTag(entryID, tagname string) bool {
	if i.Tags == nil {
		i.Tags = map[string]map[string]bool{}
	}
	set, ok := i.Tags[entryID]
	if !ok {
		set = map[string]bool{}
		i.Tags[entryID] = set
	}
	if set[tagname] {
		delete(set, tagname)
		if len(set) == 0 {
			delete(i.Tags, entryID)
		}
		return false
	}
	set[tagname] = true
	return true
}

// GetNumberOfTaggedEntries counts how many entries in this issue carry
// tagname.
func (i *Issue) GetNumberOfTaggedEntries(tagname string) int {
	n := 0
	for _, set := range i.Tags {
		if set[tagname] {
			n++
		}
	}
	return n
}

// SearchFullText performs an ASCII case-insensitive substring match
// against the issue id, every property value, every non-amending
// entry's effective message, every +file reference, and every entry's
// author (spec §4.3/§4.7).
func (i *Issue) SearchFullText(text string) bool {
	needle := strings.ToLower(text)
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(i.ID), needle) {
		return true
	}
	for _, values := range i.Properties {
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), needle) {
				return true
			}
		}
	}
	for _, e := range i.Entries {
		if strings.Contains(strings.ToLower(e.Author), needle) {
			return true
		}
		if f := e.File(); f != "" && strings.Contains(strings.ToLower(f), needle) {
			return true
		}
		if e.IsAmending() {
			continue
		}
		if strings.Contains(strings.ToLower(i.EffectiveMessage(e.ID)), needle) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the issue, safe to hand to a caller after
// a project read-lock has been released.
func (i *Issue) Clone() *Issue {
	cp := New(i.ID)
	cp.CTime = i.CTime
	cp.MTime = i.MTime
	cp.Properties = i.Properties.Clone()

	cp.Entries = make([]*entry.Entry, len(i.Entries))
	for idx, e := range i.Entries {
		ce := *e
		ce.Properties = e.Properties.Clone()
		cp.Entries[idx] = &ce
		cp.byID[ce.ID] = &ce
	}

	cp.Amendments = make(map[string][]string, len(i.Amendments))
	for k, v := range i.Amendments {
		cv := make([]string, len(v))
		copy(cv, v)
		cp.Amendments[k] = cv
	}

	cp.Tags = make(map[string]map[string]bool, len(i.Tags))
	for k, set := range i.Tags {
		cset := make(map[string]bool, len(set))
		for t := range set {
			cset[t] = true
		}
		cp.Tags[k] = cset
	}
	return cp
}

// SortedEntryIDs returns the ids of i.Entries in chain order; provided so
// consumers that only need order without the full entry bodies (e.g. the
// /issues/<id> wire endpoint) don't need to reach into Entries directly.
func (i *Issue) SortedEntryIDs() []string {
	ids := make([]string, len(i.Entries))
	for idx, e := range i.Entries {
		ids[idx] = e.ID
	}
	return ids
}

// sortedTagNames returns the tag names in set in sorted order.
func sortedTagNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for t := range set {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}
