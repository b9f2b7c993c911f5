// Package project implements the Project aggregate (spec §3/§4.5): the
// on-disk directory for one project (its object store, its entry/issue
// index, its ProjectConfig and predefined views, its tag and association
// tables) plus the operations that mutate it.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/smit-go/smit/internal/entry"
	"github.com/smit-go/smit/internal/issue"
	"github.com/smit-go/smit/internal/objectstore"
	"github.com/smit-go/smit/internal/projectconfig"
	"github.com/smit-go/smit/internal/smiterr"
)

const (
	configFile  = "project"
	viewsFile   = "views"
	issuesDir   = "refs/issues"
	tagsDir     = "refs/tags"
	objectsDir  = "objects"
	tmpDir      = "tmp"
)

// DeleteWindow is the span within which a HEAD entry (not the issue's
// root) may be deleted by its own author (spec §4.5).
const DeleteWindow = entry.DeleteWindow

// IDAllocator assigns new issue ids. Every Project uses a local
// per-project counter, numberIssueAcrossProjects included; Project has
// no way to install another allocator, so repodb's SharedAllocator is
// not used for issue creation.
type IDAllocator interface {
	NextIssueID() string
	Observe(numericID uint32)
}

// localAllocator is a simple monotonic counter, protected by the
// project's own lock (Project never calls it concurrently with itself).
type localAllocator struct {
	max uint32
}

func (a *localAllocator) NextIssueID() string {
	a.max++
	return strconv.FormatUint(uint64(a.max), 10)
}

func (a *localAllocator) Observe(n uint32) {
	if n > a.max {
		a.max = n
	}
}

// Logf is a debug-logging hook; Project calls it the way the teacher's
// internal/merge package gates its own stderr tracing (SPEC_FULL.md
// AMBIENT STACK). A nil Logf is a silent no-op.
type Logf func(format string, args ...any)

// Project is one project's full in-memory state plus its backing
// directory. Two independent locks guard it, matching the original's
// Locker/lockerForConfig split: mu guards issues/entries/associations,
// muConfig guards config/views.
type Project struct {
	mu       sync.RWMutex
	muConfig sync.RWMutex

	name  string
	path  string
	store *objectstore.Store

	config *projectconfig.ProjectConfig
	views  map[string]projectconfig.PredefinedView

	issues  map[string]*issue.Issue
	entries map[string]*entry.Entry // id -> entry, across all issues

	allocator IDAllocator

	// associations[issueID][propertyName] = ordered list of other issue ids
	associations map[string]map[string][]string
	// reverseAssociations[issueID][propertyName] = set of issue ids pointing to issueID
	reverseAssociations map[string]map[string]map[string]bool

	Logf Logf
}

func (p *Project) logf(format string, args ...any) {
	if p.Logf != nil {
		p.Logf(format, args...)
	}
}

// Name returns the project's plain-text name.
func (p *Project) Name() string { return p.name }

// Path returns the project's directory on disk.
func (p *Project) Path() string { return p.path }

// ObjectsDir, IssuesDir, TmpDir, TagsDir return the project's well-known
// subdirectories.
func (p *Project) ObjectsDir() string { return filepath.Join(p.path, objectsDir) }
func (p *Project) IssuesDir() string  { return filepath.Join(p.path, issuesDir) }
func (p *Project) TmpDir() string     { return filepath.Join(p.path, tmpDir) }
func (p *Project) TagsDir() string    { return filepath.Join(p.path, tagsDir) }

// Store returns the project's object store.
func (p *Project) Store() *objectstore.Store { return p.store }

// CreateProjectFiles lays out a brand-new, empty project directory
// under repositoryPath/<urlEncodedName>: objects/, refs/issues/,
// refs/tags/, tmp/, an empty "project" config file, and an empty
// "views" file.
func CreateProjectFiles(repositoryPath, projectName string) (string, error) {
	if !projectconfig.IsValidProjectName(projectName) {
		return "", fmt.Errorf("project: invalid project name %q: %w", projectName, smiterr.ErrInvalidInput)
	}
	dirName := urlNameEncode(projectName)
	path := filepath.Join(repositoryPath, dirName)

	for _, d := range []string{path, filepath.Join(path, objectsDir), filepath.Join(path, issuesDir), filepath.Join(path, tagsDir), filepath.Join(path, tmpDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return "", fmt.Errorf("project: create %s: %w", d, err)
		}
	}

	cfg := projectconfig.New()
	if err := os.WriteFile(filepath.Join(path, configFile), cfg.Serialize(), 0o644); err != nil {
		return "", fmt.Errorf("project: write config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, viewsFile), projectconfig.SerializeViews(nil), 0o644); err != nil {
		return "", fmt.Errorf("project: write views: %w", err)
	}
	return path, nil
}

// Init creates a brand-new project on disk and returns it loaded.
func Init(repositoryPath, projectName string) (*Project, error) {
	path, err := CreateProjectFiles(repositoryPath, projectName)
	if err != nil {
		return nil, err
	}
	return Load(path, projectName)
}

// Load opens an existing project directory: config, predefined views,
// issues (each reconstructed from its refs/issues/<id> head pointer),
// tags, and the associations table derived from them.
func Load(path, name string) (*Project, error) {
	store, err := objectstore.Open(filepath.Join(path, objectsDir))
	if err != nil {
		return nil, err
	}

	p := &Project{
		name:                name,
		path:                path,
		store:               store,
		issues:              map[string]*issue.Issue{},
		entries:             map[string]*entry.Entry{},
		associations:        map[string]map[string][]string{},
		reverseAssociations: map[string]map[string]map[string]bool{},
		allocator:           &localAllocator{},
	}

	if err := p.loadConfig(); err != nil {
		return nil, err
	}
	p.loadPredefinedViews()
	if err := p.loadIssues(); err != nil {
		return nil, err
	}
	p.loadTags()
	p.computeAssociations()

	return p, nil
}

func (p *Project) loadConfig() error {
	data, err := os.ReadFile(filepath.Join(p.path, configFile))
	if err != nil {
		return fmt.Errorf("project: read config: %w", err)
	}
	p.config = projectconfig.Load(data)
	if p.config.NumberIssueAcrossProjects && p.allocator == nil {
		p.allocator = &localAllocator{}
	}
	return nil
}

func (p *Project) loadPredefinedViews() {
	data, err := os.ReadFile(filepath.Join(p.path, viewsFile))
	if err != nil {
		p.views = map[string]projectconfig.PredefinedView{}
		return
	}
	p.views = projectconfig.LoadViews(data)
}

func (p *Project) loadIssues() error {
	entries, err := os.ReadDir(p.IssuesDir())
	if err != nil {
		return fmt.Errorf("project: read issues dir: %w", err)
	}

	var localMax uint32
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		issueID := de.Name()
		headBytes, err := os.ReadFile(filepath.Join(p.IssuesDir(), issueID))
		if err != nil {
			p.logf("project: cannot read issue ref %s: %v", issueID, err)
			continue
		}
		headOID := strings.TrimSpace(string(headBytes))

		iss, err := issue.Load(p.store, issueID, headOID)
		if err != nil {
			p.logf("project: cannot load issue %s: %v", issueID, err)
			continue
		}

		for _, e := range iss.Entries {
			if _, dup := p.entries[e.ID]; dup {
				p.logf("project: duplicate entry %s across issues", e.ID)
			}
			p.entries[e.ID] = e
		}

		if n, err := strconv.ParseUint(issueID, 10, 32); err == nil && uint32(n) > localMax {
			localMax = uint32(n)
		}
		p.issues[issueID] = iss
	}

	p.allocator.Observe(localMax)
	return nil
}

// loadTags scans refs/tags/<issueID>/<entryID>.<tagname> marker files
// and folds them into each issue's Tags map. This directory shape
// (keyed by issue id, matching the write side) is a deliberate fix of
// an inconsistency found in original_source/src/Project.cpp, where
// toggleTag writes refs/tags/<issueId>/<entryId>.<tagname> but loadTags
// reads the same tree as if its first level were a SHA-1 fan-out
// prefix of the entry id -- the two cannot agree after a restart in the
// original. See DESIGN.md.
func (p *Project) loadTags() {
	root := p.TagsDir()
	issueDirs, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, id := range issueDirs {
		if !id.IsDir() {
			continue
		}
		issueID := id.Name()
		iss, ok := p.issues[issueID]
		if !ok {
			continue
		}
		files, err := os.ReadDir(filepath.Join(root, issueID))
		if err != nil {
			continue
		}
		for _, f := range files {
			name := f.Name()
			dot := strings.LastIndex(name, ".")
			if dot < 0 {
				continue
			}
			entryID, tagname := name[:dot], name[dot+1:]
			if _, ok := p.entries[entryID]; !ok {
				p.logf("project: tag for unknown entry %s/%s", issueID, entryID)
				continue
			}
			iss.ToggleTag(entryID, tagname)
		}
	}
}

func (p *Project) computeAssociations() {
	for _, iss := range p.issues {
		for _, pspec := range p.config.Properties {
			if pspec.Type != projectconfig.Association {
				continue
			}
			if values, ok := iss.Properties[pspec.Name]; ok {
				p.updateAssociations(iss.ID, pspec.Name, values)
			}
		}
	}
}

// updateAssociations refreshes the forward and reverse association
// tables for issueID's given association property. Caller must hold mu.
func (p *Project) updateAssociations(issueID, propertyName string, values []string) {
	if len(values) == 0 || values[0] == "" {
		if m, ok := p.associations[issueID]; ok {
			delete(m, propertyName)
			if len(m) == 0 {
				delete(p.associations, issueID)
			}
		}
	} else {
		if p.associations[issueID] == nil {
			p.associations[issueID] = map[string][]string{}
		}
		p.associations[issueID][propertyName] = append([]string(nil), values...)
	}

	others := map[string]bool{}
	for _, v := range values {
		if v != "" {
			others[v] = true
		}
	}

	for _, byProp := range p.reverseAssociations {
		if set, ok := byProp[propertyName]; ok {
			delete(set, issueID)
			if len(set) == 0 {
				delete(byProp, propertyName)
			}
		}
	}
	for otherID := range others {
		if p.reverseAssociations[otherID] == nil {
			p.reverseAssociations[otherID] = map[string]map[string]bool{}
		}
		if p.reverseAssociations[otherID][propertyName] == nil {
			p.reverseAssociations[otherID][propertyName] = map[string]bool{}
		}
		p.reverseAssociations[otherID][propertyName][issueID] = true
	}
}

// GetReverseAssociations returns, for issueID, the map of association
// property name to the set of issue ids that reference it.
func (p *Project) GetReverseAssociations(issueID string) map[string][]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := map[string][]string{}
	for prop, set := range p.reverseAssociations[issueID] {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out[prop] = ids
	}
	return out
}

// Reload discards all in-memory state and re-reads the project from
// disk (spec §4.5 Reload).
func (p *Project) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muConfig.Lock()
	defer p.muConfig.Unlock()

	p.issues = map[string]*issue.Issue{}
	p.entries = map[string]*entry.Entry{}
	p.associations = map[string]map[string][]string{}
	p.reverseAssociations = map[string]map[string]map[string]bool{}
	p.allocator = &localAllocator{}

	if err := p.loadConfig(); err != nil {
		return err
	}
	p.loadPredefinedViews()
	if err := p.loadIssues(); err != nil {
		return err
	}
	p.loadTags()
	p.computeAssociations()
	return nil
}

// NumIssues returns the number of issues currently loaded.
func (p *Project) NumIssues() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.issues)
}

// Get returns a deep copy of the issue with the given id, safe to use
// after the project lock is released.
func (p *Project) Get(issueID string) (*issue.Issue, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	iss, ok := p.issues[issueID]
	if !ok {
		return nil, false
	}
	return iss.Clone(), true
}

// AllIssues returns deep copies of every issue in the project, in no
// particular order; callers needing sorted/filtered views should use
// internal/search over this slice.
func (p *Project) AllIssues() []*issue.Issue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*issue.Issue, 0, len(p.issues))
	for _, iss := range p.issues {
		out = append(out, iss.Clone())
	}
	return out
}

// GetConfig returns a copy of the project's current config.
func (p *Project) GetConfig() projectconfig.ProjectConfig {
	p.muConfig.RLock()
	defer p.muConfig.RUnlock()
	return *p.config
}

// GetViews returns a copy of the project's predefined views.
func (p *Project) GetViews() map[string]projectconfig.PredefinedView {
	p.muConfig.RLock()
	defer p.muConfig.RUnlock()
	out := make(map[string]projectconfig.PredefinedView, len(p.views))
	for k, v := range p.views {
		out[k] = v
	}
	return out
}

func urlNameEncode(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.' || c == '_' || c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}
