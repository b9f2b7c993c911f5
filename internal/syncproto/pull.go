package syncproto

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smit-go/smit/internal/entry"
	"github.com/smit-go/smit/internal/issue"
	"github.com/smit-go/smit/internal/project"
	"github.com/smit-go/smit/internal/projectconfig"
)

// PullOptions configures a pull (spec §4.8).
type PullOptions struct {
	MergeStrategy MergeStrategy
	Resolver      Resolver
	Now           func() time.Time
}

// maxConcurrentFetches bounds how many object downloads a single
// issue's pull fans out at once (SPEC_FULL.md DOMAIN STACK:
// errgroup.Group + errgroup.SetLimit), so pulling an issue with a very
// long entry chain cannot open unbounded concurrent connections to the
// remote.
const maxConcurrentFetches = 8

func (o PullOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Pull synchronizes proj against the remote, in the order the original
// performs it: each remote issue (objects are downloaded lazily as
// entries are discovered), then config, then views
// (original_source/src/clone.cpp::pullProject).
func Pull(ctx context.Context, c *Client, proj *project.Project, opts PullOptions) error {
	remoteIssueIDs, err := listRemoteIssueIDs(ctx, c, proj.Name())
	if err != nil {
		return err
	}
	for _, id := range remoteIssueIDs {
		if id == "" {
			continue
		}
		if err := pullIssue(ctx, c, proj, id, opts); err != nil {
			return fmt.Errorf("syncproto: pull issue %s: %w", id, err)
		}
	}

	if err := pullProjectConfig(ctx, c, proj); err != nil {
		return err
	}
	return pullProjectViews(ctx, c, proj)
}

// listRemoteIssueIDs fetches the newline-separated issue id listing
// (spec §6: GET /<project>/refs/issues/).
func listRemoteIssueIDs(ctx context.Context, c *Client, projectName string) ([]string, error) {
	data, status, err := c.Get(ctx, "/"+projectName+"/refs/issues/")
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("syncproto: listing remote issues: HTTP %d", status)
	}
	return splitNonEmptyLines(string(data)), nil
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// downloadEntry fetches and verifies a single entry object (spec §6:
// GET /<project>/objects/<XX>/<rest>), returning the already-loaded
// local copy if the project has it.
func downloadEntry(ctx context.Context, c *Client, proj *project.Project, entryID string) (*entry.Entry, error) {
	if e, ok := proj.GetEntry(entryID); ok {
		return e, nil
	}
	path := "/" + proj.Name() + "/objects/" + entryID[:2] + "/" + entryID[2:]
	data, status, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("syncproto: downloading object %s: HTTP %d", entryID, status)
	}
	return entry.Load(data, entryID)
}

// downloadRemoteIssue rebuilds the remote's version of an issue by
// following the GET /<project>/issues/<id> entry-id listing (root to
// head) and downloading any entries not already cached locally,
// matching original_source/src/clone.cpp::cloneIssue generalized to
// the full-chain wire endpoint spec.md §6 actually exposes. Entries are
// fetched concurrently (golang.org/x/sync/errgroup, SPEC_FULL.md DOMAIN
// STACK) since each download is an independent GET; they are
// reassembled in chain order afterward, since Issue.AddEntry requires
// that order.
func downloadRemoteIssue(ctx context.Context, c *Client, proj *project.Project, issueID string) (*issue.Issue, error) {
	data, status, err := c.Get(ctx, "/"+proj.Name()+"/issues/"+issueID)
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, fmt.Errorf("syncproto: downloading issue %s: HTTP %d", issueID, status)
	}
	entryIDs := splitNonEmptyLines(string(data))

	entries := make([]*entry.Entry, len(entryIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, id := range entryIDs {
		i, id := i, id
		g.Go(func() error {
			e, err := downloadEntry(gctx, c, proj, id)
			if err != nil {
				return fmt.Errorf("syncproto: downloading entry %s of issue %s: %w", id, issueID, err)
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	remote := issue.New(issueID)
	for _, e := range entries {
		if err := remote.AddEntry(e); err != nil {
			return nil, err
		}
	}
	return remote, nil
}

// pullIssue implements original_source/src/clone.cpp::pullIssue: align
// the local issue with the remote by id (renaming as needed), then
// walk both chains in lock-step, merging on divergence (spec §4.8).
func pullIssue(ctx context.Context, c *Client, proj *project.Project, remoteIssueID string, opts PullOptions) error {
	remoteIssue, err := downloadRemoteIssue(ctx, c, proj, remoteIssueID)
	if err != nil {
		return err
	}
	if len(remoteIssue.Entries) == 0 {
		return fmt.Errorf("syncproto: remote issue %s has no entries", remoteIssueID)
	}

	firstEntryID := remoteIssue.Entries[0].ID
	localIssue, localIssueID := findIssueContainingEntry(proj, firstEntryID)

	if localIssue != nil && localIssueID != remoteIssueID {
		// The local issue holding this entry chain has diverged in id
		// from the remote: rename it to match (clearing the way first).
		renameIssueStandingInTheWay(proj, remoteIssueID)
		if err := proj.RenameIssueTo(localIssueID, remoteIssueID); err != nil {
			return fmt.Errorf("syncproto: rename local issue %s -> %s: %w", localIssueID, remoteIssueID, err)
		}
		localIssue, _ = proj.Get(remoteIssueID)
	}

	if localIssue == nil {
		renameIssueStandingInTheWay(proj, remoteIssueID)
		return proj.InstallIssueChain(remoteIssueID, remoteIssue.Entries)
	}

	return walkAndMerge(proj, localIssue, remoteIssue, opts)
}

// findIssueContainingEntry scans every loaded issue for one containing
// entryID, the local-side equivalent of the original's
// Project::getEntry(id)->issue back-pointer.
func findIssueContainingEntry(proj *project.Project, entryID string) (*issue.Issue, string) {
	for _, iss := range proj.AllIssues() {
		if _, ok := iss.Entry(entryID); ok {
			return iss, iss.ID
		}
	}
	return nil, ""
}

// renameIssueStandingInTheWay mirrors the original helper of the same
// name: if a different local issue already occupies issueID, give it a
// fresh id before the incoming remote issue can take that slot.
func renameIssueStandingInTheWay(proj *project.Project, issueID string) {
	if _, ok := proj.Get(issueID); ok {
		_, _ = proj.RenameIssue(issueID)
	}
}

// walkAndMerge compares localIssue and remoteIssue entry by entry. On
// the first divergence it merges the local tail against the remote
// tail and installs the reconciled chain as the issue's new state; if
// the remote chain is simply longer, the remote chain is adopted
// directly; if local already covers every remote entry, nothing
// changes (spec §4.8).
func walkAndMerge(proj *project.Project, localIssue, remoteIssue *issue.Issue, opts PullOptions) error {
	local := localIssue.Entries
	remote := remoteIssue.Entries

	i := 0
	for i < len(local) && i < len(remote) && local[i].ID == remote[i].ID {
		i++
	}

	switch {
	case i == len(remote):
		return nil
	case i == len(local):
		return proj.InstallIssueChain(localIssue.ID, remote)
	default:
		commonParent := entry.ParentNull
		if i > 0 {
			commonParent = local[i-1].ID
		}
		conflictingPart := remoteConflictingProperties(remoteIssue, commonParent)

		fullChain := append([]*entry.Entry(nil), remote...)
		head := remoteIssue
		for _, le := range local[i:] {
			m := mergeEntry(le, head, conflictingPart, opts.MergeStrategy, opts.Resolver, opts.now())
			if m == nil {
				continue
			}
			if err := head.AddEntry(m); err != nil {
				return err
			}
			fullChain = append(fullChain, m)
		}
		return proj.InstallIssueChain(localIssue.ID, fullChain)
	}
}

func pullProjectConfig(ctx context.Context, c *Client, proj *project.Project) error {
	data, status, err := c.Get(ctx, "/"+proj.Name()+"/refs/project")
	if err != nil {
		return err
	}
	if status != 200 {
		return nil // no remote config ref published; nothing to adopt.
	}
	return proj.ModifyConfig(project.ParseConfigUpdate(data), "sync")
}

func pullProjectViews(ctx context.Context, c *Client, proj *project.Project) error {
	data, status, err := c.Get(ctx, "/"+proj.Name()+"/refs/views")
	if err != nil {
		return err
	}
	if status != 200 {
		return nil
	}
	for name, v := range projectconfig.LoadViews(data) {
		if err := proj.SetPredefinedView(name, v); err != nil {
			return err
		}
	}
	return nil
}
