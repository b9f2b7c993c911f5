package syncproto

import (
	"context"
	"fmt"
	"strings"

	"github.com/smit-go/smit/internal/entry"
	"github.com/smit-go/smit/internal/issue"
	"github.com/smit-go/smit/internal/project"
	"github.com/smit-go/smit/internal/smiterr"
)

// Push uploads every local issue of proj to the remote, per spec §4.8
// ("Push per project"), matching
// original_source/src/clone.cpp::pushProject.
func Push(ctx context.Context, c *Client, proj *project.Project) error {
	for _, iss := range proj.AllIssues() {
		if err := pushIssue(ctx, c, proj, iss); err != nil {
			return fmt.Errorf("syncproto: push issue %s: %w", iss.ID, err)
		}
	}
	return nil
}

// getEntriesOfRemoteIssue fetches the remote's entry-id listing for
// issueID (spec §6: GET /<project>/issues/<id>); a non-200 status
// means the remote has no such issue yet.
func getEntriesOfRemoteIssue(ctx context.Context, c *Client, projectName, issueID string) ([]string, bool, error) {
	data, status, err := c.Get(ctx, "/"+projectName+"/issues/"+issueID)
	if err != nil {
		return nil, false, err
	}
	if status != 200 {
		return nil, false, nil
	}
	return splitNonEmptyLines(string(data)), true, nil
}

// pushEntry uploads localIssue's entry with the given id (spec §6:
// POST /<project>/issues/<id>/<entryId>), returning the issue id the
// server actually assigned it to -- which differs from issueID only
// when the server renamed a colliding new issue (global numbering,
// spec §4.6), matching original_source/src/clone.cpp::pushEntry.
func pushEntry(ctx context.Context, c *Client, proj *project.Project, issueID, entryID string) (string, error) {
	e, ok := proj.GetEntry(entryID)
	if !ok {
		return "", smiterr.UnknownEntry(entryID)
	}
	body := e.Serialize()
	path := "/" + proj.Name() + "/issues/" + issueID + "/" + entryID
	resp, status, err := c.PostBytes(ctx, path, body)
	if err != nil {
		return "", err
	}
	if status == 409 {
		return "", smiterr.TryPullFirst(issueID)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("syncproto: pushing entry %s/%s: HTTP %d", issueID, entryID, status)
	}

	line := firstLine(resp)
	actual := strings.TrimSpace(strings.TrimPrefix(line, "issue:"))
	if actual == "" {
		actual = issueID
	}
	return actual, nil
}

func firstLine(data []byte) string {
	s := string(data)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// pushAttachedFiles uploads every +file referenced by e that the
// remote does not already have, probing first with HEAD (spec §4.8
// "cheap HEAD probe first"), matching
// original_source/src/clone.cpp::pushAttachedFiles.
func pushAttachedFiles(ctx context.Context, c *Client, proj *project.Project, e *entry.Entry) error {
	fileID := e.File()
	if fileID == "" {
		return nil
	}
	// a +file value is "<object-id>/<basename>" in the original; this
	// port stores just the object id (spec §3/§4.2), so there is no
	// basename to strip.
	path := "/" + proj.Name() + "/files/" + fileID
	present, err := c.Head(ctx, path)
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	data, err := proj.Store().Load(fileID)
	if err != nil {
		return err
	}
	_, status, err := c.PostBytes(ctx, path, data)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("syncproto: pushing file %s: HTTP %d", fileID, status)
	}
	return nil
}

// pushIssue implements original_source/src/clone.cpp::pushIssue: push
// missing entries of localIssue to the remote, renaming the local
// issue if the server assigns a different id to its first entry, then
// push any attached files.
func pushIssue(ctx context.Context, c *Client, proj *project.Project, localIssue *issue.Issue) error {
	if len(localIssue.Entries) == 0 {
		return fmt.Errorf("syncproto: issue %s has no entries", localIssue.ID)
	}
	firstEntry := localIssue.Entries[0]

	remoteEntries, remoteExists, err := getEntriesOfRemoteIssue(ctx, c, proj.Name(), localIssue.ID)
	if err != nil {
		return err
	}

	issueID := localIssue.ID
	if !remoteExists {
		actual, err := pushEntry(ctx, c, proj, issueID, firstEntry.ID)
		if err != nil {
			return err
		}
		if actual != issueID {
			renameIssueStandingInTheWay(proj, actual)
			if err := proj.RenameIssueTo(issueID, actual); err != nil {
				return fmt.Errorf("syncproto: rename local issue %s -> %s: %w", issueID, actual, err)
			}
			issueID = actual
		}
		for _, e := range localIssue.Entries[1:] {
			if _, err := pushEntry(ctx, c, proj, issueID, e.ID); err != nil {
				return err
			}
		}
	} else {
		if len(remoteEntries) == 0 {
			return fmt.Errorf("syncproto: %s: remote reports an issue with no entries", issueID)
		}
		if remoteEntries[0] != firstEntry.ID {
			return fmt.Errorf("syncproto: %s: %w", issueID, smiterr.TryPullFirst(issueID))
		}
		for i, e := range localIssue.Entries {
			if i < len(remoteEntries) {
				if remoteEntries[i] != e.ID {
					return fmt.Errorf("syncproto: %s: remote not aligned, %w", issueID, smiterr.TryPullFirst(issueID))
				}
				continue
			}
			if _, err := pushEntry(ctx, c, proj, issueID, e.ID); err != nil {
				return err
			}
		}
	}

	for _, e := range localIssue.Entries {
		if err := pushAttachedFiles(ctx, c, proj, e); err != nil {
			return err
		}
	}
	return nil
}
