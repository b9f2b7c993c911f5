package project_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smit-go/smit/internal/entry"
	"github.com/smit-go/smit/internal/objectstore"
	"github.com/smit-go/smit/internal/project"
	"github.com/smit-go/smit/internal/projectconfig"
	"github.com/smit-go/smit/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProject(t *testing.T) *project.Project {
	t.Helper()
	root := t.TempDir()
	p, err := project.Init(root, "myproject")
	require.NoError(t, err)

	lines := token.Tokenize([]byte(
		"addProperty status select open closed\n" +
			"addProperty owner selectUser\n" +
			"addProperty blocks association -reverseLabel \"blocked by\"\n",
	))
	require.NoError(t, p.ModifyConfig(lines, "alice"))
	return p
}

func TestInitCreatesLayout(t *testing.T) {
	root := t.TempDir()
	p, err := project.Init(root, "proj one")
	require.NoError(t, err)
	assert.DirExists(t, p.ObjectsDir())
	assert.DirExists(t, p.IssuesDir())
	assert.FileExists(t, filepath.Join(p.Path(), "project"))
	assert.FileExists(t, filepath.Join(p.Path(), "views"))
}

func TestAddEntryCreatesNewIssue(t *testing.T) {
	p := newTestProject(t)
	now := time.Unix(1700000000, 0)

	issueID, entryID, err := p.AddEntry(entry.Properties{
		"summary": {"first bug"},
		"status":  {"open"},
	}, "", "alice", now)
	require.NoError(t, err)
	assert.NotEmpty(t, issueID)
	assert.NotEmpty(t, entryID)

	iss, ok := p.Get(issueID)
	require.True(t, ok)
	assert.Equal(t, []string{"first bug"}, iss.Properties["summary"])
	assert.Equal(t, []string{"open"}, iss.Properties["status"])
}

func TestAddEntryDropsUndeclaredProperty(t *testing.T) {
	p := newTestProject(t)
	now := time.Unix(1700000000, 0)

	issueID, _, err := p.AddEntry(entry.Properties{
		"summary":   {"bug"},
		"not_a_key": {"x"},
	}, "", "alice", now)
	require.NoError(t, err)

	iss, _ := p.Get(issueID)
	_, ok := iss.Properties["not_a_key"]
	assert.False(t, ok)
}

func TestAddEntryNoChangeReturnsEmpty(t *testing.T) {
	p := newTestProject(t)
	now := time.Unix(1700000000, 0)

	issueID, _, err := p.AddEntry(entry.Properties{"status": {"open"}}, "", "alice", now)
	require.NoError(t, err)

	gotIssueID, gotEntryID, err := p.AddEntry(entry.Properties{"status": {"open"}}, issueID, "alice", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, issueID, gotIssueID)
	assert.Empty(t, gotEntryID)
}

func TestAssociationParsingAndReverse(t *testing.T) {
	p := newTestProject(t)
	now := time.Unix(1700000000, 0)

	idA, _, err := p.AddEntry(entry.Properties{"summary": {"A"}}, "", "alice", now)
	require.NoError(t, err)

	idB, _, err := p.AddEntry(entry.Properties{
		"summary": {"B"},
		"blocks":  {idA},
	}, "", "alice", now.Add(time.Second))
	require.NoError(t, err)

	rev := p.GetReverseAssociations(idA)
	assert.Equal(t, []string{idB}, rev["blocks"])
}

func TestAmendAndDeleteEntry(t *testing.T) {
	p := newTestProject(t)
	now := time.Unix(1700000000, 0)

	issueID, e1, err := p.AddEntry(entry.Properties{"summary": {"bug"}}, "", "alice", now)
	require.NoError(t, err)

	_, e2, err := p.AddEntry(entry.Properties{"status": {"open"}}, issueID, "alice", now.Add(time.Minute))
	require.NoError(t, err)

	err = p.DeleteEntry(issueID, e2, "alice", now.Add(2*time.Minute))
	require.NoError(t, err)

	amendID, err := p.AmendEntry(issueID, e1, "fixed summary", "alice", now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.NotEmpty(t, amendID)

	iss, _ := p.Get(issueID)
	assert.Equal(t, "fixed summary", iss.EffectiveMessage(e1))
}

func TestDeleteEntryRejectsAfterWindow(t *testing.T) {
	p := newTestProject(t)
	now := time.Unix(1700000000, 0)

	issueID, e1, err := p.AddEntry(entry.Properties{"summary": {"bug"}}, "", "alice", now)
	require.NoError(t, err)
	_, e2, err := p.AddEntry(entry.Properties{"status": {"open"}}, issueID, "alice", now.Add(time.Second))
	require.NoError(t, err)

	err = p.DeleteEntry(issueID, e2, "alice", now.Add(time.Hour))
	assert.Error(t, err)
	_ = e1
}

func TestToggleTagPersistsMarkerFile(t *testing.T) {
	p := newTestProject(t)
	now := time.Unix(1700000000, 0)
	issueID, entryID, err := p.AddEntry(entry.Properties{"summary": {"bug"}}, "", "alice", now)
	require.NoError(t, err)

	on, err := p.ToggleTag(issueID, entryID, "urgent")
	require.NoError(t, err)
	assert.True(t, on)
	assert.FileExists(t, filepath.Join(p.TagsDir(), issueID, entryID+".urgent"))

	off, err := p.ToggleTag(issueID, entryID, "urgent")
	require.NoError(t, err)
	assert.False(t, off)
	_, statErr := os.Stat(filepath.Join(p.TagsDir(), issueID, entryID+".urgent"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRenameIssuePreservesEntries(t *testing.T) {
	p := newTestProject(t)
	now := time.Unix(1700000000, 0)
	oldID, _, err := p.AddEntry(entry.Properties{"summary": {"bug"}}, "", "alice", now)
	require.NoError(t, err)

	newID, err := p.RenameIssue(oldID)
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newID)

	_, ok := p.Get(oldID)
	assert.False(t, ok)
	iss, ok := p.Get(newID)
	require.True(t, ok)
	assert.Equal(t, []string{"bug"}, iss.Properties["summary"])

	assert.NoFileExists(t, filepath.Join(p.IssuesDir(), oldID))
	assert.FileExists(t, filepath.Join(p.IssuesDir(), newID))
}

func TestReloadRebuildsFromDisk(t *testing.T) {
	p := newTestProject(t)
	now := time.Unix(1700000000, 0)
	issueID, _, err := p.AddEntry(entry.Properties{"summary": {"bug"}, "status": {"open"}}, "", "alice", now)
	require.NoError(t, err)

	require.NoError(t, p.Reload())

	iss, ok := p.Get(issueID)
	require.True(t, ok)
	assert.Equal(t, []string{"bug"}, iss.Properties["summary"])
	assert.Equal(t, []string{"open"}, iss.Properties["status"])
}

func TestAddFileIngestsStagedAttachment(t *testing.T) {
	p := newTestProject(t)
	data := []byte("attachment contents")
	oid := objectstore.OID(data)

	require.NoError(t, os.MkdirAll(p.TmpDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(p.TmpDir(), oid), data, 0o644))

	require.NoError(t, p.AddFile(oid))
	got, err := p.Store().Load(oid)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestGetViewsAndDefault(t *testing.T) {
	p := newTestProject(t)
	require.NoError(t, p.SetPredefinedView("open-bugs", projectconfig.PredefinedView{
		IsDefault: true,
		FilterIn:  map[string][]string{"status": {"open"}},
	}))

	views := p.GetViews()
	require.Contains(t, views, "open-bugs")

	def, ok := p.GetDefaultView()
	require.True(t, ok)
	assert.Equal(t, "open-bugs", def.Name)

	require.NoError(t, p.DeletePredefinedView("open-bugs"))
	_, ok = p.GetPredefinedView("open-bugs")
	assert.False(t, ok)
}

func TestSetPredefinedViewDefaultIsExclusive(t *testing.T) {
	p := newTestProject(t)
	require.NoError(t, p.SetPredefinedView("a", projectconfig.PredefinedView{IsDefault: true}))
	require.NoError(t, p.SetPredefinedView("b", projectconfig.PredefinedView{IsDefault: true}))

	views := p.GetViews()
	assert.False(t, views["a"].IsDefault, "setting b as default should have cleared a")
	assert.True(t, views["b"].IsDefault)

	def, ok := p.GetDefaultView()
	require.True(t, ok)
	assert.Equal(t, "b", def.Name)
}
