package issue_test

import (
	"testing"
	"time"

	"github.com/smit-go/smit/internal/entry"
	"github.com/smit-go/smit/internal/issue"
	"github.com/smit-go/smit/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidationAndAmendment(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e1 := entry.New(entry.Properties{
		"summary": {"S1"},
		"status":  {"open"},
	}, "alice", entry.ParentNull, now)

	iss := issue.New("1")
	require.NoError(t, iss.AddEntry(e1))
	assert.Equal(t, e1.CTime, iss.CTime)
	assert.Equal(t, e1.CTime, iss.MTime)
	assert.Equal(t, []string{"S1"}, iss.Properties["summary"])

	later := now.Add(time.Minute)
	e2 := entry.New(entry.Properties{
		entry.KeyMessage: {"S1 fixed"},
		entry.KeyAmend:   {e1.ID},
	}, "alice", e1.ID, later)
	require.NoError(t, iss.AddEntry(e2))

	assert.Equal(t, e1.CTime, iss.CTime)
	assert.Equal(t, e2.CTime, iss.MTime)
	assert.Equal(t, "S1 fixed", iss.EffectiveMessage(e1.ID))
	assert.Contains(t, iss.Amendments[e1.ID], e2.ID)
}

func TestConsolidateIsDeterministic(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e1 := entry.New(entry.Properties{"summary": {"a"}}, "alice", entry.ParentNull, now)
	e2 := entry.New(entry.Properties{"owner": {"bob"}}, "alice", e1.ID, now.Add(time.Second))

	iss := issue.New("1")
	require.NoError(t, iss.AddEntry(e1))
	require.NoError(t, iss.AddEntry(e2))

	first := iss.Properties.Clone()
	iss.Consolidate()
	assert.Equal(t, first, iss.Properties)
	iss.Consolidate()
	assert.Equal(t, first, iss.Properties)
}

func TestSingleEntryCtimeEqualsMtime(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e1 := entry.New(entry.Properties{"summary": {"a"}}, "alice", entry.ParentNull, now)
	iss := issue.New("1")
	require.NoError(t, iss.AddEntry(e1))
	assert.Equal(t, iss.CTime, iss.MTime)
}

func TestToggleTagIsIdempotentPair(t *testing.T) {
	iss := issue.New("1")
	on := iss.ToggleTag("e1", "urgent")
	assert.True(t, on)
	off := iss.ToggleTag("e1", "urgent")
	assert.False(t, off)
	assert.Empty(t, iss.Tags)
}

func TestSearchFullText(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e1 := entry.New(entry.Properties{"summary": {"Login broken"}}, "alice", entry.ParentNull, now)
	iss := issue.New("42")
	require.NoError(t, iss.AddEntry(e1))

	assert.True(t, iss.SearchFullText("LOGIN"))
	assert.True(t, iss.SearchFullText("42"))
	assert.True(t, iss.SearchFullText("alice"))
	assert.False(t, iss.SearchFullText("nonexistent-xyz"))
}

func TestLoadWalksParentChain(t *testing.T) {
	dir := t.TempDir()
	store, err := objectstore.Open(dir)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	e1 := entry.New(entry.Properties{"summary": {"a"}}, "alice", entry.ParentNull, now)
	_, _, err = entry.Write(store, e1)
	require.NoError(t, err)

	e2 := entry.New(entry.Properties{"owner": {"bob"}}, "alice", e1.ID, now.Add(time.Second))
	_, _, err = entry.Write(store, e2)
	require.NoError(t, err)

	iss, err := issue.Load(store, "1", e2.ID)
	require.NoError(t, err)
	require.Len(t, iss.Entries, 2)
	assert.Equal(t, e1.ID, iss.Entries[0].ID)
	assert.Equal(t, e2.ID, iss.Entries[1].ID)
	assert.Equal(t, []string{"a"}, iss.Properties["summary"])
	assert.Equal(t, []string{"bob"}, iss.Properties["owner"])
}

func TestLoadMissingParentIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := objectstore.Open(dir)
	require.NoError(t, err)

	_, err = issue.Load(store, "1", "0000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e1 := entry.New(entry.Properties{"summary": {"a"}}, "alice", entry.ParentNull, now)
	iss := issue.New("1")
	require.NoError(t, iss.AddEntry(e1))

	cp := iss.Clone()
	cp.Properties["summary"][0] = "mutated"
	assert.Equal(t, []string{"a"}, iss.Properties["summary"])
}
