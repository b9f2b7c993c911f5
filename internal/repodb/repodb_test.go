package repodb_test

import (
	"testing"

	"github.com/smit-go/smit/internal/repodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProjectRegistersIt(t *testing.T) {
	root := t.TempDir()
	db := repodb.Open(root)

	p, err := db.CreateProject("demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name())

	got, ok := db.GetProject("demo")
	require.True(t, ok)
	assert.Equal(t, p.Path(), got.Path())
	assert.Equal(t, []string{"demo"}, db.GetProjects())
}

func TestLoadProjectsDiscoversOnDiskProjects(t *testing.T) {
	root := t.TempDir()
	seed := repodb.Open(root)
	_, err := seed.CreateProject("alpha")
	require.NoError(t, err)
	_, err = seed.CreateProject("beta")
	require.NoError(t, err)

	db := repodb.Open(root)
	require.NoError(t, db.LoadProjects())

	assert.Equal(t, 2, db.NumProjects())
	_, ok := db.GetProject("alpha")
	assert.True(t, ok)
	_, ok = db.GetProject("beta")
	assert.True(t, ok)
}

func TestLookupProjectNotFound(t *testing.T) {
	db := repodb.Open(t.TempDir())
	_, err := db.LookupProject("missing")
	assert.Error(t, err)
}

func TestSharedAllocatorMonotonic(t *testing.T) {
	db := repodb.Open(t.TempDir())
	first := db.AllocateNewIssueID()
	second := db.AllocateNewIssueID()
	assert.NotEqual(t, first, second)

	alloc := db.SharedAllocator()
	third := alloc.NextIssueID()
	assert.NotEqual(t, second, third)
}

func TestLoadProjectsOnEmptyRootFindsNone(t *testing.T) {
	db := repodb.Open(t.TempDir())
	require.NoError(t, db.LoadProjects())
	assert.Equal(t, 0, db.NumProjects())
}
