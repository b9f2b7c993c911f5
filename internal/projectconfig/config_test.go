package projectconfig_test

import (
	"testing"

	"github.com/smit-go/smit/internal/projectconfig"
	"github.com/smit-go/smit/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddPropertySelectUserWithLabel(t *testing.T) {
	c := projectconfig.Load([]byte(`addProperty owner -label "Owner" selectUser` + "\n"))
	require.Len(t, c.Properties, 1)
	p := c.Properties[0]
	assert.Equal(t, "owner", p.Name)
	assert.Equal(t, projectconfig.SelectUser, p.Type)
	assert.Equal(t, "Owner", c.LabelOf("owner"))
}

func TestParseAddPropertySelectOptions(t *testing.T) {
	c := projectconfig.Load([]byte("addProperty status select open closed\n"))
	p, ok := c.GetPropertySpec("status")
	require.True(t, ok)
	assert.Equal(t, projectconfig.Select, p.Type)
	assert.Equal(t, []string{"open", "closed"}, p.SelectOptions)
}

func TestParseMultiselectDropsEmptyValues(t *testing.T) {
	c := projectconfig.Load([]byte(`addProperty tags multiselect a "" b` + "\n"))
	p, ok := c.GetPropertySpec("tags")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, p.SelectOptions)
}

func TestParseAssociationReverseLabel(t *testing.T) {
	c := projectconfig.Load([]byte(`addProperty blocks association -reverseLabel "blocked by"` + "\n"))
	p, ok := c.GetPropertySpec("blocks")
	require.True(t, ok)
	assert.Equal(t, projectconfig.Association, p.Type)
	assert.Equal(t, "blocked by", c.ReverseLabelOf("blocks"))
}

func TestParseSetPropertyLabel(t *testing.T) {
	c := projectconfig.Load([]byte("addProperty owner text\nsetPropertyLabel owner Assignee\n"))
	assert.Equal(t, "Assignee", c.LabelOf("owner"))
}

func TestParseNumberIssuesGlobal(t *testing.T) {
	c := projectconfig.Load([]byte("numberIssues global\n"))
	assert.True(t, c.NumberIssueAcrossProjects)
}

func TestParseTagWithLabelAndDisplay(t *testing.T) {
	c := projectconfig.Load([]byte(`tag star -label "Starred" -display` + "\n"))
	ts, ok := c.Tags["star"]
	require.True(t, ok)
	assert.Equal(t, "Starred", ts.Label)
	assert.True(t, ts.Display)
}

func TestParseTagDefaultsLabelToID(t *testing.T) {
	c := projectconfig.Load([]byte("tag star\n"))
	ts, ok := c.Tags["star"]
	require.True(t, ok)
	assert.Equal(t, "star", ts.Label)
	assert.False(t, ts.Display)
}

func TestParseUnknownVerbIsDropped(t *testing.T) {
	c := projectconfig.Load([]byte("bogus foo bar\naddProperty owner text\n"))
	assert.Len(t, c.Properties, 1)
}

func TestParseMalformedAddPropertyIsDropped(t *testing.T) {
	c := projectconfig.Load([]byte("addProperty owner bogustype\naddProperty status text\n"))
	assert.Len(t, c.Properties, 1)
	assert.Equal(t, "status", c.Properties[0].Name)
}

func TestReservedProperties(t *testing.T) {
	assert.True(t, projectconfig.IsReservedProperty("id"))
	assert.True(t, projectconfig.IsReservedProperty("summary"))
	assert.False(t, projectconfig.IsReservedProperty("owner"))
}

func TestIsValidPropertyName(t *testing.T) {
	assert.True(t, projectconfig.IsValidPropertyName("owner_1"))
	assert.False(t, projectconfig.IsValidPropertyName("owner name"))
	assert.False(t, projectconfig.IsValidPropertyName(""))
}

func TestSerializeRoundTrip(t *testing.T) {
	c := projectconfig.New()
	c.Properties = []projectconfig.PropertySpec{
		{Name: "status", Label: "Status", Type: projectconfig.Select, SelectOptions: []string{"open", "closed"}},
		{Name: "blocks", Type: projectconfig.Association, ReverseLabel: "blocked by"},
	}
	c.PropertyLabels["status"] = "Status"
	c.PropertyReverseLabels["blocks"] = "blocked by"
	c.Tags["star"] = projectconfig.TagSpec{ID: "star", Label: "Starred", Display: true}
	c.NumberIssueAcrossProjects = true

	data := c.Serialize()
	reparsed := projectconfig.Load(data)

	require.Len(t, reparsed.Properties, 2)
	assert.Equal(t, "Status", reparsed.LabelOf("status"))
	assert.Equal(t, []string{"open", "closed"}, reparsed.Properties[0].SelectOptions)
	assert.Equal(t, "blocked by", reparsed.ReverseLabelOf("blocks"))
	assert.True(t, reparsed.NumberIssueAcrossProjects)
	assert.True(t, reparsed.Tags["star"].Display)
}

func TestParseUsesTokenizer(t *testing.T) {
	lines := token.Tokenize([]byte("addProperty owner text\n"))
	c := projectconfig.Parse(lines)
	assert.Len(t, c.Properties, 1)
}
