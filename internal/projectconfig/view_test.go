package projectconfig_test

import (
	"testing"

	"github.com/smit-go/smit/internal/projectconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddViewBasic(t *testing.T) {
	views := projectconfig.LoadViews([]byte(
		"addView myview \\\n    default \\\n    filterin status open \\\n    sort -ctime \\\n    colspec id+summary \\\n    search foo\n",
	))
	v, ok := views["myview"]
	require.True(t, ok)
	assert.True(t, v.IsDefault)
	assert.Equal(t, []string{"open"}, v.FilterIn["status"])
	assert.Equal(t, "-ctime", v.Sort)
	assert.Equal(t, "id+summary", v.ColSpec)
	assert.Equal(t, "foo", v.Search)
}

func TestParseAddViewFilterInOutMultipleValues(t *testing.T) {
	views := projectconfig.LoadViews([]byte(
		"addView v filterin status open filterin status reopened filterout owner nobody\n",
	))
	v := views["v"]
	assert.Equal(t, []string{"open", "reopened"}, v.FilterIn["status"])
	assert.Equal(t, []string{"nobody"}, v.FilterOut["owner"])
}

func TestParseAddViewMissingNameIsSkipped(t *testing.T) {
	views := projectconfig.LoadViews([]byte("addView\n"))
	assert.Empty(t, views)
}

func TestOnlyLastDefaultWins(t *testing.T) {
	views := projectconfig.LoadViews([]byte(
		"addView a default\naddView b default\n",
	))
	assert.False(t, views["a"].IsDefault)
	assert.True(t, views["b"].IsDefault)
}

func TestSerializeViewsRoundTrip(t *testing.T) {
	views := map[string]projectconfig.PredefinedView{
		"myview": {
			Name:      "myview",
			IsDefault: true,
			FilterIn:  map[string][]string{"status": {"open"}},
			FilterOut: map[string][]string{},
			Sort:      "-ctime",
			ColSpec:   "id+summary",
			Search:    "foo",
		},
	}
	data := projectconfig.SerializeViews(views)
	reparsed := projectconfig.LoadViews(data)
	v, ok := reparsed["myview"]
	require.True(t, ok)
	assert.True(t, v.IsDefault)
	assert.Equal(t, []string{"open"}, v.FilterIn["status"])
	assert.Equal(t, "-ctime", v.Sort)
	assert.Equal(t, "id+summary", v.ColSpec)
	assert.Equal(t, "foo", v.Search)
}
