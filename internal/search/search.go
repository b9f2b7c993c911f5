// Package search implements issue filtering, full-text search and
// sorting across a project's issues (spec §3/§4.7), matching
// original_source/src/Project.cpp::search and Issue.cpp's isInFilter /
// lessThan / searchFullText.
package search

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/smit-go/smit/internal/issue"
	"golang.org/x/sync/errgroup"
)

// Filter is a set of property=values clauses (OR within a property's
// value list, AND across properties, matched with shell-glob
// case-insensitive semantics -- spec §4.7).
//
// Filter deliberately keeps "no filter supplied" and "filter supplied
// with zero clauses" apart as distinct states, rather than collapsing
// them the way a bare nil/empty map would: the zero value Filter{}
// reports Enabled() == false and disables the corresponding check
// entirely, while NewFilter(nil) (or any Clauses map, even an empty
// one) is Enabled() == true and therefore matches nothing. This is
// spec §8/§9's boundary -- "An empty filterIn map matches nothing ...
// use 'no filter supplied' (distinct from empty) to disable" -- stated
// deliberately to be *stricter* than original_source/src/Project.cpp's
// `!filterIn.empty() && ...` guard, not a gap to fill by copying it.
type Filter struct {
	Clauses map[string][]string
	enabled bool
}

// NewFilter returns an enabled Filter over clauses. A nil or empty
// clauses map is a valid enabled filter; per the type's own doc
// comment, it matches nothing.
func NewFilter(clauses map[string][]string) Filter {
	return Filter{Clauses: clauses, enabled: true}
}

// Enabled reports whether f was constructed with NewFilter (as opposed
// to being the zero value).
func (f Filter) Enabled() bool { return f.enabled }

// isPropertyInFilter reports whether any of propertyValues glob-matches
// any of filteredValues, case-insensitively.
func isPropertyInFilter(propertyValues, filteredValues []string) bool {
	if len(propertyValues) == 0 {
		propertyValues = []string{""}
	}
	for _, fv := range filteredValues {
		for _, v := range propertyValues {
			if globMatchFold(fv, v) {
				return true
			}
		}
	}
	return false
}

// globMatchFold reports whether v matches the shell glob pattern,
// ignoring case, mirroring fnmatch(..., FNM_CASEFOLD) in the original.
func globMatchFold(pattern, v string) bool {
	ok, err := filepath.Match(strings.ToLower(pattern), strings.ToLower(v))
	return err == nil && ok
}

// isInFilter reports whether iss matches every key of clauses (AND
// across keys, OR within a key's value list). An issue lacking a
// filtered property is treated as having a single empty-string value.
// A filter with zero clauses matches nothing -- see Filter's doc
// comment -- so callers must check Enabled() themselves before calling
// this with a filter that might have no clauses at all.
func isInFilter(iss *issue.Issue, clauses map[string][]string) bool {
	if len(clauses) == 0 {
		return false
	}
	for propertyName, filteredValues := range clauses {
		var values []string
		if propertyName == "id" {
			values = []string{iss.ID}
		} else {
			values = iss.Properties[propertyName]
		}
		if !isPropertyInFilter(values, filteredValues) {
			return false
		}
	}
	return true
}

// Matches reports whether iss passes filterIn (must match, if
// enabled), filterOut (must NOT match, if enabled -- and filterOut
// wins ties per spec §4.7), and the fulltext search.
func Matches(iss *issue.Issue, fulltext string, filterIn, filterOut Filter) bool {
	if filterIn.Enabled() && !isInFilter(iss, filterIn.Clauses) {
		return false
	}
	if filterOut.Enabled() && isInFilter(iss, filterOut.Clauses) {
		return false
	}
	return iss.SearchFullText(fulltext)
}

// Search runs Matches over issues sequentially, in encounter order.
func Search(issues []*issue.Issue, fulltext string, filterIn, filterOut Filter) []*issue.Issue {
	out := make([]*issue.Issue, 0, len(issues))
	for _, iss := range issues {
		if Matches(iss, fulltext, filterIn, filterOut) {
			out = append(out, iss)
		}
	}
	return out
}

// ParallelSearch is Search using a bounded worker pool, useful for
// projects with a large number of issues where full-text scanning
// dominates (SPEC_FULL.md DOMAIN STACK: golang.org/x/sync/errgroup).
// Results preserve the input order.
func ParallelSearch(ctx context.Context, issues []*issue.Issue, fulltext string, filterIn, filterOut Filter, workers int) ([]*issue.Issue, error) {
	if workers <= 0 {
		workers = 1
	}
	keep := make([]bool, len(issues))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for idx := range issues {
		idx := idx
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			keep[idx] = Matches(issues[idx], fulltext, filterIn, filterOut)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*issue.Issue, 0, len(issues))
	for idx, k := range keep {
		if k {
			out = append(out, issues[idx])
		}
	}
	return out, nil
}

// SortKey is one (ascending, propertyName) pair parsed from a sorting
// spec string such as "+priority-ctime".
type SortKey struct {
	Ascending bool
	Property  string
}

// ParseSortingSpec parses a string like "aa+bb-cc" into
// [(true,"aa"),(true,"bb"),(false,"cc")] (spec §4.7), matching
// original_source/src/Project.cpp::parseSortingSpec: a leading bare
// property name (no sign) is ascending, '+' or ' ' sets ascending for
// what follows, '-' sets descending.
func ParseSortingSpec(spec string) []SortKey {
	var keys []SortKey
	ascending := true
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			keys = append(keys, SortKey{Ascending: ascending, Property: cur.String()})
			cur.Reset()
		}
	}
	for _, c := range spec {
		switch c {
		case '+', ' ', '-':
			flush()
			ascending = c != '-'
		default:
			cur.WriteRune(c)
		}
	}
	flush()
	return keys
}

// Sort orders issues in place according to sortingSpec, stably, falling
// back to no reordering when sortingSpec parses to no keys.
func Sort(issues []*issue.Issue, sortingSpec string) {
	keys := ParseSortingSpec(sortingSpec)
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return lessThan(issues[i], issues[j], keys)
	})
}

func lessThan(a, b *issue.Issue, keys []SortKey) bool {
	for _, k := range keys {
		cmp := compareByKey(a, b, k.Property)
		if !k.Ascending {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp < 0
		}
	}
	return false
}

func compareByKey(a, b *issue.Issue, property string) int {
	switch property {
	case "id":
		ai, aerr := strconv.Atoi(a.ID)
		bi, berr := strconv.Atoi(b.ID)
		if aerr == nil && berr == nil {
			return compareInt(int64(ai), int64(bi))
		}
		return strings.Compare(a.ID, b.ID)
	case "ctime":
		return compareInt(a.CTime, b.CTime)
	case "mtime":
		return compareInt(a.MTime, b.MTime)
	default:
		return compareProperties(a.Properties[property], b.Properties[property])
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareProperties compares two multi-valued properties value by
// value in order; a missing property sorts before a present one
// (arbitrary choice, matching the original).
func compareProperties(a, b []string) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return compareInt(int64(len(a)), int64(len(b)))
}
