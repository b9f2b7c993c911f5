package projectconfig

import (
	"sort"
	"strings"

	"github.com/smit-go/smit/internal/entry"
	"github.com/smit-go/smit/internal/token"
)

// PredefinedView is a saved search stored in the project's "views" file
// (spec §4.4): a name plus filter/sort/search/column parameters, exactly
// as accepted by the /issues query string.
type PredefinedView struct {
	Name      string
	FilterIn  map[string][]string
	FilterOut map[string][]string
	ColSpec   string
	Sort      string
	Search    string
	Limit     int
	IsDefault bool
}

// ParseViews parses the tokenized contents of a "views" file into a
// name-keyed map, following View.cpp::parsePredefinedViews. A line that
// fails to parse is dropped; at most one view keeps "default": among
// several, the one whose name sorts last wins, whatever the order of
// the lines.
func ParseViews(lines [][]string) map[string]PredefinedView {
	views := map[string]PredefinedView{}
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		verb, rest := line[0], line[1:]
		switch verb {
		case "smit-version":
		case "addView":
			if len(rest) == 0 || rest[0] == "" {
				continue
			}
			pv := PredefinedView{
				Name:      rest[0],
				FilterIn:  map[string][]string{},
				FilterOut: map[string][]string{},
			}
			toks := rest[1:]
			valid := true
			for len(toks) > 0 {
				tok := toks[0]
				toks = toks[1:]
				switch tok {
				case "filterin", "filterout":
					if len(toks) < 2 {
						valid = false
						toks = nil
						continue
					}
					property, value := toks[0], toks[1]
					toks = toks[2:]
					if tok == "filterin" {
						pv.FilterIn[property] = append(pv.FilterIn[property], value)
					} else {
						pv.FilterOut[property] = append(pv.FilterOut[property], value)
					}
				case "default":
					pv.IsDefault = true
				case "colspec":
					if len(toks) < 1 {
						valid = false
						toks = nil
						continue
					}
					pv.ColSpec = toks[0]
					toks = toks[1:]
				case "sort":
					if len(toks) < 1 {
						valid = false
						toks = nil
						continue
					}
					pv.Sort = toks[0]
					toks = toks[1:]
				case "search":
					if len(toks) < 1 {
						valid = false
						toks = nil
						continue
					}
					pv.Search = toks[0]
					toks = toks[1:]
				default:
					valid = false
				}
			}
			if valid && pv.Name != "" {
				views[pv.Name] = pv
			}
		}
	}
	enforceExclusiveDefault(views)
	return views
}

// ClearOtherDefaults clears IsDefault on every view in views other than
// keep, enforcing the single-winner invariant on the runtime write path
// (SetPredefinedView): setting a new default view clears the flag on
// any other view of the same project (SPEC_FULL.md's supplemented
// feature #6), the same invariant enforceExclusiveDefault applies on
// the disk-load path below.
func ClearOtherDefaults(views map[string]PredefinedView, keep string) {
	for n, v := range views {
		if n != keep && v.IsDefault {
			v.IsDefault = false
			views[n] = v
		}
	}
}

// enforceExclusiveDefault keeps IsDefault only on the default view
// whose name sorts last, matching View.cpp's single isDefault winner.
func enforceExclusiveDefault(views map[string]PredefinedView) {
	names := make([]string, 0, len(views))
	for n := range views {
		names = append(names, n)
	}
	sort.Strings(names)
	seenDefault := ""
	for _, n := range names {
		if views[n].IsDefault {
			seenDefault = n
		}
	}
	for _, n := range names {
		if n != seenDefault {
			v := views[n]
			v.IsDefault = false
			views[n] = v
		}
	}
}

// LoadViews tokenizes data and parses it into a PredefinedView map.
func LoadViews(data []byte) map[string]PredefinedView {
	return ParseViews(token.Tokenize(data))
}

// Serialize renders a single view back to wire format.
func (v PredefinedView) Serialize() []byte {
	var b strings.Builder
	fields := []string{v.Name}
	if v.IsDefault {
		fields = append(fields, "default")
	}

	props := make([]string, 0, len(v.FilterIn))
	for p := range v.FilterIn {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, p := range props {
		for _, val := range v.FilterIn[p] {
			fields = append(fields, "filterin", p, val)
		}
	}

	props = props[:0]
	for p := range v.FilterOut {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, p := range props {
		for _, val := range v.FilterOut[p] {
			fields = append(fields, "filterout", p, val)
		}
	}

	if v.Sort != "" {
		fields = append(fields, "sort", v.Sort)
	}
	if v.ColSpec != "" {
		fields = append(fields, "colspec", v.ColSpec)
	}
	if v.Search != "" {
		fields = append(fields, "search", v.Search)
	}

	b.WriteString(token.SerializeLine("addView", fields))
	b.WriteByte('\n')
	return []byte(b.String())
}

// SerializeViews renders a full views file: a smit-version header
// followed by one addView line per view, in name order.
func SerializeViews(views map[string]PredefinedView) []byte {
	var b strings.Builder
	b.WriteString(token.SerializeLine("smit-version", []string{entry.SmitVersion}))
	b.WriteByte('\n')
	names := make([]string, 0, len(views))
	for n := range views {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		b.Write(views[n].Serialize())
	}
	return []byte(b.String())
}
