// Package projectconfig implements ProjectConfig (spec §3/§4.4): the
// per-project schema of user-defined properties, tag definitions and the
// numberIssueAcrossProjects flag, loaded from the wire-format "project"
// file using the same token grammar as entries (internal/token).
package projectconfig

import (
	"regexp"
	"sort"
	"strings"

	"github.com/smit-go/smit/internal/entry"
	"github.com/smit-go/smit/internal/token"
)

// PropertyType enumerates the kinds of user-defined property a project
// may declare.
type PropertyType int

const (
	Text PropertyType = iota
	Select
	MultiSelect
	SelectUser
	TextArea
	TextArea2
	Association
)

func (t PropertyType) String() string {
	switch t {
	case Text:
		return "text"
	case Select:
		return "select"
	case MultiSelect:
		return "multiselect"
	case SelectUser:
		return "selectUser"
	case TextArea:
		return "textarea"
	case TextArea2:
		return "textarea2"
	case Association:
		return "association"
	default:
		return "text"
	}
}

func parsePropertyType(s string) (PropertyType, bool) {
	switch s {
	case "text":
		return Text, true
	case "select":
		return Select, true
	case "multiselect":
		return MultiSelect, true
	case "selectUser":
		return SelectUser, true
	case "textarea":
		return TextArea, true
	case "textarea2":
		return TextArea2, true
	case "association":
		return Association, true
	default:
		return 0, false
	}
}

// PropertySpec is one user-defined property declared by addProperty.
type PropertySpec struct {
	Name          string
	Label         string
	Type          PropertyType
	SelectOptions []string // Select, MultiSelect only
	ReverseLabel  string   // Association only
}

// TagSpec is one tag definition declared by the "tag" verb.
type TagSpec struct {
	ID      string
	Label   string
	Display bool // whether the tag should be shown in the issue header
}

// reservedProperties are names with a fixed, built-in meaning; a project
// cannot declare a user property under any of these names.
var reservedProperties = []string{"id", "ctime", "mtime", "summary"}

// ReservedProperties returns the built-in property names.
func ReservedProperties() []string {
	out := make([]string, len(reservedProperties))
	copy(out, reservedProperties)
	return out
}

// IsReservedProperty reports whether name is one of the built-in
// properties that a project cannot redefine.
func IsReservedProperty(name string) bool {
	for _, r := range reservedProperties {
		if r == name {
			return true
		}
	}
	return false
}

var validPropertyName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// IsValidPropertyName reports whether name is syntactically acceptable
// for addProperty: letters, digits and underscore only.
func IsValidPropertyName(name string) bool {
	if name == "" {
		return false
	}
	return validPropertyName.MatchString(name)
}

// IsValidProjectName rejects names carrying raw CR or LF, which would
// break the directory-per-project layout and the wire protocol alike.
func IsValidProjectName(name string) bool {
	return !strings.ContainsAny(name, "\r\n")
}

// ProjectConfig is the full schema of a project: its user-defined
// properties, their labels, its tag definitions, and whether it
// participates in cross-project issue numbering.
type ProjectConfig struct {
	Properties             []PropertySpec
	PropertyLabels         map[string]string
	PropertyReverseLabels  map[string]string
	Tags                   map[string]TagSpec
	NumberIssueAcrossProjects bool
}

// New returns an empty, ready-to-use ProjectConfig.
func New() *ProjectConfig {
	return &ProjectConfig{
		PropertyLabels:        map[string]string{},
		PropertyReverseLabels: map[string]string{},
		Tags:                  map[string]TagSpec{},
	}
}

// GetPropertySpec returns the spec for name, if declared.
func (c *ProjectConfig) GetPropertySpec(name string) (PropertySpec, bool) {
	for _, p := range c.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertySpec{}, false
}

// PropertyNames returns the declared property names in declaration order.
func (c *ProjectConfig) PropertyNames() []string {
	names := make([]string, len(c.Properties))
	for i, p := range c.Properties {
		names[i] = p.Name
	}
	return names
}

// LabelOf returns the display label of propertyName: its explicit label
// if set via addProperty -label or setPropertyLabel, else the property
// name itself.
func (c *ProjectConfig) LabelOf(propertyName string) string {
	if l, ok := c.PropertyLabels[propertyName]; ok && l != "" {
		return l
	}
	return propertyName
}

// ReverseLabelOf returns the reverse-direction label of an association
// property, falling back to the property name.
func (c *ProjectConfig) ReverseLabelOf(propertyName string) string {
	if l, ok := c.PropertyReverseLabels[propertyName]; ok && l != "" {
		return l
	}
	return propertyName
}

// IsValidPropertyNameForConfig reports whether name could be declared as
// a new property on this config: syntactically valid and not reserved
// (declaring the same name twice is left to the caller, which already
// has the full Properties list to check against).
func (c *ProjectConfig) IsValidPropertyNameForConfig(name string) bool {
	return IsValidPropertyName(name) && !IsReservedProperty(name)
}

// parsePropertySpec consumes the tokens following "addProperty <name>":
// an optional "-label <label>" pair, then the type token, then
// type-specific trailing tokens (allowed values for select/multiselect,
// an optional "-reverseLabel <label>" for association). A returned spec
// with an empty Name signals a malformed line, matching the original's
// convention (ProjectConfig.cpp::parsePropertySpec).
func parsePropertySpec(name string, tokens []string) PropertySpec {
	var spec PropertySpec
	spec.Name = name

	if len(tokens) >= 2 && tokens[0] == "-label" {
		spec.Label = tokens[1]
		tokens = tokens[2:]
	}

	if len(tokens) == 0 {
		spec.Name = ""
		return spec
	}
	typ, ok := parsePropertyType(tokens[0])
	if !ok {
		spec.Name = ""
		return spec
	}
	spec.Type = typ
	tokens = tokens[1:]

	switch typ {
	case Select, MultiSelect:
		for _, v := range tokens {
			if typ == MultiSelect && v == "" {
				continue
			}
			spec.SelectOptions = append(spec.SelectOptions, v)
		}
	case Association:
		if len(tokens) > 1 && tokens[0] == "-reverseLabel" {
			spec.ReverseLabel = tokens[1]
		}
	}

	return spec
}

// Parse builds a ProjectConfig from tokenized config lines, following
// ProjectConfig.cpp::parseProjectConfig's verb dispatch. Malformed lines
// are dropped silently, matching the original's tolerant behavior; no
// error or log line reports them.
func Parse(lines [][]string) *ProjectConfig {
	c := New()
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		verb, rest := line[0], line[1:]
		switch verb {
		case "smit-version":
			// accepted but not interpreted.

		case "addProperty":
			if len(rest) < 2 {
				continue
			}
			spec := parsePropertySpec(rest[0], rest[1:])
			if spec.Name == "" {
				continue
			}
			c.Properties = append(c.Properties, spec)
			if spec.Label != "" {
				c.PropertyLabels[spec.Name] = spec.Label
			}
			if spec.ReverseLabel != "" {
				c.PropertyReverseLabels[spec.Name] = spec.ReverseLabel
			}

		case "setPropertyLabel":
			if len(rest) != 2 {
				continue
			}
			c.PropertyLabels[rest[0]] = rest[1]

		case "numberIssues":
			if len(rest) == 1 && rest[0] == "global" {
				c.NumberIssueAcrossProjects = true
			}

		case "tag":
			if len(rest) == 0 {
				continue
			}
			ts := TagSpec{ID: rest[0], Label: rest[0]}
			toks := rest[1:]
			ok := true
			for len(toks) > 0 {
				switch toks[0] {
				case "-label":
					if len(toks) < 2 {
						ok = false
						toks = nil
						continue
					}
					ts.Label = toks[1]
					toks = toks[2:]
				case "-display":
					ts.Display = true
					toks = toks[1:]
				default:
					ok = false
					toks = toks[1:]
				}
			}
			if ok {
				c.Tags[ts.ID] = ts
			}

		default:
			// unknown verb, dropped.
		}
	}
	return c
}

// Load tokenizes data and parses it into a ProjectConfig.
func Load(data []byte) *ProjectConfig {
	return Parse(token.Tokenize(data))
}

// Serialize renders the config back to wire format: a leading
// smit-version line, then one addProperty line per declared property
// (carrying its label, type and type-specific trailing tokens), then one
// tag line per declared tag. numberIssues global is emitted last, if set.
func (c *ProjectConfig) Serialize() []byte {
	var b strings.Builder
	b.WriteString(token.SerializeLine("smit-version", []string{entry.SmitVersion}))
	b.WriteByte('\n')

	for _, p := range c.Properties {
		fields := []string{p.Name}
		if p.Label != "" {
			fields = append(fields, "-label", p.Label)
		}
		fields = append(fields, p.Type.String())
		switch p.Type {
		case Select, MultiSelect:
			fields = append(fields, p.SelectOptions...)
		case Association:
			if p.ReverseLabel != "" {
				fields = append(fields, "-reverseLabel", p.ReverseLabel)
			}
		}
		b.WriteString(token.SerializeLine("addProperty", fields))
		b.WriteByte('\n')
	}

	tagIDs := make([]string, 0, len(c.Tags))
	for id := range c.Tags {
		tagIDs = append(tagIDs, id)
	}
	sort.Strings(tagIDs)
	for _, id := range tagIDs {
		ts := c.Tags[id]
		fields := []string{ts.ID}
		if ts.Label != "" && ts.Label != ts.ID {
			fields = append(fields, "-label", ts.Label)
		}
		if ts.Display {
			fields = append(fields, "-display")
		}
		b.WriteString(token.SerializeLine("tag", fields))
		b.WriteByte('\n')
	}

	if c.NumberIssueAcrossProjects {
		b.WriteString(token.SerializeLine("numberIssues", []string{"global"}))
		b.WriteByte('\n')
	}

	return []byte(b.String())
}
