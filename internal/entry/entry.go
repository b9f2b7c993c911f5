// Package entry implements the immutable, content-addressed Entry record
// (spec §3/§4.2): the single unit of change in an issue's history. An
// Entry's id is the SHA-1 of its own serialized form, so loading always
// verifies the id is self-certifying.
package entry

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smit-go/smit/internal/objectstore"
	"github.com/smit-go/smit/internal/smiterr"
	"github.com/smit-go/smit/internal/token"
)

// Reserved property names (spec §3). These are the only "+"-prefixed
// names the rest of the system understands; any other name starting with
// "+" is preserved verbatim but not given special treatment.
const (
	KeyMessage = "+message"
	KeyFile    = "+file"
	KeyAmend   = "+amend"

	// ParentNull is the sentinel parent id of the first entry in an issue.
	ParentNull = "null"

	// SmitVersion is the version stamped into every serialized entry and
	// project/view file, matching the wire format's "smit-version" verb.
	SmitVersion = "4.1"

	// DeleteWindow is the span (from spec §4.5) within which a HEAD entry
	// that is not the root of its issue may be deleted (as an amendment
	// with an empty message) by its own author.
	DeleteWindow = 600 * time.Second
)

// Properties maps a property name to its (ordered) list of values, the
// in-memory shape of an entry's non-header fields. The map itself is
// unordered; Serialize writes the keys in sorted order.
type Properties map[string][]string

// Clone returns a deep copy of p.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Entry is one immutable change in an issue's history.
type Entry struct {
	ID         string
	Parent     string // ParentNull for the first entry of an issue
	Author     string
	CTime      int64 // seconds since epoch
	Properties Properties
}

// IsAmending reports whether this entry carries a +amend target.
func (e *Entry) IsAmending() bool {
	return len(e.Properties[KeyAmend]) > 0 && e.Properties[KeyAmend][0] != ""
}

// AmendTarget returns the id of the entry being amended, if any.
func (e *Entry) AmendTarget() (string, bool) {
	v := e.Properties[KeyAmend]
	if len(v) == 0 || v[0] == "" {
		return "", false
	}
	return v[0], true
}

// Message returns the entry's +message value, or "" if absent.
func (e *Entry) Message() string {
	v := e.Properties[KeyMessage]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// File returns the entry's +file value (an object id of an uploaded
// attachment), or "" if absent.
func (e *Entry) File() string {
	v := e.Properties[KeyFile]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Serialize renders the entry body in the fixed-header-then-properties
// format of spec §6: smit-version, +parent, +author, +ctime, then one
// line per property in key order (so that serialization, and therefore
// the id, is deterministic).
func (e *Entry) Serialize() []byte {
	var b strings.Builder
	b.WriteString(token.SerializeLine("smit-version", []string{SmitVersion}))
	b.WriteByte('\n')
	b.WriteString(token.SerializeLine("+parent", []string{e.Parent}))
	b.WriteByte('\n')
	b.WriteString(token.SerializeLine("+author", []string{e.Author}))
	b.WriteByte('\n')
	b.WriteString(token.SerializeLine("+ctime", []string{fmt.Sprintf("%d", e.CTime)}))
	b.WriteByte('\n')

	keys := make([]string, 0, len(e.Properties))
	for k := range e.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(token.SerializeLine(k, e.Properties[k]))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// New creates and serializes a brand-new entry: ctime is stamped at now,
// parent is set as given, and id is the SHA-1 of the serialized bytes
// (hence self-certifying).
func New(props Properties, author, parent string, now time.Time) *Entry {
	e := &Entry{
		Parent:     parent,
		Author:     author,
		CTime:      now.Unix(),
		Properties: props.Clone(),
	}
	e.ID = objectstore.OID(e.Serialize())
	return e
}

// Load parses an entry body. If wantID is non-empty the SHA-1 of data is
// verified to equal it before the entry is returned; a mismatch is a
// smiterr.ErrCorrupt error, matching the "self-certifying id" invariant.
func Load(data []byte, wantID string) (*Entry, error) {
	if wantID != "" {
		gotID := objectstore.OID(data)
		if gotID != wantID {
			return nil, smiterr.CorruptEntry(wantID, fmt.Errorf("sha1 mismatch: got %s", gotID))
		}
	}

	e := &Entry{
		ID:         wantID,
		Properties: Properties{},
	}

	lines := token.Tokenize(data)
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		key := line[0]
		values := line[1:]
		first := ""
		if len(values) > 0 {
			first = values[0]
		}

		switch key {
		case "smit-version":
			// version is accepted but not otherwise interpreted; the
			// grammar itself is the compatibility contract.
		case "+ctime":
			e.CTime = int64(token.ParseInt(first))
		case "+parent":
			e.Parent = first
		case "+author":
			e.Author = first
		default:
			e.Properties[key] = values
		}
	}

	if e.ID == "" {
		e.ID = objectstore.OID(data)
	}
	return e, nil
}

// Write serializes e and stores it in store, returning the resulting
// object id and write status. Since e.ID was already computed at
// construction time this is mostly a convenience wrapper, but it is the
// only path that actually persists an entry.
func Write(store *objectstore.Store, e *Entry) (string, objectstore.WriteStatus, error) {
	data := e.Serialize()
	oid, status, err := store.Write(data)
	if err != nil {
		return "", 0, err
	}
	if oid != e.ID {
		return "", 0, fmt.Errorf("entry: computed id %s does not match serialized oid %s: %w", e.ID, oid, smiterr.ErrCorrupt)
	}
	return oid, status, nil
}

// LoadFromStore loads and verifies the entry stored under id.
func LoadFromStore(store *objectstore.Store, id string) (*Entry, error) {
	data, err := store.Load(id)
	if err != nil {
		return nil, err
	}
	return Load(data, id)
}
