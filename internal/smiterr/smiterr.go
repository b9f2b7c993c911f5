// Package smiterr defines the error kinds shared by every project-core
// package: NotFound, Corrupt, Conflict, Unauthorized and InvalidInput.
// Filesystem failures have no value of their own here; they reach
// callers as the underlying os errors, wrapped with %w.
package smiterr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap them with fmt.Errorf("...: %w", ErrX) to attach
// context; callers should use errors.Is against these.
var (
	// ErrNotFound covers missing objects, issues, entries, projects and views.
	ErrNotFound = errors.New("not found")

	// ErrCorrupt covers id/content mismatches, broken parent chains and
	// unreadable blobs.
	ErrCorrupt = errors.New("corrupt data")

	// ErrUnauthorized covers an author mismatch on a pushed entry.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidInput covers unknown property names, bad types and
	// malformed token streams.
	ErrInvalidInput = errors.New("invalid input")
)

// Conflict is the family of errors raised when a write cannot be applied
// because of a concurrent or diverging change. The Kind distinguishes the
// specific conflict so callers (notably the sync protocol) can decide how
// to react.
type Conflict struct {
	Kind string
	Msg  string
}

func (c *Conflict) Error() string {
	if c.Msg == "" {
		return c.Kind
	}
	return fmt.Sprintf("%s: %s", c.Kind, c.Msg)
}

// Conflict kinds, named exactly as in the specification.
const (
	KindCollisionMismatch = "CollisionMismatch"
	KindNotFastForward    = "NotFastForward"
	KindObjectExists      = "ObjectExists"
	KindNameInUse         = "NameInUse"
	KindTryPullFirst      = "TryPullFirst"
)

func newConflict(kind, format string, args ...any) error {
	return &Conflict{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// CollisionMismatch reports that an object path already holds different
// bytes than what is being written.
func CollisionMismatch(oid string) error {
	return newConflict(KindCollisionMismatch, "object %s already exists with different content", oid)
}

// NotFastForward reports that a pushed entry's parent is not the
// project's current head for that issue.
func NotFastForward(issueID string) error {
	return newConflict(KindNotFastForward, "issue %s: remote head has moved, pull first", issueID)
}

// ObjectExists reports that a pushed file already exists at its target
// path in the object store.
func ObjectExists(oid string) error {
	return newConflict(KindObjectExists, "object %s already exists", oid)
}

// NameInUse reports that an issue id is already occupied locally.
func NameInUse(issueID string) error {
	return newConflict(KindNameInUse, "issue id %s already in use", issueID)
}

// TryPullFirst reports that a push was rejected because the remote has
// diverged; the caller must pull before retrying.
func TryPullFirst(issueID string) error {
	return newConflict(KindTryPullFirst, "issue %s: remote has diverged, pull first", issueID)
}

// IsConflict reports whether err is a *Conflict, optionally of a specific kind.
func IsConflict(err error, kind string) bool {
	var c *Conflict
	if !errors.As(err, &c) {
		return false
	}
	return kind == "" || c.Kind == kind
}

// CorruptEntry wraps a per-entry corruption with the offending id.
func CorruptEntry(id string, cause error) error {
	return fmt.Errorf("entry %s: %w: %v", id, ErrCorrupt, cause)
}

// UnknownIssue reports that an issue id does not resolve in a project.
func UnknownIssue(id string) error {
	return fmt.Errorf("issue %s: %w", id, ErrNotFound)
}

// UnknownEntry reports that an entry id does not resolve in a project.
func UnknownEntry(id string) error {
	return fmt.Errorf("entry %s: %w", id, ErrNotFound)
}

// WrongAuthor reports that a pushed entry's author does not match the
// authenticated user.
func WrongAuthor(entryID, got, want string) error {
	return fmt.Errorf("entry %s: author %q does not match authenticated user %q: %w", entryID, got, want, ErrUnauthorized)
}
