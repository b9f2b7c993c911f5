// Package objectstore implements the content-addressed blob layer that
// every other project-core package builds on: entries and uploaded files
// live here (project configuration lives in the "project" file), keyed by the
// lowercase hex SHA-1 of their bytes.
//
// Layout on disk: objects/<xx>/<rest>, where <xx> is the first two hex
// digits of the id and <rest> the remaining thirty-eight. Objects are
// immutable once written: two files at the same path must always be
// byte-identical, and a write that would violate that fails with
// smiterr.CollisionMismatch instead of overwriting anything.
package objectstore

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // id format is fixed by the wire protocol, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/smit-go/smit/internal/smiterr"
)

// WriteStatus reports what write(data) actually did.
type WriteStatus int

const (
	// Created means the object did not exist and was written.
	Created WriteStatus = iota
	// AlreadyPresentIdentical means an identical object was already on disk.
	AlreadyPresentIdentical
)

func (s WriteStatus) String() string {
	if s == Created {
		return "created"
	}
	return "already_present_identical"
}

// Store is a content-addressed blob store rooted at a single "objects"
// directory.
type Store struct {
	root string
}

// Open returns a Store rooted at dir (typically "<project>/objects"). The
// directory is created if it does not exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: creating %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// OID returns the lowercase hex SHA-1 of data.
func OID(data []byte) string {
	sum := sha1.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// PathOf returns the on-disk path for oid, without checking existence.
func (s *Store) PathOf(oid string) (string, error) {
	if len(oid) != 40 {
		return "", fmt.Errorf("objectstore: malformed object id %q: %w", oid, smiterr.ErrInvalidInput)
	}
	return filepath.Join(s.root, oid[:2], oid[2:]), nil
}

// Exists reports whether oid is present in the store.
func (s *Store) Exists(oid string) bool {
	path, err := s.PathOf(oid)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Load returns the bytes stored under oid.
func (s *Store) Load(oid string) ([]byte, error) {
	path, err := s.PathOf(oid)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path derived from a validated content hash
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("objectstore: object %s: %w", oid, smiterr.ErrNotFound)
		}
		return nil, fmt.Errorf("objectstore: reading %s: %w", oid, err)
	}
	return data, nil
}

// Write stores data under its SHA-1 id, atomically. If an object already
// exists at that path its content is compared byte-for-byte: a match
// reports AlreadyPresentIdentical, a mismatch is a fatal integrity error
// (smiterr.CollisionMismatch) and the existing file is left untouched.
func (s *Store) Write(data []byte) (oid string, status WriteStatus, err error) {
	oid = OID(data)
	path, err := s.PathOf(oid)
	if err != nil {
		return "", 0, err
	}

	if existing, readErr := os.ReadFile(path); readErr == nil { // #nosec G304
		if bytes.Equal(existing, data) {
			return oid, AlreadyPresentIdentical, nil
		}
		return "", 0, smiterr.CollisionMismatch(oid)
	} else if !os.IsNotExist(readErr) {
		return "", 0, fmt.Errorf("objectstore: checking %s: %w", oid, readErr)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("objectstore: creating %s: %w", dir, err)
	}

	if err := writeAtomic(path, data); err != nil {
		return "", 0, err
	}
	return oid, Created, nil
}

// writeAtomic writes data to a temporary file in the same directory as
// path and renames it into place, so a reader never observes a partial
// object file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("objectstore: creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("objectstore: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("objectstore: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("objectstore: renaming into place: %w", err)
	}
	return nil
}

// MoveIn moves a staged file (e.g. from a project's tmp/ directory) into
// the store at its content-derived path, verifying first that the file's
// SHA-1 matches wantOID. Used by the project's AddFile, where the bytes
// are already staged on disk rather than held in memory.
func (s *Store) MoveIn(stagedPath, wantOID string) error {
	data, err := os.ReadFile(stagedPath) // #nosec G304 -- path is server-controlled tmp staging area
	if err != nil {
		return fmt.Errorf("objectstore: reading staged file %s: %w", stagedPath, err)
	}
	gotOID := OID(data)
	if gotOID != wantOID {
		return fmt.Errorf("objectstore: staged file %s hashes to %s, expected %s: %w", stagedPath, gotOID, wantOID, smiterr.ErrCorrupt)
	}

	path, err := s.PathOf(wantOID)
	if err != nil {
		return err
	}
	if existing, readErr := os.ReadFile(path); readErr == nil { // #nosec G304
		if !bytes.Equal(existing, data) {
			return smiterr.CollisionMismatch(wantOID)
		}
		return nil // already present identical; staged copy is superfluous
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("objectstore: creating %s: %w", dir, err)
	}
	if err := os.Rename(stagedPath, path); err != nil {
		// cross-filesystem rename can fail; fall back to copy+remove
		if err := copyFile(stagedPath, path); err != nil {
			return fmt.Errorf("objectstore: moving staged file into place: %w", err)
		}
		_ = os.Remove(stagedPath)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Root returns the root directory this store writes under.
func (s *Store) Root() string { return s.root }
