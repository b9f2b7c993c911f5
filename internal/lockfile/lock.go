// Package lockfile provides cross-process advisory locking for a
// repository directory. The core's own reader/writer locks (spec §5)
// only serialize writers within a single process; a CLI that starts a
// fresh process per invocation (cmd/smit) needs something that holds
// across process boundaries too, the way the teacher's own
// internal/lockfile guards its daemon's on-disk state with a flock'd
// lock file plus a PID-file fallback. This package generalizes that
// same mechanism from "is the daemon running" to "is another smit
// process already touching this repository".
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrLocked is returned when a lock is already held by another process.
var ErrLocked = errors.New("lockfile: already held by another process")

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another process holds a conflicting lock.
var ErrLockBusy = errors.New("lockfile: busy, held by another process")

// IsLocked reports whether err indicates a lock is held by another process.
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}

const (
	lockFileName = "repo.lock"
	pidFileName  = "repo.pid"
)

// LockInfo is the JSON payload stamped into a repo lock file, recording
// which process holds it and when it started. ReadLockInfo also
// accepts the older plain-decimal-PID format for compatibility with a
// lock file written by a process that died mid-write.
type LockInfo struct {
	PID       int       `json:"pid"`
	ParentPID int       `json:"parent_pid"`
	Database  string    `json:"database"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// ReadLockInfo reads and parses dir's repo lock file.
func ReadLockInfo(dir string) (LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, lockFileName))
	if err != nil {
		return LockInfo{}, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err == nil {
		return info, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return LockInfo{}, fmt.Errorf("lockfile: %s is neither JSON nor a bare PID: %w", lockFileName, err)
	}
	return LockInfo{PID: pid}, nil
}

// checkPIDFile reports whether dir's plain repo.pid file names a PID
// that is currently running.
func checkPIDFile(dir string) (running bool, pid int) {
	data, err := os.ReadFile(filepath.Join(dir, pidFileName))
	if err != nil {
		return false, 0
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || !isProcessRunning(pid) {
		return false, 0
	}
	return true, pid
}

// TryRepoLock reports, without blocking, whether another process
// currently holds dir's repository lock. It first tries to take (and
// immediately release) a non-blocking flock on the lock file itself --
// success means nobody holds it -- then falls back to the plain PID
// file for a lock file that predates flock support or a filesystem
// that doesn't support it. When the lock is held but its LockInfo
// cannot be read, the PID comes from the plain PID file if that names
// a running process, and is 0 otherwise.
func TryRepoLock(dir string) (running bool, pid int) {
	lockPath := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_RDWR, 0o644)
	if err == nil {
		defer f.Close()
		if lockErr := flockExclusive(f); lockErr != nil {
			if info, readErr := ReadLockInfo(dir); readErr == nil {
				return true, info.PID
			}
			if pidRunning, pidFromFile := checkPIDFile(dir); pidRunning {
				return true, pidFromFile
			}
			return true, 0
		}
		FlockUnlock(f)
	}
	return checkPIDFile(dir)
}

// AcquireRepoLock opens (creating if needed) dir's repo lock file,
// takes a non-blocking exclusive flock on it, and stamps it with the
// calling process's LockInfo. The returned release function unlocks
// and closes the file handle; it leaves the file itself in place so
// the next caller can reuse it.
func AcquireRepoLock(dir, database, version string) (release func() error, err error) {
	lockPath := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", lockPath, err)
	}
	if lockErr := FlockExclusiveNonBlocking(f); lockErr != nil {
		f.Close()
		return nil, ErrLocked
	}

	info := LockInfo{
		PID:       os.Getpid(),
		ParentPID: os.Getppid(),
		Database:  database,
		Version:   version,
		StartedAt: time.Now(),
	}
	if data, err := json.Marshal(info); err == nil {
		if err := f.Truncate(0); err == nil {
			f.WriteAt(data, 0)
		}
	}

	return func() error {
		FlockUnlock(f)
		return f.Close()
	}, nil
}
