package syncproto

import (
	"time"

	"github.com/smit-go/smit/internal/entry"
	"github.com/smit-go/smit/internal/issue"
)

// MergeStrategy selects how a three-way merge resolves a property that
// both the local divergent entry and the remote conflicting chain
// changed (spec §4.8), matching original_source/src/clone.cpp's
// MergeStrategy enum.
type MergeStrategy int

const (
	// MergeKeepLocal keeps the local value on a true conflict.
	MergeKeepLocal MergeStrategy = iota
	// MergeDropLocal drops the local value on a true conflict.
	MergeDropLocal
	// MergeInteractive asks a Resolver for each conflicting property.
	MergeInteractive
)

// Resolver is consulted once per conflicting property (and once for
// the message) when MergeStrategy is MergeInteractive, mirroring the
// original's std::cin prompt loop -- but as a callback interface so an
// embedder can drive it from any UI.
type Resolver interface {
	// ResolveProperty is asked whether to keep the local value of
	// propertyName; it returns true to keep, false to drop.
	ResolveProperty(issueID, propertyName string, localValue, remoteValue []string) bool
	// ResolveMessage is asked whether to keep the local entry's message
	// after at least one property conflicted.
	ResolveMessage(issueID, localMessage string) bool
}

// mergeEntry computes the single merging entry for one locally
// divergent entry against the remote issue and the "remote conflicting
// part" (the consolidation of the remote entries beyond the common
// ancestor), matching original_source/src/clone.cpp::mergeEntry
// line-for-line in structure. It returns nil if nothing from the local
// entry survives the merge (case: every property was a no-op and there
// was no message to keep).
func mergeEntry(localEntry *entry.Entry, remoteIssue *issue.Issue, remoteConflictingPart entry.Properties, ms MergeStrategy, resolver Resolver, now time.Time) *entry.Entry {
	newProperties := entry.Properties{}
	isConflicting := false

	for name, localValue := range localEntry.Properties {
		if name == entry.KeyMessage {
			continue // handled below
		}
		if name == entry.KeyFile {
			// SPEC_FULL.md supplemented feature #1: +file always
			// survives, never subject to keep/drop arbitration.
			newProperties[name] = localValue
			continue
		}

		if remoteValue, ok := remoteIssue.Properties[name]; ok && stringsEqual(remoteValue, localValue) {
			// case 1: the local entry brings no change relative to the
			// current remote head -- nothing to merge for this property.
			continue
		}

		remoteValue, changedRemotely := remoteConflictingPart[name]
		if !changedRemotely {
			// unchanged on the remote side: keep the local value.
			newProperties[name] = localValue
			continue
		}
		if stringsEqual(localValue, remoteValue) {
			// both sides converged on the same value; should already
			// have been caught by case 1, but guard anyway.
			continue
		}

		isConflicting = true
		switch ms {
		case MergeInteractive:
			if resolver != nil && resolver.ResolveProperty(remoteIssue.ID, name, localValue, remoteValue) {
				newProperties[name] = localValue
			}
		case MergeKeepLocal:
			newProperties[name] = localValue
		case MergeDropLocal:
			// drop
		}
	}

	if msg := localEntry.Message(); msg != "" {
		switch {
		case isConflicting && ms == MergeInteractive:
			if resolver != nil && resolver.ResolveMessage(remoteIssue.ID, msg) {
				newProperties[entry.KeyMessage] = []string{msg}
			}
		case isConflicting && ms == MergeDropLocal:
			// drop the message
		default:
			newProperties[entry.KeyMessage] = []string{msg}
		}
	}

	if len(newProperties) == 0 {
		return nil
	}
	return entry.New(newProperties, localEntry.Author, remoteIssue.Head(), now)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// remoteConflictingProperties computes the consolidation of the entries
// strictly after commonParentID in remoteIssue's chain -- the "remote
// conflicting part" fed to mergeEntry, matching
// original_source/src/clone.cpp::handleConflictOnEntries.
func remoteConflictingProperties(remoteIssue *issue.Issue, commonParentID string) entry.Properties {
	part := entry.Properties{}
	started := commonParentID == entry.ParentNull
	for _, e := range remoteIssue.Entries {
		if !started {
			if e.ID == commonParentID {
				started = true
			}
			continue
		}
		for name, values := range e.Properties {
			if name == entry.KeyMessage || name == entry.KeyAmend {
				continue
			}
			cp := make([]string, len(values))
			copy(cp, values)
			part[name] = cp
		}
	}
	return part
}
