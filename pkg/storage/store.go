// Package storage persists the three pieces of durable state the engine
// depends on for safety: HardState, the log entries, and periodic
// snapshots. It follows the teacher's bbolt-backed bucket style
// (pkg/storage/boltdb.go) for HardState and the log, and adds an
// explicit write-temp-then-rename file for the snapshot blob, matching
// §4.2's literal crash-safety requirement for that path.
package storage

import "github.com/cuemby/raftd/pkg/raftpb"

// Store is the narrow capability set the engine's surrounding worker
// uses to persist durable state. Test doubles implement the same
// interface (§9 "Dynamic dispatch").
type Store interface {
	// Append writes entries, which must be contiguous with LastIndex+1
	// once any truncation below has been applied. All existing entries
	// with Index >= startIndex are discarded before the new entries are
	// written. Fsynced before return.
	Append(startIndex raftpb.Index, entries []raftpb.Entry) error

	// SaveHardState persists the HardState atomically, fsynced before
	// return.
	SaveHardState(hs raftpb.HardState) error

	// SaveSnapshot persists a snapshot via temp-file-then-rename, fsyncing
	// the containing directory once the rename completes.
	SaveSnapshot(snap raftpb.Snapshot) error

	// Compact discards persisted log entries with Index <= uptoIndex,
	// called after a snapshot covering them has been durably saved.
	Compact(uptoIndex raftpb.Index) error

	// LoadAll returns everything persisted so far, for use at startup.
	LoadAll() (LoadResult, error)

	Close() error
}

// LoadResult is everything Store.LoadAll returns.
type LoadResult struct {
	HardState raftpb.HardState
	Snapshot  *raftpb.Snapshot // nil if none taken yet
	Entries   []raftpb.Entry   // entries strictly after Snapshot.IncludedIndex, in order
}
