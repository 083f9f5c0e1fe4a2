package engine

import "github.com/cuemby/raftd/pkg/raftpb"

// raftLog is the in-memory representation of the replicated log, mirroring
// what storage.Store holds durably. Indices <= snapshot's IncludedIndex are
// not kept in entries; they live only in the snapshot's state blob.
//
// stable tracks the highest index the worker has confirmed is durable
// (storage.Append returned successfully for it); entries with index >
// stable are "unstable" and must be included in the next tick's output
// for persistence. This mirrors the unstable/stable split tinykv's
// RaftLog uses, adapted to this engine's explicit persist-then-send
// ordering rather than a Ready() struct.
type raftLog struct {
	snapshot *raftpb.Snapshot
	entries  []raftpb.Entry // gap-free, starting at firstIndex()
	stable   raftpb.Index
	committed raftpb.Index
	applied   raftpb.Index
}

func newRaftLog() *raftLog {
	return &raftLog{}
}

// restoreFrom rebuilds the log from a storage.LoadResult-shaped input.
func (l *raftLog) restoreFrom(snap *raftpb.Snapshot, entries []raftpb.Entry) {
	l.snapshot = snap
	l.entries = append([]raftpb.Entry(nil), entries...)
	l.stable = l.lastIndex()
	if snap != nil {
		l.committed = snap.IncludedIndex
		l.applied = snap.IncludedIndex
	}
}

// firstIndex is one greater than the last snapshotted index, or 1.
func (l *raftLog) firstIndex() raftpb.Index {
	if l.snapshot != nil {
		return l.snapshot.IncludedIndex + 1
	}
	return 1
}

// lastIndex is the index of the last entry in the log, or the snapshot's
// included index if the log (beyond the snapshot) is empty.
func (l *raftLog) lastIndex() raftpb.Index {
	if n := len(l.entries); n > 0 {
		return l.entries[n-1].Index
	}
	if l.snapshot != nil {
		return l.snapshot.IncludedIndex
	}
	return 0
}

func (l *raftLog) lastTerm() raftpb.Term {
	if n := len(l.entries); n > 0 {
		return l.entries[n-1].Term
	}
	if l.snapshot != nil {
		return l.snapshot.IncludedTerm
	}
	return 0
}

// termAt returns the term of the entry at i, or ok=false if i is outside
// what this node currently holds (compacted into a snapshot, or beyond
// lastIndex).
func (l *raftLog) termAt(i raftpb.Index) (raftpb.Term, bool) {
	if i == 0 {
		return 0, true
	}
	if l.snapshot != nil && i == l.snapshot.IncludedIndex {
		return l.snapshot.IncludedTerm, true
	}
	if i < l.firstIndex() || i > l.lastIndex() {
		return 0, false
	}
	return l.entries[i-l.firstIndex()].Term, true
}

func (l *raftLog) entriesFrom(i raftpb.Index) []raftpb.Entry {
	if i < l.firstIndex() || i > l.lastIndex() {
		return nil
	}
	return l.entries[i-l.firstIndex():]
}

// isUpToDate reports whether a candidate whose log ends at
// (lastTerm, lastIdx) is at least as up-to-date as this log, per the
// RequestVote grant condition in §4.1.
func (l *raftLog) isUpToDate(lastTerm raftpb.Term, lastIdx raftpb.Index) bool {
	myTerm := l.lastTerm()
	if lastTerm != myTerm {
		return lastTerm > myTerm
	}
	return lastIdx >= l.lastIndex()
}

// append adds entries that are known to be contiguous and non-conflicting
// (used by the leader for its own proposals). It returns the new last index.
func (l *raftLog) append(entries []raftpb.Entry) raftpb.Index {
	l.entries = append(l.entries, entries...)
	return l.lastIndex()
}

// maybeTruncateAndAppend implements §4.1 step 4: for entries arriving via
// AppendEntries, any existing entry at the same index with a different
// term causes truncation from that index forward, then the new entries
// (from the conflict point onward) are appended.
func (l *raftLog) maybeTruncateAndAppend(entries []raftpb.Entry) {
	for i, e := range entries {
		existingTerm, ok := l.termAt(e.Index)
		if !ok || existingTerm != e.Term {
			l.truncateFrom(e.Index)
			l.entries = append(l.entries, entries[i:]...)
			if e.Index <= l.stable {
				l.stable = e.Index - 1
			}
			return
		}
	}
}

// truncateFrom discards every entry with Index >= from.
func (l *raftLog) truncateFrom(from raftpb.Index) {
	if from < l.firstIndex() {
		l.entries = nil
		return
	}
	if from > l.lastIndex() {
		return
	}
	l.entries = l.entries[:from-l.firstIndex()]
}

// unstableEntries returns entries not yet confirmed durable.
func (l *raftLog) unstableEntries() []raftpb.Entry {
	if l.stable >= l.lastIndex() {
		return nil
	}
	start := l.stable + 1
	if start < l.firstIndex() {
		start = l.firstIndex()
	}
	return l.entriesFrom(start)
}

// stableTo records that entries up to and including i are now durable.
func (l *raftLog) stableTo(i raftpb.Index) {
	if i > l.stable {
		l.stable = i
	}
}

// maybeCommit advances committed to maxIndex if maxIndex is backed by an
// entry from the current term — per §4.1, entries from earlier terms are
// never committed by counting alone.
func (l *raftLog) maybeCommit(maxIndex raftpb.Index, currentTerm raftpb.Term) bool {
	if maxIndex <= l.committed {
		return false
	}
	t, ok := l.termAt(maxIndex)
	if !ok || t != currentTerm {
		return false
	}
	l.committed = maxIndex
	return true
}

func (l *raftLog) appliedTo(i raftpb.Index) {
	if i > l.applied {
		l.applied = i
	}
}

// entriesToApply returns committed-but-not-yet-applied entries.
func (l *raftLog) entriesToApply() []raftpb.Entry {
	if l.committed <= l.applied {
		return nil
	}
	return l.entriesFrom(l.applied + 1)
}

// installSnapshot replaces the log's prefix with snap, discarding any
// entries it supersedes, per §4.1's InstallSnapshot recipient logic.
func (l *raftLog) installSnapshot(snap raftpb.Snapshot) {
	l.snapshot = &snap
	var kept []raftpb.Entry
	for _, e := range l.entries {
		if e.Index > snap.IncludedIndex {
			kept = append(kept, e)
		}
	}
	l.entries = kept
	l.committed = snap.IncludedIndex
	l.applied = snap.IncludedIndex
	if l.stable < snap.IncludedIndex {
		l.stable = snap.IncludedIndex
	}
}
