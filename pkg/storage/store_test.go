package storage

import (
	"testing"

	"github.com/cuemby/raftd/pkg/raftpb"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndLoadAll(t *testing.T) {
	s := newTestStore(t)

	entries := []raftpb.Entry{
		{Index: 1, Term: 1, Kind: raftpb.EntryNoOp},
		{Index: 2, Term: 1, Kind: raftpb.EntryNormal, Payload: []byte("a")},
		{Index: 3, Term: 1, Kind: raftpb.EntryNormal, Payload: []byte("b")},
	}
	require.NoError(t, s.Append(1, entries))

	res, err := s.LoadAll()
	require.NoError(t, err)
	require.Nil(t, res.Snapshot)
	require.Equal(t, entries, res.Entries)
}

func TestAppendTruncatesConflicting(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Append(1, []raftpb.Entry{
		{Index: 1, Term: 1, Kind: raftpb.EntryNoOp},
		{Index: 2, Term: 1, Kind: raftpb.EntryNormal, Payload: []byte("old")},
		{Index: 3, Term: 1, Kind: raftpb.EntryNormal, Payload: []byte("old2")},
	}))

	// A new leader overwrites from index 2 onward with term-2 entries.
	require.NoError(t, s.Append(2, []raftpb.Entry{
		{Index: 2, Term: 2, Kind: raftpb.EntryNormal, Payload: []byte("new")},
	}))

	res, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	require.Equal(t, raftpb.Term(2), res.Entries[1].Term)
	require.Equal(t, []byte("new"), res.Entries[1].Payload)
}

func TestSaveHardStatePersists(t *testing.T) {
	s := newTestStore(t)

	hs := raftpb.HardState{Term: 5, VotedFor: 2, CommitIndex: 3}
	require.NoError(t, s.SaveHardState(hs))

	res, err := s.LoadAll()
	require.NoError(t, err)
	require.Equal(t, hs, res.HardState)
}

func TestSaveSnapshotTruncatesVisibleEntries(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Append(1, []raftpb.Entry{
		{Index: 1, Term: 1, Kind: raftpb.EntryNoOp},
		{Index: 2, Term: 1, Kind: raftpb.EntryNormal, Payload: []byte("a")},
		{Index: 3, Term: 1, Kind: raftpb.EntryNormal, Payload: []byte("b")},
	}))

	snap := raftpb.Snapshot{
		IncludedIndex: 2,
		IncludedTerm:  1,
		Configuration: raftpb.Configuration{Nodes: map[raftpb.NodeId]raftpb.Endpoint{1: {Host: "a", Port: 7001}}},
		StateBlob:     []byte("blob"),
	}
	require.NoError(t, s.SaveSnapshot(snap))

	res, err := s.LoadAll()
	require.NoError(t, err)
	require.NotNil(t, res.Snapshot)
	require.Equal(t, snap.IncludedIndex, res.Snapshot.IncludedIndex)
	require.Len(t, res.Entries, 1)
	require.Equal(t, raftpb.Index(3), res.Entries[0].Index)
}

func TestCompactDeletesPersistedPrefix(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Append(1, []raftpb.Entry{
		{Index: 1, Term: 1, Kind: raftpb.EntryNoOp},
		{Index: 2, Term: 1, Kind: raftpb.EntryNormal, Payload: []byte("a")},
		{Index: 3, Term: 1, Kind: raftpb.EntryNormal, Payload: []byte("b")},
	}))

	require.NoError(t, s.Compact(2))

	res, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Equal(t, raftpb.Index(3), res.Entries[0].Index)
}

func TestLoadAllOnFreshStoreIsEmpty(t *testing.T) {
	s := newTestStore(t)

	res, err := s.LoadAll()
	require.NoError(t, err)
	require.Nil(t, res.Snapshot)
	require.Empty(t, res.Entries)
	require.Equal(t, raftpb.HardState{}, res.HardState)
}
