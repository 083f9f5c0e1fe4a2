package kv

import (
	"testing"

	"github.com/cuemby/raftd/pkg/raftpb"
	"github.com/stretchr/testify/require"
)

func mustEncodeKV(t *testing.T, cmd raftpb.KVCommand) []byte {
	t.Helper()
	b, err := raftpb.EncodeNormalKV(cmd)
	require.NoError(t, err)
	return b
}

func TestApplyPutAndGet(t *testing.T) {
	s := New()

	payload := mustEncodeKV(t, raftpb.KVCommand{Op: raftpb.KVPut, Key: "foo", Value: []byte("bar")})
	require.NoError(t, s.Apply(payload))

	v, ok := s.Get("foo")
	require.True(t, ok)
	require.Equal(t, []byte("bar"), v)
}

func TestApplyDeleteRemovesKey(t *testing.T) {
	s := New()
	require.NoError(t, s.Apply(mustEncodeKV(t, raftpb.KVCommand{Op: raftpb.KVPut, Key: "foo", Value: []byte("bar")})))
	require.NoError(t, s.Apply(mustEncodeKV(t, raftpb.KVCommand{Op: raftpb.KVDelete, Key: "foo"})))

	_, ok := s.Get("foo")
	require.False(t, ok)
}

func TestApplyOpaquePayloadLeavesMapUntouched(t *testing.T) {
	s := New()
	payload, err := raftpb.EncodeNormalOpaque([]byte("arbitrary bytes"))
	require.NoError(t, err)

	require.NoError(t, s.Apply(payload))
	require.Equal(t, 0, s.Len())
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New()
	require.NoError(t, s.Apply(mustEncodeKV(t, raftpb.KVCommand{Op: raftpb.KVPut, Key: "a", Value: []byte("1")})))
	require.NoError(t, s.Apply(mustEncodeKV(t, raftpb.KVCommand{Op: raftpb.KVPut, Key: "b", Value: []byte("2")})))

	blob, err := s.Snapshot()
	require.NoError(t, err)

	restored := New()
	require.NoError(t, restored.Restore(blob))

	v, ok := restored.Get("a")
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	v, ok = restored.Get("b")
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
	require.Equal(t, 2, restored.Len())
}

func TestRestoreReplacesNonEmptyStateWithEmptySnapshot(t *testing.T) {
	s := New()
	blob, err := s.Snapshot()
	require.NoError(t, err)

	restored := New()
	restored.data["stale"] = []byte("x")
	require.NoError(t, restored.Restore(blob))
	require.Equal(t, 0, restored.Len())
}
