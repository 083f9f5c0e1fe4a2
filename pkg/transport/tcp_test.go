package transport

import (
	"testing"
	"time"

	"github.com/cuemby/raftd/pkg/raftpb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTwoNodeRoundTrip(t *testing.T) {
	nodeA := raftpb.NodeId(1)
	nodeB := raftpb.NodeId(2)

	tA, err := New(nodeA, "test-cluster", "127.0.0.1:17801", []PeerConfig{
		{ID: nodeB, Endpoint: raftpb.Endpoint{Host: "127.0.0.1", Port: 17802}},
	}, zerolog.Nop())
	require.NoError(t, err)
	defer tA.Close()

	tB, err := New(nodeB, "test-cluster", "127.0.0.1:17802", []PeerConfig{
		{ID: nodeA, Endpoint: raftpb.Endpoint{Host: "127.0.0.1", Port: 17801}},
	}, zerolog.Nop())
	require.NoError(t, err)
	defer tB.Close()

	tA.Send(nodeB, raftpb.Message{Type: raftpb.MsgRequestVote, Term: 3, LastLogIndex: 5})

	select {
	case in := <-tB.Recv():
		require.Equal(t, nodeA, in.From)
		require.Equal(t, raftpb.MsgRequestVote, in.Message.Type)
		require.Equal(t, raftpb.Term(3), in.Message.Term)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMismatchedClusterNameIsRejected(t *testing.T) {
	nodeA := raftpb.NodeId(1)
	nodeB := raftpb.NodeId(2)

	tA, err := New(nodeA, "cluster-a", "127.0.0.1:17811", []PeerConfig{
		{ID: nodeB, Endpoint: raftpb.Endpoint{Host: "127.0.0.1", Port: 17812}},
	}, zerolog.Nop())
	require.NoError(t, err)
	defer tA.Close()

	tB, err := New(nodeB, "cluster-b", "127.0.0.1:17812", []PeerConfig{
		{ID: nodeA, Endpoint: raftpb.Endpoint{Host: "127.0.0.1", Port: 17811}},
	}, zerolog.Nop())
	require.NoError(t, err)
	defer tB.Close()

	tA.Send(nodeB, raftpb.Message{Type: raftpb.MsgRequestVote, Term: 1})

	select {
	case in := <-tB.Recv():
		t.Fatalf("expected no message to be delivered across mismatched clusters, got %+v", in)
	case <-time.After(300 * time.Millisecond):
		// Expected: the handshake was rejected and the connection closed.
	}
}
