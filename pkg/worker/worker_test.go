package worker

import (
	"testing"
	"time"

	"github.com/cuemby/raftd/pkg/engine"
	"github.com/cuemby/raftd/pkg/errs"
	"github.com/cuemby/raftd/pkg/kv"
	"github.com/cuemby/raftd/pkg/queue"
	"github.com/cuemby/raftd/pkg/raftpb"
	"github.com/cuemby/raftd/pkg/storage"
	"github.com/cuemby/raftd/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testConfiguration(ids ...raftpb.NodeId) raftpb.Configuration {
	nodes := make(map[raftpb.NodeId]raftpb.Endpoint, len(ids))
	for _, id := range ids {
		nodes[id] = raftpb.Endpoint{Host: "127.0.0.1", Port: uint16(20000 + id)}
	}
	return raftpb.Configuration{Nodes: nodes}
}

// testNode bundles one node's worker and the pieces a test needs to
// inspect or drive it directly.
type testNode struct {
	id        raftpb.NodeId
	worker    *Worker
	store     storage.Store
	transport *transport.MemoryTransport
	queue     *queue.Queue
	published *queue.Published
	kv        *kv.StateMachine
}

// newTestCluster builds a real Worker per node wired to a shared
// MemoryNetwork, each with its own temp-dir BoltStore, and starts every
// worker's tick loop. Callers must call stopAll during cleanup.
func newTestCluster(t *testing.T, net *transport.MemoryNetwork, ids ...raftpb.NodeId) map[raftpb.NodeId]*testNode {
	t.Helper()
	cfg := testConfiguration(ids...)
	nodes := make(map[raftpb.NodeId]*testNode, len(ids))

	for _, id := range ids {
		store, err := storage.NewBoltStore(t.TempDir())
		require.NoError(t, err)

		sm := kv.New()
		eng, err := Recover(engine.Config{
			ID:             id,
			ElectionTicks:  5,
			HeartbeatTicks: 1,
			Logger:         zerolog.Nop(),
		}, store, cfg, sm, zerolog.Nop())
		require.NoError(t, err)

		tr := net.NewTransport(id)
		q := queue.New(queue.DefaultCapacity)
		pub := queue.NewPublished()

		w := New(eng, store, tr, q, pub, sm, Config{
			TickInterval: 5 * time.Millisecond,
			Logger:       zerolog.Nop(),
		})

		nodes[id] = &testNode{id: id, worker: w, store: store, transport: tr, queue: q, published: pub, kv: sm}
	}
	return nodes
}

func startAll(nodes map[raftpb.NodeId]*testNode) {
	for _, n := range nodes {
		n.worker.Start()
	}
}

func stopAll(nodes map[raftpb.NodeId]*testNode) {
	for _, n := range nodes {
		n.worker.Stop()
	}
}

// awaitLeader polls the published state of every node until exactly one
// reports itself Leader, or fails the test after a timeout.
func awaitLeader(t *testing.T, nodes map[raftpb.NodeId]*testNode) raftpb.NodeId {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for id, n := range nodes {
			if n.published.Load().Role == engine.Leader.String() {
				return id
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no leader elected before deadline")
	return 0
}

func submitAndWait(t *testing.T, n *testNode, cmd *queue.Command) queue.Result {
	t.Helper()
	done, err := n.queue.Submit(cmd)
	require.NoError(t, err)
	select {
	case res := <-done:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("command timed out")
		return queue.Result{}
	}
}

func TestThreeNodeBootstrapElectsSingleLeader(t *testing.T) {
	net := transport.NewMemoryNetwork()
	nodes := newTestCluster(t, net, 1, 2, 3)
	startAll(nodes)
	defer stopAll(nodes)

	leaderID := awaitLeader(t, nodes)

	leaderCount := 0
	for _, n := range nodes {
		if n.published.Load().Role == engine.Leader.String() {
			leaderCount++
		}
	}
	require.Equal(t, 1, leaderCount)
	require.NotZero(t, leaderID)
}

func TestProposeReplicatesAndAppliesAcrossCluster(t *testing.T) {
	net := transport.NewMemoryNetwork()
	nodes := newTestCluster(t, net, 1, 2, 3)
	startAll(nodes)
	defer stopAll(nodes)

	leaderID := awaitLeader(t, nodes)
	leader := nodes[leaderID]

	payload, err := raftpb.EncodeNormalKV(raftpb.KVCommand{Op: raftpb.KVPut, Key: "hello", Value: []byte("world")})
	require.NoError(t, err)

	res := submitAndWait(t, leader, &queue.Command{Kind: queue.CommandPropose, Payload: payload})
	require.NoError(t, res.Err)
	require.NotZero(t, res.Index)

	require.Eventually(t, func() bool {
		for _, n := range nodes {
			v, ok := n.kv.Get("hello")
			if !ok || string(v) != "world" {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond, "all nodes should converge on the applied value")
}

func TestProposeOnFollowerIsRejected(t *testing.T) {
	net := transport.NewMemoryNetwork()
	nodes := newTestCluster(t, net, 1, 2, 3)
	startAll(nodes)
	defer stopAll(nodes)

	leaderID := awaitLeader(t, nodes)

	var followerID raftpb.NodeId
	for id := range nodes {
		if id != leaderID {
			followerID = id
			break
		}
	}

	res := submitAndWait(t, nodes[followerID], &queue.Command{Kind: queue.CommandPropose, Payload: []byte("x")})
	require.ErrorIs(t, res.Err, errs.ErrNotLeader)
}

func TestReadIndexSettlesAfterQuorumAck(t *testing.T) {
	net := transport.NewMemoryNetwork()
	nodes := newTestCluster(t, net, 1, 2, 3)
	startAll(nodes)
	defer stopAll(nodes)

	leaderID := awaitLeader(t, nodes)
	leader := nodes[leaderID]

	res := submitAndWait(t, leader, &queue.Command{Kind: queue.CommandReadIndex})
	require.NoError(t, res.Err)
}

func TestPartitionedMinorityLosesLeadership(t *testing.T) {
	net := transport.NewMemoryNetwork()
	nodes := newTestCluster(t, net, 1, 2, 3)
	startAll(nodes)
	defer stopAll(nodes)

	leaderID := awaitLeader(t, nodes)
	net.Partition(leaderID)

	require.Eventually(t, func() bool {
		return nodes[leaderID].published.Load().Role != engine.Leader.String()
	}, 3*time.Second, 10*time.Millisecond, "isolated former leader should step down")

	net.Heal(nodes[leaderID].transport)
}

func TestRecoverReplaysCommittedButUnappliedEntries(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfiguration(1)

	store, err := storage.NewBoltStore(dir)
	require.NoError(t, err)

	payload, err := raftpb.EncodeNormalKV(raftpb.KVCommand{Op: raftpb.KVPut, Key: "k", Value: []byte("v")})
	require.NoError(t, err)

	// Simulate a crash after the entry was durably appended and its
	// commit index advanced, but before it was applied to the state
	// machine: write the entry and hard state directly, bypassing the
	// engine entirely.
	require.NoError(t, store.Append(1, []raftpb.Entry{{Index: 1, Term: 1, Kind: raftpb.EntryNormal, Payload: payload}}))
	require.NoError(t, store.SaveHardState(raftpb.HardState{Term: 1, CommitIndex: 1}))
	require.NoError(t, store.Close())

	reopened, err := storage.NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	sm := kv.New()
	_, err = Recover(engine.Config{ID: 1, ElectionTicks: 5, HeartbeatTicks: 1, Logger: zerolog.Nop()}, reopened, cfg, sm, zerolog.Nop())
	require.NoError(t, err)

	v, ok := sm.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", string(v))
}
