package control

import (
	"testing"
	"time"

	"github.com/cuemby/raftd/pkg/engine"
	"github.com/cuemby/raftd/pkg/errs"
	"github.com/cuemby/raftd/pkg/kv"
	"github.com/cuemby/raftd/pkg/queue"
	"github.com/cuemby/raftd/pkg/raftpb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeWorker polls the queue the way pkg/worker's tick loop would, then
// waits delay before completing every command of the first non-empty
// drain with a fixed result. It stands in for a real worker so
// Controller's blocking submit can be exercised without an
// engine/transport/storage stack, but it is NOT a model of commit-gated
// completion: pkg/worker only completes a Propose/AddNode/RemoveNode
// command once its index has actually committed
// (pkg/worker/worker_test.go covers that guarantee end to end); this
// fake has no log or quorum to consult, so it completes whatever it
// drained once delay has passed.
func fakeWorker(t *testing.T, q *queue.Queue, delay time.Duration, result queue.Result) {
	t.Helper()
	for i := 0; i < 200; i++ {
		cmds := q.Drain()
		if len(cmds) > 0 {
			time.Sleep(delay)
			for _, cmd := range cmds {
				q.Complete(cmd, result)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("fakeWorker saw no command to complete")
}

func newTestController(t *testing.T) (*Controller, *queue.Queue, *queue.Published, *kv.StateMachine) {
	t.Helper()
	q := queue.New(queue.DefaultCapacity)
	pub := queue.NewPublished()
	sm := kv.New()
	return New(q, pub, sm), q, pub, sm
}

func TestInitIsIdempotent(t *testing.T) {
	c, _, _, _ := newTestController(t)
	require.False(t, c.Initialized())
	require.NoError(t, c.Init())
	require.True(t, c.Initialized())
	require.NoError(t, c.Init())
	require.True(t, c.Initialized())
}

func TestIsLeaderReflectsPublishedRole(t *testing.T) {
	c, _, pub, _ := newTestController(t)
	require.False(t, c.IsLeader())

	pub.Store(&queue.State{Role: engine.Leader.String()})
	require.True(t, c.IsLeader())
}

func TestGetClusterStatusAndNodes(t *testing.T) {
	c, _, pub, _ := newTestController(t)
	pub.Store(&queue.State{
		Role:         engine.Leader.String(),
		CurrentTerm:  raftpb.Term(4),
		LeaderID:     raftpb.NodeId(1),
		CommitIndex:  raftpb.Index(10),
		AppliedIndex: raftpb.Index(9),
		Members: []queue.Member{
			{ID: 1, Endpoint: raftpb.Endpoint{Host: "a", Port: 7001}},
			{ID: 2, Endpoint: raftpb.Endpoint{Host: "a", Port: 7002}},
		},
	})

	status := c.GetClusterStatus()
	require.Equal(t, uint64(4), status.Term)
	require.Equal(t, uint64(1), status.Leader)
	require.Equal(t, "Leader", status.Role)
	require.Len(t, status.Members, 2)

	nodes := c.GetNodes()
	require.Len(t, nodes, 2)
	require.True(t, nodes[0].IsLeader)
	require.False(t, nodes[1].IsLeader)
}

func TestAddNodeBlocksUntilWorkerCompletesConfChange(t *testing.T) {
	c, q, _, _ := newTestController(t)

	const workerDelay = 20 * time.Millisecond
	go fakeWorker(t, q, workerDelay, queue.Result{Index: 5})

	start := time.Now()
	err := c.AddNode(4, "a", 7004)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), workerDelay,
		"AddNode returned before the queue delivered a result, so it is not actually waiting on the round trip")
}

func TestReplicateEntryPropagatesWorkerError(t *testing.T) {
	c, q, _, _ := newTestController(t)
	go fakeWorker(t, q, 0, queue.Result{Err: errs.ErrNotLeader})

	err := c.ReplicateEntry([]byte("x"))
	require.ErrorIs(t, err, errs.ErrNotLeader)
}

func TestKVPutThenKVGetAfterLocalApply(t *testing.T) {
	c, q, _, sm := newTestController(t)

	go func() {
		for i := 0; i < 200; i++ {
			cmds := q.Drain()
			if len(cmds) == 0 {
				time.Sleep(time.Millisecond)
				continue
			}
			for _, cmd := range cmds {
				require.NoError(t, sm.Apply(cmd.Payload))
				q.Complete(cmd, queue.Result{Index: 1})
			}
			return
		}
	}()

	require.NoError(t, c.KVPut("k", []byte("v")))

	v, ok := c.KVGet("k")
	require.True(t, ok)
	require.Equal(t, "v", string(v))
}

func TestSetDebugTogglesLogLevel(t *testing.T) {
	c, _, _, _ := newTestController(t)
	require.NoError(t, c.SetDebug(true))
	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	require.NoError(t, c.SetDebug(false))
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestGetWorkerStateReflectsPublished(t *testing.T) {
	c, _, pub, _ := newTestController(t)
	pub.Store(&queue.State{WorkerState: queue.WorkerRunning})
	require.Equal(t, "Running", c.GetWorkerState())
}
