// Package integration exercises a full three-node cluster end to end,
// through the same layers cmd/raftd wires together (transport, queue,
// worker, control surface, admin HTTP) rather than through pkg/worker's
// internals directly.
package integration

import (
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/raftd/pkg/adminhttp"
	"github.com/cuemby/raftd/pkg/control"
	"github.com/cuemby/raftd/pkg/engine"
	"github.com/cuemby/raftd/pkg/kv"
	"github.com/cuemby/raftd/pkg/queue"
	"github.com/cuemby/raftd/pkg/raftpb"
	"github.com/cuemby/raftd/pkg/storage"
	"github.com/cuemby/raftd/pkg/transport"
	"github.com/cuemby/raftd/pkg/worker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type clusterNode struct {
	id     raftpb.NodeId
	worker *worker.Worker
	admin  *adminhttp.Server
	client *adminhttp.Client
}

// startCluster builds a three-node cluster wired exactly the way
// cmd/raftd's run command does, except using an in-process
// transport.MemoryNetwork instead of real TCP sockets.
func startCluster(t *testing.T, net *transport.MemoryNetwork, ids ...raftpb.NodeId) map[raftpb.NodeId]*clusterNode {
	t.Helper()

	members := make(map[raftpb.NodeId]raftpb.Endpoint, len(ids))
	for i, id := range ids {
		members[id] = raftpb.Endpoint{Host: "node", Port: uint16(i + 1)}
	}
	initialConfig := raftpb.Configuration{Nodes: members}

	logger := zerolog.Nop()
	nodes := make(map[raftpb.NodeId]*clusterNode, len(ids))
	basePort := 17400

	for i, id := range ids {
		store, err := storage.NewBoltStore(t.TempDir())
		require.NoError(t, err)

		sm := kv.New()
		eng, err := worker.Recover(engine.Config{
			ID:             id,
			ElectionTicks:  10,
			HeartbeatTicks: 1,
			Logger:         logger,
		}, store, initialConfig, sm, logger)
		require.NoError(t, err)

		tr := net.NewTransport(id)
		q := queue.New(queue.DefaultCapacity)
		pub := queue.NewPublished()

		w := worker.New(eng, store, tr, q, pub, sm, worker.Config{
			TickInterval:      5 * time.Millisecond,
			SnapshotThreshold: 10000,
			Logger:            logger,
		})

		ctrl := control.New(q, pub, sm)
		addr := fmt.Sprintf("127.0.0.1:%d", basePort+i)
		admin := adminhttp.New(addr, ctrl, logger)

		nodes[id] = &clusterNode{id: id, worker: w, admin: admin, client: adminhttp.NewClient(addr)}
	}
	return nodes
}

func waitForAdminUp(t *testing.T, c *adminhttp.Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := c.WorkerState()
		return err == nil
	}, 3*time.Second, 5*time.Millisecond, "admin http server never came up")
}

func TestAdminAPIAcrossThreeNodeCluster(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	net := transport.NewMemoryNetwork()
	nodes := startCluster(t, net, 1, 2, 3)

	for _, n := range nodes {
		n.worker.Start()
		n.admin.Start()
	}
	t.Cleanup(func() {
		for _, n := range nodes {
			n.worker.Stop()
		}
	})

	for _, n := range nodes {
		waitForAdminUp(t, n.client)
	}

	var leader *clusterNode
	require.Eventually(t, func() bool {
		for _, n := range nodes {
			status, err := n.client.Status()
			if err == nil && status.Role == "Leader" {
				leader = n
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond, "expected a leader to be elected")

	require.NoError(t, leader.client.KVPut("answer", []byte("42")))

	require.Eventually(t, func() bool {
		for _, n := range nodes {
			value, found, err := n.client.KVGet("answer")
			if err != nil || !found || string(value) != "42" {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond, "expected kv write to replicate to every node")

	status, err := leader.client.Status()
	require.NoError(t, err)
	require.Len(t, status.Members, 3)
}
