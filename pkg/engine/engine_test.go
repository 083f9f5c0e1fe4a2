package engine

import (
	"testing"

	"github.com/cuemby/raftd/pkg/errs"
	"github.com/cuemby/raftd/pkg/raftpb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testConfig(ids ...NodeID) raftpb.Configuration {
	nodes := make(map[raftpb.NodeId]raftpb.Endpoint, len(ids))
	for _, id := range ids {
		nodes[id] = raftpb.Endpoint{Host: "localhost", Port: uint16(id)}
	}
	return raftpb.Configuration{Nodes: nodes}
}

func newTestEngine(id NodeID, ids ...NodeID) *Engine {
	cfg := Config{ID: id, ElectionTicks: 5, HeartbeatTicks: 1, Logger: zerolog.Nop()}
	return New(cfg, raftpb.HardState{}, nil, nil, testConfig(ids...))
}

// cluster is a deterministic, in-process simulation harness: no goroutines,
// no timers, no sockets. Every tick and every message hand-off is driven
// explicitly by the test, standing in for the worker.
type cluster struct {
	t       *testing.T
	engines map[NodeID]*Engine
	inbox   map[NodeID][]raftpb.Message
	reads   map[NodeID][]ReadIndexResult
}

func newCluster(t *testing.T, ids ...NodeID) *cluster {
	c := &cluster{
		t:       t,
		engines: make(map[NodeID]*Engine),
		inbox:   make(map[NodeID][]raftpb.Message),
		reads:   make(map[NodeID][]ReadIndexResult),
	}
	for _, id := range ids {
		c.engines[id] = newTestEngine(id, ids...)
	}
	return c
}

// ackOutput plays the worker's role just enough to let the engine keep
// moving: persist whatever claims to need persisting, apply whatever is
// ready to apply (including feeding ConfChange effects back in), and
// record read_index completions for inspection.
func (c *cluster) ackOutput(id NodeID, e *Engine, out Output) {
	if out.SnapshotToPersist != nil {
		e.AckSnapshotPersisted(*out.SnapshotToPersist)
	}
	if len(out.EntriesToPersist) > 0 {
		last := out.EntriesToPersist[len(out.EntriesToPersist)-1].Index
		e.AckPersisted(last, out.HardState)
	} else if out.HardStateChanged {
		e.AckPersisted(e.LastIndex(), out.HardState)
	}
	for _, entry := range out.EntriesToApply {
		if entry.Kind == raftpb.EntryConfChange {
			cc, err := raftpb.DecodeConfChange(entry.Payload)
			require.NoError(c.t, err)
			e.ApplyConfChangeEffect(entry.Index, cc)
		}
	}
	if len(out.EntriesToApply) > 0 {
		e.AckApplied(out.EntriesToApply[len(out.EntriesToApply)-1].Index)
	}
	c.reads[id] = append(c.reads[id], out.ReadResults...)
}

// settle drains every engine's output, routes messages, delivers them,
// and repeats until no engine produces anything new. Bounded so a test
// bug (an unconverging message storm) fails loudly instead of hanging.
func (c *cluster) settle() {
	for round := 0; round < 200; round++ {
		any := false
		for id, e := range c.engines {
			out := e.Drain()
			c.ackOutput(id, e, out)
			for _, m := range out.Messages {
				if _, ok := c.engines[m.To]; ok {
					c.inbox[m.To] = append(c.inbox[m.To], m)
					any = true
				}
			}
		}
		if !any {
			return
		}
		pending := c.inbox
		c.inbox = make(map[NodeID][]raftpb.Message)
		for id, msgs := range pending {
			e := c.engines[id]
			for _, m := range msgs {
				e.Step(m)
			}
		}
	}
	c.t.Fatalf("cluster did not settle within 200 rounds")
}

func (c *cluster) advance(rounds int) {
	for i := 0; i < rounds; i++ {
		for _, e := range c.engines {
			e.Tick()
		}
		c.settle()
	}
}

func (c *cluster) leader() *Engine {
	for _, e := range c.engines {
		if e.Role() == Leader {
			return e
		}
	}
	return nil
}

func TestSingleNodeElectsItselfLeader(t *testing.T) {
	e := newTestEngine(1, 1)
	require.Equal(t, Follower, e.Role())

	for i := 0; i < 20 && e.Role() != Leader; i++ {
		e.Tick()
		e.Drain()
	}
	require.Equal(t, Leader, e.Role())
	require.Equal(t, raftpb.Term(1), e.Term())
}

func TestThreeNodeClusterElectsExactlyOneLeader(t *testing.T) {
	c := newCluster(t, 1, 2, 3)
	c.advance(10)

	leaders := 0
	var term raftpb.Term
	for _, e := range c.engines {
		if e.Role() == Leader {
			leaders++
			term = e.Term()
		}
	}
	require.Equal(t, 1, leaders)

	for _, e := range c.engines {
		require.Equal(t, term, e.Term())
		if e.Role() != Leader {
			require.Equal(t, Follower, e.Role())
		}
	}
}

func TestLeaderReplicatesProposedEntryToFollowers(t *testing.T) {
	c := newCluster(t, 1, 2, 3)
	c.advance(10)
	leader := c.leader()
	require.NotNil(t, leader)

	payload, err := raftpb.EncodeNormalOpaque([]byte("hello"))
	require.NoError(t, err)

	idx, err := leader.Propose(payload)
	require.NoError(t, err)
	c.settle()
	// Followers learn the new commit index from the next heartbeat.
	c.advance(1)

	for _, e := range c.engines {
		require.GreaterOrEqual(t, e.CommitIndex(), idx)
		require.GreaterOrEqual(t, e.AppliedIndex(), idx)
	}
}

func TestProposeOnFollowerReturnsNotLeader(t *testing.T) {
	c := newCluster(t, 1, 2, 3)
	c.advance(10)
	leader := c.leader()
	require.NotNil(t, leader)

	var follower *Engine
	for id, e := range c.engines {
		if e.Role() != Leader {
			follower = c.engines[id]
			break
		}
	}
	require.NotNil(t, follower)

	_, err := follower.Propose([]byte("x"))
	require.ErrorIs(t, err, errs.ErrNotLeader)
}

func TestConfChangeRejectedWhilePending(t *testing.T) {
	c := newCluster(t, 1, 2, 3)
	c.advance(10)
	leader := c.leader()
	require.NotNil(t, leader)

	_, err := leader.ProposeConfChange(raftpb.ConfChange{Op: raftpb.ConfChangeAdd, Node: 4, Endpoint: raftpb.Endpoint{Host: "h", Port: 1}})
	require.NoError(t, err)

	_, err = leader.ProposeConfChange(raftpb.ConfChange{Op: raftpb.ConfChangeAdd, Node: 5, Endpoint: raftpb.Endpoint{Host: "h", Port: 2}})
	require.ErrorIs(t, err, errs.ErrPendingConfChange)
}

func TestConfChangeAddNodeUpdatesConfigurationOnApply(t *testing.T) {
	c := newCluster(t, 1, 2, 3)
	c.advance(10)
	leader := c.leader()
	require.NotNil(t, leader)

	_, err := leader.ProposeConfChange(raftpb.ConfChange{Op: raftpb.ConfChangeAdd, Node: 4, Endpoint: raftpb.Endpoint{Host: "h", Port: 9}})
	require.NoError(t, err)
	c.settle()

	cfg := leader.Configuration()
	_, ok := cfg.Nodes[4]
	require.True(t, ok)
	require.False(t, leader.HasPendingConfChange())
}

func TestReadIndexSingleNodeSettlesImmediately(t *testing.T) {
	e := newTestEngine(1, 1)
	for i := 0; i < 20 && e.Role() != Leader; i++ {
		e.Tick()
		e.Drain()
	}
	require.Equal(t, Leader, e.Role())

	ok := e.RequestReadIndex("req-1")
	require.True(t, ok)

	out := e.Drain()
	require.Len(t, out.ReadResults, 1)
	require.Equal(t, "req-1", out.ReadResults[0].RequestID)
}

func TestReadIndexMultiNodeRequiresQuorumAck(t *testing.T) {
	c := newCluster(t, 1, 2, 3)
	c.advance(10)
	leader := c.leader()
	require.NotNil(t, leader)

	ok := leader.RequestReadIndex("req-1")
	require.True(t, ok)
	c.settle()

	var id NodeID
	for nid, e := range c.engines {
		if e == leader {
			id = nid
		}
	}
	require.Contains(t, readRequestIDs(c.reads[id]), "req-1")
}

func readRequestIDs(rs []ReadIndexResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.RequestID
	}
	return out
}

func TestLeaderStepsDownAfterLosingMajority(t *testing.T) {
	c := newCluster(t, 1, 2, 3)
	c.advance(10)
	leader := c.leader()
	require.NotNil(t, leader)
	term := leader.Term()

	// Simulate a network partition isolating the leader: it keeps
	// ticking (so TicksSinceAck accumulates) but nothing is delivered.
	for i := 0; i < 12; i++ {
		leader.Tick()
		leader.Drain()
	}

	require.Equal(t, Follower, leader.Role())
	require.Equal(t, term, leader.Term())
}
