package engine

import (
	"math/rand"
	"time"

	"github.com/cuemby/raftd/pkg/raftpb"
	"github.com/rs/zerolog"
)

// Role is one of Follower, Candidate, Leader.
type Role uint8

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// Progress tracks replication state the leader keeps per peer.
type Progress struct {
	NextIndex  raftpb.Index
	MatchIndex raftpb.Index

	// TicksSinceAck counts ticks since this peer last acknowledged an
	// AppendEntries/heartbeat in the current term; used to detect
	// partition from a majority (§4.1 "Step-down").
	TicksSinceAck int
}

// Config configures a new Engine.
type Config struct {
	ID NodeID

	// ElectionTicks and HeartbeatTicks are expressed in ticks of the
	// worker's cadence (§6's election_timeout_ms / heartbeat_interval_ms
	// divided by tick_interval_ms).
	ElectionTicks  int
	HeartbeatTicks int

	Logger zerolog.Logger
}

// NodeID is an alias kept local to avoid every call site needing the
// raftpb import just to name a node.
type NodeID = raftpb.NodeId

// Output is everything the engine produced since the last Drain: state to
// persist, messages to send, and entries to apply. The worker must
// persist (snapshot, then log, then hard state) before acting on
// Messages or EntriesToApply.
type Output struct {
	HardStateChanged  bool
	HardState         raftpb.HardState
	PersistFromIndex  raftpb.Index
	EntriesToPersist  []raftpb.Entry
	SnapshotToPersist *raftpb.Snapshot
	Messages          []raftpb.Message
	EntriesToApply    []raftpb.Entry
	ReadResults       []ReadIndexResult
}

func (o *Output) isEmpty() bool {
	return !o.HardStateChanged && len(o.EntriesToPersist) == 0 &&
		o.SnapshotToPersist == nil && len(o.Messages) == 0 && len(o.EntriesToApply) == 0
}

// ReadIndexResult is delivered once a read_index round completes: a
// leader-confirmed safe index at which the caller's read may be serviced.
type ReadIndexResult struct {
	RequestID string
	Index     raftpb.Index
}

// Engine is the consensus state machine for one node. All exported
// methods, Drain included, are called from a single goroutine (the
// worker); the engine itself does no internal locking.
type Engine struct {
	id     NodeID
	role   Role
	term   raftpb.Term
	vote   NodeID // 0 == unset
	leader NodeID // 0 == unknown

	log    *raftLog
	config raftpb.Configuration

	progress map[NodeID]*Progress
	votes    map[NodeID]bool

	electionTicks     int
	heartbeatTicks    int
	electionElapsed   int
	heartbeatElapsed  int
	randomizedTimeout int
	rng               *rand.Rand

	pendingConfChangeIndex raftpb.Index // 0 if none outstanding

	// read_index bookkeeping: requests awaiting a heartbeat-confirmed
	// quorum before they may be serviced at readIndex.
	pendingReads []pendingRead

	persistedHS raftpb.HardState // last HardState the worker has durably confirmed

	out Output

	logger zerolog.Logger
}

type pendingRead struct {
	requestID  string
	index      raftpb.Index // commit index at time of request
	acks       map[NodeID]bool
}

// New constructs an Engine from persisted state recovered at startup
// (storage.LoadResult) and an initial configuration. term/vote/commit are
// taken from hs (zero values if this is a brand-new node); entries and
// snap come from storage.LoadAll().
func New(cfg Config, hs raftpb.HardState, snap *raftpb.Snapshot, entries []raftpb.Entry, initialConfig raftpb.Configuration) *Engine {
	l := newRaftLog()
	l.restoreFrom(snap, entries)
	if hs.CommitIndex > l.committed {
		l.committed = hs.CommitIndex
	}

	e := &Engine{
		id:                cfg.ID,
		role:              Follower,
		term:              hs.Term,
		vote:              hs.VotedFor,
		log:               l,
		config:            initialConfig,
		progress:          make(map[NodeID]*Progress),
		electionTicks:     cfg.ElectionTicks,
		heartbeatTicks:    cfg.HeartbeatTicks,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano() + int64(cfg.ID))),
		persistedHS:       hs,
		logger:            cfg.Logger,
	}
	if snap != nil {
		e.config = snap.Configuration.Clone()
	}
	e.resetRandomizedTimeout()
	return e
}

// Role, Term, Leader, CommitIndex, AppliedIndex, LastIndex, Configuration
// are read-only accessors safe to call between engine operations (still
// single-threaded, but exposed for the worker's publish step).
func (e *Engine) Role() Role                        { return e.role }
func (e *Engine) Term() raftpb.Term                 { return e.term }
func (e *Engine) Leader() NodeID                    { return e.leader }
func (e *Engine) CommitIndex() raftpb.Index         { return e.log.committed }
func (e *Engine) AppliedIndex() raftpb.Index        { return e.log.applied }
func (e *Engine) LastIndex() raftpb.Index           { return e.log.lastIndex() }
func (e *Engine) Configuration() raftpb.Configuration { return e.config.Clone() }
func (e *Engine) HasPendingConfChange() bool        { return e.pendingConfChangeIndex != 0 }

func (e *Engine) quorum() int {
	return e.config.Quorum()
}

func (e *Engine) resetRandomizedTimeout() {
	e.randomizedTimeout = e.electionTicks + e.rng.Intn(e.electionTicks)
}

func (e *Engine) send(m raftpb.Message) {
	m.From = e.id
	m.Term = e.term
	e.out.Messages = append(e.out.Messages, m)
}

// markHardStateDirty flags that (term, vote, commit) differs from what's
// durably persisted, so the next Drain includes it.
func (e *Engine) markHardStateDirty() {
	e.out.HardStateChanged = true
	e.out.HardState = raftpb.HardState{Term: e.term, VotedFor: e.vote, CommitIndex: e.log.committed}
}

// Drain returns everything accumulated since the previous Drain and
// resets the internal buffer. Call exactly once per tick, after Tick.
func (e *Engine) Drain() Output {
	unstable := e.log.unstableEntries()
	if len(unstable) > 0 {
		e.out.EntriesToPersist = unstable
		e.out.PersistFromIndex = unstable[0].Index
	}
	e.out.EntriesToApply = e.log.entriesToApply()

	out := e.out
	e.out = Output{}
	return out
}

// AckPersisted tells the engine that entries up to and including
// lastPersistedIndex are now durable, and that hs is now the durably
// persisted HardState. Call only after storage writes have succeeded, in
// the order snapshot -> log -> hard state, per §4.4.
func (e *Engine) AckPersisted(lastPersistedIndex raftpb.Index, hs raftpb.HardState) {
	e.log.stableTo(lastPersistedIndex)
	e.persistedHS = hs
}

// AckApplied tells the engine that entries up to and including index have
// been applied to the state machine.
func (e *Engine) AckApplied(index raftpb.Index) {
	e.log.appliedTo(index)
}

// AckSnapshotPersisted tells the engine a snapshot it proposed to take
// locally has been durably saved, so the log may be compacted in memory
// too (storage.Compact handles the on-disk side).
func (e *Engine) AckSnapshotPersisted(snap raftpb.Snapshot) {
	e.log.installSnapshot(snap)
}
