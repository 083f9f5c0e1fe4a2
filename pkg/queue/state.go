package queue

import (
	"sync/atomic"

	"github.com/cuemby/raftd/pkg/raftpb"
)

// Member is one entry of the published membership list.
type Member struct {
	ID       raftpb.NodeId
	Endpoint raftpb.Endpoint
}

// WorkerState reports the worker's own lifecycle phase, independent of
// the consensus role — a node can be a Follower while Running, or
// momentarily ShuttingDown while still technically a Leader.
type WorkerState uint8

const (
	WorkerStarting WorkerState = iota
	WorkerRunning
	WorkerShuttingDown
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerStarting:
		return "Starting"
	case WorkerRunning:
		return "Running"
	case WorkerShuttingDown:
		return "Stopping"
	case WorkerStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// State is the single process-wide datum SQL callers observe (§4.5,
// §9 "Global mutable state"). It is an immutable value: every update
// replaces it wholesale rather than mutating fields in place.
type State struct {
	Role         string
	CurrentTerm  raftpb.Term
	LeaderID     raftpb.NodeId
	CommitIndex  raftpb.Index
	AppliedIndex raftpb.Index
	LastIndex    raftpb.Index
	Members      []Member
	WorkerState  WorkerState
}

// Published holds the current State behind an atomic.Value, giving
// single-writer/many-reader access with no locking on the read path —
// the shape §9 calls out explicitly ("a single atomically replaced
// immutable value"), following the same atomic.Value-holds-latest-
// snapshot pattern other Raft implementations in the reference corpus
// use for their "current leader" pointer.
type Published struct {
	v atomic.Value
}

// NewPublished returns a Published seeded with a zero-value State
// (WorkerStarting, no leader, term 0).
func NewPublished() *Published {
	p := &Published{}
	p.v.Store(&State{WorkerState: WorkerStarting})
	return p
}

// Load returns the current published State. Safe to call from any
// goroutine, never blocks.
func (p *Published) Load() *State {
	return p.v.Load().(*State)
}

// Store replaces the published State. Only the worker goroutine may
// call this, at the end of every tick that changed anything (§4.5).
// Callers are responsible for the monotonicity guarantee in §5c: every
// field here is sourced from engine accessors that themselves only move
// forward (or jump to a snapshot's included_index, which is always >=
// the prior value), so a straightforward field copy preserves it.
func (p *Published) Store(s *State) {
	p.v.Store(s)
}
