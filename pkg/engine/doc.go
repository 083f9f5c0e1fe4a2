// Package engine implements the consensus state machine: follower,
// candidate, and leader roles; the election and log-replication
// protocols; snapshotting; single-server configuration changes; and
// read_index.
//
// The engine is deliberately synchronous: Step, Propose, ProposeConfChange
// and Tick never block and never perform I/O. Each call mutates the
// engine's in-memory state and appends to an internal output buffer;
// Drain returns and clears that buffer. This is the "pure function of
// its inputs for a given tick" discipline the surrounding worker relies
// on to persist before it sends or applies anything.
//
// Grounded on the tick/Step architecture of etcd's raft package (as
// vendored by tinykv's raft.Raft), reshaped to this system's exact wire
// types and protocol details (hint_index on rejection, single
// outstanding ConfChange, read_index).
//
// The package is split by concern rather than by type: engine.go holds
// the struct and its accessors, roles.go the role transitions, step.go
// the message-handling switch, tick.go the timer-driven behavior,
// replicate.go the leader's send/commit-advancement logic, propose.go
// the client-facing entry points, readindex.go the linearizable-read
// protocol, and log.go the in-memory replicated log.
package engine
