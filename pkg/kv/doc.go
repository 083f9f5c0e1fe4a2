// Package kv is the applied state machine: a small in-memory key/value
// store driven by committed log entries. It has no knowledge of terms,
// roles, or replication — the worker hands it entries in apply order and
// it mutates its map accordingly, exactly like any Raft-backed FSM.
//
// Grounded on the Apply/Snapshot/Restore shape of a hashicorp/raft FSM,
// adapted to this system's NormalPayload envelope in place of the
// original's json.RawMessage command dispatch.
package kv
