// Package storage is the durable-state layer beneath the consensus
// engine: HardState, the log, and snapshots. See Store for the exact
// capability set the engine's worker depends on.
package storage
