// Package queue provides the two concurrency seams between SQL-calling
// host threads and the single worker goroutine that owns the engine:
// a bounded, multi-producer/single-consumer command queue, and a
// single-writer/many-reader published state snapshot.
//
// Neither type touches the engine, storage, or transport directly —
// they are the narrow, lock-minimal handoff points the worker uses to
// talk to the rest of the process, grounded on the atomic.Value "latest
// leader" pattern used for a similar purpose by other Raft
// implementations in the reference corpus.
package queue
