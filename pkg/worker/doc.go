// Package worker is the single cooperative task that owns the engine
// (§4.4, §5). It ticks on a fixed cadence, draining inbound transport
// messages and queued commands, calling engine.Tick exactly once, then
// persisting (snapshot, then log, then hard state) before sending any
// message or applying any entry — the ordering §4.4 calls out as
// load-bearing for correctness.
//
// Grounded on the teacher's pkg/reconciler's ticker/select run loop
// (Start/Stop, a stopCh, a single goroutine), generalized from a fixed
// 10-second reconciliation cadence to the engine's tick_interval and
// from "reconcile desired vs actual" to "drain, tick, persist, act".
package worker
