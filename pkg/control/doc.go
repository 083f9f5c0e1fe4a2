// Package control is the SQL-reachable surface (§6): the thin set of
// operations a host session invokes — init, add_node/remove_node,
// is_leader/get_term/get_leader/get_cluster_status/get_nodes,
// replicate_entry, kv_put/kv_get, set_debug, get_worker_state.
//
// Every mutating operation submits a queue.Command and blocks on its
// result channel up to a fixed deadline; every read-only operation
// (other than kv_get, serviced directly from the local applied state)
// reads straight from the worker's published queue.State snapshot
// without touching the queue at all, since none of them require
// consensus to answer.
//
// Grounded on the teacher's pkg/manager/manager.go: Apply(cmd) submits
// to the replicated log and blocks for a result, and CreateNode/
// UpdateNode/DeleteNode/etc. are thin typed wrappers around it — the
// same ensureLeader-then-submit shape, generalized from Raft's
// future.Error()/future.Response() to this project's queue.Result.
package control
