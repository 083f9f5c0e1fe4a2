// Package adminhttp exposes pkg/control's SQL-reachable control
// surface over a small JSON/HTTP API, for cmd/raftd's status/kv/node
// subcommands to dial (§6 describes the surface as invoked by host SQL
// sessions; this binary has no host database to embed into, so the CLI
// plays that role instead, talking to a locally running worker process
// the way the teacher's cmd/warren CLI talks to a running manager over
// its API layer — here over plain HTTP instead of grpc, since grpc was
// dropped as a dependency (see DESIGN.md)).
package adminhttp
