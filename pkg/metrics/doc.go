/*
Package metrics provides Prometheus metrics collection and exposition for raftd.

The metrics package defines and registers all raftd metrics using the Prometheus
client library, providing observability into the consensus engine's role, term
and log indexes, the command queue, and tick/apply/snapshot latency. Metrics are
exposed via HTTP endpoint for scraping by Prometheus servers.

# Architecture

raftd's metrics system follows Prometheus best practices:

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  │  - Automatic Go runtime metrics             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (term, indexes)      │          │
	│  │  Counter: Monotonic increases (rejects)     │          │
	│  │  Histogram: Distributions (latency)         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Engine: Role, term, log indexes, peers     │          │
	│  │  Elections: Count by outcome                │          │
	│  │  Queue: Depth, queue-full rejections        │          │
	│  │  Latency: Tick, apply, snapshot, append     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Prometheus Server                   │          │
	│  │  - Scrapes /metrics every 15s               │          │
	│  │  - Stores time series data                  │          │
	│  │  - Provides PromQL query interface          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Automatic collection of Go runtime metrics
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: role, term, commit index, queue depth
  - Operations: Set, Inc, Dec, Add, Sub

Counter Metrics:
  - Monotonically increasing value
  - Examples: elections total, queue-full rejections total
  - Operations: Inc, Add (cannot decrease)

Histogram Metrics:
  - Distribution of observed values
  - Buckets for latency percentiles (p50, p95, p99)
  - Examples: tick duration, apply duration
  - Includes: sum, count, buckets

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Engine Metrics (gauges, set by the worker on every tick that produces output):

raftd_role (Role):
  - Type: Gauge
  - Description: Current engine role (0=follower, 1=candidate, 2=leader)
  - Example: raftd_role 2

raftd_term (Term):
  - Type: Gauge
  - Description: Current term

raftd_commit_index (CommitIndex):
  - Type: Gauge
  - Description: Highest log index known to be committed

raftd_applied_index (AppliedIndex):
  - Type: Gauge
  - Description: Highest log index applied to the state machine

raftd_last_index (LastIndex):
  - Type: Gauge
  - Description: Index of the last log entry

raftd_peers_total (PeersTotal):
  - Type: Gauge
  - Description: Number of nodes in the current configuration
  - Example: raftd_peers_total 3

Election Metrics:

raftd_elections_total{outcome} (ElectionsTotal):
  - Type: Counter
  - Description: Elections started, by outcome
  - Labels: outcome
  - Registered; no code in this module records to it

Queue Metrics:

raftd_queue_depth (QueueDepth):
  - Type: Gauge
  - Description: Current depth of the command queue

raftd_queue_full_total (QueueFullTotal):
  - Type: Counter
  - Description: Commands rejected with ErrQueueFull

Latency Metrics (histograms, default Prometheus buckets):

raftd_tick_duration_seconds (TickDuration):
  - Description: Time taken to process one worker tick

raftd_apply_duration_seconds (ApplyDuration):
  - Description: Time taken to apply one tick's committed entries

raftd_snapshot_duration_seconds (SnapshotDuration):
  - Description: Time taken to produce and persist a proactive snapshot

raftd_append_entries_duration_seconds (AppendEntriesDuration):
  - Description: Time taken to process an AppendEntries RPC
  - Registered; no code in this module records to it

# Usage

Updating Gauge Metrics:

	import "github.com/cuemby/raftd/pkg/metrics"

	// Set absolute value
	metrics.Term.Set(7)
	metrics.PeersTotal.Set(3)

	// Increment/decrement
	metrics.QueueDepth.Inc()
	metrics.QueueDepth.Dec()

Updating Counter Metrics:

	// Increment by 1
	metrics.QueueFullTotal.Inc()

	// Increment a labelled counter
	metrics.ElectionsTotal.WithLabelValues("won").Inc()

Recording Histogram Observations:

	// Direct observation
	metrics.ApplyDuration.Observe(0.125) // 125ms

	// Using Timer helper
	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.TickDuration)

Using Timer with Labels (any prometheus.ObserverVec):

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(someHistogramVec, "label-value")

Complete Example:

	package main

	import (
		"net/http"
		"time"
		"github.com/cuemby/raftd/pkg/metrics"
	)

	func main() {
		// Update engine metrics
		metrics.Role.Set(2)
		metrics.Term.Set(3)
		metrics.CommitIndex.Set(42)
		metrics.PeersTotal.Set(3)

		// Time an operation
		timer := metrics.NewTimer()
		doTick()
		timer.ObserveDuration(metrics.TickDuration)

		// Expose metrics endpoint
		http.Handle("/metrics", metrics.Handler())
		http.ListenAndServe(":9090", nil)
	}

	func doTick() {
		// One tick of work
		time.Sleep(5 * time.Millisecond)
	}

# Integration Points

This package integrates with:

  - pkg/worker: Publishes role, term, index, peer and queue-depth gauges;
    records tick, apply and snapshot durations
  - pkg/queue: Counts queue-full rejections
  - cmd/raftd: Serves /metrics, /healthz, /readyz and /livez on metrics_addr
    and registers the engine, storage, transport and worker health components
  - Prometheus: Scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init() function
  - MustRegister panics on duplicate registration
  - Ensures metrics available before main()
  - No runtime registration needed

Label Discipline:
  - Use WithLabelValues for cardinality-bounded labels
  - Avoid high-cardinality labels (IDs, timestamps)
  - Document label values in metric description
  - Keep label count low (< 5 per metric)

Timer Pattern:
  - Create timer at operation start
  - Defer or explicitly call ObserveDuration
  - Automatically calculates elapsed time
  - Supports both simple and vector histograms

Global Metrics:
  - Package-level variables for all metrics
  - Accessible from any raftd package
  - Thread-safe concurrent updates
  - No initialization required by callers

# Performance Characteristics

Metric Update Overhead:
  - Gauge set/inc: ~50ns per operation
  - Counter inc: ~50ns per operation
  - Histogram observe: ~200ns per operation
  - Labels: +100ns per label value
  - Negligible impact on hot path

Memory Usage:
  - Per metric: ~1KB baseline
  - Per label combination: ~100 bytes
  - Histogram buckets: ~50 bytes each
  - Total: ~1-5MB for a typical raftd node

Scrape Performance:
  - Metrics gathering: ~1-5ms for full scrape
  - HTTP response: ~10ms for typical metric set
  - Recommendation: Scrape interval ≥ 15s
  - Concurrent scrapes: Safe (read-only)

Cardinality Management:
  - Low cardinality: role, status, state (< 10 values)
  - Medium cardinality: method, host (< 100 values)
  - Avoid: task IDs, timestamps (unbounded)
  - Best practice: Aggregate high-cardinality in logs

# Troubleshooting

Common Issues:

Missing Metrics:
  - Symptom: Metric not appearing in /metrics output
  - Check: Metric registered in init() function
  - Check: MustRegister called (panics if duplicate)
  - Solution: Verify metric variable is exported

High Cardinality:
  - Symptom: Prometheus memory usage grows
  - Cause: Using IDs or unbounded values as labels
  - Check: Label cardinality (count unique combinations)
  - Solution: Remove high-cardinality labels, aggregate differently

Histogram Bucket Mismatch:
  - Symptom: No data in desired percentiles
  - Cause: Buckets don't cover observed value range
  - Check: Histogram sum / count for average
  - Solution: Customize buckets for value range

Stale Metrics:
  - Symptom: Metrics not updating
  - Cause: Code not calling metric update methods
  - Check: Add logging around metric updates
  - Solution: Instrument code paths correctly

# Monitoring

Prometheus Queries (PromQL):

Consensus Health:
  - Has leader: max(raftd_role) == 2
  - Leader changes: changes(raftd_term[10m])
  - Apply lag: raftd_commit_index - raftd_applied_index
  - Log growth: raftd_last_index - raftd_applied_index
  - Peer count: raftd_peers_total

Queue Health:
  - Queue depth: raftd_queue_depth
  - Rejection rate: rate(raftd_queue_full_total[5m])

Worker Performance:
  - p95 tick latency: histogram_quantile(0.95, rate(raftd_tick_duration_seconds_bucket[5m]))
  - p95 apply latency: histogram_quantile(0.95, rate(raftd_apply_duration_seconds_bucket[5m]))
  - Snapshot rate: rate(raftd_snapshot_duration_seconds_count[10m])

# Alerting Rules

Recommended Prometheus alerts:

No Leader:
  - Alert: max(raftd_role) < 2
  - Description: No node reports the leader role
  - Action: Check peer connectivity, quorum status

Frequent Term Changes:
  - Alert: changes(raftd_term[10m]) > 3
  - Description: Term advanced more than 3 times in 10 minutes
  - Action: Check network latency, election timeout settings

Queue Rejections:
  - Alert: rate(raftd_queue_full_total[5m]) > 0
  - Description: Commands are being rejected with ErrQueueFull
  - Action: Check worker tick latency, client submission rate

# Grafana Dashboards

Recommended dashboard panels:

Consensus:
  - Single stat: Role per node
  - Time series: Term
  - Time series: Commit, applied and last index
  - Single stat: Peer count

Queue:
  - Time series: Queue depth
  - Time series: Queue-full rejections per second

Worker Performance:
  - Heatmap: Tick duration distribution
  - Time series: p95 apply and snapshot duration

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
  - PromQL tutorial: https://prometheus.io/docs/prometheus/latest/querying/basics/
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
