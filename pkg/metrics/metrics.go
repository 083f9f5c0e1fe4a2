package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Role gauge: 0=follower, 1=candidate, 2=leader
	Role = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftd_role",
			Help: "Current engine role (0=follower, 1=candidate, 2=leader)",
		},
	)

	Term = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftd_term",
			Help: "Current term",
		},
	)

	CommitIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftd_commit_index",
			Help: "Highest log index known to be committed",
		},
	)

	AppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftd_applied_index",
			Help: "Highest log index applied to the state machine",
		},
	)

	LastIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftd_last_index",
			Help: "Index of the last log entry",
		},
	)

	PeersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftd_peers_total",
			Help: "Total number of peers in the current configuration",
		},
	)

	ElectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raftd_elections_total",
			Help: "Total number of elections started, by outcome",
		},
		[]string{"outcome"},
	)

	AppendEntriesDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raftd_append_entries_duration_seconds",
			Help:    "Time taken to process an AppendEntries RPC",
			Buckets: prometheus.DefBuckets,
		},
	)

	ApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raftd_apply_duration_seconds",
			Help:    "Time taken to apply a committed entry to the state machine",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raftd_snapshot_duration_seconds",
			Help:    "Time taken to produce a snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftd_queue_depth",
			Help: "Current depth of the command queue",
		},
	)

	QueueFullTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raftd_queue_full_total",
			Help: "Total number of commands rejected because the queue was full",
		},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raftd_tick_duration_seconds",
			Help:    "Time taken to process one worker tick",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(Role)
	prometheus.MustRegister(Term)
	prometheus.MustRegister(CommitIndex)
	prometheus.MustRegister(AppliedIndex)
	prometheus.MustRegister(LastIndex)
	prometheus.MustRegister(PeersTotal)
	prometheus.MustRegister(ElectionsTotal)
	prometheus.MustRegister(AppendEntriesDuration)
	prometheus.MustRegister(ApplyDuration)
	prometheus.MustRegister(SnapshotDuration)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueueFullTotal)
	prometheus.MustRegister(TickDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
