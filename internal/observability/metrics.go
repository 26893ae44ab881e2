package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector Talemon's pipeline stages
// publish. One instance is shared by whichever binaries are wired into a
// given process (the scheduler/worker/extractor binaries each only touch
// the fields relevant to them).
type Metrics struct {
	PagesDispatched    prometheus.Counter
	ZombiesReclaimed   prometheus.Counter
	RateLimitRejected  *prometheus.CounterVec
	CaptureDuration    prometheus.Histogram
	SnapshotsWritten   prometheus.Counter
	MonitorsRecorded   *prometheus.CounterVec
	SnapshotsExtracted *prometheus.CounterVec
}

// NewMetrics registers and returns Talemon's collector set against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests, multiple
// instances in one process) or prometheus.DefaultRegisterer for a normal
// binary.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PagesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "talemon",
			Name:      "pages_dispatched_total",
			Help:      "Pages transitioned from PENDING to PROCESSING.",
		}),
		ZombiesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "talemon",
			Name:      "zombies_reclaimed_total",
			Help:      "Leases reclaimed from workers whose heartbeat went stale.",
		}),
		RateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talemon",
			Name:      "rate_limit_rejected_total",
			Help:      "Candidate pages rejected by the per-domain admission limiter.",
		}, []string{"domain"}),
		CaptureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "talemon",
			Name:      "capture_duration_seconds",
			Help:      "Wall-clock time spent in the browser capture protocol per page.",
			Buckets:   prometheus.DefBuckets,
		}),
		SnapshotsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "talemon",
			Name:      "snapshots_written_total",
			Help:      "New page_snapshot rows persisted after a content-change decision.",
		}),
		MonitorsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talemon",
			Name:      "monitors_recorded_total",
			Help:      "Audit rows written per check outcome.",
		}, []string{"outcome"}), // "changed", "unchanged", "http_failure"
		SnapshotsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talemon",
			Name:      "snapshots_extracted_total",
			Help:      "Snapshots run through an extractor Func, by version.",
		}, []string{"version"}),
	}

	reg.MustRegister(
		m.PagesDispatched,
		m.ZombiesReclaimed,
		m.RateLimitRejected,
		m.CaptureDuration,
		m.SnapshotsWritten,
		m.MonitorsRecorded,
		m.SnapshotsExtracted,
	)
	return m
}
