package versioning

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/portfolio-versioning/internal/types"
)

// Metrics holds the Prometheus collectors of the versioning engine
type Metrics struct {
	VersionsCreated   *prometheus.CounterVec
	Conflicts         prometheus.Counter
	Rollbacks         prometheus.Counter
	IntegrityFailures prometheus.Counter
	SnapshotDuration  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
// A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		VersionsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_versions_created_total",
				Help: "Committed version records by operation type",
			},
			[]string{"operation"},
		),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_version_conflicts_total",
			Help: "Version transactions retried after a conflict or constraint violation",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_rollbacks_total",
			Help: "Committed rollbacks",
		}),
		IntegrityFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_integrity_failures_total",
			Help: "Version records whose stored hash or chain failed verification",
		}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portfolio_snapshot_duration_seconds",
			Help:    "Time to serialize, hash and insert one snapshot",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.VersionsCreated, m.Conflicts, m.Rollbacks, m.IntegrityFailures, m.SnapshotDuration)
	}
	return m
}

func (m *Metrics) versionCreated(op types.OperationType) {
	if m == nil {
		return
	}
	m.VersionsCreated.WithLabelValues(string(op)).Inc()
	if op == types.OperationRollback {
		m.Rollbacks.Inc()
	}
}

func (m *Metrics) conflict() {
	if m != nil {
		m.Conflicts.Inc()
	}
}

func (m *Metrics) integrityFailures(n int) {
	if m != nil && n > 0 {
		m.IntegrityFailures.Add(float64(n))
	}
}

func (m *Metrics) observeSnapshot(start time.Time) {
	if m != nil {
		m.SnapshotDuration.Observe(time.Since(start).Seconds())
	}
}
