// Package metrics defines the Prometheus instrumentation emitted at the
// service boundaries named in Design Notes §9: dedup phase outcomes,
// lease expiries, and import batch sizes. Grounded on the teacher's own
// pkg/gateway/metrics.NewMetricsWithRegistry pattern — a struct of
// pre-registered collectors, built against an injectable
// prometheus.Registerer so tests get isolated registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector this module emits.
type Metrics struct {
	DedupDecisions  *prometheus.CounterVec
	LeaseExpiries   prometheus.Counter
	BatchReferences prometheus.Histogram
}

// New registers against the default Prometheus registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers against reg, for test isolation.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DedupDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reference_repository_dedup_decisions_total",
			Help: "Count of deduplication decisions by determination outcome.",
		}, []string{"determination"}),
		LeaseExpiries: factory.NewCounter(prometheus.CounterOpts{
			Name: "reference_repository_lease_expiries_total",
			Help: "Count of pending enhancement leases reclaimed after expiry.",
		}),
		BatchReferences: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reference_repository_import_batch_references",
			Help:    "Distribution of reference counts per processed import batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}
