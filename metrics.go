package echobench

import "github.com/behrlich/echobench/internal/metrics"

// Metrics, MetricsSnapshot, and the Observer family are re-exported from
// internal/metrics so that internal/engine/* can report into them without
// importing this root package.
type (
	Metrics         = metrics.Metrics
	MetricsSnapshot = metrics.Snapshot
	Observer        = metrics.Observer
	NoOpObserver    = metrics.NoOpObserver
	MetricsObserver = metrics.MetricsObserver
)

// NewMetrics creates a metrics instance with its start time set to now.
func NewMetrics() *Metrics {
	return metrics.New()
}

// NewMetricsObserver creates an observer that records onto m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return metrics.NewObserver(m)
}
