package echobench

import "github.com/behrlich/echobench/internal/metrics"

// ReporterConfig and Reporter are re-exported from internal/metrics so that
// internal/engine/* can drive the same reporter type this package exposes.
type (
	ReporterConfig = metrics.ReporterConfig
	Reporter       = metrics.Reporter
)

// DefaultReporterConfig returns the benchmark's standard reporting cadence:
// one status line per second on stdout.
func DefaultReporterConfig() *ReporterConfig {
	return metrics.DefaultReporterConfig()
}

// NewReporter creates a Reporter from config, substituting defaults for any
// zero-valued fields.
func NewReporter(config *ReporterConfig) *Reporter {
	return metrics.NewReporter(config)
}
