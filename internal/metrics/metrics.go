// Package metrics holds the counters and observer plumbing shared by the
// root package's public API and the internal engine implementations. It
// exists on its own so internal/engine/* can report into it without the
// root package importing back down into them.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics tracks process-wide, monotonic counters for the benchmark run.
// All fields are 64-bit atomics mutated only by the event loop; readers
// such as the reporter take a Snapshot without additional synchronization
// since reads of individual atomics are always consistent.
type Metrics struct {
	Bytes         atomic.Uint64 // Cumulative bytes echoed
	Messages      atomic.Uint64 // Cumulative messages echoed
	ConnsAccepted atomic.Uint64 // Cumulative accepted connections
	ConnsClosed   atomic.Uint64 // Cumulative closed connections

	startTime atomic.Int64 // Run start timestamp (UnixNano)
}

// New creates a metrics instance with its start time set to now.
func New() *Metrics {
	m := &Metrics{}
	m.startTime.Store(time.Now().UnixNano())
	return m
}

// RecordAccept records a newly accepted connection.
func (m *Metrics) RecordAccept() {
	m.ConnsAccepted.Add(1)
}

// RecordClose records a connection teardown.
func (m *Metrics) RecordClose() {
	m.ConnsClosed.Add(1)
}

// RecordEcho records one echoed message of the given size.
func (m *Metrics) RecordEcho(bytes uint64) {
	m.Bytes.Add(bytes)
	m.Messages.Add(1)
}

// StartTime returns the run's start time.
func (m *Metrics) StartTime() time.Time {
	return time.Unix(0, m.startTime.Load())
}

// Snapshot is a point-in-time, race-free copy of Metrics for reporting
// purposes.
type Snapshot struct {
	Bytes         uint64
	Messages      uint64
	ConnsAccepted uint64
	ConnsClosed   uint64
	Elapsed       time.Duration
}

// Snapshot captures the current counter values and elapsed run time.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Bytes:         m.Bytes.Load(),
		Messages:      m.Messages.Load(),
		ConnsAccepted: m.ConnsAccepted.Load(),
		ConnsClosed:   m.ConnsClosed.Load(),
		Elapsed:       time.Since(m.StartTime()),
	}
}

// Active returns the number of connections currently open.
func (s Snapshot) Active() uint64 {
	return s.ConnsAccepted - s.ConnsClosed
}

// Observer allows pluggable metrics collection at the points the event
// loops touch connection and transfer state.
type Observer interface {
	ObserveAccept()
	ObserveClose()
	ObserveEcho(bytes uint64)
}

// NoOpObserver discards all observations.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAccept()     {}
func (NoOpObserver) ObserveClose()      {}
func (NoOpObserver) ObserveEcho(uint64) {}

// MetricsObserver implements Observer using the built-in Metrics type.
type MetricsObserver struct {
	metrics *Metrics
}

// NewObserver creates an observer that records onto m.
func NewObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveAccept()       { o.metrics.RecordAccept() }
func (o *MetricsObserver) ObserveClose()        { o.metrics.RecordClose() }
func (o *MetricsObserver) ObserveEcho(n uint64) { o.metrics.RecordEcho(n) }

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
