package metrics

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ReporterConfig controls where and how often the status line is printed.
type ReporterConfig struct {
	Output   io.Writer     // destination for status lines, default os.Stdout
	Interval time.Duration // minimum spacing between non-forced lines
}

// DefaultReporterConfig returns the benchmark's standard reporting cadence:
// one status line per second on stdout.
func DefaultReporterConfig() *ReporterConfig {
	return &ReporterConfig{
		Output:   os.Stdout,
		Interval: 1 * time.Second,
	}
}

// Reporter prints a single carriage-return-terminated status line summarizing
// a Metrics snapshot, rate-limited to at most once per Interval. It holds no
// reference to Metrics itself; callers pass a fresh Snapshot each tick so the
// event loop remains the only mutator of the underlying counters.
type Reporter struct {
	out      io.Writer
	interval time.Duration

	mu       sync.Mutex
	last     time.Time
	reported bool
}

// NewReporter creates a Reporter from config, substituting defaults for any
// zero-valued fields.
func NewReporter(config *ReporterConfig) *Reporter {
	if config == nil {
		config = DefaultReporterConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	interval := config.Interval
	if interval <= 0 {
		interval = 1 * time.Second
	}
	return &Reporter{out: out, interval: interval}
}

// Report prints the status line for snap if at least Interval has elapsed
// since the last printed line, or unconditionally when force is true. It
// returns whether a line was actually written.
func (r *Reporter) Report(snap Snapshot, force bool) bool {
	r.mu.Lock()
	now := time.Now()
	if !force && r.reported && now.Sub(r.last) < r.interval {
		r.mu.Unlock()
		return false
	}
	r.last = now
	r.reported = true
	r.mu.Unlock()

	elapsed := snap.Elapsed.Seconds()
	var rate, mbps, megabytesPerSec, mib float64
	if elapsed > 0 {
		rate = float64(snap.Messages) / elapsed
		bytesPerSec := float64(snap.Bytes) / elapsed
		mbps = bytesPerSec * 8 / 1_000_000
		megabytesPerSec = bytesPerSec / 1_000_000
	}
	mib = float64(snap.Bytes) / (1024 * 1024)

	fmt.Fprintf(r.out, "\rt=%.1fs active=%d accepted=%d messages=%d rate=%.1f/s throughput=%.2fMb/s (%.2fMB/s) total=%.2fMiB",
		elapsed, snap.Active(), snap.ConnsAccepted, snap.Messages, rate, mbps, megabytesPerSec, mib)

	return true
}

// Finish prints a trailing newline and a final forced status line, matching
// the stdout contract's shutdown sequence.
func (r *Reporter) Finish(snap Snapshot) {
	fmt.Fprintln(r.out)
	r.Report(snap, true)
}
