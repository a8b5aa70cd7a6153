// Package completion implements the single-shot io_uring completion engine
// (spec §4.5): one accept, one recv, or one send outstanding per connection
// at a time, each tracked through the request table by a 64-bit handle.
package completion

import (
	"fmt"

	"github.com/behrlich/echobench/internal/constants"
	"github.com/behrlich/echobench/internal/listener"
	"github.com/behrlich/echobench/internal/logging"
	"github.com/behrlich/echobench/internal/metrics"
	"github.com/behrlich/echobench/internal/reqtable"
	"github.com/behrlich/echobench/internal/shutdown"
	"github.com/behrlich/echobench/internal/uring"
)

// Config wires an Engine to its shared dependencies.
type Config struct {
	Logger   *logging.Logger
	Observer metrics.Observer
	Metrics  *metrics.Metrics
	Reporter *metrics.Reporter
	Shutdown *shutdown.Flag
}

// Engine is the single-shot completion engine.
type Engine struct {
	listenFD int
	ring     uring.Ring
	table    *reqtable.Table

	logger   *logging.Logger
	observer metrics.Observer
	metrics  *metrics.Metrics
	reporter *metrics.Reporter
	shutdown *shutdown.Flag

	acceptFailed bool
}

// New creates a completion engine around an already-bound, listening
// listenFD, with a ring of constants.SQDepth entries.
func New(listenFD int, cfg Config) (*Engine, error) {
	ring, err := uring.NewRing(uring.Config{Entries: constants.SQDepth})
	if err != nil {
		return nil, fmt.Errorf("create ring: %w", err)
	}

	observer := cfg.Observer
	if observer == nil {
		observer = metrics.NoOpObserver{}
	}

	e := &Engine{
		listenFD: listenFD,
		ring:     ring,
		table:    reqtable.New(),
		logger:   cfg.Logger,
		observer: observer,
		metrics:  cfg.Metrics,
		reporter: cfg.Reporter,
		shutdown: cfg.Shutdown,
	}
	return e, nil
}

// Close tears down the ring. Safe to call after Run returns.
func (e *Engine) Close() error {
	return e.ring.Close()
}

// Run submits the initial accept and drives the completion loop until
// shutdown is requested.
func (e *Engine) Run() error {
	if err := e.submitAccept(); err != nil {
		return fmt.Errorf("submit initial accept: %w", err)
	}
	if _, err := e.ring.Submit(); err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	for {
		if e.shutdown.Requested() {
			return nil
		}

		cqe, ok, err := e.ring.WaitCQE(constants.CompletionWaitTimeout)
		if err != nil {
			return fmt.Errorf("wait cqe: %w", err)
		}

		if !ok {
			if e.metrics != nil && e.reporter != nil {
				e.reporter.Report(e.metrics.Snapshot(), false)
			}
			continue
		}

		e.dispatch(cqe)
		if _, err := e.ring.Submit(); err != nil {
			return fmt.Errorf("submit: %w", err)
		}
	}
}

func (e *Engine) submitAccept() error {
	handle, _ := e.table.Alloc(reqtable.TagAccept, e.listenFD)
	return e.ring.SubmitAccept(e.listenFD, handle)
}

func (e *Engine) dispatch(cqe uring.CQE) {
	rec, ok := e.table.Get(cqe.UserData)
	if !ok {
		// Unrecognised or already-freed record: tolerated per §4.3, expected
		// from kernel-generated cancellations at teardown.
		return
	}

	switch rec.Tag {
	case reqtable.TagAccept:
		e.onAccept(cqe, rec)
	case reqtable.TagRead:
		e.onRead(cqe, rec)
	case reqtable.TagWrite:
		e.onWrite(cqe, rec)
	}
}

func (e *Engine) onAccept(cqe uring.CQE, _ *reqtable.Record) {
	e.table.Free(cqe.UserData)

	if cqe.Res < 0 {
		if e.acceptFailed {
			return
		}
		e.acceptFailed = true
		e.logWarn("accept failed, no further connections will be accepted: res=%d", cqe.Res)
		return
	}

	fd := int(cqe.Res)
	if err := listener.SetNoDelay(fd); err != nil {
		e.logWarn("setsockopt TCP_NODELAY fd=%d: %v", fd, err)
	}
	e.observer.ObserveAccept()

	buf := make([]byte, constants.RecvBufferSize)
	readHandle, readRec := e.table.Alloc(reqtable.TagRead, fd)
	readRec.Buf = buf
	if err := e.ring.SubmitRecv(fd, buf, readHandle); err != nil {
		e.logWarn("submit recv fd=%d: %v", fd, err)
	}

	acceptHandle, _ := e.table.Alloc(reqtable.TagAccept, e.listenFD)
	if err := e.ring.SubmitAccept(e.listenFD, acceptHandle); err != nil {
		e.logWarn("submit accept: %v", err)
	}
}

func (e *Engine) onRead(cqe uring.CQE, rec *reqtable.Record) {
	n := cqe.Res
	fd := rec.FD
	buf := rec.Buf

	if n <= 0 {
		e.table.Free(cqe.UserData)
		e.closeConn(fd)
		return
	}

	e.observer.ObserveEcho(uint64(n))

	writeHandle, writeRec := e.table.Alloc(reqtable.TagWrite, fd)
	writeRec.Buf = buf[:n]
	if err := e.ring.SubmitSend(fd, writeRec.Buf, writeHandle); err != nil {
		e.logWarn("submit send fd=%d: %v", fd, err)
	}

	e.table.Free(cqe.UserData)
}

func (e *Engine) onWrite(cqe uring.CQE, rec *reqtable.Record) {
	n := cqe.Res
	fd := rec.FD
	buf := rec.Buf

	if n <= 0 {
		e.table.Free(cqe.UserData)
		e.closeConn(fd)
		return
	}

	// Partial sends are not retried: the buffer is fully resubmitted on the
	// next read cycle regardless of n < len(buf).
	if int(n) < len(buf) {
		e.logDebug("short send fd=%d sent=%d want=%d, not retried", fd, n, len(buf))
	}
	buf = buf[:cap(buf)]
	readHandle, readRec := e.table.Alloc(reqtable.TagRead, fd)
	readRec.Buf = buf
	if err := e.ring.SubmitRecv(fd, buf, readHandle); err != nil {
		e.logWarn("submit recv fd=%d: %v", fd, err)
	}

	e.table.Free(cqe.UserData)
}

func (e *Engine) closeConn(fd int) {
	listener.Close(fd)
	e.observer.ObserveClose()
}

func (e *Engine) logWarn(format string, args ...any) {
	if e.logger != nil {
		e.logger.Warnf(format, args...)
	}
}

func (e *Engine) logDebug(format string, args ...any) {
	if e.logger != nil {
		e.logger.Debugf(format, args...)
	}
}
