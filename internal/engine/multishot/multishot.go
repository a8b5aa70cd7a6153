// Package multishot implements the multishot completion engine (spec §4.6):
// a multishot accept and, per connection, a multishot recv against a
// registered, kernel-shared provided-buffer ring. Received bytes are copied
// out of the pool immediately and the pool slot is recycled before the send
// completes, capping pool residency at one loop iteration.
package multishot

import (
	"fmt"

	"github.com/behrlich/echobench/internal/bufring"
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

// Engine is the multishot completion engine.
type Engine struct {
	listenFD int
	ring     uring.Ring
	table    *reqtable.Table
	pool     *bufring.Pool

	logger   *logging.Logger
	observer metrics.Observer
	metrics  *metrics.Metrics
	reporter *metrics.Reporter
	shutdown *shutdown.Flag
}

// New creates a multishot engine around an already-bound, listening
// listenFD, with a ring of constants.SQDepth entries and a provided-buffer
// ring of constants.BufRingCount x constants.BufRingBufSize bytes.
func New(listenFD int, cfg Config) (*Engine, error) {
	ring, err := uring.NewRing(uring.Config{Entries: constants.SQDepth})
	if err != nil {
		return nil, fmt.Errorf("create ring: %w", err)
	}

	pool, err := bufring.New(constants.BufRingCount, constants.BufRingBufSize)
	if err != nil {
		ring.Close()
		return nil, fmt.Errorf("create buffer pool: %w", err)
	}

	if err := ring.SetupBufRing(constants.BufRingGroupID, pool.Base(), pool.Count(), pool.Size()); err != nil {
		ring.Close()
		return nil, fmt.Errorf("register buffer ring: %w", err)
	}

	observer := cfg.Observer
	if observer == nil {
		observer = metrics.NoOpObserver{}
	}

	return &Engine{
		listenFD: listenFD,
		ring:     ring,
		table:    reqtable.New(),
		pool:     pool,
		logger:   cfg.Logger,
		observer: observer,
		metrics:  cfg.Metrics,
		reporter: cfg.Reporter,
		shutdown: cfg.Shutdown,
	}, nil
}

// Close tears down the ring, which also unregisters the buffer ring.
func (e *Engine) Close() error {
	return e.ring.Close()
}

// Run submits the initial multishot accept and drives the completion loop
// until shutdown is requested.
func (e *Engine) Run() error {
	if err := e.armAccept(); err != nil {
		return fmt.Errorf("submit initial multishot accept: %w", err)
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

func (e *Engine) armAccept() error {
	handle, _ := e.table.Alloc(reqtable.TagAccept, e.listenFD)
	return e.ring.SubmitMultishotAccept(e.listenFD, handle)
}

// dispatch handles negative results uniformly before any tag-specific
// logic, per §4.6's error-handling ordering: pool exhaustion is logged,
// any WRITE-owned buffer is freed, and the record is freed unless it is the
// ACCEPT record, whose identity is bound to the still-armed multishot
// submission.
func (e *Engine) dispatch(cqe uring.CQE) {
	rec, ok := e.table.Get(cqe.UserData)
	if !ok {
		return
	}

	if cqe.Res < 0 {
		e.dispatchError(cqe, rec)
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

func (e *Engine) dispatchError(cqe uring.CQE, rec *reqtable.Record) {
	if uring.IsPoolExhausted(cqe.Res) {
		e.logWarn("buffer pool exhausted, completion discarded")
	} else {
		e.logWarn("completion failed tag=%s res=%d", rec.Tag, cqe.Res)
	}

	if rec.Tag == reqtable.TagWrite && rec.Buf != nil {
		rec.Buf = nil
	}

	if rec.Tag == reqtable.TagAccept {
		// Re-arm: the kernel drops multishot accept on certain errors just
		// as it does on normal termination. The terminated record's handle
		// must be freed before re-arming allocates a new one, or its slot's
		// generation never flips back to even and is lost to the table.
		if !cqe.More() {
			e.table.Free(cqe.UserData)
			e.rearmAccept()
		}
		return
	}

	e.table.Free(cqe.UserData)
}

func (e *Engine) onAccept(cqe uring.CQE, rec *reqtable.Record) {
	fd := int(cqe.Res)
	if err := listener.SetNoDelay(fd); err != nil {
		e.logWarn("setsockopt TCP_NODELAY fd=%d: %v", fd, err)
	}
	e.observer.ObserveAccept()

	recvHandle, _ := e.table.Alloc(reqtable.TagRead, fd)
	if err := e.ring.SubmitMultishotRecv(fd, constants.BufRingGroupID, recvHandle); err != nil {
		e.logWarn("submit multishot recv fd=%d: %v", fd, err)
	}

	if !cqe.More() {
		e.table.Free(cqe.UserData)
		e.rearmAccept()
	}
}

func (e *Engine) rearmAccept() {
	if err := e.armAccept(); err != nil {
		e.logWarn("re-arm multishot accept: %v", err)
	}
}

func (e *Engine) onRead(cqe uring.CQE, rec *reqtable.Record) {
	fd := rec.FD
	n := int(cqe.Res)

	bufIdx, hasBuf := cqe.BufferID()

	if !hasBuf {
		e.table.Free(cqe.UserData)
		e.closeConn(fd)
		return
	}

	if !e.pool.MarkBorrowed(int(bufIdx)) {
		// Index already borrowed: the ring's bookkeeping is corrupted (a
		// prior recycle was missed or the kernel reused a slot we still
		// own). Abort the connection rather than read a buffer we can't
		// trust the ownership of.
		e.logWarn("buffer idx=%d already borrowed, aborting connection fd=%d", bufIdx, fd)
		e.table.Free(cqe.UserData)
		e.closeConn(fd)
		return
	}

	// A buffer is consumed (IORING_CQE_F_BUFFER set) whenever the kernel
	// selected one, regardless of n — including a zero-byte/EOF completion.
	// It must be recycled before the connection is closed so slot bufIdx is
	// never left borrowed with no owner (spec §8, §4.6 step 3).
	if n <= 0 {
		e.pool.Recycle(int(bufIdx))
		if err := e.ring.RecycleBuffer(constants.BufRingGroupID, int(bufIdx), e.pool.At(int(bufIdx))); err != nil {
			e.logWarn("recycle buffer idx=%d: %v", bufIdx, err)
		}
		e.table.Free(cqe.UserData)
		e.closeConn(fd)
		return
	}

	src := e.pool.At(int(bufIdx))[:n]
	copied := make([]byte, n)
	copy(copied, src)
	e.observer.ObserveEcho(uint64(n))

	e.pool.Recycle(int(bufIdx))
	if err := e.ring.RecycleBuffer(constants.BufRingGroupID, int(bufIdx), e.pool.At(int(bufIdx))); err != nil {
		e.logWarn("recycle buffer idx=%d: %v", bufIdx, err)
	}

	writeHandle, writeRec := e.table.Alloc(reqtable.TagWrite, fd)
	writeRec.Buf = copied
	if err := e.ring.SubmitSend(fd, copied, writeHandle); err != nil {
		e.logWarn("submit send fd=%d: %v", fd, err)
	}

	if !cqe.More() {
		e.table.Free(cqe.UserData)
		e.closeConn(fd)
	}
}

func (e *Engine) onWrite(cqe uring.CQE, _ *reqtable.Record) {
	// Short writes and send errors are not retried (spec §4.6): the copied
	// buffer and the record are freed unconditionally.
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
