// Package uring wraps the submission/completion ring used by the two
// completion-based engines: a single-shot accept/recv/send ring, and the
// multishot variant with a registered buffer ring for kernel-selected
// receive buffers.
package uring

import (
	"errors"
	"syscall"
	"time"
)

// ErrRingFull is returned when a submission cannot be queued because the
// submission queue has no free entries. Under this benchmark's one-op-in-
// flight-per-tag discipline this should be rare; the engines log a failed
// submission and do not retry it.
var ErrRingFull = errors.New("submission queue full")

// CQE is a single completion queue event.
type CQE struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

const (
	// cqeFBuffer indicates Flags carries a buffer ID in its upper 16 bits.
	cqeFBuffer uint32 = 1 << 0
	// cqeFMore indicates additional completions are still expected for the
	// multishot submission that produced this CQE.
	cqeFMore uint32 = 1 << 1
)

// More reports whether the multishot submission that produced this CQE is
// still armed and will produce further completions.
func (c CQE) More() bool {
	return c.Flags&cqeFMore != 0
}

// BufferID extracts the kernel-selected buffer-pool index from Flags, valid
// only when ok is true.
func (c CQE) BufferID() (id uint16, ok bool) {
	if c.Flags&cqeFBuffer == 0 {
		return 0, false
	}
	return uint16(c.Flags >> 16), true
}

// IsPoolExhausted reports whether a negative completion result code
// corresponds to the kernel's buffer-pool-exhaustion errno, surfaced by the
// multishot engine's recv completions when the registered buffer ring has
// no buffers left to select from (spec §4.6, §7.4).
func IsPoolExhausted(res int32) bool {
	return res == -int32(syscall.ENOBUFS)
}

// Config configures a new Ring.
type Config struct {
	Entries uint32 // submission/completion queue depth
}

// Ring is the submission/completion interface the completion engines submit
// accept/recv/send operations through and drain CQEs from.
type Ring interface {
	// Close tears down the ring and releases its kernel resources.
	Close() error

	// SubmitAccept queues a single-shot accept on listenFD.
	SubmitAccept(listenFD int, userData uint64) error

	// SubmitMultishotAccept queues a multishot accept on listenFD. The
	// submission stays armed across multiple completions until the kernel
	// reports CQE.More() == false.
	SubmitMultishotAccept(listenFD int, userData uint64) error

	// SubmitRecv queues a single-shot recv into buf on fd.
	SubmitRecv(fd int, buf []byte, userData uint64) error

	// SubmitMultishotRecv queues a multishot recv on fd that selects buffers
	// from the registered group bufGroup rather than a caller-provided
	// buffer.
	SubmitMultishotRecv(fd int, bufGroup uint16, userData uint64) error

	// SubmitSend queues a single-shot send of buf on fd.
	SubmitSend(fd int, buf []byte, userData uint64) error

	// Submit flushes queued submissions to the kernel with one syscall and
	// returns the number submitted.
	Submit() (int, error)

	// WaitCQE blocks for at least one completion, up to timeout, and
	// returns ok=false on timeout without error.
	WaitCQE(timeout time.Duration) (cqe CQE, ok bool, err error)

	// PeekCQE returns a completion without blocking.
	PeekCQE() (cqe CQE, ok bool)

	// SetupBufRing registers base as a provided-buffer ring of count
	// buffers of bufSize bytes under bufGroup, populating all slots and
	// publishing them to the kernel.
	SetupBufRing(bufGroup uint16, base []byte, count int, bufSize int) error

	// RecycleBuffer returns buffer index bufIdx in bufGroup to the kernel's
	// buffer ring, making it eligible for selection again. buf must be the
	// same slice view the buffer pool originally registered for bufIdx.
	RecycleBuffer(bufGroup uint16, bufIdx int, buf []byte) error
}

// NewRing creates a platform Ring implementation. On non-Linux platforms, or
// when built without the giouring tag, it returns an error — the completion
// and multishot engines are Linux-only.
func NewRing(config Config) (Ring, error) {
	return newRing(config)
}
