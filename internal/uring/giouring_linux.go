//go:build linux && giouring
// +build linux,giouring

// Real io_uring backing for the completion and multishot engines, built
// with -tags giouring against github.com/pawelgaczynski/giouring.
package uring

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

// uintptrOf returns the address of buf's backing array for handing to a
// PrepareRecv/PrepareSend SQE. buf must outlive the in-flight operation;
// callers hold a reference via the request table until completion.
func uintptrOf(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

type giouRing struct {
	ring     *giouring.Ring
	bufRings map[uint16]*giouring.BufAndRing
}

func newRing(config Config) (Ring, error) {
	entries := config.Entries
	if entries == 0 {
		entries = 256
	}

	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, fmt.Errorf("create io_uring: %w", err)
	}

	return &giouRing{ring: ring, bufRings: make(map[uint16]*giouring.BufAndRing)}, nil
}

func (r *giouRing) Close() error {
	for _, br := range r.bufRings {
		r.ring.FreeBufRing(br)
	}
	r.ring.QueueExit()
	return nil
}

func (r *giouRing) getSQE() (*giouring.SubmissionQueueEntry, error) {
	sqe := r.ring.GetSQE()
	if sqe == nil {
		return nil, ErrRingFull
	}
	return sqe, nil
}

func (r *giouRing) SubmitAccept(listenFD int, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	sqe.PrepareAccept(listenFD, 0, 0, 0)
	sqe.UserData = userData
	return nil
}

func (r *giouRing) SubmitMultishotAccept(listenFD int, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	sqe.PrepareMultishotAccept(listenFD, 0, 0, 0)
	sqe.UserData = userData
	return nil
}

func (r *giouRing) SubmitRecv(fd int, buf []byte, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	sqe.PrepareRecv(fd, uintptrOf(buf), uint32(len(buf)), 0)
	sqe.UserData = userData
	return nil
}

func (r *giouRing) SubmitMultishotRecv(fd int, bufGroup uint16, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	sqe.PrepareRecvMultishot(fd, 0, 0, 0)
	sqe.Flags |= giouring.SqeBufferSelect
	sqe.BufIG = bufGroup
	sqe.UserData = userData
	return nil
}

func (r *giouRing) SubmitSend(fd int, buf []byte, userData uint64) error {
	sqe, err := r.getSQE()
	if err != nil {
		return err
	}
	sqe.PrepareSend(fd, uintptrOf(buf), uint32(len(buf)), 0)
	sqe.UserData = userData
	return nil
}

func (r *giouRing) Submit() (int, error) {
	n, err := r.ring.Submit()
	return int(n), err
}

func (r *giouRing) WaitCQE(timeout time.Duration) (CQE, bool, error) {
	ts := giouring.Timespec{Sec: int64(timeout / time.Second), Nsec: int64(timeout % time.Second)}
	cqe, err := r.ring.WaitCQETimeout(&ts)
	if err != nil {
		if err == syscall.ETIME {
			return CQE{}, false, nil
		}
		return CQE{}, false, err
	}
	out := CQE{UserData: cqe.UserData, Res: cqe.Res, Flags: cqe.Flags}
	r.ring.CQESeen(cqe)
	return out, true, nil
}

func (r *giouRing) PeekCQE() (CQE, bool) {
	cqe, err := r.ring.PeekCQE()
	if err != nil || cqe == nil {
		return CQE{}, false
	}
	out := CQE{UserData: cqe.UserData, Res: cqe.Res, Flags: cqe.Flags}
	r.ring.CQESeen(cqe)
	return out, true
}

func (r *giouRing) SetupBufRing(bufGroup uint16, base []byte, count int, bufSize int) error {
	br, err := r.ring.SetupBufRing(uint32(count), bufGroup, 0)
	if err != nil {
		return fmt.Errorf("setup buf ring group %d: %w", bufGroup, err)
	}
	for i := 0; i < count; i++ {
		off := i * bufSize
		br.BufRingAdd(base[off:off+bufSize], uint16(i), uint16(count-1), uint16(i))
	}
	br.BufRingAdvance(uint16(count))
	r.bufRings[bufGroup] = br
	return nil
}

func (r *giouRing) RecycleBuffer(bufGroup uint16, bufIdx int, buf []byte) error {
	br, ok := r.bufRings[bufGroup]
	if !ok {
		return fmt.Errorf("unknown buffer group %d", bufGroup)
	}
	br.BufRingAdd(buf, uint16(bufIdx), uint16(0), uint16(bufIdx))
	br.BufRingAdvance(1)
	return nil
}
