package completion

import (
	"testing"
	"time"

	"github.com/behrlich/echobench/internal/metrics"
	"github.com/behrlich/echobench/internal/reqtable"
	"github.com/behrlich/echobench/internal/shutdown"
	"github.com/behrlich/echobench/internal/uring"
)

// fakeRing is a minimal in-memory stand-in for a real io_uring ring, letting
// the dispatch logic be exercised without a kernel. It does not model actual
// async completion timing; tests drive CQEs directly.
type fakeRing struct {
	submittedAccepts []uint64
	submittedRecvs   []uint64
	submittedSends   []uint64
	closed           bool
}

func (f *fakeRing) Close() error { f.closed = true; return nil }

func (f *fakeRing) SubmitAccept(listenFD int, userData uint64) error {
	f.submittedAccepts = append(f.submittedAccepts, userData)
	return nil
}

func (f *fakeRing) SubmitMultishotAccept(listenFD int, userData uint64) error {
	return f.SubmitAccept(listenFD, userData)
}

func (f *fakeRing) SubmitRecv(fd int, buf []byte, userData uint64) error {
	f.submittedRecvs = append(f.submittedRecvs, userData)
	return nil
}

func (f *fakeRing) SubmitMultishotRecv(fd int, bufGroup uint16, userData uint64) error {
	return f.SubmitRecv(fd, nil, userData)
}

func (f *fakeRing) SubmitSend(fd int, buf []byte, userData uint64) error {
	f.submittedSends = append(f.submittedSends, userData)
	return nil
}

func (f *fakeRing) Submit() (int, error) { return 0, nil }

func (f *fakeRing) WaitCQE(timeout time.Duration) (uring.CQE, bool, error) {
	return uring.CQE{}, false, nil
}

func (f *fakeRing) PeekCQE() (uring.CQE, bool) { return uring.CQE{}, false }

func (f *fakeRing) SetupBufRing(bufGroup uint16, base []byte, count int, bufSize int) error {
	return nil
}

func (f *fakeRing) RecycleBuffer(bufGroup uint16, bufIdx int, buf []byte) error { return nil }

func newTestEngine() (*Engine, *fakeRing, *metrics.Metrics) {
	m := metrics.New()
	ring := &fakeRing{}
	e := &Engine{
		listenFD: 3,
		ring:     ring,
		table:    reqtable.New(),
		observer: metrics.NewObserver(m),
		metrics:  m,
		shutdown: shutdown.New(),
	}
	return e, ring, m
}

func TestAcceptSuccessArmsRecvAndReAccepts(t *testing.T) {
	e, ring, m := newTestEngine()

	handle, _ := e.table.Alloc(reqtable.TagAccept, e.listenFD)
	e.onAccept(uring.CQE{UserData: handle, Res: 42}, nil)

	if len(ring.submittedRecvs) != 1 {
		t.Fatalf("expected 1 recv submitted, got %d", len(ring.submittedRecvs))
	}
	if len(ring.submittedAccepts) != 1 {
		t.Fatalf("expected 1 re-armed accept, got %d", len(ring.submittedAccepts))
	}
	if m.Snapshot().ConnsAccepted != 1 {
		t.Errorf("expected accepted=1, got %d", m.Snapshot().ConnsAccepted)
	}
}

func TestAcceptFailureStopsAccepting(t *testing.T) {
	e, ring, _ := newTestEngine()

	handle, _ := e.table.Alloc(reqtable.TagAccept, e.listenFD)
	e.onAccept(uring.CQE{UserData: handle, Res: -1}, nil)

	if len(ring.submittedAccepts) != 0 {
		t.Fatalf("expected no re-armed accept after failure, got %d", len(ring.submittedAccepts))
	}
	if !e.acceptFailed {
		t.Error("expected acceptFailed to be set")
	}
}

func TestReadSuccessSubmitsSendAndFreesReadRecord(t *testing.T) {
	e, ring, _ := newTestEngine()

	buf := make([]byte, 4096)
	copy(buf, "hello")
	handle, rec := e.table.Alloc(reqtable.TagRead, 7)
	rec.Buf = buf

	before := e.table.Len()
	e.onRead(uring.CQE{UserData: handle, Res: 5}, rec)

	if len(ring.submittedSends) != 1 {
		t.Fatalf("expected 1 send submitted, got %d", len(ring.submittedSends))
	}
	if e.table.Len() != before+1 {
		t.Errorf("expected table to grow by 1 (new write record), got delta %d", e.table.Len()-before)
	}
	if _, ok := e.table.Get(handle); ok {
		t.Error("expected read record to be freed")
	}
}

func TestReadZeroClosesConnection(t *testing.T) {
	e, _, m := newTestEngine()

	handle, rec := e.table.Alloc(reqtable.TagRead, -1) // fd=-1 avoids a real close syscall touching fd 0
	rec.Buf = make([]byte, 16)

	e.onRead(uring.CQE{UserData: handle, Res: 0}, rec)

	if m.Snapshot().ConnsClosed != 1 {
		t.Errorf("expected closed=1, got %d", m.Snapshot().ConnsClosed)
	}
	if _, ok := e.table.Get(handle); ok {
		t.Error("expected read record to be freed")
	}
}

func TestWriteSuccessResubmitsRecv(t *testing.T) {
	e, ring, _ := newTestEngine()

	buf := make([]byte, 4096)
	handle, rec := e.table.Alloc(reqtable.TagWrite, 7)
	rec.Buf = buf

	e.onWrite(uring.CQE{UserData: handle, Res: 5}, rec)

	if len(ring.submittedRecvs) != 1 {
		t.Fatalf("expected 1 recv resubmitted, got %d", len(ring.submittedRecvs))
	}
	if _, ok := e.table.Get(handle); ok {
		t.Error("expected write record to be freed")
	}
}

func TestWritePartialIsNotRetried(t *testing.T) {
	e, ring, _ := newTestEngine()

	buf := make([]byte, 4096)
	handle, rec := e.table.Alloc(reqtable.TagWrite, 7)
	rec.Buf = buf

	// n < len(buf): a partial send. Per spec this is not retried, the
	// connection just goes back to reading.
	e.onWrite(uring.CQE{UserData: handle, Res: 3}, rec)

	if len(ring.submittedRecvs) != 1 {
		t.Fatalf("expected partial send to fall through to a fresh recv, got %d recvs", len(ring.submittedRecvs))
	}
}

func TestDispatchToleratesUnknownHandle(t *testing.T) {
	e, _, _ := newTestEngine()
	e.dispatch(uring.CQE{UserData: 0xdeadbeef, Res: 1})
}
