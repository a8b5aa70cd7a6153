package reqtable

import "testing"

func TestAllocAndGet(t *testing.T) {
	tbl := New()
	handle, rec := tbl.Alloc(TagAccept, 5)
	rec.Buf = []byte("hello")

	got, ok := tbl.Get(handle)
	if !ok {
		t.Fatal("expected Get to find freshly allocated handle")
	}
	if got.Tag != TagAccept || got.FD != 5 || string(got.Buf) != "hello" {
		t.Errorf("unexpected record contents: %+v", got)
	}
}

func TestFreeThenGetMisses(t *testing.T) {
	tbl := New()
	handle, _ := tbl.Alloc(TagRead, 1)
	tbl.Free(handle)

	if _, ok := tbl.Get(handle); ok {
		t.Error("expected Get to miss after Free")
	}
}

func TestDoubleFreeIsNoOp(t *testing.T) {
	tbl := New()
	handle, _ := tbl.Alloc(TagWrite, 1)
	tbl.Free(handle)
	tbl.Free(handle) // must not corrupt the free list

	handle2, rec2 := tbl.Alloc(TagAccept, 2)
	if rec2.FD != 2 {
		t.Fatalf("expected fresh allocation after double free, got %+v", rec2)
	}
	if _, ok := tbl.Get(handle2); !ok {
		t.Error("expected new allocation to be retrievable")
	}
}

func TestStaleHandleAfterReuse(t *testing.T) {
	tbl := New()
	handle1, _ := tbl.Alloc(TagRead, 1)
	tbl.Free(handle1)

	handle2, rec2 := tbl.Alloc(TagWrite, 2)
	rec2.Buf = []byte("new")

	if handle1 == handle2 {
		t.Fatal("expected reused slot to carry a distinct generation in its handle")
	}
	if _, ok := tbl.Get(handle1); ok {
		t.Error("expected stale pre-reuse handle to miss, simulating a cancelled completion")
	}
	got, ok := tbl.Get(handle2)
	if !ok || string(got.Buf) != "new" {
		t.Errorf("expected current handle to resolve to the fresh record, got %+v ok=%v", got, ok)
	}
}

func TestSlabReuseDoesNotGrowUnbounded(t *testing.T) {
	tbl := New()
	for i := 0; i < 100; i++ {
		h, _ := tbl.Alloc(TagAccept, i)
		tbl.Free(h)
	}
	if tbl.Len() != 1 {
		t.Errorf("expected slab to reuse a single slot across repeated alloc/free, got %d slots", tbl.Len())
	}
}

func TestGetUnknownHandle(t *testing.T) {
	tbl := New()
	if _, ok := tbl.Get(0xDEADBEEF); ok {
		t.Error("expected Get on an unallocated handle to miss")
	}
}
