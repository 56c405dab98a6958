package ring

import "testing"

func TestReserveSequential(t *testing.T) {
	b := New(3000, 3)

	off, ok := b.Reserve(1000)
	if !ok || off != 0 {
		t.Fatalf("got (%d,%v), want (0,true)", off, ok)
	}
	off, ok = b.Reserve(1000)
	if !ok || off != 1000 {
		t.Fatalf("got (%d,%v), want (1000,true)", off, ok)
	}
	off, ok = b.Reserve(1000)
	if !ok || off != 2000 {
		t.Fatalf("got (%d,%v), want (2000,true)", off, ok)
	}

	// ring full: fourth reservation must block until a release
	if _, ok := b.Reserve(1000); ok {
		t.Fatalf("expected ring to be full")
	}

	b.Release(1000) // releases the first 1000-byte message
	off, ok = b.Reserve(1000)
	if !ok || off != 0 {
		t.Fatalf("after release, got (%d,%v), want (0,true)", off, ok)
	}
}

func TestReserveOversize(t *testing.T) {
	b := New(3000, 3)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for oversize reservation")
		}
	}()
	b.Reserve(1001)
}

func TestReserveWrap(t *testing.T) {
	b := New(10, 1)

	if off, ok := b.Reserve(6); !ok || off != 0 {
		t.Fatalf("got (%d,%v), want (0,true)", off, ok)
	}
	b.Release(6)

	// start=6, end=6 -> idle reset -> allocate at 0
	if off, ok := b.Reserve(4); !ok || off != 0 {
		t.Fatalf("got (%d,%v), want (0,true)", off, ok)
	}
	b.Release(4)
}

func TestOutstanding(t *testing.T) {
	b := New(3000, 3)
	b.Reserve(1000)
	b.Reserve(1000)
	if got := b.Outstanding(); got != 2000 {
		t.Fatalf("outstanding = %d, want 2000", got)
	}
	b.Release(1000)
	if got := b.Outstanding(); got != 1000 {
		t.Fatalf("outstanding = %d, want 1000", got)
	}
}
