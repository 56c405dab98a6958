package sst

import (
	"sync"
	"testing"
	"time"
)

func TestWriteLocalRejectedWhenFrozen(t *testing.T) {
	m := NewMatrix(3)
	nt := m.NewNodeTable(0)
	defer nt.Stop()

	nt.Freeze(0)
	nt.WriteLocal(func(r *Row) { r.DeliveredNum = 42 })

	row := nt.Row(0)
	if row.DeliveredNum != 0 {
		t.Fatalf("write to frozen row should be rejected, got DeliveredNum=%d", row.DeliveredNum)
	}
}

func TestRecurrentPredicateRefires(t *testing.T) {
	m := NewMatrix(2)
	a := m.NewNodeTable(0)
	defer a.Stop()

	var mu sync.Mutex
	fired := 0

	a.Predicates().Insert(
		func(t Table) bool { return true },
		func(t Table) {
			mu.Lock()
			fired++
			mu.Unlock()
		},
		Recurrent,
	)

	// a wakeup that arrives while another is still pending is coalesced
	// (see Matrix.notifyAll), so publish again only after the first firing
	a.Put()
	for first := time.Now().Add(time.Second); time.Now().Before(first); time.Sleep(time.Millisecond) {
		mu.Lock()
		n := fired
		mu.Unlock()
		if n >= 1 {
			break
		}
	}
	a.Put()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := fired
		mu.Unlock()
		if n >= 2 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("recurrent predicate did not refire, fired=%d", fired)
}

func TestOneShotPredicateFiresOnce(t *testing.T) {
	m := NewMatrix(2)
	a := m.NewNodeTable(0)
	defer a.Stop()

	var mu sync.Mutex
	fired := 0

	a.Predicates().Insert(
		func(t Table) bool { return true },
		func(t Table) {
			mu.Lock()
			fired++
			mu.Unlock()
		},
		OneShot,
	)

	for i := 0; i < 5; i++ {
		a.Put()
		time.Sleep(2 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Fatalf("one-shot predicate fired %d times, want 1", fired)
	}
}

func TestSyncWithMembersBarrier(t *testing.T) {
	m := NewMatrix(3)
	handles := []*NodeTable{m.NewNodeTable(0), m.NewNodeTable(1), m.NewNodeTable(2)}
	defer func() {
		for _, h := range handles {
			h.Stop()
		}
	}()

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *NodeTable) {
			defer wg.Done()
			h.SyncWithMembers()
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("SyncWithMembers barrier never released all callers")
	}
}

func TestSyncWithMembersExcludesFrozen(t *testing.T) {
	m := NewMatrix(3)
	a := m.NewNodeTable(0)
	b := m.NewNodeTable(1)
	c := m.NewNodeTable(2)
	defer a.Stop()
	defer b.Stop()
	defer c.Stop()

	a.Freeze(c.rank)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); a.SyncWithMembers() }()
	go func() { defer wg.Done(); b.SyncWithMembers() }()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("barrier should not wait on a frozen (failed) member")
	}
}
