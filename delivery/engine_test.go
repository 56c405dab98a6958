package delivery

import (
	"testing"
	"time"

	"github.com/vsync-go/vsync/blockmcast"
	"github.com/vsync-go/vsync/sst"
)

func newTestEngine(t *testing.T, rank, numMembers, window, bufSize int, net *blockmcast.LoopbackNetwork, matrix *sst.Matrix, onDeliver Callback, isFailed func(int) bool) (*Engine, sst.Table) {
	t.Helper()
	tbl := matrix.NewNodeTable(rank)
	e := New(Config{
		MyRank:     rank,
		NumMembers: numMembers,
		BufferSize: bufSize,
		WindowSize: window,
		Transport:  net.Endpoint(rank),
		Table:      tbl,
		IsFailed:   isFailed,
		OnDeliver:  onDeliver,
	})
	return e, tbl
}

// TestWindowDisciplineBlocksSend confirms spec §4.2's window-bound
// property: rank 0 cannot have more than windowSize undelivered sends
// outstanding when another member never delivers.
func TestWindowDisciplineBlocksSend(t *testing.T) {
	const numMembers = 2
	const window = 2
	const bufSize = 256

	matrix := sst.NewMatrix(numMembers)
	net := blockmcast.NewLoopbackNetwork()

	e0, t0 := newTestEngine(t, 0, numMembers, window, bufSize, net, matrix, func(int, int64, []byte) {}, func(int) bool { return false })
	e1, t1 := newTestEngine(t, 1, numMembers, window, bufSize, net, matrix, func(int, int64, []byte) {}, func(int) bool { return false })
	defer e0.Stop()
	defer e1.Stop()
	defer t0.Stop()

	// rank 1 never evaluates its delivery predicate again, so its
	// DeliveredNum is frozen at 0 forever.
	t1.Stop()

	for i := 0; i < window+3; i++ {
		id, buf, ok := e0.ReserveSend(4)
		if !ok {
			t.Fatalf("ReserveSend %d failed", i)
		}
		copy(buf, "data")
		if _, ok := e0.CommitSend(); !ok {
			t.Fatalf("CommitSend %d failed", i)
		}
		_ = id
	}

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	e0.mu.Lock()
	remaining := len(e0.sendQueue)
	e0.mu.Unlock()

	if remaining == 0 {
		t.Fatalf("expected the send queue to still hold back-pressured messages, got 0 remaining")
	}
}

// TestPredecessorReceivedBackpressure runs a single sender's pipelined
// sends through the spec's should_send predecessor check (a message goes
// out only after its predecessor has come back over the loopback) and
// confirms all three are delivered, in index order.
func TestPredecessorReceivedBackpressure(t *testing.T) {
	const numMembers = 1
	const window = 10
	const bufSize = 256

	matrix := sst.NewMatrix(numMembers)
	net := blockmcast.NewLoopbackNetwork()

	delivered := make(chan int64, 8)
	e0, t0 := newTestEngine(t, 0, numMembers, window, bufSize, net, matrix, func(sender int, index int64, data []byte) {
		delivered <- index
	}, func(int) bool { return false })
	defer e0.Stop()
	defer t0.Stop()

	for i := 0; i < 3; i++ {
		_, buf, ok := e0.ReserveSend(2)
		if !ok {
			t.Fatalf("ReserveSend %d failed", i)
		}
		copy(buf, "ok")
		if _, ok := e0.CommitSend(); !ok {
			t.Fatalf("CommitSend %d failed", i)
		}
	}

	for want := int64(0); want < 3; want++ {
		select {
		case got := <-delivered:
			if got != want {
				t.Fatalf("delivered out of order: got index %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for index %d", want)
		}
	}
}
