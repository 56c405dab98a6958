package gms_test

import (
	"testing"
	"time"

	"github.com/vsync-go/vsync/blockmcast"
	"github.com/vsync-go/vsync/config"
	"github.com/vsync-go/vsync/gms"
	"github.com/vsync-go/vsync/node"
	"github.com/vsync-go/vsync/sst"
	"github.com/vsync-go/vsync/view"
)

func newTestFactory() *node.LoopbackFactory {
	cfg := config.Config{BufferSize: 1 << 16, BlockSize: 1024, WindowSize: 4}
	return node.NewLoopbackFactory(cfg, blockmcast.NewLoopbackNetwork())
}

// TestViewInstallationOnSuspicion exercises spec §4.4's full chain end to
// end: a leader marks a peer suspected, the change is proposed, acked,
// and committed, and every surviving member installs the next,
// two-member view while the removed member self-terminates instead.
func TestViewInstallationOnSuspicion(t *testing.T) {
	members := map[uint64]string{1: "a", 2: "b", 3: "c"}
	factory := newTestFactory()

	viewChanged := make(chan *view.View, 8)
	terminated := make(chan string, 8)         // removed member (id 3)
	survivorTerminated := make(chan string, 8) // members 1 and 2

	newController := func(id uint64) *gms.Controller {
		return gms.New(gms.Config{
			MyID:         id,
			Members:      members,
			Factory:      factory,
			OnDeliver:    func(sender int, index int64, data []byte) {},
			OnViewChange: func(v *view.View) { viewChanged <- v },
			OnTerminate: func(reason string) {
				if id == 3 {
					terminated <- reason
				} else {
					survivorTerminated <- reason
				}
			},
		})
	}

	c1 := newController(1)
	c2 := newController(2)
	c3 := newController(3)
	_ = c3

	leaderView := c1.View()
	if !leaderView.IsLeader() {
		t.Fatalf("rank 0 (lowest id) must be leader of the founding view")
	}

	lt := leaderView.Table
	lt.WriteLocal(func(r *sst.Row) { r.Suspected[2] = true })
	lt.Put(sst.FieldSuspected)

	seen := 0
	for seen < 2 {
		select {
		case v := <-viewChanged:
			if v.NumMembers != 2 {
				t.Fatalf("installed view has %d members, want 2", v.NumMembers)
			}
			if v.VID != 1 {
				t.Fatalf("installed view vid = %d, want 1", v.VID)
			}
			seen++
		case reason := <-survivorTerminated:
			t.Fatalf("unexpected termination on a surviving node: %s", reason)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for view installation (%d/2 seen)", seen)
		}
	}

	select {
	case reason := <-terminated:
		if reason == "" {
			t.Fatalf("expected a non-empty termination reason")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the removed node to self-terminate")
	}

	if got := c2.View().NumMembers; got != 2 {
		t.Fatalf("c2's installed view has %d members, want 2", got)
	}
}
