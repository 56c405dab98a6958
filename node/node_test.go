package node

import (
	"fmt"
	"testing"
	"time"

	"github.com/vsync-go/vsync/blockmcast"
	"github.com/vsync-go/vsync/config"
	"github.com/vsync-go/vsync/pkg/netutil"
	"github.com/vsync-go/vsync/view"
)

// TestJoinInstallsJoinerIntoLeaderView exercises spec §4.5's join
// handshake end to end over real TCP: a founding member starts
// listening, a second node dials it, and both settle on a shared
// two-member view once the leader's GMS commits the join.
func TestJoinInstallsJoinerIntoLeaderView(t *testing.T) {
	ports, err := netutil.GetFreeTCPPorts(2)
	if err != nil {
		t.Fatalf("GetFreeTCPPorts: %v", err)
	}
	addr1 := fmt.Sprintf("127.0.0.1:%d", ports[0])
	addr2 := fmt.Sprintf("127.0.0.1:%d", ports[1])

	members := map[uint64]string{1: addr1, 2: addr2}
	net := blockmcast.NewLoopbackNetwork()
	factory := NewLoopbackFactory(config.Config{BufferSize: 1 << 16, BlockSize: 1024, WindowSize: 4}, net)

	changed1 := make(chan *view.View, 4)
	n1 := New(config.Config{MyID: 1, Members: members}, Options{
		Factory:      factory,
		OnDeliver:    func(sender int, index int64, data []byte) {},
		OnViewChange: func(v *view.View) { changed1 <- v },
		OnTerminate:  func(reason string) { t.Logf("n1 terminated: %s", reason) },
	})
	if err := n1.Start(); err != nil {
		t.Fatalf("n1.Start: %v", err)
	}
	defer n1.Stop()

	n2, err := Join(config.Config{MyID: 2, Members: members}, addr1, Options{
		Factory:      factory,
		OnDeliver:    func(sender int, index int64, data []byte) {},
		OnTerminate:  func(reason string) { t.Logf("n2 terminated: %s", reason) },
	})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer n2.Stop()

	if got := n2.Controller.View().NumMembers; got != 2 {
		t.Fatalf("joiner's first view has %d members, want 2", got)
	}

	select {
	case v := <-changed1:
		if v.NumMembers != 2 {
			t.Fatalf("leader's installed view has %d members, want 2", v.NumMembers)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the leader to install the joiner's view")
	}
}
