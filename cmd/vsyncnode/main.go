// Command vsyncnode is the sample client program, grounded on
// raft-example/main.go: it starts a fixed three-member group in-process
// over the loopback transport/SST, each member sending a short burst of
// messages, and logs every delivery upcall. A real deployment would
// instead dial distinct processes' GMS ports; this program exists to
// exercise the whole module end to end the way raft-example exercises
// raft/rafthttp/raftsnap together.
package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/vsync-go/vsync/blockmcast"
	"github.com/vsync-go/vsync/config"
	"github.com/vsync-go/vsync/node"
	"github.com/vsync-go/vsync/vlog"
)

func init() {
	vlog.SetGlobalLevel(vlog.INFO)
}

func main() {
	members := map[uint64]string{
		1: "localhost:17001",
		2: "localhost:17002",
		3: "localhost:17003",
	}

	net := blockmcast.NewLoopbackNetwork()
	// one factory shared by every member, so all of them resolve to the
	// same per-view SST matrix
	factory := node.NewLoopbackFactory(config.Config{BufferSize: 1 << 20, BlockSize: 4096, WindowSize: 8}, net)

	var wg sync.WaitGroup
	wg.Add(len(members))
	for id := range members {
		id := id
		go func() {
			defer wg.Done()
			runMember(id, members, factory)
		}()
	}
	wg.Wait()
}

func runMember(id uint64, members map[uint64]string, factory *node.LoopbackFactory) {
	cfg := config.Config{
		MyID:       id,
		Members:    members,
		BufferSize: 1 << 20,
		BlockSize:  4096,
		WindowSize: 8,
		GMSPort:    17000 + int(id),
		Type:       config.DissemLoopback,
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	n := node.New(cfg, node.Options{
		Factory: factory,
		OnDeliver: func(sender int, index int64, data []byte) {
			fmt.Printf("node %d delivered (sender=%d index=%d): %q\n", id, sender, index, data)
		},
	})

	engine := n.Controller.View().Engine
	for i := 0; i < 3; i++ {
		payload := []byte(fmt.Sprintf("hello from %d #%d", id, i))
		_, buf, ok := engine.ReserveSend(len(payload))
		if !ok {
			continue
		}
		copy(buf, payload)
		engine.CommitSend()
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
}
