// Package node provides the background orchestration spec §2 names for
// the reference deployment: a listener accepting joiner connections on
// the leader's GMS port, a stale-view reclaimer goroutine, and graceful
// shutdown — plus LoopbackFactory, the in-process gms.ViewFactory used by
// the sample program and every multi-node test in this module, since
// wiring real per-view RDMA/TCP SST replication and block-multicast
// dissemination is out of scope (spec §1).
//
// Grounded on raft-example's raftNode: a struct holding channel-based
// lifecycle state (stopc/donec) with background goroutines started by
// `go rnd.start()`/`go rnd.startPeerHandler()` (03_raft_node.go).
package node

import (
	"sync"

	"github.com/vsync-go/vsync/blockmcast"
	"github.com/vsync-go/vsync/config"
	"github.com/vsync-go/vsync/delivery"
	"github.com/vsync-go/vsync/gms"
	"github.com/vsync-go/vsync/sst"
	"github.com/vsync-go/vsync/view"
)

// LoopbackFactory builds each successive view's Table and Engine over one
// shared blockmcast.LoopbackNetwork, keyed by vid so every simulated
// member resolves to the same sst.Matrix for a given view. A production
// deployment would replace this with a factory that dials real peers and
// attaches to a real SST replication transport; this is the reference
// implementation spec §1 scopes everything else against.
type LoopbackFactory struct {
	cfg config.Config
	net *blockmcast.LoopbackNetwork

	mu       sync.Mutex
	matrices map[uint64]*sst.Matrix
}

var _ gms.ViewFactory = (*LoopbackFactory)(nil)

// NewLoopbackFactory returns a factory sharing net across every node that
// holds a reference to it — tests construct one LoopbackFactory and pass
// the same pointer to every simulated node's gms.Config.
func NewLoopbackFactory(cfg config.Config, net *blockmcast.LoopbackNetwork) *LoopbackFactory {
	return &LoopbackFactory{
		cfg:      cfg,
		net:      net,
		matrices: make(map[uint64]*sst.Matrix),
	}
}

func (f *LoopbackFactory) matrixFor(vid uint64, numMembers int) *sst.Matrix {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matrices[vid]
	if !ok {
		m = sst.NewMatrix(numMembers)
		f.matrices[vid] = m
	}
	return m
}

// NewView implements gms.ViewFactory.
func (f *LoopbackFactory) NewView(vid uint64, members []uint64, failed []bool, myID uint64, onDeliver delivery.Callback) *view.View {
	myRank := view.NotAMember
	for r, id := range members {
		if id == myID {
			myRank = r
		}
	}
	if myRank == view.NotAMember {
		logger.Panicf("node: myID %d not present in view %d members %v", myID, vid, members)
	}

	matrix := f.matrixFor(vid, len(members))
	table := matrix.NewNodeTable(myRank)

	v := view.New(vid, members, failed, myRank)

	endpoint := f.net.Endpoint(myRank)
	engine := delivery.New(delivery.Config{
		MyRank:     myRank,
		NumMembers: len(members),
		BufferSize: f.cfg.BufferSize,
		WindowSize: f.cfg.WindowSize,
		Transport:  endpoint,
		Table:      table,
		IsFailed:   v.IsFailed,
		OnDeliver:  onDeliver,
	})
	v.SetEngine(engine)
	v.Table = table
	return v
}
