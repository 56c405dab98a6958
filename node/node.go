package node

import (
	"net"

	"github.com/vsync-go/vsync/config"
	"github.com/vsync-go/vsync/gms"
	"github.com/vsync-go/vsync/joiner"
	"github.com/vsync-go/vsync/view"
)

// Node wires a gms.Controller to a TCP listener for incoming joiners and
// an asynchronous stale-view reclaimer, spec §2's "background
// orchestration" component and §4.4 step 12's "push the old view onto
// the stale-view queue for the reclaimer thread."
//
// Grounded on raft-example's raftNode lifecycle shape
// (03_raft_node.go: stopc/donec channels, a background goroutine per
// concern started from start()).
type Node struct {
	cfg config.Config

	Controller *gms.Controller

	listener net.Listener

	retireq chan *view.View
	stopc   chan struct{}
	donec   chan struct{}
}

// Options bundles the callbacks New forwards into gms.Config, so callers
// don't need to import gms directly just to start a Node.
type Options struct {
	Factory      gms.ViewFactory
	OnDeliver    func(sender int, index int64, data []byte)
	OnViewChange func(v *view.View)
	OnTerminate  func(reason string)
}

// New starts a founding member: its first view is vid 0 containing every
// member in cfg.Members, per spec §3. The returned Node is not yet
// listening for joiners; call Start for that.
func New(cfg config.Config, opts Options) *Node {
	n := &Node{
		cfg:     cfg,
		retireq: make(chan *view.View, 8),
		stopc:   make(chan struct{}),
		donec:   make(chan struct{}),
	}
	n.Controller = gms.New(gms.Config{
		MyID:         cfg.MyID,
		Members:      cfg.Members,
		Factory:      opts.Factory,
		OnDeliver:    opts.OnDeliver,
		OnViewChange: opts.OnViewChange,
		OnTerminate:  opts.OnTerminate,
		OnRetire:     n.enqueueRetire,
	})
	go n.reclaimLoop()
	return n
}

// Join dials addr, performs the joiner handshake, and starts a Node whose
// first view is the one the leader committed for it, spec §4.5.
func Join(cfg config.Config, addr string, opts Options) (*Node, error) {
	payload, err := joiner.Dial(addr, cfg.Members[cfg.MyID])
	if err != nil {
		return nil, err
	}

	members := make([]uint64, len(payload.MemberIDs))
	for i, id := range payload.MemberIDs {
		members[i] = uint64(id)
	}

	n := &Node{
		cfg:     cfg,
		retireq: make(chan *view.View, 8),
		stopc:   make(chan struct{}),
		donec:   make(chan struct{}),
	}
	n.Controller = gms.NewJoined(gms.Config{
		MyID:         cfg.MyID,
		Members:      cfg.Members,
		Factory:      opts.Factory,
		OnDeliver:    opts.OnDeliver,
		OnViewChange: opts.OnViewChange,
		OnTerminate:  opts.OnTerminate,
		OnRetire:     n.enqueueRetire,
	}, uint64(payload.VID), members, payload.Failed)
	go n.reclaimLoop()
	return n, nil
}

// Start binds the GMS join-handshake listener and begins accepting
// connections. Only the leader's accept actually does anything with a
// connection (gms.Controller.HandleJoinRequest checks IsLeader); every
// node still listens, since leadership can move to it later.
func (n *Node) Start() error {
	l, err := net.Listen("tcp", n.cfg.Members[n.cfg.MyID])
	if err != nil {
		return err
	}
	n.listener = l
	go n.acceptLoop()
	return nil
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopc:
				return
			default:
				logger.Errorf("node: accept: %v", err)
				return
			}
		}
		addr, err := joiner.ReceiveJoinRequest(conn)
		if err != nil {
			logger.Errorf("node: %v", err)
			conn.Close()
			continue
		}
		if !n.Controller.HandleJoinRequest(conn, addr) {
			conn.Close()
		}
	}
}

func (n *Node) enqueueRetire(old *view.View) {
	select {
	case n.retireq <- old:
	default:
		logger.Warnf("node: retire queue full, reclaiming view %d inline", old.VID)
		reclaim(old)
	}
}

func (n *Node) reclaimLoop() {
	defer close(n.donec)
	for {
		select {
		case v := <-n.retireq:
			reclaim(v)
		case <-n.stopc:
			return
		}
	}
}

func reclaim(v *view.View) {
	v.Engine.Stop()
	v.Table.Stop()
}

// Stop shuts down the listener and reclaimer goroutine. The current
// view's engine and table are left running — callers still using the
// live view are unaffected.
func (n *Node) Stop() {
	if n.listener != nil {
		n.listener.Close()
	}
	select {
	case <-n.stopc:
	default:
		close(n.stopc)
	}
	<-n.donec
}
