// Package gms implements the group membership service described in
// spec §4.4: leader-driven suspicion amplification, the join handshake,
// change proposal/ack/commit, and the 12-step view installation sequence.
//
// Grounded on raft's leader/follower role split (raft_step_leader.go,
// raft_step_follower.go): here too a node's behavior at the SST-predicate
// level forks on View.IsLeader() rather than on a separate state machine,
// and the long-running "wait for a condition, then continue" steps of
// installation are grounded on read_index.go's pattern of registering a
// one-shot predicate that performs its action and deregisters itself,
// chained into the next one-shot rather than blocking the evaluator
// goroutine.
package gms

import (
	"net"
	"sync"
	"time"

	"github.com/vsync-go/vsync/delivery"
	"github.com/vsync-go/vsync/idutil"
	"github.com/vsync-go/vsync/sst"
	"github.com/vsync-go/vsync/view"
)

// maxPendingChanges bounds the Changes list's live span (NChanges -
// NCommitted), spec §7's "Overflow of pending changes" fatal edge case.
const maxPendingChanges = 64

// ViewFactory builds the table and delivery engine for a freshly agreed
// view. Spec §1 puts SST replication and block-multicast transport out of
// scope; a ViewFactory is how a real deployment (or the loopback test
// harness, see package node) wires those external collaborators in for
// each successive view without the gms package needing to know how.
type ViewFactory interface {
	NewView(vid uint64, members []uint64, failed []bool, myID uint64, onDeliver delivery.Callback) *view.View
}

// Config wires a Controller to its collaborators and callbacks.
type Config struct {
	MyID    uint64
	Members map[uint64]string // id -> address, spec §3's fixed map
	Factory ViewFactory

	// OnDeliver is the application's message-delivery upcall, forwarded
	// unchanged from every view's delivery.Engine.
	OnDeliver delivery.Callback

	// OnViewChange is invoked after a new view is installed and before the
	// old view's resources are reclaimed, spec §4.4 step 12's "view
	// upcalls".
	OnViewChange func(v *view.View)

	// OnTerminate is invoked when this node must stop participating:
	// majority loss (spec §4.4's self-termination check) or self-removal
	// from a committed view. The default terminates the process via
	// vlog.Fatalf, matching spec §7's framing of both as fatal, not
	// recoverable, conditions.
	OnTerminate func(reason string)

	// OnRetire receives the outgoing view once its successor is installed,
	// spec §4.4 step 12's "push the old view onto the stale-view queue for
	// the reclaimer thread". The default stops its engine and table
	// synchronously; package node installs an asynchronous queued
	// reclaimer instead.
	OnRetire func(old *view.View)
}

// Controller owns the single mutable "current view" pointer spec §5
// describes ("one mutex guards the pointer swap; readers elsewhere copy
// the pointer under that mutex and then read the now-immutable old or new
// view without holding it").
type Controller struct {
	mu      sync.RWMutex
	current *view.View

	myID    uint64
	members map[uint64]string // id -> address, fixed for the process lifetime
	factory ViewFactory
	idGen   *idutil.Generator

	onDeliver    delivery.Callback
	onViewChange func(v *view.View)
	onTerminate  func(reason string)
	onRetire     func(old *view.View)

	joinMu     sync.Mutex
	joinConn   net.Conn
	joinAddr   string
	joinToken  uint64

	suspicionHandle sst.Handle
}

// New creates a Controller and installs it as the owner of the first
// view, vid 0, containing exactly the members listed in cfg.Members
// (spec §3: the first view is the configured membership with no failures
// and no prior GMS agreement — there is nothing to agree on yet).
func New(cfg Config) *Controller {
	c := newController(cfg)

	ids := make([]uint64, 0, len(cfg.Members))
	for id := range cfg.Members {
		ids = append(ids, id)
	}
	sortUint64s(ids)
	if idToRank(ids, cfg.MyID) == view.NotAMember {
		panic("gms: MyID not present in Members")
	}

	v := c.factory.NewView(0, ids, make([]bool, len(ids)), cfg.MyID, c.onDeliver)
	c.current = v
	c.installAllPredicates(v)
	return c
}

// NewJoined creates a Controller whose first view is the one a leader
// already committed and handed this node over the joiner handshake (spec
// §4.5), rather than vid 0's configured membership. Used by a node that
// is joining an already-running group.
func NewJoined(cfg Config, vid uint64, members []uint64, failed []bool) *Controller {
	c := newController(cfg)
	if idToRank(members, cfg.MyID) == view.NotAMember {
		panic("gms: MyID not present in the committed view it joined")
	}

	v := c.factory.NewView(vid, members, failed, cfg.MyID, c.onDeliver)
	c.current = v
	c.installAllPredicates(v)
	return c
}

func newController(cfg Config) *Controller {
	if cfg.Factory == nil {
		panic("gms: Config.Factory must not be nil")
	}

	c := &Controller{
		myID:         cfg.MyID,
		members:      cfg.Members,
		factory:      cfg.Factory,
		idGen:        idutil.NewGenerator(uint16(cfg.MyID), time.Now()),
		onDeliver:    cfg.OnDeliver,
		onViewChange: cfg.OnViewChange,
		onTerminate:  cfg.OnTerminate,
		onRetire:     cfg.OnRetire,
	}
	if c.onTerminate == nil {
		c.onTerminate = func(reason string) { logger.Fatalf("%s", reason) }
	}
	if c.onRetire == nil {
		c.onRetire = func(old *view.View) {
			old.Engine.Stop()
			old.Table.Stop()
		}
	}
	return c
}

// View returns the currently installed view. The returned pointer is
// immutable: callers never need to re-fetch it mid-use, only after being
// notified of a view change.
func (c *Controller) View() *view.View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Controller) setCurrentLocked(v *view.View) {
	c.current = v
}

// sortUint64s avoids importing sort's generic variant for a single
// two-line use; kept alongside the Controller that needs it rather than
// adding a util package for one helper.
func sortUint64s(xs []uint64) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

func idToRank(members []uint64, id uint64) int {
	for r, m := range members {
		if m == id {
			return r
		}
	}
	return view.NotAMember
}

func majority(numMembers int) int {
	return (numMembers + 2) / 2 // ceil((numMembers+1)/2)
}
