// Package view implements spec §4.3: the immutable view descriptor plus
// the mutable delivery engine and SST attached to it for its lifetime.
//
// Grounded on spec §9's design note resolving the source's view/engine/SST
// reference cycle: View is the single owner of both collaborators;
// delivery.Engine and the GMS's SST predicates receive only a narrow
// IsFailed/IsLeader-style callback closing over View, never a pointer
// cycle back through Engine or Table.
package view

import (
	"fmt"
	"sync"

	"github.com/vsync-go/vsync/delivery"
	"github.com/vsync-go/vsync/sst"
)

// NotAMember is the sentinel my_rank takes when this node is not present
// in the view (spec §3).
const NotAMember = -1

// View is the immutable membership descriptor for one installed view,
// plus its attached, mutable per-view collaborators.
type View struct {
	VID        uint64
	Members    []uint64 // id, indexed by rank
	NumMembers int
	MyRank     int // NotAMember if this node isn't in the view
	LeaderRank int

	Table  sst.Table
	Engine *delivery.Engine

	mu       sync.RWMutex
	failed   []bool
	nFailed  int
	wedged   bool
}

// New builds a View over an already-constructed Table. The caller attaches
// an Engine afterward via SetEngine once it has a narrow callback into
// this View (see IsFailed), since Engine.Config needs IsFailed at
// construction time.
func New(vid uint64, members []uint64, failed []bool, myRank int) *View {
	if len(members) != len(failed) {
		panic("view: members and failed must be parallel slices")
	}
	v := &View{
		VID:        vid,
		Members:    append([]uint64(nil), members...),
		NumMembers: len(members),
		MyRank:     myRank,
		failed:     append([]bool(nil), failed...),
	}
	v.LeaderRank = v.computeLeaderRankLocked()
	for _, f := range failed {
		if f {
			v.nFailed++
		}
	}
	return v
}

// SetEngine attaches the view's delivery engine once constructed.
func (v *View) SetEngine(e *delivery.Engine) { v.Engine = e }

// IsFailed reports whether rank is currently considered failed. Safe to
// call concurrently; this is the narrow callback delivery.Config.IsFailed
// and the GMS predicates close over instead of holding a pointer to View
// itself.
func (v *View) IsFailed(rank int) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if rank < 0 || rank >= len(v.failed) {
		return true
	}
	return v.failed[rank]
}

// NFailed returns the current failed-member count.
func (v *View) NFailed() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.nFailed
}

// MarkFailed sets failed[rank] = true if not already set, updates the
// cached leader rank and failure count, and reports whether this call is
// what newly marked it (used by the GMS suspicion trigger to fire its
// one-time side effects exactly once per rank per view).
func (v *View) MarkFailed(rank int) (newlyFailed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failed[rank] {
		return false
	}
	v.failed[rank] = true
	v.nFailed++
	v.LeaderRank = v.computeLeaderRankLocked()
	return true
}

// computeLeaderRankLocked returns the smallest rank whose failed flag is
// false, spec §3's leader_rank definition. v.mu must be held.
func (v *View) computeLeaderRankLocked() int {
	for r, f := range v.failed {
		if !f {
			return r
		}
	}
	return NotAMember
}

// IsLeader reports whether this node is the view's current leader.
func (v *View) IsLeader() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.MyRank != NotAMember && v.MyRank == v.LeaderRank
}

// LeaderRankNow returns the current leader rank under lock (LeaderRank can
// move as failures are marked).
func (v *View) LeaderRankNow() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.LeaderRank
}

// FailedSnapshot returns a copy of the current failed vector, for view
// installation (spec §4.4 step 3: "preserve failed[] relative positions").
func (v *View) FailedSnapshot() []bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]bool(nil), v.failed...)
}

// Wedge quiesces this view's delivery engine (spec §4.3/glossary).
func (v *View) Wedge() {
	v.mu.Lock()
	already := v.wedged
	v.wedged = true
	v.mu.Unlock()
	if !already && v.Engine != nil {
		v.Engine.Wedge()
	}
}

// Wedged reports whether Wedge has been called on this view.
func (v *View) Wedged() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.wedged
}

// DeliverUpto force-delivers the ragged edge through this view's engine,
// spec §4.3.
func (v *View) DeliverUpto(maxIndices []int64) {
	if v.Engine != nil {
		v.Engine.DeliverUpto(maxIndices)
	}
}

// SetExceptionsForRemovedNodes marks removed as permanently faulted so
// subsequent receives from them never block delivery, spec §4.3.
func (v *View) SetExceptionsForRemovedNodes(removed []int) {
	if v.Engine != nil {
		v.Engine.SetExceptionsForRemovedNodes(removed)
	}
	v.mu.Lock()
	for _, r := range removed {
		if r >= 0 && r < len(v.failed) {
			v.failed[r] = true
		}
	}
	v.nFailed = 0
	for _, f := range v.failed {
		if f {
			v.nFailed++
		}
	}
	v.LeaderRank = v.computeLeaderRankLocked()
	v.mu.Unlock()
}

func (v *View) String() string {
	return fmt.Sprintf("view{vid=%d, members=%v, myRank=%d, leaderRank=%d}", v.VID, v.Members, v.MyRank, v.LeaderRank)
}
