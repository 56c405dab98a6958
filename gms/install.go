package gms

import (
	"github.com/vsync-go/vsync/joiner"
	"github.com/vsync-go/vsync/sst"
	"github.com/vsync-go/vsync/view"
)

// installViewChangeWatcher registers the predicate that starts the whole
// installation chain: spec §4.4's "when any node observes
// leader.n_committed > current_vid, it enters view-change." It is itself
// one-shot, since installation only ever runs once per committed change;
// the successor view gets its own watcher when it's installed.
func (c *Controller) installViewChangeWatcher(v *view.View) sst.Handle {
	t := v.Table
	return t.Predicates().Insert(
		func(t sst.Table) bool {
			return t.Row(v.LeaderRankNow()).NCommitted > int(v.VID)
		},
		func(t sst.Table) { c.runInstallStage1(v) },
		sst.OneShot,
	)
}

// runInstallStage1 is spec §4.4 steps 1-4. It ends by registering the
// meta-wedged watcher (step 5) rather than blocking, per the one-shot
// continuation pattern documented in gms.go's package comment.
func (c *Controller) runInstallStage1(v *view.View) {
	t := v.Table
	t.Predicates().RemoveAllExcept(c.suspicionHandle)
	v.Wedge()

	leaderRow := t.Row(v.LeaderRankNow())
	if int(v.VID) >= len(leaderRow.Changes) {
		logger.Panicf("gms: committed change index %d beyond changes list (len %d)", v.VID, len(leaderRow.Changes))
	}
	change := leaderRow.Changes[int(v.VID)]

	nextMembers := append([]uint64(nil), v.Members...)
	nextFailed := v.FailedSnapshot()
	if change.Add {
		nextMembers = append(nextMembers, change.NodeID)
		nextFailed = append(nextFailed, false)
	} else {
		r := change.RemoveRank
		nextMembers = append(append([]uint64(nil), nextMembers[:r]...), nextMembers[r+1:]...)
		nextFailed = append(append([]bool(nil), nextFailed[:r]...), nextFailed[r+1:]...)
	}

	myNewRank := idToRank(nextMembers, c.myID)
	if myNewRank == view.NotAMember {
		c.onTerminate("gms: self removed from committed view")
		return
	}

	t.Predicates().Insert(
		func(t sst.Table) bool { return c.metaWedged(v, t) },
		func(t sst.Table) { c.runInstallStage2(v, t, nextMembers, nextFailed) },
		sst.OneShot,
	)
}

// metaWedged reports whether every non-failed row has wedged = true, spec
// §4.4 step 5.
func (c *Controller) metaWedged(v *view.View, t sst.Table) bool {
	for i := 0; i < v.NumMembers; i++ {
		if v.IsFailed(i) {
			continue
		}
		if !t.Row(i).Wedged {
			return false
		}
	}
	return true
}

// runInstallStage2 is spec §4.4 step 6, the ragged-edge cleanup's leader
// half. A leader decides global_min immediately (synchronously, since it
// depends only on already-observed rows); a follower instead registers a
// third one-shot waiting on the leader's decision (runInstallStage2Follower).
func (c *Controller) runInstallStage2(v *view.View, t sst.Table, nextMembers []uint64, nextFailed []bool) {
	if !v.IsLeader() {
		t.Predicates().Insert(
			func(t sst.Table) bool {
				leader := t.Row(v.LeaderRankNow())
				return leader.GlobalMinReady && leader.GlobalMinVID == v.VID
			},
			func(t sst.Table) { c.runInstallStage2Follower(v, t, nextMembers, nextFailed) },
			sst.OneShot,
		)
		return
	}

	globalMin := c.decideGlobalMinLeader(v, t)
	t.WriteLocal(func(r *sst.Row) {
		copy(r.GlobalMin, globalMin)
		r.GlobalMinReady = true
		r.GlobalMinVID = v.VID
	})
	t.Put(sst.FieldGlobalMin)
	c.runInstallStage3(v, t, nextMembers, nextFailed, globalMin)
}

func (c *Controller) runInstallStage2Follower(v *view.View, t sst.Table, nextMembers []uint64, nextFailed []bool) {
	leader := t.Row(v.LeaderRankNow())
	globalMin := append([]int64(nil), leader.GlobalMin...)
	t.WriteLocal(func(r *sst.Row) {
		copy(r.GlobalMin, globalMin)
		r.GlobalMinReady = true
		r.GlobalMinVID = leader.GlobalMinVID
	})
	t.Put(sst.FieldGlobalMin)
	c.runInstallStage3(v, t, nextMembers, nextFailed, globalMin)
}

// decideGlobalMinLeader implements spec §4.4's leader rule: reuse a prior
// leader's decision if one already propagated (the cascading-leader-
// failure case scenario 4 exercises), otherwise compute
// min(row[i].n_received[k]) across non-failed rows.
func (c *Controller) decideGlobalMinLeader(v *view.View, t sst.Table) []int64 {
	for i := 0; i < v.NumMembers; i++ {
		if v.IsFailed(i) {
			continue
		}
		row := t.Row(i)
		if row.GlobalMinReady && row.GlobalMinVID == v.VID {
			return append([]int64(nil), row.GlobalMin...)
		}
	}

	min := make([]int64, v.NumMembers)
	for k := 0; k < v.NumMembers; k++ {
		cur := int64(-1)
		for i := 0; i < v.NumMembers; i++ {
			if v.IsFailed(i) {
				continue
			}
			n := t.Row(i).NReceived[k]
			if cur == -1 || n < cur {
				cur = n
			}
		}
		if cur == -1 {
			cur = 0
		}
		min[k] = cur
	}
	return min
}

// runInstallStage3 is spec §4.4 steps 6 (tail)-12: flush the ragged edge,
// hand the committed view to a waiting joiner, build and swap in the
// successor, merge changes if newly leading, and notify the application.
func (c *Controller) runInstallStage3(v *view.View, t sst.Table, nextMembers []uint64, nextFailed []bool, globalMin []int64) {
	maxIndices := make([]int64, len(globalMin))
	for i, n := range globalMin {
		maxIndices[i] = n - 1 // global_min[k] is a count; the cutoff index is count-1
	}
	v.DeliverUpto(maxIndices)

	newVID := v.VID + 1
	if v.IsLeader() {
		c.sendCommittedView(joiner.ViewPayload{
			VID:       uint32(newVID),
			MemberIDs: toUint32s(nextMembers),
			Addresses: c.addressesFor(nextMembers),
			Failed:    nextFailed,
		})
	}

	newView := c.factory.NewView(newVID, nextMembers, nextFailed, c.myID, c.onDeliver)

	// spec step 9: barrier on the OLD table before swapping, so no member
	// starts using the new view until every surviving member has reached
	// this point too.
	t.SyncWithMembers()

	c.mu.Lock()
	old := c.current
	c.setCurrentLocked(newView)
	c.mu.Unlock()

	c.installAllPredicates(newView)

	if newView.IsLeader() {
		c.mergeChanges(newView)
	}

	if c.onViewChange != nil {
		c.onViewChange(newView)
	}

	c.retire(old)
}

// mergeChanges is spec §4.4 step 10: a newly-installed leader unions the
// Changes column of every non-failed row into its own, so a change
// proposed under the old leader but not yet reflected in the new leader's
// own row isn't silently dropped.
func (c *Controller) mergeChanges(v *view.View) {
	t := v.Table
	seen := make(map[sst.Change]bool)
	own := t.Row(t.Rank())
	for _, ch := range own.Changes {
		seen[ch] = true
	}

	var merged []sst.Change
	merged = append(merged, own.Changes...)
	for i := 0; i < v.NumMembers; i++ {
		if v.IsFailed(i) {
			continue
		}
		for _, ch := range t.Row(i).Changes {
			if !seen[ch] {
				seen[ch] = true
				merged = append(merged, ch)
			}
		}
	}

	if len(merged) == len(own.Changes) {
		return
	}
	t.WriteLocal(func(r *sst.Row) {
		r.Changes = merged
		r.NChanges = len(merged)
	})
	t.Put(sst.FieldChanges, sst.FieldChangeCounters)
}

// retire hands old off to this Controller's stale-view reclaimer, spec
// §4.4 step 12. The default (see gms.go) stops its engine and predicate
// evaluator synchronously; package node's orchestrator installs a queued,
// asynchronous reclaimer instead so installation itself never blocks on
// teardown.
func (c *Controller) retire(old *view.View) {
	c.onRetire(old)
}

func (c *Controller) addressesFor(members []uint64) []string {
	out := make([]string, len(members))
	for i, id := range members {
		out[i] = c.members[id]
	}
	return out
}

func toUint32s(xs []uint64) []uint32 {
	out := make([]uint32, len(xs))
	for i, x := range xs {
		out[i] = uint32(x)
	}
	return out
}

// installAllPredicates installs every GMS predicate for v: suspicion (kept
// across future installs via c.suspicionHandle), the leader/follower
// change predicate, and the view-change watcher.
func (c *Controller) installAllPredicates(v *view.View) {
	c.suspicionHandle = c.installSuspicionPredicate(v)
	c.installChangePredicates(v)
	c.installViewChangeWatcher(v)
}
