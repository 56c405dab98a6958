package gms

import (
	"github.com/vsync-go/vsync/sst"
	"github.com/vsync-go/vsync/view"
)

// installSuspicionPredicate installs the one GMS predicate that survives
// every view installation (spec §4.4 step 1: "remove all GMS predicates
// except suspicion"). It ORs in every other non-failed member's
// suspicions of rank k into this node's own row — the failure
// amplification spec §4.4 names — then, for any rank whose suspicion just
// newly turned true here, freezes that rank's row, wedges this view's
// delivery engine, and (if this node is the leader) proposes its removal.
func (c *Controller) installSuspicionPredicate(v *view.View) sst.Handle {
	t := v.Table
	return t.Predicates().Insert(
		func(t sst.Table) bool { return true },
		func(t sst.Table) { c.runSuspicion(v, t) },
		sst.Recurrent,
	)
}

func (c *Controller) runSuspicion(v *view.View, t sst.Table) {
	own := t.Row(t.Rank())
	changed := false
	for k := 0; k < v.NumMembers; k++ {
		if own.Suspected[k] {
			continue
		}
		for i := 0; i < v.NumMembers; i++ {
			if v.IsFailed(i) {
				continue
			}
			if t.Row(i).Suspected[k] {
				own.Suspected[k] = true
				changed = true
				break
			}
		}
	}
	if changed {
		t.WriteLocal(func(r *sst.Row) { copy(r.Suspected, own.Suspected) })
		t.Put(sst.FieldSuspected)
	}

	for k := 0; k < v.NumMembers; k++ {
		if !own.Suspected[k] {
			continue
		}
		if !v.MarkFailed(k) {
			continue
		}

		logger.Warnf("rank %d now suspected failed in view %d", k, v.VID)
		t.Freeze(k)
		v.Wedge()

		if v.IsLeader() {
			c.proposeChangeLocked(t, sst.Change{RemoveRank: k, Add: false})
		}
	}

	if v.NFailed() >= majority(v.NumMembers) {
		c.onTerminate("gms: majority of the view is suspected failed")
	}
}
