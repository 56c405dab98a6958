package gms

import (
	"github.com/vsync-go/vsync/sst"
	"github.com/vsync-go/vsync/view"
)

// proposeChangeLocked appends ch to this node's own Changes column if not
// already present, the leader-only half of spec §4.4's change-proposal
// step. The leader also immediately sets its own n_acked to match
// n_changes: it authored the proposal, so it needs no separate round
// trip to ack its own row the way a follower acks the leader's. Without
// this, minAcked's "over non-failed i" would include the leader's own
// permanently-zero n_acked and n_committed could never advance.
// "Locked" here refers to the table's own internal lock taken by
// WriteLocal, not a Controller field — the name follows the rest of the
// package's convention for table-mutating helpers.
func (c *Controller) proposeChangeLocked(t sst.Table, ch sst.Change) {
	t.WriteLocal(func(r *sst.Row) {
		for _, existing := range r.Changes {
			if existing == ch {
				return
			}
		}
		if r.NChanges-r.NCommitted >= maxPendingChanges {
			logger.Fatalf("gms: pending change overflow: n_changes=%d n_committed=%d", r.NChanges, r.NCommitted)
		}
		r.Changes = append(r.Changes, ch)
		r.NChanges++
		r.NAcked = r.NChanges
	})
	t.Put(sst.FieldChanges, sst.FieldChangeCounters)
}

// installChangePredicates installs the follower-copy or leader-commit
// predicate, whichever matches v.IsLeader() — spec §4.4's change
// ack/commit step. Both are recurrent and are among the predicates step 1
// of view installation tears down, since a stale view's change list must
// never keep mutating once installation for the next view has begun.
func (c *Controller) installChangePredicates(v *view.View) []sst.Handle {
	t := v.Table
	if v.IsLeader() {
		return []sst.Handle{t.Predicates().Insert(
			func(t sst.Table) bool {
				return c.minAcked(v, t) > t.Row(t.Rank()).NCommitted
			},
			func(t sst.Table) {
				min := c.minAcked(v, t)
				t.WriteLocal(func(r *sst.Row) { r.NCommitted = min })
				t.Put(sst.FieldChangeCounters)
			},
			sst.Recurrent,
		)}
	}

	return []sst.Handle{t.Predicates().Insert(
		func(t sst.Table) bool {
			leader := t.Row(v.LeaderRankNow())
			own := t.Row(t.Rank())
			return leader.NChanges > own.NAcked
		},
		func(t sst.Table) {
			leader := t.Row(v.LeaderRankNow())
			t.WriteLocal(func(r *sst.Row) {
				r.Changes = append([]sst.Change(nil), leader.Changes...)
				r.JoinerAddress = leader.JoinerAddress
				r.NChanges = leader.NChanges
				r.NAcked = leader.NChanges
			})
			t.Put(sst.FieldChanges, sst.FieldJoinerAddress, sst.FieldChangeCounters)
			v.Wedge()
		},
		sst.Recurrent,
	)}
}

// minAcked returns the smallest n_acked among non-failed members, the
// leader's commit frontier.
func (c *Controller) minAcked(v *view.View, t sst.Table) int {
	min := -1
	for i := 0; i < v.NumMembers; i++ {
		if v.IsFailed(i) {
			continue
		}
		n := t.Row(i).NAcked
		if min == -1 || n < min {
			min = n
		}
	}
	if min == -1 {
		return 0
	}
	return min
}
