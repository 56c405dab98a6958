package delivery

import "github.com/vsync-go/vsync/sst"

// installPredicates registers the three SST predicate/trigger pairs spec
// §4.2 names: stability, delivery, and window advance. All three are
// Recurrent: they keep re-evaluating for the life of the view.
func (e *Engine) installPredicates() {
	reg := e.table.Predicates()

	// Stability: recompute the diagnostic watermark Row.SeqNum-derived
	// StableNum column whenever any row changes. This column is kept for
	// schema fidelity with the replicated row (SPEC_FULL.md §3); the
	// engine's own delivery decisions use stableCountLocked's per-sender
	// NReceived frontier directly; above and below reach the same
	// messages, but NReceived is the natural-encoded count and comparing
	// it against the watermark-encoded SeqNum would mix units, so
	// delivery never reads StableNum back.
	reg.Insert(
		func(t sst.Table) bool { return true },
		func(t sst.Table) {
			min := e.diagnosticStableNum(t)
			t.WriteLocal(func(r *sst.Row) { r.StableNum = min })
			t.Put(sst.FieldStableNum)
		},
		sst.Recurrent,
	)

	// Delivery: the oldest locally-stable message is released as soon as
	// every non-failed member has received it and every message before it
	// in the total order.
	reg.Insert(
		func(t sst.Table) bool {
			e.mu.Lock()
			defer e.mu.Unlock()
			_, msg, ok := e.stable.min()
			if !ok {
				return false
			}
			return e.deliverableLocked(msg.id)
		},
		func(t sst.Table) {
			e.deliverOne()
		},
		sst.Recurrent,
	)

	// Window advance: any row change may have satisfied the send worker's
	// wait condition (more of the ring has been released, or another
	// member's DeliveredNum moved past a cutoff), so wake it.
	reg.Insert(
		func(t sst.Table) bool { return true },
		func(t sst.Table) { e.cond.Broadcast() },
		sst.Recurrent,
	)
}

// diagnosticStableNum computes the watermark-encoded floor spec §3
// describes for Row.SeqNum, across non-failed members, for display and
// debugging only.
func (e *Engine) diagnosticStableNum(t sst.Table) int64 {
	min := int64(-1)
	for i := 0; i < e.numMembers; i++ {
		if e.isFailed(i) {
			continue
		}
		v := t.Row(i).SeqNum
		if min == -1 || v < min {
			min = v
		}
	}
	if min == -1 {
		return 0
	}
	return min
}
