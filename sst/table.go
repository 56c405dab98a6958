package sst

// Field identifies which logical column(s) a Put call publishes. Real RDMA
// SSTs broadcast a partial row update addressed by (field_offset,
// field_size); Go has no idiomatic equivalent of raw offsets into a struct
// a caller is meant to reason about, so Field names the same concept by
// column instead of by byte range.
type Field int

const (
	FieldSeqNum Field = iota
	FieldStableNum
	FieldDeliveredNum
	FieldNReceived
	FieldSuspected
	FieldChanges
	FieldJoinerAddress
	FieldChangeCounters // NChanges, NCommitted, NAcked
	FieldWedged
	FieldGlobalMin
	FieldVID
)

// Table is the per-node handle onto a shared-state table, per spec §6:
// "per-node write to local row; put(field_offset, field_size) to broadcast
// a partial row update; sync_with_members() to barrier;
// predicates.insert(pred, trig, kind); freeze(rank)".
type Table interface {
	// Rank returns this handle's own rank within the view.
	Rank() int

	// NumMembers returns the view's member count (including failed
	// members still occupying a rank).
	NumMembers() int

	// Row returns a snapshot of rank's row. Safe to call for any rank,
	// including this handle's own.
	Row(rank int) Row

	// WriteLocal mutates this handle's own row under the table's lock.
	// The mutation is not visible to other nodes' predicates until Put is
	// called with the changed fields.
	WriteLocal(fn func(*Row))

	// Put publishes the most recent WriteLocal and wakes every node's
	// predicate evaluator, including this node's own.
	Put(fields ...Field)

	// SyncWithMembers blocks until every other non-frozen member has also
	// called SyncWithMembers for the current generation. Used by GMS view
	// installation step 9 to barrier before swapping views.
	SyncWithMembers()

	// Predicates returns this handle's predicate registry.
	Predicates() *Registry

	// Freeze marks rank's row frozen: further WriteLocal calls from that
	// rank's own handle are rejected. Spec §3: "If failed[k] is true
	// ... row k is frozen (no further updates accepted)."
	Freeze(rank int)

	// Frozen reports whether rank's row is frozen.
	Frozen(rank int) bool

	// Stop shuts down this handle's predicate evaluator goroutine.
	Stop()
}
