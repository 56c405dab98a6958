// Package delivery implements the per-view ordered-delivery engine of
// spec §4.2: multi-sender pipelined multicast over a shared-state table
// that computes global stability and commits a total delivery order.
//
// Grounded on raft's node/storageRaftLog pair: node.go's run loop inspired
// the engine's single send-worker goroutine (engine state itself is
// guarded by one mutex); storage_unstable.go/storage_stable.go's "not yet durable" vs "durable"
// split inspired the LocallyStable -> GloballyStable -> Delivered state
// machine (spec §4.2).
package delivery

// State is a message's position in the pipeline of spec §4.2:
//
//	RESERVED -> PENDING_SEND -> IN_FLIGHT -> LOCALLY_STABLE -> GLOBALLY_STABLE -> DELIVERED
//
// Only the sender of a message passes through the first three states;
// receivers jump straight to LocallyStable on receive-complete.
type State int

const (
	Reserved State = iota
	PendingSend
	InFlight
	LocallyStable
	GloballyStable
	Delivered
)

func (s State) String() string {
	switch s {
	case Reserved:
		return "RESERVED"
	case PendingSend:
		return "PENDING_SEND"
	case InFlight:
		return "IN_FLIGHT"
	case LocallyStable:
		return "LOCALLY_STABLE"
	case GloballyStable:
		return "GLOBALLY_STABLE"
	case Delivered:
		return "DELIVERED"
	default:
		return "UNKNOWN"
	}
}

// MessageID names a message by its sender's rank and that sender's
// monotonic local index, per spec §3's "Pending message" lifecycle.
type MessageID struct {
	Sender int
	Index  int64
}

// NaturalSeq is the total-order key spec §4.2 defines: "index * num_members
// + sender_rank". It is the encoding used everywhere except Row.SeqNum
// (which uses the watermark encoding — see SPEC_FULL.md §3).
func NaturalSeq(id MessageID, numMembers int) int64 {
	return id.Index*int64(numMembers) + int64(id.Sender)
}

// pending is the bookkeeping record for one message in flight through the
// pipeline, spec §3's "Pending message: {sender_rank, index, offset,
// size}" with the State machine layered on top.
//
// payload is only populated once a message reaches LocallyStable: it is
// the exact slice handed back by the block-multicast receive-destination
// callback (or, for the sender's own loopback, the slice it reserved to
// send from), and is valid to read until the ring region it lives in is
// released.
type pending struct {
	id      MessageID
	offset  int
	size    int
	state   State
	payload []byte
}
