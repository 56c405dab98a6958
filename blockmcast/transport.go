// Package blockmcast specifies the block-multicast primitive spec §1
// treats as an external collaborator: "exposes per-sender reliable
// in-order delivery of byte ranges into caller-supplied buffers, and
// offers a single operation send(sender_slot, mr, offset, size)".
//
// The engine borrows a buffer region for the duration of one send or
// receive and must not retain it past the completion callback — spec §9's
// design note on shared-ownership buffer regions, rendered here as a
// []byte slice borrow whose lifetime ends when ReceiveCompletionFunc
// returns (rather than a reference-counted handle).
//
// Transport itself is never implemented against real RDMA or TCP by this
// module (out of scope per spec §1); LoopbackNetwork is a reference
// fake for tests and the sample program, grounded on raft/rafttest's
// in-memory network used to drive raft protocol tests without sockets.
package blockmcast

// ReceiveDestinationFunc returns where to place the next length bytes
// arriving from a sender slot, wrapping the slot's ring if needed. Spec
// §6: "fn(length) -> {region, offset}" — here the region/offset pair is
// collapsed into the returned slice itself.
type ReceiveDestinationFunc func(length int) []byte

// ReceiveCompletionFunc is called once a whole message has arrived in the
// slice ReceiveDestinationFunc returned. The slice must not be read after
// this call returns.
type ReceiveCompletionFunc func(data []byte)

// FaultFunc is called when a sender slot permanently fails.
type FaultFunc func()

// Transport is the interface the delivery engine consumes from the block
// multicast primitive.
type Transport interface {
	// RegisterSlot installs the three per-slot callbacks, per spec §6.
	RegisterSlot(slot int, dest ReceiveDestinationFunc, complete ReceiveCompletionFunc, fault FaultFunc)

	// Send transmits data as slot's next message. data must have been
	// obtained from that slot's own ring reservation and must remain
	// valid and unmodified until the implementation is done with it.
	Send(slot int, data []byte) error

	// Start begins dispatching registered callbacks.
	Start() error

	// Stop halts dispatch and releases any resources.
	Stop()
}
