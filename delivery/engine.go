package delivery

import (
	"fmt"
	"sync"

	"github.com/vsync-go/vsync/blockmcast"
	"github.com/vsync-go/vsync/ring"
	"github.com/vsync-go/vsync/sst"
)

var logger = newPackageLogger()

// Callback is the per-message upcall the engine invokes once a message is
// safe to deliver, spec §4.2's "invoke the registered delivery callback".
type Callback func(sender int, index int64, data []byte)

// Config wires an Engine to its collaborators. Transport and Table are
// consumed interfaces (spec §1, §6); IsFailed is a weak back-reference
// into the owning view's membership state (spec §9's design note on
// callbacks resolved at call time rather than captured by value, since
// failures can be discovered mid-view).
type Config struct {
	MyRank     int
	NumMembers int
	BufferSize int // bytes per sender-slot ring
	WindowSize int

	Transport blockmcast.Transport
	Table     sst.Table
	IsFailed  func(rank int) bool
	OnDeliver Callback
}

// Engine is the per-view ordered-delivery engine, spec §4.2. One Engine
// owns numMembers rings — not just its own sender slot — because a node
// places every other member's incoming bytes into its own local copy of
// that slot's ring, using the identical reserve arithmetic driven by
// announced message length instead of a local producer call (confirmed
// against the source system's get_position/receive-placement split).
type Engine struct {
	mu   sync.Mutex
	cond *sync.Cond

	myRank     int
	numMembers int
	windowSize int

	slab  [][]byte
	rings []*ring.Buffer

	nextOwnIndex int64
	nReceived    []int64 // per-sender received count; doubles as "next index" for that sender
	faulted      []bool

	// reservedHead is the single outstanding reserve-but-not-committed
	// descriptor, mirroring the source system's single "next_message"
	// slot (spec §3's "Pending message").
	reservedHead *pending

	// outstandingOwn is the FIFO of this node's own committed-but-not-yet-
	// locally-received sends, in send order.
	outstandingOwn []*pending

	// sendQueue is committed sends not yet handed to the transport.
	sendQueue []*pending

	stable *stableIndex

	table     sst.Table
	isFailed  func(rank int) bool
	transport blockmcast.Transport
	onDeliver Callback

	wedged  bool
	stopped bool

	sendWorkerDone chan struct{}
}

// New builds an Engine for one view and starts its send worker and SST
// predicates. Predicates are evaluated in registration order, so the
// engine's predicates run before any installed on cfg.Table afterward
// (package gms installs its predicates after the view's engine is built).
func New(cfg Config) *Engine {
	if cfg.NumMembers <= 0 {
		panic("delivery: NumMembers must be positive")
	}
	if cfg.MyRank < 0 || cfg.MyRank >= cfg.NumMembers {
		panic("delivery: MyRank out of range")
	}

	e := &Engine{
		myRank:         cfg.MyRank,
		numMembers:     cfg.NumMembers,
		windowSize:     cfg.WindowSize,
		slab:           make([][]byte, cfg.NumMembers),
		rings:          make([]*ring.Buffer, cfg.NumMembers),
		nReceived:      make([]int64, cfg.NumMembers),
		faulted:        make([]bool, cfg.NumMembers),
		stable:         newStableIndex(),
		table:          cfg.Table,
		isFailed:       cfg.IsFailed,
		transport:      cfg.Transport,
		onDeliver:      cfg.OnDeliver,
		sendWorkerDone: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)

	for i := 0; i < cfg.NumMembers; i++ {
		e.slab[i] = make([]byte, cfg.BufferSize)
		e.rings[i] = ring.New(cfg.BufferSize, cfg.WindowSize)
		e.transport.RegisterSlot(i, e.makeDestFunc(i), e.makeCompleteFunc(i), e.makeFaultFunc(i))
	}

	e.installPredicates()
	go e.runSendWorker()
	return e
}

// MaxMessageSize is the largest payload ReserveSend can ever satisfy.
func (e *Engine) MaxMessageSize() int {
	return e.rings[e.myRank].MaxMessageSize()
}

// ReserveSend reserves size bytes in this node's own ring and returns a
// slice to fill with the message payload. The caller must fill the slice
// and then call CommitSend before reserving another message: only one
// reservation may be outstanding at a time (spec §3's single "next
// message" slot).
func (e *Engine) ReserveSend(size int) (MessageID, []byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.wedged {
		return MessageID{}, nil, false
	}
	if e.reservedHead != nil {
		logger.Panicf("ReserveSend called with a reservation already outstanding")
	}

	offset, ok := e.rings[e.myRank].Reserve(size)
	if !ok {
		return MessageID{}, nil, false
	}

	id := MessageID{Sender: e.myRank, Index: e.nextOwnIndex}
	e.nextOwnIndex++
	e.reservedHead = &pending{id: id, offset: offset, size: size, state: Reserved}
	return id, e.slab[e.myRank][offset : offset+size], true
}

// CommitSend hands the currently reserved message to the send worker.
func (e *Engine) CommitSend() (MessageID, bool) {
	e.mu.Lock()
	if e.reservedHead == nil {
		e.mu.Unlock()
		return MessageID{}, false
	}
	p := e.reservedHead
	e.reservedHead = nil
	p.state = PendingSend
	e.outstandingOwn = append(e.outstandingOwn, p)
	e.sendQueue = append(e.sendQueue, p)
	e.mu.Unlock()

	e.cond.Broadcast()
	return p.id, true
}

// runSendWorker implements spec §4.2's window discipline: it blocks until
// the head of the send queue may legally go out, then hands it to the
// transport.
func (e *Engine) runSendWorker() {
	defer close(e.sendWorkerDone)

	e.mu.Lock()
	for {
		for !e.stopped && !e.canSendLocked() {
			e.cond.Wait()
		}
		if e.stopped {
			e.mu.Unlock()
			return
		}

		msg := e.sendQueue[0]
		e.sendQueue = e.sendQueue[1:]
		msg.state = InFlight
		payload := e.slab[e.myRank][msg.offset : msg.offset+msg.size]
		e.mu.Unlock()

		if err := e.transport.Send(e.myRank, payload); err != nil {
			logger.Errorf("send rank %d index %d: %v", e.myRank, msg.id.Index, err)
		}

		e.mu.Lock()
	}
}

// canSendLocked reports whether the head of the send queue may go out now.
// Two conditions gate it, both from spec §4.2:
//
//   - predecessor-received: this node must have locally received its own
//     previous message before sending the next (the resolved reading of
//     "last_received_messages[member_index] < msg.index-1" — intentional
//     pipelining back-pressure, not a bug).
//   - window discipline: every non-failed member must have delivered up
//     to index-window_size before index may be sent.
func (e *Engine) canSendLocked() bool {
	if e.wedged || len(e.sendQueue) == 0 {
		return false
	}
	msg := e.sendQueue[0]

	if msg.id.Index > 0 && e.nReceived[e.myRank] < msg.id.Index {
		return false
	}

	cutoff := msg.id.Index - int64(e.windowSize)
	if cutoff < 0 {
		return true
	}
	needed := cutoff*int64(e.numMembers) + int64(e.myRank)
	for i := 0; i < e.numMembers; i++ {
		if e.isFailed(i) {
			continue
		}
		if e.table.Row(i).DeliveredNum < needed {
			return false
		}
	}
	return true
}

// makeDestFunc returns the receive-placement callback for slot.
func (e *Engine) makeDestFunc(slot int) blockmcast.ReceiveDestinationFunc {
	return func(length int) []byte {
		e.mu.Lock()
		defer e.mu.Unlock()

		if slot == e.myRank {
			// this node's own message is already sitting in its ring at the
			// offset chosen by ReserveSend; placing it again would reserve
			// the same bytes twice.
			if len(e.outstandingOwn) == 0 {
				logger.Panicf("loopback receive for rank %d with nothing outstanding", slot)
			}
			head := e.outstandingOwn[0]
			return e.slab[slot][head.offset : head.offset+head.size]
		}

		offset, ok := e.rings[slot].Reserve(length)
		if !ok {
			logger.Panicf("ring overrun placing %d bytes from rank %d", length, slot)
		}
		return e.slab[slot][offset : offset+length]
	}
}

func (e *Engine) makeCompleteFunc(slot int) blockmcast.ReceiveCompletionFunc {
	return func(data []byte) {
		e.onReceive(slot, data)
	}
}

func (e *Engine) makeFaultFunc(slot int) blockmcast.FaultFunc {
	return func() {
		e.mu.Lock()
		e.faulted[slot] = true
		e.mu.Unlock()
		e.cond.Broadcast()
	}
}

// onReceive registers a completed receive from sender as locally stable,
// per spec §4.2: receivers (and the sender itself, via loopback) jump
// straight into LocallyStable.
func (e *Engine) onReceive(sender int, data []byte) {
	e.mu.Lock()

	idx := e.nReceived[sender]
	e.nReceived[sender]++

	if sender == e.myRank {
		if len(e.outstandingOwn) == 0 {
			e.mu.Unlock()
			logger.Panicf("own receive for rank %d with nothing outstanding", sender)
		}
		head := e.outstandingOwn[0]
		e.outstandingOwn = e.outstandingOwn[1:]
		if head.id.Index != idx {
			e.mu.Unlock()
			logger.Panicf("own loopback index mismatch: expected %d got %d", head.id.Index, idx)
		}
	}

	id := MessageID{Sender: sender, Index: idx}
	seq := NaturalSeq(id, e.numMembers)
	e.stable.insert(seq, pending{id: id, size: len(data), payload: data, state: LocallyStable})

	minCount, slowest := e.nReceived[0], 0
	for i := 1; i < e.numMembers; i++ {
		if e.nReceived[i] < minCount {
			minCount, slowest = e.nReceived[i], i
		}
	}
	newSeqNum := (minCount+1)*int64(e.numMembers) + int64(slowest) - 1

	e.mu.Unlock()

	e.table.WriteLocal(func(r *sst.Row) {
		r.NReceived[sender] = idx + 1
		if newSeqNum > r.SeqNum {
			r.SeqNum = newSeqNum
		}
	})
	e.table.Put(sst.FieldNReceived, sst.FieldSeqNum)

	e.cond.Broadcast()
}

// stableCountLocked returns how many messages from sender every non-failed
// member has received, the authoritative per-sender stability frontier
// (spec §4.2). e.mu must be held.
func (e *Engine) stableCountLocked(sender int) int64 {
	min := int64(-1)
	for i := 0; i < e.numMembers; i++ {
		if e.isFailed(i) {
			continue
		}
		c := e.table.Row(i).NReceived[sender]
		if min == -1 || c < min {
			min = c
		}
	}
	if min == -1 {
		return 0
	}
	return min
}

// deliverableLocked reports whether id and every message before it in the
// natural total order have been received by every non-failed member, so
// delivering id cannot overtake a lower sequence number. e.mu must be held.
func (e *Engine) deliverableLocked(id MessageID) bool {
	for k := 0; k < e.numMembers; k++ {
		need := id.Index
		if k <= id.Sender {
			need++
		}
		if e.stableCountLocked(k) < need {
			return false
		}
	}
	return true
}

// deliverOne delivers the single oldest locally-stable message if it and
// every message before it in the total order have been received by every
// non-failed member, per spec §4.2 predicate 2 ("at most one message
// delivered per firing" — the predicate simply refires on the next Put,
// which this call always triggers when it delivers).
func (e *Engine) deliverOne() bool {
	e.mu.Lock()
	seq, msg, ok := e.stable.min()
	if !ok {
		e.mu.Unlock()
		return false
	}
	if !e.deliverableLocked(msg.id) {
		e.mu.Unlock()
		return false
	}
	e.stable.delete(seq)
	e.rings[msg.id.Sender].Release(msg.size)
	e.mu.Unlock()

	e.onDeliver(msg.id.Sender, msg.id.Index, msg.payload)

	e.table.WriteLocal(func(r *sst.Row) {
		if seq > r.DeliveredNum {
			r.DeliveredNum = seq
		}
	})
	e.table.Put(sst.FieldDeliveredNum)
	e.cond.Broadcast()
	return true
}

// Wedge freezes the engine for view-change: no new sends start, but
// receives already in flight still complete and get indexed. Spec §4.3.
func (e *Engine) Wedge() {
	e.mu.Lock()
	e.wedged = true
	e.mu.Unlock()
	e.cond.Broadcast()

	e.table.WriteLocal(func(r *sst.Row) { r.Wedged = true })
	e.table.Put(sst.FieldWedged)
}

// SetExceptionsForRemovedNodes records removed ranks as faulted slots,
// spec §4.3. The engine's stability and window checks skip ranks through
// Config.IsFailed, not through this record; View.SetExceptionsForRemovedNodes
// marks the same ranks failed there.
func (e *Engine) SetExceptionsForRemovedNodes(removed []int) {
	e.mu.Lock()
	for _, r := range removed {
		e.faulted[r] = true
	}
	e.mu.Unlock()
	e.cond.Broadcast()
}

// DeliverUpto force-delivers every locally-stable message whose index is
// at most maxIndices[sender], in ascending total order, ignoring global
// stability. This is the ragged-edge flush of spec §4.3: messages beyond
// their sender's cutoff are discarded since this view is retiring and they
// will never reach every member.
func (e *Engine) DeliverUpto(maxIndices []int64) {
	type flushed struct {
		seq int64
		msg pending
	}

	e.mu.Lock()
	var toDeliver []flushed
	e.stable.ascendUpTo(maxSeq(e.numMembers, maxIndices), func(seq int64, msg pending) bool {
		if msg.id.Index <= maxIndices[msg.id.Sender] {
			toDeliver = append(toDeliver, flushed{seq, msg})
		}
		return true
	})
	for _, d := range toDeliver {
		e.stable.delete(d.seq)
		e.rings[d.msg.id.Sender].Release(d.msg.size)
	}
	e.mu.Unlock()

	for _, d := range toDeliver {
		e.onDeliver(d.msg.id.Sender, d.msg.id.Index, d.msg.payload)
	}

	if len(toDeliver) == 0 {
		return
	}
	e.table.WriteLocal(func(r *sst.Row) {
		for _, d := range toDeliver {
			if d.seq > r.DeliveredNum {
				r.DeliveredNum = d.seq
			}
		}
	})
	e.table.Put(sst.FieldDeliveredNum)
}

// maxSeq bounds the ascend scan in DeliverUpto to the highest natural
// sequence number any cutoff could possibly admit.
func maxSeq(numMembers int, maxIndices []int64) int64 {
	max := int64(-1)
	for sender, idx := range maxIndices {
		seq := idx*int64(numMembers) + int64(sender)
		if seq > max {
			max = seq
		}
	}
	return max
}

// Stop halts the send worker. The engine must not be used afterward.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.cond.Broadcast()
	<-e.sendWorkerDone
}

func (e *Engine) String() string {
	return fmt.Sprintf("delivery.Engine{rank=%d, members=%d}", e.myRank, e.numMembers)
}
