// Package ring implements the per-sender ring buffer described in spec
// §4.1: a contiguous byte buffer with a producer cursor (start) and a
// consumer cursor (end), both modulo the buffer size.
//
// The four-way split in Reserve mirrors the circular-buffer bookkeeping in
// raft's inflights sliding window (start/count arithmetic, wrap-on-overflow),
// generalized from a fixed-size index ring to a byte-range ring.
package ring

import "fmt"

// Buffer is one sender's ring. Producer (Reserve) and consumer (Release)
// cursors move independently; the caller (the delivery engine) is
// responsible for calling Release only as messages are delivered, in
// delivery order, so that end always trails start around the ring.
type Buffer struct {
	size int

	start int // producer cursor: next byte to allocate from
	end   int // consumer cursor: first byte still owned by an undelivered message

	// used counts bytes reserved and not yet released; it tells a full ring
	// (start == end, used > 0) apart from an idle one.
	used int

	// windowSize bounds the largest single reservation, per spec §4.1:
	// "maximum single message size is B / window_size".
	windowSize int
}

// New returns a Buffer of the given size, with window-bounded maximum
// message size size/windowSize.
func New(size, windowSize int) *Buffer {
	if size <= 0 {
		panic("ring: buffer size must be positive")
	}
	if windowSize <= 0 {
		panic("ring: window size must be positive")
	}
	return &Buffer{size: size, windowSize: windowSize}
}

// MaxMessageSize returns the largest size Reserve can ever satisfy.
func (b *Buffer) MaxMessageSize() int {
	return b.size / b.windowSize
}

// Reserve implements spec §4.1's reserve(size) -> offset|none state
// machine. ok is false when the ring has no contiguous run of size bytes
// available right now — the caller must wait for a Release and retry.
func (b *Buffer) Reserve(size int) (offset int, ok bool) {
	if size > b.MaxMessageSize() {
		panic(fmt.Sprintf("ring: message size %d exceeds max %d (buffer %d / window %d)",
			size, b.MaxMessageSize(), b.size, b.windowSize))
	}

	if b.used == 0 {
		// whole buffer idle
		b.start, b.end = 0, 0
	} else if b.start == b.end {
		// cursors meet with bytes outstanding: the ring is full
		return 0, false
	}

	switch {
	case b.start < b.end && b.end-b.start >= size:
		offset = b.start
		b.start += size
		b.used += size
		return offset, true

	case b.start >= b.end && b.size-b.start >= size:
		offset = b.start
		b.start += size
		if b.start == b.size {
			b.start = 0
		}
		b.used += size
		return offset, true

	case b.start >= b.end && b.end >= size:
		// wrap: allocate at the front of the buffer
		offset = 0
		b.start = size
		b.used += size
		return offset, true

	default:
		return 0, false
	}
}

// Release advances the consumer cursor past a delivered message's region,
// wrapping at size. The delivery engine calls this exactly once per
// delivered message owned by this node, in delivery order, which is what
// keeps the window back-pressure in spec §4.1 correct: a producer blocks
// until enough of the ring has been released.
func (b *Buffer) Release(size int) {
	b.used -= size
	b.end += size
	if b.end >= b.size {
		b.end -= b.size
	}
}

// Outstanding reports how many bytes are currently reserved-but-not-yet-
// released, for diagnostics and for the window-bound testable property in
// spec §8.
func (b *Buffer) Outstanding() int {
	return b.used
}
