package delivery

import "github.com/google/btree"

// stableEntry is the btree item keyed by natural sequence number, for
// spec §3's "Stable message index: the delivery engine keeps a mapping
// from sequence number to {sender_rank, index, offset, size} for messages
// whose block-multicast receive completed but that have not yet been
// delivered."
//
// Grounded on mvcc's treeIndex (mvcc/01_tree_index.go), which wraps
// github.com/google/btree the same way: ordered keys in, ordered
// iteration out, so ragged-edge cleanup and the delivery predicate can
// walk messages in ascending total order instead of scanning a map.
type stableEntry struct {
	seq int64
	msg pending
}

func (e *stableEntry) Less(than btree.Item) bool {
	return e.seq < than.(*stableEntry).seq
}

// stableIndex is an ordered map from natural sequence number to the
// locally-stable-but-undelivered message at that sequence.
type stableIndex struct {
	tree *btree.BTree
}

func newStableIndex() *stableIndex {
	return &stableIndex{tree: btree.New(32)}
}

func (s *stableIndex) insert(seq int64, msg pending) {
	s.tree.ReplaceOrInsert(&stableEntry{seq: seq, msg: msg})
}

func (s *stableIndex) delete(seq int64) {
	s.tree.Delete(&stableEntry{seq: seq})
}

func (s *stableIndex) len() int {
	return s.tree.Len()
}

// min returns the lowest-sequence entry, or ok=false if the index is
// empty. The delivery predicate (spec §4.2, predicate 2) inspects exactly
// this entry: "the oldest locally-stable message".
func (s *stableIndex) min() (seq int64, msg pending, ok bool) {
	item := s.tree.Min()
	if item == nil {
		return 0, pending{}, false
	}
	e := item.(*stableEntry)
	return e.seq, e.msg, true
}

// ascendUpTo calls fn for every entry with seq <= max, in ascending order,
// stopping early if fn returns false. Used by DeliverUpto (ragged-edge
// cleanup, spec §4.3) to flush messages in canonical total order.
func (s *stableIndex) ascendUpTo(max int64, fn func(seq int64, msg pending) bool) {
	s.tree.AscendRange(&stableEntry{seq: -1}, &stableEntry{seq: max + 1}, func(item btree.Item) bool {
		e := item.(*stableEntry)
		return fn(e.seq, e.msg)
	})
}
