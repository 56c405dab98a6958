// Package persist is an optional audit sink: a boltdb-backed append-only
// ledger of every message a view has delivered, keyed by natural sequence
// number. Spec §1 scopes durable crash-recovery logs out of this module;
// this is not that — it never drives replay or recovery, it is a
// best-effort record an operator can inspect after the fact, wired in as
// a second delivery upcall alongside the application's own.
//
// Grounded on mvcc/backend's batched-tx idiom (01_batch_tx.go,
// 02_backend.go): one long-lived bolt.Tx accumulates writes and commits
// either every batchLimit puts or every batchInterval, whichever comes
// first, rather than a commit per write.
package persist

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/boltdb/bolt"

	"github.com/vsync-go/vsync/delivery"
)

var deliveriesBucket = []byte("deliveries")

// Ledger is a single boltdb-backed audit log, one per node (not per
// view — deliveries from every view this node ever installs land in the
// same database, since spec §4.2's natural sequence number is only
// unique within a view; records are additionally prefixed by vid, see
// Record).
type Ledger struct {
	db *bolt.DB

	mu      sync.Mutex
	tx      *bolt.Tx
	pending int

	batchLimit    int
	batchInterval time.Duration

	stopc chan struct{}
	donec chan struct{}
}

// Open opens (creating if needed) a ledger at path.
func Open(path string, batchInterval time.Duration, batchLimit int) (*Ledger, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}

	l := &Ledger{
		db:            db,
		batchLimit:    batchLimit,
		batchInterval: batchInterval,
		stopc:         make(chan struct{}),
		donec:         make(chan struct{}),
	}
	if err := l.beginLocked(); err != nil {
		db.Close()
		return nil, err
	}
	go l.run()
	return l, nil
}

func (l *Ledger) beginLocked() error {
	tx, err := l.db.Begin(true)
	if err != nil {
		return fmt.Errorf("persist: begin tx: %w", err)
	}
	if _, err := tx.CreateBucketIfNotExists(deliveriesBucket); err != nil {
		tx.Rollback()
		return fmt.Errorf("persist: create bucket: %w", err)
	}
	l.tx = tx
	return nil
}

// recordKey orders records first by vid, then by natural sequence number
// within that vid, so a full bucket scan replays every view's deliveries
// in the order they actually happened.
func recordKey(vid uint64, seq int64) []byte {
	var key [16]byte
	binary.BigEndian.PutUint64(key[:8], vid)
	binary.BigEndian.PutUint64(key[8:], uint64(seq))
	return key[:]
}

// Record appends one delivered message. Safe for concurrent use.
func (l *Ledger) Record(vid uint64, sender int, index int64, numMembers int, data []byte) {
	seq := delivery.NaturalSeq(delivery.MessageID{Sender: sender, Index: index}, numMembers)
	key := recordKey(vid, seq)

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.tx.Bucket(deliveriesBucket)
	if err := b.Put(key, append([]byte(nil), data...)); err != nil {
		logger.Errorf("persist: put vid=%d seq=%d: %v", vid, seq, err)
		return
	}
	l.pending++
	if l.pending >= l.batchLimit {
		l.commitLocked()
	}
}

func (l *Ledger) commitLocked() {
	if err := l.tx.Commit(); err != nil {
		logger.Panicf("persist: commit: %v", err)
	}
	l.pending = 0
	if err := l.beginLocked(); err != nil {
		logger.Panicf("persist: begin next tx: %v", err)
	}
}

func (l *Ledger) run() {
	defer close(l.donec)
	t := time.NewTimer(l.batchInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.mu.Lock()
			if l.pending > 0 {
				l.commitLocked()
			}
			l.mu.Unlock()
			t.Reset(l.batchInterval)
		case <-l.stopc:
			l.mu.Lock()
			l.tx.Commit()
			l.mu.Unlock()
			return
		}
	}
}

// Close flushes any pending writes and closes the underlying database.
func (l *Ledger) Close() error {
	close(l.stopc)
	<-l.donec
	return l.db.Close()
}

// AsCallback returns a delivery.Callback that records every delivery for
// view vid with numMembers members. Install it as a view's second
// delivery upcall (e.g. by having the application's own OnDeliver call
// both itself and this).
func (l *Ledger) AsCallback(vid uint64, numMembers int) delivery.Callback {
	return func(sender int, index int64, data []byte) {
		l.Record(vid, sender, index, numMembers, data)
	}
}
