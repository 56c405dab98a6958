package persist

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/boltdb/bolt"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path, time.Hour, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordCommitsAtBatchLimit(t *testing.T) {
	l := openTestLedger(t)

	l.Record(0, 0, 0, 2, []byte("first"))
	if got := countKeys(t, l); got != 0 {
		t.Fatalf("countKeys() = %d before batch limit reached, want 0", got)
	}

	l.Record(0, 1, 0, 2, []byte("second"))
	if got := countKeys(t, l); got != 2 {
		t.Fatalf("countKeys() = %d after batch limit reached, want 2", got)
	}
}

func TestCloseFlushesPendingWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path, time.Hour, 100)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	l.Record(0, 0, 0, 2, []byte("pending"))
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	if got := countKeysIn(t, db); got != 1 {
		t.Fatalf("countKeys() after Close = %d, want 1", got)
	}
}

func countKeys(t *testing.T, l *Ledger) int {
	t.Helper()
	return countKeysIn(t, l.db)
}

func countKeysIn(t *testing.T, db *bolt.DB) int {
	t.Helper()
	n := 0
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(deliveriesBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			n++
			return nil
		})
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	return n
}
