package view

import "testing"

func TestNewComputesLeaderAndFailedCount(t *testing.T) {
	v := New(0, []uint64{10, 20, 30}, []bool{true, false, false}, 1)
	if v.LeaderRank != 1 {
		t.Fatalf("LeaderRank = %d, want 1 (first non-failed rank)", v.LeaderRank)
	}
	if v.NFailed() != 1 {
		t.Fatalf("NFailed() = %d, want 1", v.NFailed())
	}
	if !v.IsLeader() {
		t.Fatalf("IsLeader() = false, want true for MyRank == LeaderRank")
	}
}

func TestMarkFailedMovesLeaderAndReportsOnlyOnce(t *testing.T) {
	v := New(0, []uint64{10, 20, 30}, []bool{false, false, false}, 2)
	if v.IsLeader() {
		t.Fatalf("IsLeader() = true, want false before rank 0 fails")
	}
	if !v.MarkFailed(0) {
		t.Fatalf("MarkFailed(0) = false, want true on first call")
	}
	if v.MarkFailed(0) {
		t.Fatalf("MarkFailed(0) = true on second call, want false (already failed)")
	}
	if v.LeaderRank != 1 {
		t.Fatalf("LeaderRank = %d, want 1 after rank 0 fails", v.LeaderRank)
	}
	if v.NFailed() != 1 {
		t.Fatalf("NFailed() = %d, want 1", v.NFailed())
	}
}

func TestIsFailedOutOfRangeIsTreatedAsFailed(t *testing.T) {
	v := New(0, []uint64{10, 20}, []bool{false, false}, 0)
	if !v.IsFailed(5) {
		t.Fatalf("IsFailed(5) = false, want true for an out-of-range rank")
	}
}

func TestWedgeIsIdempotentWithoutEngine(t *testing.T) {
	v := New(0, []uint64{10}, []bool{false}, 0)
	v.Wedge()
	v.Wedge()
	if !v.Wedged() {
		t.Fatalf("Wedged() = false after Wedge(), want true")
	}
}

func TestSetExceptionsForRemovedNodesRecomputesLeader(t *testing.T) {
	v := New(0, []uint64{10, 20, 30}, []bool{false, false, false}, 2)
	v.SetExceptionsForRemovedNodes([]int{0})
	if !v.IsFailed(0) {
		t.Fatalf("IsFailed(0) = false, want true after SetExceptionsForRemovedNodes")
	}
	if v.LeaderRankNow() != 1 {
		t.Fatalf("LeaderRankNow() = %d, want 1", v.LeaderRankNow())
	}
	if v.NFailed() != 1 {
		t.Fatalf("NFailed() = %d, want 1", v.NFailed())
	}
}

func TestFailedSnapshotIsACopy(t *testing.T) {
	v := New(0, []uint64{10, 20}, []bool{false, false}, 0)
	snap := v.FailedSnapshot()
	snap[0] = true
	if v.IsFailed(0) {
		t.Fatalf("mutating FailedSnapshot's result leaked into the view's own state")
	}
}
