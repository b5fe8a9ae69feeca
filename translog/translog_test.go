package translog

import "testing"

func TestAddReleaseEpoch(t *testing.T) {
	l := New[int](16)
	if err := l.Add(1); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(2); err != nil {
		t.Fatal(err)
	}
	barrierNr, err := l.AddBarrier()
	if err != nil {
		t.Fatal(err)
	}
	if barrierNr != 1 {
		t.Fatalf("expected first barrier ordinal 1, got %d", barrierNr)
	}
	epoch, err := l.Release(barrierNr, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(epoch) != 2 || epoch[0] != 1 || epoch[1] != 2 {
		t.Fatalf("unexpected epoch: %v", epoch)
	}
	if l.NrDone() != 1 {
		t.Fatalf("expected nr_done=1, got %d", l.NrDone())
	}
}

// Invariant 3: barrier_nr_done strictly monotonic across successive releases.
func TestBarrierNrDoneMonotonic(t *testing.T) {
	l := New[int](16)
	var last uint64
	for i := 0; i < 5; i++ {
		l.Add(i)
		bn, _ := l.AddBarrier()
		epoch, err := l.Release(bn, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(epoch) != 1 || epoch[0] != i {
			t.Fatalf("round %d: unexpected epoch %v", i, epoch)
		}
		if bn <= last {
			t.Fatalf("round %d: barrier_nr not strictly increasing: %d <= %d", i, bn, last)
		}
		last = bn
		if l.NrDone() != bn {
			t.Fatalf("round %d: nr_done=%d want %d", i, l.NrDone(), bn)
		}
	}
}

// Scenario S5: set_size mismatch is a logged protocol error; nr_done still
// advances and the ring is not left corrupted for subsequent use.
func TestReleaseSetSizeMismatch(t *testing.T) {
	l := New[int](16)
	l.Add(10)
	l.Add(20)
	l.Add(30)
	l.Add(40)
	bn, _ := l.AddBarrier()
	_, err := l.Release(bn, 3)
	if err == nil {
		t.Fatal("expected set_size mismatch error")
	}
	if l.NrDone() != bn {
		t.Fatalf("expected nr_done to still advance to %d, got %d", bn, l.NrDone())
	}
	// Ring should be back to empty and usable.
	if l.Len() != 0 {
		t.Fatalf("expected ring drained, len=%d", l.Len())
	}
	if err := l.Add(50); err != nil {
		t.Fatalf("ring should still accept submissions after a mismatch: %v", err)
	}
}

// Invariant 7: dependence returns true iff the request was found in the
// current epoch; on true, a subsequent walk finds that slot EMPTY (i.e. a
// second Dependence call for the same handle, or a Release, no longer sees it).
func TestDependenceFindsWithinEpoch(t *testing.T) {
	l := New[int](16)
	l.Add(1)
	l.Add(2)
	if !l.Dependence(2) {
		t.Fatal("expected to find handle 2 in the current (barrier-less) epoch")
	}
	if l.Dependence(2) {
		t.Fatal("expected second Dependence call to miss: slot should now be EMPTY")
	}

	bn, _ := l.AddBarrier()
	epoch, err := l.Release(bn, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(epoch) != 1 || epoch[0] != 1 {
		t.Fatalf("expected only handle 1 to survive in the epoch, got %v", epoch)
	}
}

func TestDependenceStopsAtBarrier(t *testing.T) {
	l := New[int](16)
	l.Add(1)
	l.AddBarrier()
	l.Add(2)
	if l.Dependence(1) {
		t.Fatal("handle 1 is in a prior epoch across a barrier boundary: should not be found")
	}
	if !l.Dependence(2) {
		t.Fatal("handle 2 is in the current epoch: should be found")
	}
}

func TestClearReturnsPendingAndReinitializes(t *testing.T) {
	l := New[int](16)
	l.Add(1)
	l.Add(2)
	l.AddBarrier()
	l.Add(3)

	pending := l.Clear()
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending entries, got %v", pending)
	}
	if l.Len() != 0 {
		t.Fatalf("expected ring reinitialized to empty, len=%d", l.Len())
	}
	if err := l.Add(100); err != nil {
		t.Fatalf("ring should be usable after Clear: %v", err)
	}
}

func TestAddFullRing(t *testing.T) {
	l := New[int](2)
	if err := l.Add(1); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(2); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(3); err == nil {
		t.Fatal("expected resource-exhausted error on a full ring")
	}
}
