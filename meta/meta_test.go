package meta

import (
	"os"
	"testing"
)

// Invariant 5: write-then-read yields the same six counters.
func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 0)

	want := Record{HumanCnt: 7, TimeoutCnt: 2, ConnectedCnt: 5, ArbitraryCnt: 1, PrimaryInd: 1, MagicNr: MagicNr}
	if err := s.Write(want); err != nil {
		t.Fatal(err)
	}
	got, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestReadMissingFileReinitializes(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 3)
	rec, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	want := freshRecord()
	if rec != want {
		t.Fatalf("got %+v, want fresh record %+v", rec, want)
	}
	if _, err := os.Stat(s.path); err != nil {
		t.Fatalf("expected Read to persist the fresh record: %v", err)
	}
}

func TestReadMagicMismatchReinitializes(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 1)
	bad := Record{HumanCnt: 99, TimeoutCnt: 99, ConnectedCnt: 99, ArbitraryCnt: 99, PrimaryInd: 1, MagicNr: 0xdeadbeef}
	raw := bad
	raw.MagicNr = 0xdeadbeef
	if err := s.Write(raw); err != nil {
		t.Fatal(err)
	}
	// Write() always stamps the correct MagicNr, so corrupt the file directly.
	f, err := os.OpenFile(s.path, os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteAt([]byte{0xde, 0xad, 0xbe, 0xef}, 20)
	f.Close()

	rec, err := s.Read()
	if err != nil {
		t.Fatal(err)
	}
	if rec != freshRecord() {
		t.Fatalf("got %+v, want fresh record on magic mismatch", rec)
	}
}

// Scenario S6: identical generation counters but local not-Consistent forces
// a full resync even though Compare reports a tie.
func TestSyncqOKCrashCase(t *testing.T) {
	local := Record{HumanCnt: 3, TimeoutCnt: 0, ConnectedCnt: 2, ArbitraryCnt: 0, PrimaryInd: 1, MagicNr: MagicNr}
	peer := Record{HumanCnt: 3, TimeoutCnt: 0, ConnectedCnt: 2, ArbitraryCnt: 0, PrimaryInd: 1, MagicNr: MagicNr}

	who := Compare(local, peer)
	if who != Tie {
		t.Fatalf("expected Tie, got %v", who)
	}
	if ok := SyncqOK(local, peer, false /*localConsistent*/, true, who); ok {
		t.Fatal("expected full resync (syncq not ok) when local is not consistent")
	}
}

func TestSyncqOKCleanShutdownAllowsPartial(t *testing.T) {
	// Peer is ahead (peer has good), but it shut down cleanly (PrimaryInd==0)
	// and the generation counters the loser remembers match the winner's.
	local := Record{HumanCnt: 3, TimeoutCnt: 0, ConnectedCnt: 2, ArbitraryCnt: 0, PrimaryInd: 0, MagicNr: MagicNr}
	peer := Record{HumanCnt: 3, TimeoutCnt: 0, ConnectedCnt: 3, ArbitraryCnt: 0, PrimaryInd: 0, MagicNr: MagicNr}

	who := Compare(local, peer)
	if who != PeerHasGood {
		t.Fatalf("expected PeerHasGood, got %v", who)
	}
	if ok := SyncqOK(local, peer, true, true, who); !ok {
		t.Fatal("expected partial resync to suffice for a clean handover")
	}
}

func TestSyncqOKCrashPromotionForcesFull(t *testing.T) {
	local := Record{HumanCnt: 3, TimeoutCnt: 0, ConnectedCnt: 2, ArbitraryCnt: 0, PrimaryInd: 1, MagicNr: MagicNr}
	peer := Record{HumanCnt: 3, TimeoutCnt: 0, ConnectedCnt: 3, ArbitraryCnt: 0, PrimaryInd: 1, MagicNr: MagicNr}

	who := Compare(local, peer)
	if who != PeerHasGood {
		t.Fatalf("expected PeerHasGood, got %v", who)
	}
	// Peer (authority) has PrimaryInd==1: crash-induced promotion, full resync required.
	if ok := SyncqOK(local, peer, true, true, who); ok {
		t.Fatal("expected full resync when authoritative side was crash-promoted")
	}
}
