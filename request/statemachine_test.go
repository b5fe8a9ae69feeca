package request

import (
	"testing"
	"time"

	"github.com/mirrorblock/replicad/bitmap"
	"github.com/mirrorblock/replicad/cmn"
)

func newMachine(proto cmn.Protocol, bm *bitmap.Bitmap) *Machine {
	epoch := uint64(1)
	return &Machine{
		Protocol:     proto,
		Bitmap:       bm,
		Ln2BlockSize: 12,
		CurrentEpoch: func() uint64 { return epoch },
		RequestNewEpoch: func() {
			epoch++
		},
	}
}

// S1: protocol C happy path — submit locally and over the network, both
// sides complete OK, barrier acked, request reaches DONE with a clean
// bitmap range.
func TestProtocolCHappyPath(t *testing.T) {
	bm := bitmap.New(16)
	bm.SetRange(0, 1, 12, bitmap.InSync) // start clean: only failures dirty a block
	m := newMachine(cmn.ProtocolC, bm)
	r := New(1, 0, 4096, Write, nil, 1, time.Now())

	m.ReqMod(r, ToBeSubmitted)
	out := m.ReqMod(r, ToBeSent)
	if out.Signaled || out.Done {
		t.Fatalf("request should still be pending: %+v", out)
	}
	if !r.Flags.Has(ExpWriteAck) {
		t.Fatal("protocol C must expect a write ack")
	}

	m.ReqMod(r, QueueForNetWrite)
	out = m.ReqMod(r, HandedOverToNetwork)
	if out.Done {
		t.Fatal("protocol C must not complete on HANDED_OVER_TO_NETWORK alone")
	}

	out = m.ReqMod(r, CompletedOK) // local disk write done
	if out.Done {
		t.Fatal("still waiting on the peer's write ack")
	}

	out = m.ReqMod(r, WriteAckedByPeer)
	if !out.Signaled || !out.OK {
		t.Fatalf("expected a successful completion, got %+v", out)
	}

	out = m.ReqMod(r, BarrierAcked)
	if !out.Done {
		t.Fatalf("the barrier ack must finish the request: %+v", out)
	}
	if bm.Test(0, 12) {
		t.Fatal("a fully acked write must not leave the block dirty")
	}
}

// S2: protocol A expects no per-block ack — HANDED_OVER_TO_NETWORK clears
// NET_PENDING, so the request completes as soon as the local write finishes,
// and the barrier ack then finishes it with a clean bitmap range.
func TestProtocolAAsyncCompletesOnSend(t *testing.T) {
	bm := bitmap.New(16)
	bm.SetRange(0, 1, 12, bitmap.InSync) // start clean: only failures dirty a block
	m := newMachine(cmn.ProtocolA, bm)
	r := New(2, 0, 4096, Write, nil, 1, time.Now())

	m.ReqMod(r, ToBeSubmitted)
	m.ReqMod(r, ToBeSent)
	if r.Flags.Has(ExpWriteAck) || r.Flags.Has(ExpReceiveAck) {
		t.Fatal("protocol A expects no ack at all")
	}

	m.ReqMod(r, QueueForNetWrite)
	out := m.ReqMod(r, HandedOverToNetwork)
	if out.Done {
		t.Fatal("local disk completion still outstanding")
	}

	out = m.ReqMod(r, CompletedOK)
	if !out.Signaled || !out.OK {
		t.Fatalf("protocol A should complete once local IO and the send both finish: %+v", out)
	}

	out = m.ReqMod(r, BarrierAcked)
	if !out.Done {
		t.Fatalf("the barrier ack must finish the request: %+v", out)
	}
	if bm.Test(0, 12) {
		t.Fatal("net and local both OK: block must be clean")
	}
}

// Invariant 2: any termination that isn't (LOCAL_OK && NET_OK) must leave
// the affected blocks marked out-of-sync.
func TestIncompleteWriteMarksBlockDirty(t *testing.T) {
	bm := bitmap.New(16)
	bm.SetRange(0, 1, 12, bitmap.InSync) // start clean to prove the transition
	m := newMachine(cmn.ProtocolC, bm)
	r := New(3, 0, 4096, Write, nil, 1, time.Now())

	m.ReqMod(r, ToBeSubmitted)
	m.ReqMod(r, ToBeSent)
	m.ReqMod(r, QueueForNetWrite)
	m.ReqMod(r, HandedOverToNetwork)
	m.ReqMod(r, CompletedOK)
	out := m.ReqMod(r, ConnectionLostWhilePending)
	if !out.Signaled || !out.OK {
		t.Fatalf("the local write succeeded, so the completion reports success while the block is marked out-of-sync: %+v", out)
	}
	if !out.Done {
		t.Fatal("no more network activity is possible, request should be done")
	}
	if !bm.Test(0, 12) {
		t.Fatal("peer never confirmed the write: block must be marked out-of-sync")
	}
}

// Invariant: clearNetPending must decrement peerPending exactly once per
// NET_PENDING exit, however many events subsequently fire.
func TestClearNetPendingDecrementsOnce(t *testing.T) {
	m := newMachine(cmn.ProtocolB, nil)
	r := New(4, 0, 4096, Write, nil, 1, time.Now())

	m.ReqMod(r, ToBeSubmitted)
	m.ReqMod(r, ToBeSent)
	if got := m.PeerPending(); got != 1 {
		t.Fatalf("peerPending = %d, want 1", got)
	}

	m.ReqMod(r, QueueForNetWrite)
	m.ReqMod(r, HandedOverToNetwork)
	m.ReqMod(r, RecvAckedByPeer)
	if got := m.PeerPending(); got != 0 {
		t.Fatalf("peerPending = %d, want 0 after the ack", got)
	}

	// A stray duplicate ack must not drive the counter negative.
	m.clearNetPending(r)
	if got := m.PeerPending(); got != 0 {
		t.Fatalf("peerPending = %d, want 0 after a redundant clear", got)
	}
}

// A WRITE_ACKED_BY_PEER arriving without EXP_WRITE_ACK set (protocol error)
// must be logged and ignored rather than corrupting rq_state.
func TestProtocolErrorAckIgnored(t *testing.T) {
	m := newMachine(cmn.ProtocolA, nil) // protocol A never sets ExpWriteAck
	r := New(5, 0, 4096, Write, nil, 1, time.Now())

	m.ReqMod(r, ToBeSubmitted)
	m.ReqMod(r, ToBeSent)
	m.ReqMod(r, QueueForNetWrite)
	m.ReqMod(r, HandedOverToNetwork)

	before := r.Flags
	m.ReqMod(r, WriteAckedByPeer)
	if r.Flags != before {
		t.Fatalf("an unexpected write ack must not change flags: before=%v after=%v", before, r.Flags)
	}
}

// A read never touches the network; req_may_be_done must not wait on
// NET_* flags that will never be set.
func TestLocalOnlyReadCompletesWithoutNetworkActivity(t *testing.T) {
	m := newMachine(cmn.ProtocolC, nil)
	r := New(6, 0, 4096, Read, nil, 1, time.Now())

	m.ReqMod(r, ToBeSubmitted)
	out := m.ReqMod(r, CompletedOK)
	if !out.Signaled || !out.OK || !out.Done {
		t.Fatalf("a purely local read must complete on its own: %+v", out)
	}
}

// A request is never signaled twice even if evaluate is reentered.
func TestSignaledOnlyOnce(t *testing.T) {
	m := newMachine(cmn.ProtocolA, nil)
	r := New(7, 0, 4096, Read, nil, 1, time.Now())

	m.ReqMod(r, ToBeSubmitted)
	out1 := m.ReqMod(r, CompletedOK)
	out2 := m.evaluate(r)
	if !out1.Signaled {
		t.Fatal("first completion must signal")
	}
	if out2.Signaled {
		t.Fatal("re-evaluating an already-signaled request must not signal again")
	}
}
