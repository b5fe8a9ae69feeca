// Package translog implements the transfer log (spec §4.C): an ordered
// ring of in-flight write requests, partitioned into epochs by BARRIER
// markers, giving ordering, barrier acknowledgement, and crash/disconnect
// replay.
//
// The log is generic over the request handle type so that it has no
// compile-time dependency on package request — the same arena+index relationship
// spec §9 calls for ("Device owns TransferLog, which holds borrowed
// handles to Request... model this as arena+index").
//
// Grounded on the teacher's stream_bundle round-robin ring accounting
// (transport/bundle) generalized from "pick next destination" to
// "pop next completed span", and on aistore's rebManager ack bookkeeping
// (rebStageWaitAck) for the begin/end-cursor-plus-counter idiom.
package translog

import (
	"sync"

	"github.com/mirrorblock/replicad/cmn"
	"github.com/mirrorblock/replicad/cmn/nlog"
)

type slotKind uint8

const (
	slotEmpty slotKind = iota
	slotEntry
	slotBarrier
)

type slot[T comparable] struct {
	kind   slotKind
	handle T
}

// Log is the transfer-log ring. T is the caller's request-handle type
// (typically an arena index).
type Log[T comparable] struct {
	mu       sync.RWMutex
	ring     []slot[T]
	cap      int
	begin    int // index of the oldest un-acked slot
	end      int // index of the next free slot
	size     int // number of occupied slots (entries + barriers)
	nrIssue  uint64
	nrDone   uint64
}

// New allocates a ring of the given capacity (spec: "sized at configuration time").
func New[T comparable](capacity int) *Log[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Log[T]{ring: make([]slot[T], capacity), cap: capacity}
}

// Full reports whether the ring has no free slot. Callers must bound
// submissions via ap_in_flight so this never gates progress (spec §4.C).
func (l *Log[T]) Full() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size == l.cap
}

func (l *Log[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Add appends a request handle at end (spec §4.C add(req)).
func (l *Log[T]) Add(handle T) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == l.cap {
		nlog.Criticalf("translog: ring full (cap=%d): submission was not bounded by ap_in_flight", l.cap)
		return cmn.ErrResourceExhausted
	}
	l.ring[l.end] = slot[T]{kind: slotEntry, handle: handle}
	l.end = (l.end + 1) % l.cap
	l.size++
	return nil
}

// AddBarrier appends a BARRIER marker and returns its ordinal. MUST be
// called with the caller's send-mutex held, so the in-log order matches
// the on-wire order (spec §4.C).
func (l *Log[T]) AddBarrier() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == l.cap {
		nlog.Criticalf("translog: ring full (cap=%d) adding barrier", l.cap)
		return 0, cmn.ErrResourceExhausted
	}
	l.ring[l.end] = slot[T]{kind: slotBarrier}
	l.end = (l.end + 1) % l.cap
	l.size++
	l.nrIssue++
	return l.nrIssue, nil
}

// Release pops from begin up to and including the next BARRIER; the popped
// span (excluding the barrier itself) is one epoch (spec §4.C release()).
func (l *Log[T]) Release(barrierNr uint64, setSize int) ([]T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var epoch []T
	popped := 0
	for {
		if l.size == 0 {
			nlog.Criticalf("translog: ring drained before reaching BARRIER %d (set_size=%d, popped=%d)", barrierNr, setSize, popped)
			return epoch, cmn.WrapProtocol("translog: ring exhausted before barrier %d", barrierNr)
		}
		s := l.ring[l.begin]
		l.ring[l.begin] = slot[T]{}
		l.begin = (l.begin + 1) % l.cap
		l.size--

		if s.kind == slotBarrier {
			l.nrDone = barrierNr
			break
		}
		if s.kind == slotEntry {
			epoch = append(epoch, s.handle)
			popped++
		}
		// slotEmpty: already consumed by Dependence(); nothing to collect.
	}

	if popped != setSize {
		nlog.Criticalf("translog: barrier %d set_size mismatch: popped=%d reported=%d", barrierNr, popped, setSize)
		return epoch, cmn.WrapProtocol("translog: barrier %d set_size mismatch (popped=%d, reported=%d)", barrierNr, popped, setSize)
	}
	return epoch, nil
}

// NrDone returns the last barrier ordinal released, for the strict
// monotonicity check in spec invariant 3.
func (l *Log[T]) NrDone() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nrDone
}

// Dependence walks back from end toward begin stopping at the first
// BARRIER or begin; if handle is found before that boundary it returns
// true and marks the slot EMPTY (spec §4.C dependence()). Called from
// I/O-completion context; only ever mutates one slot to EMPTY, a monotone
// transition that safely races with readers, so it takes the read lock.
func (l *Log[T]) Dependence(handle T) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.size == 0 {
		return false
	}
	i := (l.end - 1 + l.cap) % l.cap
	for n := 0; n < l.size; n++ {
		s := l.ring[i]
		if s.kind == slotBarrier {
			return false
		}
		if s.kind == slotEntry && s.handle == handle {
			l.ring[i] = slot[T]{kind: slotEmpty}
			return true
		}
		if i == l.begin {
			break
		}
		i = (i - 1 + l.cap) % l.cap
	}
	return false
}

// Clear implements spec §4.C clear(): upper-layer disconnect cleanup.
// Returns every non-BARRIER/non-EMPTY handle still in the ring (the caller
// marks their sector ranges out-of-sync and, for protocol B/C requests
// still awaiting a peer ack, forces a synthetic "sent" completion) and then
// reinitializes the ring.
func (l *Log[T]) Clear() []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pending []T
	i := l.begin
	for n := 0; n < l.size; n++ {
		if l.ring[i].kind == slotEntry {
			pending = append(pending, l.ring[i].handle)
		}
		i = (i + 1) % l.cap
	}

	l.ring = make([]slot[T], l.cap)
	l.begin, l.end, l.size = 0, 0, 0
	return pending
}
