package device

import "sync"

// writeIntervals tracks in-flight write sector ranges so MakeRequest can
// block a new write until any overlapping write completes (spec §4.F step
// 3: "wait on a condition variable until there is no overlapping interval in
// the write-request tree"). A flat slice plus linear overlap scan replaces
// the original interval tree; device-local write concurrency is modest
// enough that this never shows up as a bottleneck, and it keeps the
// conflict-resolution logic trivially auditable.
type writeIntervals struct {
	mu      sync.Mutex
	cond    *sync.Cond
	waiting map[uint64]bool // interval start -> some waiter is blocked on it
	spans   []span
}

type span struct {
	start, end uint64 // [start, end) in sectors
}

func newWriteIntervals() *writeIntervals {
	wi := &writeIntervals{waiting: make(map[uint64]bool)}
	wi.cond = sync.NewCond(&wi.mu)
	return wi
}

func (w *writeIntervals) overlaps(s span) bool {
	for _, existing := range w.spans {
		if s.start < existing.end && existing.start < s.end {
			return true
		}
	}
	return false
}

// Acquire blocks until [sector, sector+size) doesn't overlap any
// currently-held write span, then reserves it. size is a byte length in the
// same unit as sector (request.Request.Size), not a block count — a span
// built from a block count would under-cover any write whose size isn't
// exactly one block, letting genuinely overlapping writes through.
func (w *writeIntervals) Acquire(sector, size uint64) {
	s := span{start: sector, end: sector + size}
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.overlaps(s) {
		w.waiting[s.start] = true
		w.cond.Wait()
	}
	delete(w.waiting, s.start)
	w.spans = append(w.spans, s)
}

// Release frees a span and wakes any waiters, since any waiter might now be
// unblocked (we don't track which waiter wanted which span).
func (w *writeIntervals) Release(sector, size uint64) {
	s := span{start: sector, end: sector + size}
	w.mu.Lock()
	for i, existing := range w.spans {
		if existing == s {
			w.spans = append(w.spans[:i], w.spans[i+1:]...)
			break
		}
	}
	hadWaiters := len(w.waiting) > 0
	w.mu.Unlock()
	if hadWaiters {
		w.cond.Broadcast()
	}
}
