package worker

import (
	"sync"

	"github.com/mirrorblock/replicad/request"
)

// PendingTable is the default idLookup: a mutex-guarded map from wire
// block_id to the in-flight Request awaiting that id's ack. Grounded on the
// teacher's reb/ack-tracking maps (per-object refcounts keyed by name);
// here keyed by the wire protocol's own per-request id instead.
type PendingTable struct {
	mu sync.Mutex
	m  map[uint64]*request.Request
}

func NewPendingTable() *PendingTable {
	return &PendingTable{m: make(map[uint64]*request.Request)}
}

func (t *PendingTable) Track(blockID uint64, r *request.Request) {
	t.mu.Lock()
	t.m[blockID] = r
	t.mu.Unlock()
}

func (t *PendingTable) Lookup(blockID uint64) (*request.Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.m[blockID]
	return r, ok
}

func (t *PendingTable) Forget(blockID uint64) {
	t.mu.Lock()
	delete(t.m, blockID)
	t.mu.Unlock()
}
