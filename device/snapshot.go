package device

import jsoniter "github.com/json-iterator/go"

var snapshotAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Snapshot is the read-only administrative status dump (SPEC_FULL.md §3):
// it never reaches into the write side of the administrative surface
// (bind/unbind, set role, ...), which stays an opaque external collaborator.
type Snapshot struct {
	Minor      int    `json:"minor"`
	CState     string `json:"cstate"`
	Role       string `json:"role"`
	APInFlight int64  `json:"ap_in_flight"`
	Pending    int64  `json:"pending"`
	Unacked    int64  `json:"unacked"`
	DirtyCount uint64 `json:"dirty_count"`
	Epoch      uint64 `json:"epoch"`
}

// Status builds the current snapshot and serializes it with jsoniter,
// matching the teacher's preference for jsoniter over encoding/json on
// every status/admin surface that isn't a fixed wire frame.
func (d *Device) Status() ([]byte, error) {
	s := Snapshot{
		Minor:      d.Minor,
		CState:     d.CState().String(),
		Role:       d.Role().String(),
		APInFlight: d.APInFlight(),
		Pending:    d.Pending(),
		Unacked:    d.Unacked(),
		DirtyCount: d.Bitmap.DirtyCount(),
		Epoch:      d.CurrentEpoch(),
	}
	return snapshotAPI.Marshal(s)
}
