// Package device implements the per-exported-block-device state: the
// replication-state variable, role, resource counters, and the collaborators
// (bitmap, metadata, transfer log, transport pair) a Device owns.
//
// Grounded on the teacher's cluster.Bck / fs.Mountpath pattern of a single
// struct that owns a handful of sub-components behind one set of locks, and
// on xact/xs/tcb.go for the "one long-lived struct with atomic counters plus
// a config snapshot" shape.
package device

import (
	"sync"

	"github.com/mirrorblock/replicad/bitmap"
	"github.com/mirrorblock/replicad/cmn"
	"github.com/mirrorblock/replicad/cmn/atomic"
	"github.com/mirrorblock/replicad/meta"
	"github.com/mirrorblock/replicad/request"
	"github.com/mirrorblock/replicad/transport"
	"github.com/mirrorblock/replicad/translog"
)

// CState is the device-wide connection/replication state (spec §3).
type CState int32

const (
	Unconfigured CState = iota
	StandAlone
	Unconnected
	WFReportParams
	Connected
	SyncSource
	SyncTarget
	Timeout
	BrokenPipe
)

func (s CState) String() string {
	names := [...]string{
		"Unconfigured", "StandAlone", "Unconnected", "WFReportParams",
		"Connected", "SyncSource", "SyncTarget", "Timeout", "BrokenPipe",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "Unknown"
}

// Role is the local node's role; only Primary accepts upper-layer writes.
type Role int32

const (
	Secondary Role = iota
	Primary
)

func (r Role) String() string {
	if r == Primary {
		return "Primary"
	}
	return "Secondary"
}

// ConnRepState is the peer connection's replication sub-state, used by the
// submission path's should-do-remote / should-send-out-of-sync decisions
// (spec §4.F step 8). Ordered so that WFBitmapT <= x < Ahead is a valid
// range comparison, mirroring the ordering the original state enum relies on.
type ConnRepState int32

const (
	RepWFBitmapS ConnRepState = iota
	RepWFBitmapT
	RepConnected
	RepAhead
)

// Target is the backing block store: an external collaborator the core
// never implements, only calls into (spec §1/§6 upper-layer block interface,
// the mirror image of this device's own make_request entrypoint).
type Target interface {
	ReadAt(p []byte, sector uint64) (int, error)
	WriteAt(p []byte, sector uint64) (int, error)
}

// Tracker resolves a wire block_id back to the *request.Request awaiting its
// ack, so the asender's WriteAck/RecvAck/NegAck dispatch (worker package) can
// find the request __req_mod must be called on. worker.PendingTable
// implements this same shape; it lives in the worker package to avoid an
// import cycle (worker already imports device), so MakeRequest only ever
// sees it through this interface.
type Tracker interface {
	Track(blockID uint64, r *request.Request)
	Forget(blockID uint64)
}

// PeerConn bundles one peer's transport and the book-keeping the submission
// path and asender need about that peer's disk and replication state.
type PeerConn struct {
	Data *transport.Channel
	Meta *transport.Channel

	DiskUpToDate    bool
	DiskInconsistent bool
	RepState        ConnRepState

	apInFlight atomic.Int64 // bytes this peer has outstanding, unacked
	rsPending  atomic.Int64 // resync blocks still queued to this peer
}

func (p *PeerConn) APInFlight() int64 { return p.apInFlight.Load() }
func (p *PeerConn) RSPending() int64  { return p.rsPending.Load() }

// ShouldDoRemote implements drbd_should_do_remote (spec §4.F step 8).
func (p *PeerConn) ShouldDoRemote() bool {
	if p.DiskUpToDate {
		return true
	}
	return p.DiskInconsistent && p.RepState >= RepWFBitmapT && p.RepState < RepAhead
}

// ShouldSendOutOfSync implements drbd_should_send_out_of_sync (spec §4.F step 8).
func (p *PeerConn) ShouldSendOutOfSync() bool {
	return p.RepState == RepAhead || p.RepState == RepWFBitmapS
}

// Device is one replicated block device (spec §3).
type Device struct {
	Minor  int
	Target Target

	Bitmap *bitmap.Bitmap
	Meta   *meta.Store
	TL     *translog.Log[*request.Request]
	Mach   *request.Machine

	Peer *PeerConn // single-peer model; see DESIGN.md for the multi-peer open question

	// AckTracker resolves outstanding block_ids back to their Request; nil
	// disables ack-driven completion (e.g. a device with no peer). Set by
	// the caller that also builds the asender sharing the same table.
	AckTracker Tracker

	// reqLock is spec's req_lock: the lock under which rq_state and
	// current_tle_* are mutated. The transfer log guards its own cursors
	// with its internal mutex; TL.Release is called without reqLock.
	reqLock sync.Mutex

	// sendMutex serialises writers on the data channel AND must be held
	// for the single critical section that appends a BARRIER to the
	// transfer log and writes it on the wire (spec §5).
	sendMutex sync.Mutex

	cstate atomic.Int32
	role   atomic.Int32

	currentTLE       uint64
	currentTLEWrites int

	apInFlight atomic.Int64
	pending    atomic.Int64
	unacked    atomic.Int64

	conflicts *writeIntervals

	roundRobinToggle atomic.Bool
	stripeShift      uint
	ln2BlockSize     uint
}

// New constructs a Device with its collaborators wired together; callers
// supply the backing target and peer, both external to the core.
func New(minor int, target Target, metaDir string, tlCapacity int, nbits uint64, ln2BlockSize uint, peer *PeerConn) *Device {
	bm := bitmap.New(nbits)
	d := &Device{
		Minor:        minor,
		Target:       target,
		Bitmap:       bm,
		Meta:         meta.NewStore(metaDir, minor),
		TL:           translog.New[*request.Request](tlCapacity),
		Peer:         peer,
		conflicts:    newWriteIntervals(),
		ln2BlockSize: ln2BlockSize,
		currentTLE:   1,
	}
	d.cstate.Store(int32(Unconfigured))
	d.role.Store(int32(Secondary))
	d.Mach = &request.Machine{
		Protocol:     cmn.GCO.Get().Protocol,
		Bitmap:       bm,
		Ln2BlockSize: ln2BlockSize,
		CurrentEpoch: func() uint64 { return d.currentEpochSnapshot() },
		RequestNewEpoch: func() {
			d.reqLock.Lock()
			d.currentTLE++
			d.currentTLEWrites = 0
			d.reqLock.Unlock()
		},
	}
	return d
}

func (d *Device) currentEpochSnapshot() uint64 {
	d.reqLock.Lock()
	defer d.reqLock.Unlock()
	return d.currentTLE
}

// CurrentEpoch is the live transfer-log epoch ordinal (current_tle_nr).
func (d *Device) CurrentEpoch() uint64 { return d.currentEpochSnapshot() }

func (d *Device) CState() CState { return CState(d.cstate.Load()) }
func (d *Device) SetCState(s CState) { d.cstate.Store(int32(s)) }

func (d *Device) Role() Role { return Role(d.role.Load()) }
func (d *Device) SetRole(r Role) { d.role.Store(int32(r)) }

func (d *Device) APInFlight() int64 { return d.apInFlight.Load() }
func (d *Device) Pending() int64    { return d.pending.Load() }
func (d *Device) Unacked() int64    { return d.unacked.Load() }

// Lock/Unlock expose req_lock to the worker package's receiver/asender/
// syncer tasks, which must hold it around every ReqMod call just like the
// submission path does (spec §5).
func (d *Device) Lock()   { d.reqLock.Lock() }
func (d *Device) Unlock() { d.reqLock.Unlock() }

// SendMutex exposes the data-channel send-mutex so the syncer can serialize
// its resync writes against foreground sends (spec §5).
func (d *Device) SendMutex() *sync.Mutex { return &d.sendMutex }

// Ln2BlockSize is the device's bitmap/request granularity.
func (d *Device) Ln2BlockSize() uint { return d.ln2BlockSize }

// AddAPInFlight adjusts the ap_in_flight counter; used by worker tasks when
// foreground writes leave or rejoin flight outside MakeRequest's own path
// (e.g. a resend after reconnection).
func (d *Device) AddAPInFlight(delta int64) { d.apInFlight.Add(delta) }

// AddUnacked adjusts the count of tracked requests awaiting a peer ack; the
// asender decrements it once per block ack it dispatches.
func (d *Device) AddUnacked(delta int64) { d.unacked.Add(delta) }
