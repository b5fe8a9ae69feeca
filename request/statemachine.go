package request

import (
	"github.com/mirrorblock/replicad/bitmap"
	"github.com/mirrorblock/replicad/cmn"
	"github.com/mirrorblock/replicad/cmn/atomic"
	"github.com/mirrorblock/replicad/cmn/debug"
	"github.com/mirrorblock/replicad/cmn/nlog"
)

// Event is one of the exhaustive transitions spec §4.E groups into
// submission / sender-thread / local-endio / peer-ack / connection events.
type Event int

const (
	// Submission.
	ToBeSent Event = iota
	ToBeSubmitted
	QueueForNetRead
	QueueForNetWrite
	QueueForSendOOS

	// Sender-thread.
	SendCanceled
	SendFailed
	HandedOverToNetwork
	OOSHandedToNetwork
	ReadRetryRemoteCanceled

	// Local endio.
	CompletedOK
	WriteCompletedWithError
	ReadCompletedWithError
	ReadAheadCompletedWithError
	AbortDiskIO

	// Peer-ack.
	WriteAckedByPeer
	WriteAckedByPeerAndSIS
	RecvAckedByPeer
	NegAcked
	PostponeWrite
	DiscardWrite
	DataReceived
	BarrierAcked

	// Connection.
	ConnectionLostWhilePending
	Resend
	FailFrozenDiskIO
	RestartFrozenDiskIO
)

func (e Event) String() string {
	names := [...]string{
		"TO_BE_SENT", "TO_BE_SUBMITTED", "QUEUE_FOR_NET_READ", "QUEUE_FOR_NET_WRITE", "QUEUE_FOR_SEND_OOS",
		"SEND_CANCELED", "SEND_FAILED", "HANDED_OVER_TO_NETWORK", "OOS_HANDED_TO_NETWORK", "READ_RETRY_REMOTE_CANCELED",
		"COMPLETED_OK", "WRITE_COMPLETED_WITH_ERROR", "READ_COMPLETED_WITH_ERROR", "READ_AHEAD_COMPLETED_WITH_ERROR", "ABORT_DISK_IO",
		"WRITE_ACKED_BY_PEER", "WRITE_ACKED_BY_PEER_AND_SIS", "RECV_ACKED_BY_PEER", "NEG_ACKED", "POSTPONE_WRITE", "DISCARD_WRITE", "DATA_RECEIVED", "BARRIER_ACKED",
		"CONNECTION_LOST_WHILE_PENDING", "RESEND", "FAIL_FROZEN_DISK_IO", "RESTART_FROZEN_DISK_IO",
	}
	if int(e) < len(names) {
		return names[e]
	}
	return "UNKNOWN_EVENT"
}

// Outcome reports what the caller (device/worker layer) must now do; it is
// the out_completion parameter of spec's __req_mod.
type Outcome struct {
	Signaled bool // upper-layer completion should be delivered now
	OK       bool // the result to deliver, valid iff Signaled
	Done     bool // req_may_be_done: safe to evict from the transfer log and free
	Requeue  bool // POSTPONED: re-dispatch instead of freeing
}

// Machine is the single owner of __req_mod. One Machine exists per Device;
// every call MUST be made with the device's req_lock held by the caller —
// the machine itself never locks, by design (spec §4.E: "A single function
// ... holds the request lock... the ONLY mutator of rq_state").
type Machine struct {
	Protocol cmn.Protocol
	Bitmap   *bitmap.Bitmap
	Ln2BlockSize uint

	// CurrentEpoch / RequestNewEpoch model spec's current_tle_nr: when a
	// completing write's epoch equals the live epoch, the machine asks the
	// caller (which owns the transfer log) to open a new one.
	CurrentEpoch     func() uint64
	RequestNewEpoch  func()

	peerPending atomic.Int64 // "unacked": requests awaiting a peer ack
	inFlight    atomic.Int64 // bytes in flight on the network
}

func (m *Machine) PeerPending() int64 { return m.peerPending.Load() }
func (m *Machine) InFlight() int64    { return m.inFlight.Load() }

// Evaluate re-runs req_may_be_completed/req_may_be_done without asserting a
// new event (the submission path's final step). A completion already
// reported by an earlier ReqMod call is not reported again: Signaled is set
// only on the call that first finds the request ready to complete.
func (m *Machine) Evaluate(r *Request) Outcome { return m.evaluate(r) }

func (m *Machine) clearNetPending(r *Request) {
	if r.Flags.Has(NetPending) {
		r.Flags.clear(NetPending)
		m.peerPending.Dec()
	}
}

// ReqMod is spec's __req_mod(req, event, out_completion): the sole mutator
// of rq_state.
func (m *Machine) ReqMod(r *Request, ev Event) Outcome {
	switch ev {
	case ToBeSent:
		r.Flags.set(NetPending)
		m.peerPending.Inc()
		switch m.Protocol {
		case cmn.ProtocolC:
			r.Flags.set(ExpWriteAck)
		case cmn.ProtocolB:
			r.Flags.set(ExpReceiveAck)
		}
		if r.Dir == Write {
			m.inFlight.Add(int64(r.Size))
		}

	case ToBeSubmitted:
		r.Flags.set(LocalPending)

	case QueueForNetRead, QueueForNetWrite, QueueForSendOOS:
		r.Flags.set(NetQueued)

	case SendCanceled:
		r.Flags.clear(NetQueued)
		m.clearNetPending(r)
		r.Flags.set(NetDone)

	case SendFailed:
		r.Flags.clear(NetQueued)
		m.deductInFlightIfSent(r)
		m.clearNetPending(r)
		r.Flags.set(NetDone)

	case HandedOverToNetwork:
		r.Flags.clear(NetQueued)
		r.Flags.set(NetSent)
		if !r.Flags.Has(ExpReceiveAck) && !r.Flags.Has(ExpWriteAck) {
			// Protocol A: asynchronous-complete the moment it's on the wire.
			m.clearNetPending(r)
			r.Flags.set(NetOK)
		}

	case OOSHandedToNetwork:
		// Out-of-sync notifications are fire-and-forget: no ack is awaited
		// and the packet never enters transfer-log accounting.
		r.Flags.clear(NetQueued)
		m.clearNetPending(r)
		r.Flags.set(NetDone)

	case ReadRetryRemoteCanceled:
		r.Flags.clear(NetQueued)
		m.clearNetPending(r)
		r.Flags.set(NetDone)

	case CompletedOK:
		r.Flags.clear(LocalPending)
		r.Flags.set(LocalCompleted | LocalOK)

	case WriteCompletedWithError, ReadCompletedWithError, ReadAheadCompletedWithError:
		r.Flags.clear(LocalPending)
		r.Flags.set(LocalCompleted)

	case AbortDiskIO:
		r.Flags.clear(LocalPending)
		r.Flags.set(LocalAborted)

	case WriteAckedByPeer, WriteAckedByPeerAndSIS:
		if !r.Flags.Has(ExpWriteAck) {
			nlog.Criticalf("request %d: WRITE_ACKED_BY_PEER without EXP_WRITE_ACK: protocol error, ignoring", r.ID)
			break
		}
		m.clearNetPending(r)
		r.Flags.set(NetOK)
		m.deductInFlightIfSent(r)
		if ev == WriteAckedByPeerAndSIS {
			r.Flags.set(NetSIS)
		}

	case RecvAckedByPeer:
		if !r.Flags.Has(ExpReceiveAck) {
			nlog.Criticalf("request %d: RECV_ACKED_BY_PEER without EXP_RECEIVE_ACK: protocol error, ignoring", r.ID)
			break
		}
		m.clearNetPending(r)
		r.Flags.set(NetOK)
		m.deductInFlightIfSent(r)

	case NegAcked:
		r.Flags.clear(NetOK)
		m.clearNetPending(r)
		r.Flags.set(NetDone)

	case PostponeWrite:
		r.Flags.set(Postponed)

	case DiscardWrite:
		// Conflict-resolution discard (multi-primary, out of core scope per
		// spec §5, kept here so the event is total): neither half succeeds.
		r.Flags.clear(NetOK)
		m.clearNetPending(r)
		r.Flags.set(NetDone | LocalAborted)
		r.Flags.clear(LocalPending)

	case DataReceived:
		m.clearNetPending(r)
		r.Flags.set(NetOK)

	case BarrierAcked:
		if m.Protocol == cmn.ProtocolC {
			nlog.Criticalf("request %d: BARRIER_ACKED under protocol C is unexpected", r.ID)
		}
		if r.Flags.Has(NetPending) {
			nlog.Criticalf("request %d: BARRIER_ACKED while still NET_PENDING: protocol bug, forcing consistency", r.ID)
		}
		m.clearNetPending(r)
		r.Flags.set(NetDone)

	case ConnectionLostWhilePending:
		wasSent := r.Flags.Has(NetSent)
		r.Flags.clear(NetOK)
		m.clearNetPending(r)
		r.Flags.set(NetDone)
		if wasSent && r.Dir == Write {
			m.inFlight.Add(-int64(r.Size))
		}

	case Resend:
		if r.Flags.Has(NetOK) {
			// Arrived on B/C before the disconnect; only the barrier ack was
			// missing, so pretend it just happened.
			return m.ReqMod(r, BarrierAcked)
		}
		r.Flags.set(NetQueued)

	case FailFrozenDiskIO:
		r.Flags.clear(LocalPending)
		r.Flags.set(LocalCompleted)

	case RestartFrozenDiskIO:
		r.Flags.set(LocalPending)

	default:
		nlog.Criticalf("request %d: unhandled event %v: bug in the state mutator", r.ID, ev)
		return Outcome{}
	}

	return m.evaluate(r)
}

func (m *Machine) deductInFlightIfSent(r *Request) {
	if r.Flags.Has(NetSent) && r.Dir == Write {
		m.inFlight.Add(-int64(r.Size))
	}
}

// evaluate implements req_may_be_completed followed by req_may_be_done
// (spec §4.E).
func (m *Machine) evaluate(r *Request) Outcome {
	debug.Func(func() {
		debug.Assertf(!(r.Flags.Has(NetPending) && r.Flags.Has(NetDone)), "request %d: NET_PENDING and NET_DONE both set", r.ID)
	})

	gateOpen := r.Flags.Has(LocalPending) && !r.Flags.Has(LocalAborted)
	if gateOpen || r.Flags.Has(NetQueued) || r.Flags.Has(NetPending) {
		return Outcome{}
	}

	var out Outcome
	if !r.signaled && !r.Flags.Has(Postponed) {
		r.signaled = true
		out.Signaled = true
		out.OK = r.Flags.Has(LocalOK) || r.Flags.Has(NetOK)

		if r.Dir == Write && m.CurrentEpoch != nil && m.RequestNewEpoch != nil && r.Epoch == m.CurrentEpoch() {
			m.RequestNewEpoch()
		}
	}

	noNetActivity := r.Flags&NetMask == 0
	if (noNetActivity || r.Flags.Has(NetDone)) && (r.signaled || r.Flags.Has(Postponed)) && !r.Flags.Has(LocalPending) {
		out.Done = true
		if r.Flags.Has(Postponed) {
			out.Requeue = true
		}
		if r.Dir == Write && m.Bitmap != nil {
			blockNr := r.BlockNr(m.Ln2BlockSize)
			count := r.BlockCount(m.Ln2BlockSize)
			if !(r.Flags.Has(NetOK) && r.Flags.Has(LocalOK)) {
				m.Bitmap.SetRange(blockNr, count, m.Ln2BlockSize, bitmap.OutOfSync)
			} else if r.Flags.Has(NetSIS) {
				m.Bitmap.SetRange(blockNr, count, m.Ln2BlockSize, bitmap.InSync)
			}
		}
	}
	return out
}
