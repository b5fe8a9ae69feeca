package worker

import (
	"context"
	"time"

	"github.com/mirrorblock/replicad/cmn"
	"github.com/mirrorblock/replicad/cmn/nlog"
	"github.com/mirrorblock/replicad/device"
	"github.com/mirrorblock/replicad/request"
	"github.com/mirrorblock/replicad/wire"
)

// idLookup resolves a wire block_id back to the in-flight Request it
// belongs to; the transfer log holds the authoritative set but is a ring
// indexed by arrival order, not by id, so the asender keeps its own small
// side index exactly as long as a request is outstanding.
type idLookup interface {
	Lookup(blockID uint64) (*request.Request, bool)
	Forget(blockID uint64)
}

// Asender parses frames off the meta channel: BarrierAck releases an
// epoch from the transfer log, WriteAck/RecvAck/NegAck drive __req_mod,
// and it owns the ping/ping-ack and ack-timeout watchdog (spec §4.G).
type Asender struct {
	Dev     *device.Device
	Pending idLookup

	lastAck time.Time
}

func (a *Asender) Name() string { return "asender" }

func (a *Asender) Run(ctx context.Context) error {
	a.lastAck = time.Now()
	watchdog := time.NewTicker(cmn.GCO.Get().Timeout)
	defer watchdog.Stop()

	frames := make(chan struct {
		cmd  wire.Command
		body []byte
	})
	errs := make(chan error, 1)
	go func() {
		for {
			cmd, body, err := a.Dev.Peer.Meta.Recv()
			if err != nil {
				errs <- err
				return
			}
			frames <- struct {
				cmd  wire.Command
				body []byte
			}{cmd, body}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			nlog.Warningf("asender: meta channel read failed: %v", err)
			return err
		case <-watchdog.C:
			a.checkTimeouts()
		case f := <-frames:
			a.dispatch(f.cmd, f.body)
		}
	}
}

func (a *Asender) dispatch(cmd wire.Command, body []byte) {
	switch cmd {
	case wire.CmdBarrierAck:
		ack, err := wire.DecodeBarrierAck(body)
		if err != nil {
			nlog.Errorf("asender: malformed BarrierAck: %v", err)
			return
		}
		a.handleBarrierAck(ack)

	case wire.CmdWriteAck, wire.CmdRecvAck, wire.CmdNegAck:
		ack, err := wire.DecodeBlockAck(body)
		if err != nil {
			nlog.Errorf("asender: malformed %v: %v", cmd, err)
			return
		}
		a.handleBlockAck(cmd, ack)

	case wire.CmdPing:
		if err := a.Dev.Peer.Meta.Send(wire.CmdPingAck, nil); err != nil {
			nlog.Warningf("asender: ping-ack send failed: %v", err)
		}

	case wire.CmdPingAck:
		// liveness only; nothing is updated (not even lastAck).

	default:
		nlog.Warningf("asender: unexpected command on meta channel: %v", cmd)
	}
}

func (a *Asender) handleBarrierAck(ack wire.BarrierAck) {
	released, err := a.Dev.TL.Release(uint64(ack.BarrierNr), int(ack.SetSize))
	if err != nil {
		nlog.Criticalf("asender: tl_release(%d, %d) failed: %v", ack.BarrierNr, ack.SetSize, err)
		return
	}
	a.Dev.Lock()
	for _, r := range released {
		if r == nil {
			continue
		}
		a.Dev.Mach.ReqMod(r, request.BarrierAcked)
	}
	a.Dev.Unlock()
	a.lastAck = time.Now()
}

func (a *Asender) handleBlockAck(cmd wire.Command, ack wire.BlockAck) {
	if ack.BlockID == wire.IDSyncer {
		return // resync acks never touch the transfer log or __req_mod
	}
	if a.Pending == nil {
		return
	}
	r, ok := a.Pending.Lookup(ack.BlockID)
	if !ok {
		nlog.Warningf("asender: ack for unknown block_id %d: protocol error, ignoring", ack.BlockID)
		return
	}
	a.Pending.Forget(ack.BlockID)

	var ev request.Event
	switch cmd {
	case wire.CmdWriteAck:
		ev = request.WriteAckedByPeer
	case wire.CmdRecvAck:
		ev = request.RecvAckedByPeer
	case wire.CmdNegAck:
		ev = request.NegAcked
	}

	a.Dev.Lock()
	a.Dev.Mach.ReqMod(r, ev)
	a.Dev.Unlock()
	a.Dev.AddUnacked(-1)
	a.lastAck = time.Now()
}

// checkTimeouts implements the per-device ack-timeout watchdog (spec §5):
// if nothing has been acked for ko_count*timeout while a peer-ack is still
// outstanding, the connection transitions to Timeout.
func (a *Asender) checkTimeouts() {
	outstanding := a.Dev.Mach.PeerPending()
	if outstanding == 0 {
		return
	}
	cfg := cmn.GCO.Get()
	deadline := time.Duration(cfg.KoCount) * cfg.Timeout
	if time.Since(a.lastAck) > deadline {
		nlog.Errorf("asender: no ack in %v with %d requests awaiting a peer ack, declaring connection timed out", deadline, outstanding)
		a.Dev.SetCState(device.Timeout)
	}
}
