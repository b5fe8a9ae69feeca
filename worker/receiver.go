package worker

import (
	"context"

	"github.com/mirrorblock/replicad/bitmap"
	"github.com/mirrorblock/replicad/cmn"
	"github.com/mirrorblock/replicad/cmn/nlog"
	"github.com/mirrorblock/replicad/device"
	"github.com/mirrorblock/replicad/wire"
)

// Receiver reads frames off the data channel (spec §4.G). Run handles Data
// frames only: each is written to the local backing device and acked on the
// meta channel. Run does not dispatch Barrier frames; a frame of any other
// command makes RecvData fail and ends Run with that error. HandleBarrier
// answers a Barrier, but Run does not call it.
type Receiver struct {
	Dev *device.Device

	epochWrites uint32 // non-resync Data frames handled since the last barrier
}

func (r *Receiver) Name() string { return "receiver" }

func (r *Receiver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		hdr, payload, err := r.Dev.Peer.Data.RecvData()
		if err != nil {
			nlog.Warningf("receiver: data channel read failed: %v", err)
			return err
		}
		r.handleData(hdr, payload)
	}
}

func (r *Receiver) handleData(hdr wire.DataHeader, payload []byte) {
	isSync := hdr.BlockID == wire.IDSyncer

	_, err := r.Dev.Target.WriteAt(payload, hdr.BlockNr<<r.Dev.Ln2BlockSize())

	if isSync {
		// Resync data is acked but never enters the transfer log (spec §6).
		ack := wire.BlockAck{BlockNr: hdr.BlockNr, BlockID: hdr.BlockID}
		cmd := wire.CmdWriteAck
		if err != nil {
			cmd = wire.CmdNegAck
		}
		if sendErr := r.Dev.Peer.Meta.Send(cmd, ack.Encode()); sendErr != nil {
			nlog.Warningf("receiver: failed to ack resync block %d: %v", hdr.BlockNr, sendErr)
		}
		return
	}
	r.epochWrites++

	if err != nil {
		r.Dev.Bitmap.SetRange(hdr.BlockNr, 1, r.Dev.Ln2BlockSize(), bitmap.OutOfSync)
		nlog.Errorf("receiver: local write for block %d failed: %v", hdr.BlockNr, err)
	}

	ack := wire.BlockAck{BlockNr: hdr.BlockNr, BlockID: hdr.BlockID}
	// Protocol C expects WriteAck (the write has reached the peer's disk)
	// and protocol B expects RecvAck (statemachine.go's ExpWriteAck/
	// ExpReceiveAck gating). Protocol A expects no per-block ack; it is
	// answered with RecvAck too, which the primary's state machine logs as
	// a protocol error and ignores.
	cmd := wire.CmdRecvAck
	if cmn.GCO.Get().Protocol == cmn.ProtocolC {
		cmd = wire.CmdWriteAck
	}
	if err != nil {
		cmd = wire.CmdNegAck
	}
	if sendErr := r.Dev.Peer.Meta.Send(cmd, ack.Encode()); sendErr != nil {
		nlog.Warningf("receiver: failed to ack block %d: %v", hdr.BlockNr, sendErr)
	}
}

// HandleBarrier answers a Barrier frame with a BarrierAck on the meta
// channel. handleData writes each Data frame synchronously, so every write
// of the epoch has completed locally by the time the barrier is handled.
// SetSize is the number of non-resync Data frames handled since the
// previous barrier, the count the primary's tl_release checks.
func (r *Receiver) HandleBarrier(b wire.Barrier) {
	ack := wire.BarrierAck{BarrierNr: b.BarrierNr, SetSize: r.epochWrites}
	r.epochWrites = 0
	if err := r.Dev.Peer.Meta.Send(wire.CmdBarrierAck, ack.Encode()); err != nil {
		nlog.Warningf("receiver: failed to ack barrier %d: %v", b.BarrierNr, err)
	}
}
