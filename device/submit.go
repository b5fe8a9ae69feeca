package device

import (
	"time"

	"github.com/mirrorblock/replicad/cmn/nlog"
	"github.com/mirrorblock/replicad/request"
	"github.com/mirrorblock/replicad/wire"
)

// MakeRequest implements __make_request (spec §4.F): the eleven-step
// submission path every upper-layer bio runs through.
func (d *Device) MakeRequest(id uint64, sector uint64, size uint32, dir request.Direction, bio any) *request.Outcome {
	now := time.Now()
	epoch := d.currentEpochSnapshot()
	r := request.New(id, sector, size, dir, bio, epoch, now)

	d.pending.Add(1)
	defer d.pending.Add(-1)

	localUsable := d.Target != nil
	if !localUsable {
		r.MasterBio = nil // step 1: drop the private local-bio reference
	}

	isWrite := dir == request.Write
	if isWrite && localUsable {
		// step 2: activity-log reference; modeled as a no-op placeholder —
		// the on-disk activity log is an external collaborator (spec §1).
		d.acquireActLog(sector, r.BlockCount(d.ln2BlockSize))
	}

	if isWrite {
		// step 3: conflict resolution against other in-flight writes. The
		// span is expressed in the same byte unit as sector, not a block
		// count, so two writes that genuinely overlap are always caught
		// even when size isn't an exact multiple of the bitmap block size.
		d.conflicts.Acquire(sector, uint64(size))
		defer d.conflicts.Release(sector, uint64(size))
	}

	d.reqLock.Lock()

	if d.suspended() {
		// step 4
		out := d.Mach.ReqMod(r, request.PostponeWrite)
		d.reqLock.Unlock()
		return &out
	}

	sendToPeer := false
	if !isWrite {
		// step 5: read balancing.
		sendToPeer = d.ChooseReadPeer(sector)
		if sendToPeer {
			localUsable = false
		}
	}

	// step 6
	r.Epoch = d.currentTLE
	if isWrite {
		d.currentTLEWrites++
	}

	// step 7
	if err := d.TL.Add(r); err != nil {
		nlog.Criticalf("device %d: transfer log full, request %d rejected", d.Minor, r.ID)
		d.reqLock.Unlock()
		return &request.Outcome{}
	}

	if isWrite && d.Peer != nil {
		// step 8
		d.ConnCheckCongested()
		switch {
		case d.Peer.ShouldDoRemote():
			d.Mach.ReqMod(r, request.ToBeSent)
			d.Mach.ReqMod(r, request.QueueForNetWrite)
			d.apInFlight.Add(int64(size))
			if d.AckTracker != nil {
				d.AckTracker.Track(r.ID, r)
				d.unacked.Add(1)
			}
		case d.Peer.ShouldSendOutOfSync():
			d.Mach.ReqMod(r, request.QueueForSendOOS)
		}
	} else if !isWrite && sendToPeer {
		// step 9
		d.Mach.ReqMod(r, request.ToBeSent)
		d.Mach.ReqMod(r, request.QueueForNetRead)
	}

	if localUsable {
		// step 10
		d.Mach.ReqMod(r, request.ToBeSubmitted)
	}
	d.reqLock.Unlock()

	var localOut request.Outcome
	if localUsable {
		localOut = d.submitLocal(r)
	}
	if isWrite && d.Peer != nil && r.Flags.Has(request.NetQueued) {
		d.sendWrite(r)
	} else if !isWrite && sendToPeer {
		d.sendRead(r)
	}

	// step 11
	d.reqLock.Lock()
	out := d.Mach.Evaluate(r)
	d.reqLock.Unlock()
	if localOut.Signaled {
		out.Signaled, out.OK = true, localOut.OK
	}
	return &out
}

func (d *Device) acquireActLog(sector, count uint64) {
	// The on-disk activity log is an external collaborator (spec §1); this
	// device package only needs the serialization point it would provide.
}

func (d *Device) suspended() bool {
	return d.CState() == Unconfigured
}

func (d *Device) submitLocal(r *request.Request) request.Outcome {
	buf := make([]byte, r.Size)
	var err error
	if r.Dir == request.Write {
		_, err = d.Target.WriteAt(buf, r.Sector)
	} else {
		_, err = d.Target.ReadAt(buf, r.Sector)
	}
	var out request.Outcome
	d.reqLock.Lock()
	if err != nil {
		r.Err = err
		if r.Dir == request.Write {
			out = d.Mach.ReqMod(r, request.WriteCompletedWithError)
		} else {
			out = d.Mach.ReqMod(r, request.ReadCompletedWithError)
		}
	} else {
		out = d.Mach.ReqMod(r, request.CompletedOK)
	}
	d.reqLock.Unlock()
	return out
}

func (d *Device) sendWrite(r *request.Request) {
	d.sendMutex.Lock()
	defer d.sendMutex.Unlock()
	hdr := wire.DataHeader{BlockNr: r.BlockNr(d.ln2BlockSize), BlockID: r.ID}
	buf := make([]byte, r.Size)
	err := d.Peer.Data.SendData(hdr, buf)
	d.reqLock.Lock()
	if err != nil {
		d.Mach.ReqMod(r, request.SendFailed)
		if d.AckTracker != nil {
			d.AckTracker.Forget(r.ID)
			d.unacked.Add(-1)
		}
	} else {
		d.Mach.ReqMod(r, request.HandedOverToNetwork)
	}
	d.reqLock.Unlock()
}

func (d *Device) sendRead(r *request.Request) {
	d.sendMutex.Lock()
	defer d.sendMutex.Unlock()
	hdr := wire.DataHeader{BlockNr: r.BlockNr(d.ln2BlockSize), BlockID: r.ID}
	err := d.Peer.Data.Send(wire.CmdData, hdr.Encode())
	d.reqLock.Lock()
	if err != nil {
		d.Mach.ReqMod(r, request.SendFailed)
	} else {
		d.Mach.ReqMod(r, request.HandedOverToNetwork)
	}
	d.reqLock.Unlock()
}
