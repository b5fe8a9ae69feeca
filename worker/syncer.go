package worker

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/mirrorblock/replicad/bitmap"
	"github.com/mirrorblock/replicad/cmn/nlog"
	"github.com/mirrorblock/replicad/device"
	"github.com/mirrorblock/replicad/wire"
)

// Syncer walks the dirty bitmap while the device is SyncSource, sending
// data for each dirty block tagged with the reserved ID_SYNCER block id so
// the peer acks it without installing it into its own transfer log (spec
// §4.G). Background resync is rate-limited against golang.org/x/time/rate
// so it never starves foreground traffic sharing the same data channel —
// a supplemented feature (SPEC_FULL.md §3), not present in the distilled
// spec but excluded by none of its Non-goals.
type Syncer struct {
	Dev     *device.Device
	Limiter *rate.Limiter // nil disables throttling
}

func (s *Syncer) Name() string { return "syncer" }

func (s *Syncer) Run(ctx context.Context) error {
	ln2 := s.Dev.Ln2BlockSize()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if s.Dev.CState() != device.SyncSource {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		blockNr := s.Dev.Bitmap.NextDirty(ln2)
		if blockNr == bitmap.Done {
			s.Dev.Bitmap.Reset(ln2)
			s.Dev.SetCState(device.Connected)
			continue
		}

		if s.Limiter != nil {
			if err := s.Limiter.WaitN(ctx, bitmap.BlockSize); err != nil {
				return err
			}
		}

		if err := s.sendBlock(blockNr, ln2); err != nil {
			nlog.Warningf("syncer: send of block %d failed: %v", blockNr, err)
			return err
		}
	}
}

func (s *Syncer) sendBlock(blockNr uint64, ln2 uint) error {
	buf := make([]byte, 1<<ln2)
	if _, err := s.Dev.Target.ReadAt(buf, blockNr<<ln2); err != nil {
		return err
	}

	s.Dev.SendMutex().Lock()
	defer s.Dev.SendMutex().Unlock()

	hdr := wire.DataHeader{BlockNr: blockNr, BlockID: wire.IDSyncer}
	return s.Dev.Peer.Data.SendData(hdr, buf)
}
