package device

import "github.com/mirrorblock/replicad/cmn"

// ChooseReadPeer implements find_peer_device_for_read (spec §4.F step 5).
// It returns true when the read should go to the peer instead of the local
// backing device.
func (d *Device) ChooseReadPeer(sector uint64) bool {
	if d.Peer == nil {
		return false
	}
	switch cmn.GCO.Get().ReadBalancing {
	case cmn.RBPreferLocal:
		return false
	case cmn.RBPreferRemote:
		return true
	case cmn.RBLeastPending:
		return d.Peer.APInFlight()+d.Peer.RSPending() < d.pending.Load()
	case cmn.RBRoundRobin:
		// Toggle a flag bit on every call; alternates local/remote.
		goRemote := !d.roundRobinToggle.Load()
		d.roundRobinToggle.Store(goRemote)
		return goRemote
	case cmn.RBCongestedRemote:
		return !d.backingCongested()
	case cmn.RBStripe:
		bit := (sector >> d.stripeShift) & 1
		return bit == 1
	default:
		return false
	}
}

// SetStripeShift configures the striping read-balancing policy's shift
// amount (bit of sector>>shift chooses local vs remote).
func (d *Device) SetStripeShift(shift uint) { d.stripeShift = shift }
