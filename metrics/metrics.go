// Package metrics exports per-device runtime counters as Prometheus
// gauges, the way the teacher's stats package surfaces xaction/rebalance
// counters (and the way ClusterCockpit, the other pack repo with a real
// metrics surface, exposes its own runtime state).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mirrorblock/replicad/device"
)

// Collectors holds the gauge/counter set registered for one device.
type Collectors struct {
	dev *device.Device

	apInFlight *prometheus.GaugeFunc
	pending    *prometheus.GaugeFunc
	unacked    *prometheus.GaugeFunc
	dirtyBits  *prometheus.GaugeFunc
	epochDepth *prometheus.GaugeFunc
}

// NewCollectors builds (but does not register) the gauge set for dev.
func NewCollectors(dev *device.Device) *Collectors {
	labels := prometheus.Labels{"minor": itoa(dev.Minor)}

	c := &Collectors{dev: dev}
	c.apInFlight = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "replicad",
		Name:        "ap_in_flight_bytes",
		Help:        "Bytes of foreground write data currently in flight to the peer.",
		ConstLabels: labels,
	}, func() float64 { return float64(dev.APInFlight()) })

	c.pending = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "replicad",
		Name:        "pending_requests",
		Help:        "Requests submitted but not yet fully completed.",
		ConstLabels: labels,
	}, func() float64 { return float64(dev.Pending()) })

	c.unacked = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "replicad",
		Name:        "unacked_requests",
		Help:        "Requests awaiting a peer acknowledgement.",
		ConstLabels: labels,
	}, func() float64 { return float64(dev.Unacked()) })

	c.dirtyBits = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "replicad",
		Name:        "dirty_bitmap_bits",
		Help:        "Bitmap bits currently marked out-of-sync.",
		ConstLabels: labels,
	}, func() float64 { return float64(dev.Bitmap.DirtyCount()) })

	c.epochDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "replicad",
		Name:        "transfer_log_epoch",
		Help:        "Current transfer-log epoch ordinal.",
		ConstLabels: labels,
	}, func() float64 { return float64(dev.CurrentEpoch()) })

	return c
}

// Register adds every collector to reg.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.apInFlight, c.pending, c.unacked, c.dirtyBits, c.epochDepth} {
		if col == nil {
			continue
		}
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
