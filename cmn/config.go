// Package cmn holds the ambient, cross-cutting pieces every other package
// depends on: the global config owner, protocol/policy enums, and error
// wrapping helpers. This mirrors the teacher's cmn package, which plays the
// same "everybody imports this" role for aistore.
package cmn

import (
	"sync/atomic"
	"time"
)

// Protocol is the negotiated replication protocol: it governs only *when*
// the peer acknowledges a write (spec §2 GLOSSARY).
type Protocol int32

const (
	ProtocolA Protocol = iota // async: ack on HANDED_OVER_TO_NETWORK
	ProtocolB                 // memory-sync: ack on RECV_ACKED_BY_PEER
	ProtocolC                 // disk-sync: ack on WRITE_ACKED_BY_PEER
)

func (p Protocol) String() string {
	switch p {
	case ProtocolA:
		return "A"
	case ProtocolB:
		return "B"
	case ProtocolC:
		return "C"
	default:
		return "?"
	}
}

// ReadBalancing selects which replica serves a read (spec §4.F step 5).
type ReadBalancing int32

const (
	RBPreferLocal ReadBalancing = iota
	RBPreferRemote
	RBLeastPending
	RBRoundRobin
	RBCongestedRemote
	RBStripe
)

// OnCongestion selects the behavior of conn_check_congested (spec §4.F step 8).
type OnCongestion int32

const (
	CongestionBlock OnCongestion = iota // keep queueing (default backpressure)
	CongestionPullAhead                 // switch peer to L_AHEAD
	CongestionDisconnect                // tear the connection down
)

// Config is the full set of tunables the administrative surface manages
// (spec §6, "Administrative surface", opaque collaborator to the core: the
// core only ever reads a *Config, it never implements bind/unbind/set-role).
type Config struct {
	Protocol Protocol

	Timeout      time.Duration // per-send timer duration
	KoCount      int           // ack-timeout watchdog multiplier
	DiskTimeout  time.Duration // local completion timeout; not read by any package

	ReadBalancing ReadBalancing
	StripeShift   uint

	OnCongestion OnCongestion
	CongFill     int64 // ap_in_flight threshold
	CongExtents  int64 // AL-extents threshold

	MaxEpochSize int // transfer-log ring capacity (replicad passes it to device.New); no barrier is forced by it

	Compression    bool // enable lz4 compression on the data channel
	ChecksumData   bool // enable xxhash trailer on Data frames

	SyncRateLimit int // resync bytes/sec; not read: the syncer throttles only through Syncer.Limiter
}

// DefaultConfig returns sane defaults, the values a freshly bound device
// starts with before the administrative surface overrides anything.
func DefaultConfig() *Config {
	return &Config{
		Protocol:      ProtocolC,
		Timeout:       6 * time.Second,
		KoCount:       4,
		DiskTimeout:   10 * time.Second,
		ReadBalancing: RBPreferLocal,
		OnCongestion:  CongestionBlock,
		CongFill:      512,
		CongExtents:   1000,
		MaxEpochSize:  128,
		Compression:   false,
		ChecksumData:  true,
		SyncRateLimit: 0,
	}
}

// GCO is the global config owner: every package reads the live config via
// GCO.Get() instead of threading a *Config through every call, the same
// pattern as aistore's cmn.GCO (seen throughout the pack, e.g.
// xact/xs/tcb.go: `config = cmn.GCO.Get()`).
var GCO = &globalConfigOwner{}

type globalConfigOwner struct {
	ptr atomic.Pointer[Config]
}

func (g *globalConfigOwner) Get() *Config {
	c := g.ptr.Load()
	if c == nil {
		c = DefaultConfig()
		g.ptr.Store(c)
	}
	return c
}

// Update installs a new config wholesale; the administrative surface is the
// only intended caller.
func (g *globalConfigOwner) Update(c *Config) { g.ptr.Store(c) }
