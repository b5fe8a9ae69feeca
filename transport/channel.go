// Package transport implements the two logical channels (spec §4.D): a
// data channel (writes + data acks) and a meta channel (pings,
// barrier/block acks, state change), each with its own send-serialization
// and timeout policy.
//
// Grounded on the teacher's transport.Stream send/completion-queue pair
// (other_examples transport-api.go.go: workCh/cmplCh, per-stream Extra with
// Compression/MMSA) generalized from aistore's HTTP object stream to a raw
// net.Conn, since replicad's channels are plain framed sockets rather than
// chunked HTTP PUTs.
package transport

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/mirrorblock/replicad/cmn"
	"github.com/mirrorblock/replicad/cmn/nlog"
	"github.com/mirrorblock/replicad/wire"
)

// Kind distinguishes the two logical channels (spec §4.D).
type Kind int

const (
	KindData Kind = iota
	KindMeta
)

// Channel wraps one net.Conn with the send-policy described in spec §4.D:
// the data channel serializes writers behind a mutex and, on send-timer
// expiry, only pings (SEND_PING) rather than tearing the connection down;
// the meta channel has no send-mutex (only the asender writes to it) and a
// timer expiry there is fatal to the connection.
type Channel struct {
	kind Kind
	conn net.Conn

	sendMu *sync.Mutex // non-nil only for KindData

	timer      *SendTimer
	onTimeout  func()
	onSendPing func()
}

// NewDataChannel wires the data channel's send-mutex and "merely probe"
// timeout policy.
func NewDataChannel(conn net.Conn, timeout time.Duration, onSendPing func()) *Channel {
	c := &Channel{kind: KindData, conn: conn, sendMu: &sync.Mutex{}, onSendPing: onSendPing}
	c.timer = NewSendTimer(timeout, func() {
		nlog.Warningf("transport: data channel send-timer expired: probing with SEND_PING")
		if c.onSendPing != nil {
			c.onSendPing()
		}
	})
	return c
}

// NewMetaChannel wires the meta channel's teardown-on-timeout policy. No
// send-mutex: only the asender writes to this channel (spec §4.D).
func NewMetaChannel(conn net.Conn, timeout time.Duration, onTimeout func()) *Channel {
	c := &Channel{kind: KindMeta, conn: conn, onTimeout: onTimeout}
	c.timer = NewSendTimer(timeout, func() {
		nlog.Errorf("transport: meta channel send-timer expired: tearing down")
		if c.onTimeout != nil {
			c.onTimeout()
		}
	})
	return c
}

// Send writes one control frame (ReportParams, CStateChanged, Barrier,
// BarrierAck, WriteAck/RecvAck/NegAck, Ping/PingAck). Data frames go
// through SendData instead, which adds the optional compression/checksum
// envelope.
func (c *Channel) Send(cmd wire.Command, body []byte) error {
	if c.sendMu != nil {
		c.sendMu.Lock()
		defer c.sendMu.Unlock()
	}
	if err := wire.WriteFrame(c.conn, cmd, body); err != nil {
		return err
	}
	c.timer.Reset()
	return nil
}

// SendData writes a Data frame, optionally compressing and checksumming
// the payload per the active Config (spec §1 domain-stack wiring: lz4
// compression, xxhash checksum — see DESIGN.md).
func (c *Channel) SendData(hdr wire.DataHeader, payload []byte) error {
	config := cmn.GCO.Get()
	envelope, err := EncodePayload(payload, config.Compression, config.ChecksumData)
	if err != nil {
		return err
	}
	body := append(hdr.Encode(), envelope...)
	return c.Send(wire.CmdData, body)
}

// Recv reads one frame.
func (c *Channel) Recv() (wire.Command, []byte, error) {
	return wire.ReadFrame(c.conn)
}

// RecvData reads a Data frame and reverses SendData's envelope.
func (c *Channel) RecvData() (wire.DataHeader, []byte, error) {
	cmd, body, err := c.Recv()
	if err != nil {
		return wire.DataHeader{}, nil, err
	}
	if cmd != wire.CmdData {
		return wire.DataHeader{}, nil, io.ErrUnexpectedEOF
	}
	hdr, err := wire.DecodeDataHeader(body)
	if err != nil {
		return wire.DataHeader{}, nil, err
	}
	config := cmn.GCO.Get()
	payload, err := DecodePayload(body[wire.DataHeaderSize:], config.Compression, config.ChecksumData)
	return hdr, payload, err
}

func (c *Channel) Close() error {
	c.timer.Stop()
	return c.conn.Close()
}
