package wire

import (
	"encoding/binary"
	"fmt"
)

// IDSyncer is the reserved block_id flagging a resync-initiated Data
// packet: the peer must ack it but must not install it into its transfer
// log (spec §6).
const IDSyncer uint64 = ^uint64(0)

// ReportParams is exchanged on connect to negotiate/validate device
// geometry and generation counters (spec §6).
type ReportParams struct {
	Size     uint64
	BlkSize  uint32
	State    uint32
	Protocol uint32
	Version  uint32
	GenCnt   [5]uint32
}

const reportParamsSize = 8 + 4 + 4 + 4 + 4 + 5*4

func (p ReportParams) Encode() []byte {
	buf := make([]byte, reportParamsSize)
	binary.BigEndian.PutUint64(buf[0:8], p.Size)
	binary.BigEndian.PutUint32(buf[8:12], p.BlkSize)
	binary.BigEndian.PutUint32(buf[12:16], p.State)
	binary.BigEndian.PutUint32(buf[16:20], p.Protocol)
	binary.BigEndian.PutUint32(buf[20:24], p.Version)
	for i, g := range p.GenCnt {
		off := 24 + i*4
		binary.BigEndian.PutUint32(buf[off:off+4], g)
	}
	return buf
}

func DecodeReportParams(body []byte) (ReportParams, error) {
	if len(body) != reportParamsSize {
		return ReportParams{}, fmt.Errorf("wire: ReportParams: bad length %d", len(body))
	}
	var p ReportParams
	p.Size = binary.BigEndian.Uint64(body[0:8])
	p.BlkSize = binary.BigEndian.Uint32(body[8:12])
	p.State = binary.BigEndian.Uint32(body[12:16])
	p.Protocol = binary.BigEndian.Uint32(body[16:20])
	p.Version = binary.BigEndian.Uint32(body[20:24])
	for i := range p.GenCnt {
		off := 24 + i*4
		p.GenCnt[i] = binary.BigEndian.Uint32(body[off : off+4])
	}
	return p, nil
}

type CStateChanged struct{ CState uint32 }

func (c CStateChanged) Encode() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, c.CState)
	return buf
}

func DecodeCStateChanged(body []byte) (CStateChanged, error) {
	if len(body) != 4 {
		return CStateChanged{}, fmt.Errorf("wire: CStateChanged: bad length %d", len(body))
	}
	return CStateChanged{CState: binary.BigEndian.Uint32(body)}, nil
}

type Barrier struct{ BarrierNr uint32 }

func (b Barrier) Encode() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, b.BarrierNr)
	return buf
}

func DecodeBarrier(body []byte) (Barrier, error) {
	if len(body) != 4 {
		return Barrier{}, fmt.Errorf("wire: Barrier: bad length %d", len(body))
	}
	return Barrier{BarrierNr: binary.BigEndian.Uint32(body)}, nil
}

type BarrierAck struct {
	BarrierNr uint32
	SetSize   uint32
}

func (b BarrierAck) Encode() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], b.BarrierNr)
	binary.BigEndian.PutUint32(buf[4:8], b.SetSize)
	return buf
}

func DecodeBarrierAck(body []byte) (BarrierAck, error) {
	if len(body) != 8 {
		return BarrierAck{}, fmt.Errorf("wire: BarrierAck: bad length %d", len(body))
	}
	return BarrierAck{
		BarrierNr: binary.BigEndian.Uint32(body[0:4]),
		SetSize:   binary.BigEndian.Uint32(body[4:8]),
	}, nil
}

// DataHeaderSize is the fixed portion of a Data frame, before payload
// (and before the optional checksum trailer the transport package may add).
const DataHeaderSize = 8 + 8

type DataHeader struct {
	BlockNr uint64
	BlockID uint64
}

func (d DataHeader) Encode() []byte {
	buf := make([]byte, DataHeaderSize)
	binary.BigEndian.PutUint64(buf[0:8], d.BlockNr)
	binary.BigEndian.PutUint64(buf[8:16], d.BlockID)
	return buf
}

func DecodeDataHeader(body []byte) (DataHeader, error) {
	if len(body) < DataHeaderSize {
		return DataHeader{}, fmt.Errorf("wire: Data: bad length %d", len(body))
	}
	return DataHeader{
		BlockNr: binary.BigEndian.Uint64(body[0:8]),
		BlockID: binary.BigEndian.Uint64(body[8:16]),
	}, nil
}

// BlockAck is the shared layout of WriteAck/RecvAck/NegAck (spec §6).
type BlockAck struct {
	BlockNr uint64
	BlockID uint64
}

func (a BlockAck) Encode() []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], a.BlockNr)
	binary.BigEndian.PutUint64(buf[8:16], a.BlockID)
	return buf
}

func DecodeBlockAck(body []byte) (BlockAck, error) {
	if len(body) != 16 {
		return BlockAck{}, fmt.Errorf("wire: BlockAck: bad length %d", len(body))
	}
	return BlockAck{
		BlockNr: binary.BigEndian.Uint64(body[0:8]),
		BlockID: binary.BigEndian.Uint64(body[8:16]),
	}, nil
}

// Ping and PingAck carry no payload.
