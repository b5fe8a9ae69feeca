// Package meta implements the metadata record (spec §4.B): six 32-bit
// generation/epoch counters persisted to a small fixed-size file and
// compared with the peer's record on every handshake to decide
// post-disconnect resync direction.
//
// Grounded on the teacher's small-fixed-record persistence idiom (aistore's
// own Smap/BMD persistence writes a whole versioned blob atomically via
// write-to-temp-then-rename rather than in-place seek+write) generalized to
// a tiny six-word record; see DESIGN.md for why the on-disk codec itself
// stays on encoding/binary rather than jsoniter.
package meta

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/mirrorblock/replicad/cmn/nlog"
)

// MagicNr identifies a valid record; any other value (or a short read) on
// Read() means "never written" and triggers reinitialization.
const MagicNr uint32 = 0x83740267

// Record is the on-disk layout: six 32-bit words, network byte order.
type Record struct {
	HumanCnt     uint32
	TimeoutCnt   uint32
	ConnectedCnt uint32
	ArbitraryCnt uint32
	PrimaryInd   uint32
	MagicNr      uint32
}

const recordSize = 6 * 4

func freshRecord() Record {
	return Record{HumanCnt: 1, TimeoutCnt: 1, ConnectedCnt: 1, ArbitraryCnt: 1, PrimaryInd: 0, MagicNr: MagicNr}
}

// Store owns the on-disk path for one device's metadata record
// (meta_data/drbd%d, spec §6).
type Store struct {
	path string
}

func NewStore(dir string, minor int) *Store {
	return &Store{path: filepath.Join(dir, "meta_data", "drbd"+itoa(minor))}
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

// Read loads and byte-swaps the record (spec §4.B read()). On magic
// mismatch or short read it reinitializes counters to 1 and writes the
// fresh record back before returning it.
func (s *Store) Read() (Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			rec := freshRecord()
			return rec, s.Write(rec)
		}
		return Record{}, err
	}
	defer f.Close()

	buf := make([]byte, recordSize)
	n, err := io.ReadFull(f, buf)
	if n < recordSize || (err != nil && err != io.ErrUnexpectedEOF) {
		nlog.Warningf("meta: short read of %s (%d/%d bytes): reinitializing", s.path, n, recordSize)
		rec := freshRecord()
		return rec, s.Write(rec)
	}

	rec := Record{
		HumanCnt:     binary.BigEndian.Uint32(buf[0:4]),
		TimeoutCnt:   binary.BigEndian.Uint32(buf[4:8]),
		ConnectedCnt: binary.BigEndian.Uint32(buf[8:12]),
		ArbitraryCnt: binary.BigEndian.Uint32(buf[12:16]),
		PrimaryInd:   binary.BigEndian.Uint32(buf[16:20]),
		MagicNr:      binary.BigEndian.Uint32(buf[20:24]),
	}
	if rec.MagicNr != MagicNr {
		nlog.Warningf("meta: magic mismatch in %s (got %x): reinitializing", s.path, rec.MagicNr)
		rec = freshRecord()
		return rec, s.Write(rec)
	}
	return rec, nil
}

// Write atomically overwrites the fixed-size record (spec §4.B write()):
// write to a sibling temp file, fsync, then rename over the original so a
// crash never observes a half-written record. The persistence layer
// guarantees durability before returning, per spec §1 ("Metadata
// persistence path... the core reads on attach and rewrites on state
// change").
func (s *Store) Write(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, w := range []uint32{rec.HumanCnt, rec.TimeoutCnt, rec.ConnectedCnt, rec.ArbitraryCnt, rec.PrimaryInd, MagicNr} {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], w)
		buf.Write(b[:])
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Authority is the result of Compare: which side's generation counters are
// lexicographically ahead.
type Authority int

const (
	IHaveGood Authority = iota
	Tie
	PeerHasGood
)

// counters returns the five lexicographically-compared fields, in order.
func (r Record) counters() [5]uint32 {
	return [5]uint32{r.HumanCnt, r.TimeoutCnt, r.ConnectedCnt, r.ArbitraryCnt, r.PrimaryInd}
}

// Compare lex-compares the first five counters pairwise (spec §4.B
// compare(remote)).
func Compare(local, remote Record) Authority {
	lc, rc := local.counters(), remote.counters()
	for i := range lc {
		switch {
		case lc[i] > rc[i]:
			return IHaveGood
		case lc[i] < rc[i]:
			return PeerHasGood
		}
	}
	return Tie
}

// SyncqOK implements spec §4.B syncq_ok(remote, who_has_good): reports
// whether a partial resync suffices, or a full resync is required.
//
// "Consistent" is not one of the six on-disk words (the spec enumerates
// exactly HumanCnt/TimeoutCnt/ConnectedCnt/ArbitraryCnt/PrimaryInd/MagicNr);
// it is supplied by the local-disk collaborator as a runtime flag, the same
// way the original superblock kept its consistency bit outside the
// compared generation-count tuple (decision recorded in DESIGN.md).
func SyncqOK(local, remote Record, localConsistent, remoteConsistent bool, who Authority) bool {
	if !localConsistent || !remoteConsistent {
		return false
	}
	if who == Tie {
		// Nothing to resync in either direction.
		return true
	}
	var authRec, otherRec Record
	if who == IHaveGood {
		authRec, otherRec = local, remote
	} else {
		authRec, otherRec = remote, local
	}
	if authRec.PrimaryInd == 1 {
		// Authoritative side was crash-promoted, not cleanly shut down:
		// its generation history doesn't bound what it missed.
		return false
	}
	authGen := authRec.counters()
	otherGen := otherRec.counters()
	// bit_map_gen[HumanCnt..ArbitraryCnt] excludes PrimaryInd (index 4).
	for i := 0; i < 4; i++ {
		if authGen[i] != otherGen[i] {
			return false
		}
	}
	return true
}

// BumpHuman advances HumanCnt (administrator intervention).
func (r Record) BumpHuman() Record { r.HumanCnt++; return r }

// BumpTimeout advances TimeoutCnt (ack timeout).
func (r Record) BumpTimeout() Record { r.TimeoutCnt++; return r }

// BumpConnected advances ConnectedCnt (each successful reconnect).
func (r Record) BumpConnected() Record { r.ConnectedCnt++; return r }

// BumpArbitrary advances ArbitraryCnt (crash-induced arbitrary promotion).
func (r Record) BumpArbitrary() Record { r.ArbitraryCnt++; return r }

// WithRole sets PrimaryInd to reflect the current role.
func (r Record) WithRole(primary bool) Record {
	if primary {
		r.PrimaryInd = 1
	} else {
		r.PrimaryInd = 0
	}
	return r
}
