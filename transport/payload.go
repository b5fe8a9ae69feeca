// payload.go wires the two domain-stack additions to the Data frame
// payload: optional lz4 compression and an optional xxhash checksum
// trailer (spec SPEC_FULL.md §3, "Supplemented features").
//
// Grounded directly on the teacher's transport.Extra, which carries
// exactly these two concerns for its own object stream ("Compression
// string", "MMSA *memsys.MMSA // compression-related buffering") — here
// applied to a single in-memory payload instead of a streamed object body.
package transport

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/OneOfOne/xxhash"
	lz4 "github.com/pierrec/lz4/v3"
)

const checksumSize = 8

// EncodePayload optionally compresses payload with lz4 and appends an
// 8-byte xxhash64 checksum of the *original* bytes; DecodePayload checks it
// against the bytes it gets after decompressing.
func EncodePayload(payload []byte, compress, checksum bool) ([]byte, error) {
	var out []byte
	if compress {
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return nil, fmt.Errorf("transport: lz4 compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("transport: lz4 compress: %w", err)
		}
		out = buf.Bytes()
	} else {
		out = append([]byte(nil), payload...)
	}

	if checksum {
		sum := xxhash.Checksum64(payload)
		var trailer [checksumSize]byte
		binary.BigEndian.PutUint64(trailer[:], sum)
		out = append(out, trailer[:]...)
	}
	return out, nil
}

// DecodePayload reverses EncodePayload.
func DecodePayload(body []byte, compressed, checksummed bool) ([]byte, error) {
	var wantSum uint64
	if checksummed {
		if len(body) < checksumSize {
			return nil, fmt.Errorf("transport: payload shorter than checksum trailer")
		}
		wantSum = binary.BigEndian.Uint64(body[len(body)-checksumSize:])
		body = body[:len(body)-checksumSize]
	}

	var payload []byte
	if compressed {
		zr := lz4.NewReader(bytes.NewReader(body))
		decoded, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("transport: lz4 decompress: %w", err)
		}
		payload = decoded
	} else {
		payload = body
	}

	if checksummed {
		if got := xxhash.Checksum64(payload); got != wantSum {
			return nil, fmt.Errorf("transport: checksum mismatch: got %x want %x", got, wantSum)
		}
	}
	return payload, nil
}
