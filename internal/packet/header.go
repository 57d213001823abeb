// Package packet implements the probe datagram wire format.
//
// Layout (big-endian):
//
//	offset 0   u32 sequence
//	offset 4   u32 timestamp  (sender clock, microseconds)
//	offset 8   u16 size       (declared payload length)
//	offset 10  u16 checksum   (low 16 bits of ^(sequence ^ size ^ timestamp))
//	offset 12  payload        (payload stream seeded with checksum)
package packet

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/udptool/internal/core"
	"firestige.xyz/udptool/internal/payload"
)

const (
	// HeaderSize is the encoded header length in bytes.
	HeaderSize = 12

	// MaxPayload is the largest declared payload the size field can carry.
	MaxPayload = 0xffff
)

// Header is the fixed-size header prefixed to every datagram.
type Header struct {
	Sequence  uint32
	Timestamp uint32
	Size      uint16
	Checksum  uint16
}

// NewHeader builds a header with a consistent checksum.
func NewHeader(seq, timestamp uint32, size uint16) Header {
	h := Header{
		Sequence:  seq,
		Timestamp: timestamp,
		Size:      size,
	}
	h.Checksum = h.ComputeChecksum()
	return h
}

// ComputeChecksum derives the checksum from the other header fields.
func (h Header) ComputeChecksum() uint16 {
	return ^uint16(h.Sequence ^ uint32(h.Size) ^ h.Timestamp)
}

// Valid reports whether the checksum field matches the other fields.
func (h Header) Valid() bool {
	return h.ComputeChecksum() == h.Checksum
}

// Encode writes the header into the first HeaderSize bytes of dst.
func (h Header) Encode(dst []byte) {
	_ = dst[HeaderSize-1]
	binary.BigEndian.PutUint32(dst[0:4], h.Sequence)
	binary.BigEndian.PutUint32(dst[4:8], h.Timestamp)
	binary.BigEndian.PutUint16(dst[8:10], h.Size)
	binary.BigEndian.PutUint16(dst[10:12], h.Checksum)
}

// Append appends the encoded header to dst.
func (h Header) Append(dst []byte) []byte {
	var b [HeaderSize]byte
	h.Encode(b[:])
	return append(dst, b[:]...)
}

func (h Header) String() string {
	state := "ok"
	if !h.Valid() {
		state = "bad"
	}
	return fmt.Sprintf("pkt{s=%d t=%d n=%d c=%s}", h.Sequence, h.Timestamp, h.Size, state)
}

// Decode parses the header at the start of b. It does not check the
// checksum; see Header.Valid.
func Decode(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, core.ErrShortPacket
	}
	return Header{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: binary.BigEndian.Uint32(b[4:8]),
		Size:      binary.BigEndian.Uint16(b[8:10]),
		Checksum:  binary.BigEndian.Uint16(b[10:12]),
	}, nil
}

// Check decodes b and verifies it as a complete probe datagram. The header
// is returned whenever it could be decoded, so callers can still account
// for the sequence of a truncated datagram. Errors are core.ErrShortPacket,
// core.ErrBadChecksum or core.ErrTruncated.
func Check(b []byte) (Header, error) {
	h, err := Decode(b)
	if err != nil {
		return h, err
	}
	if !h.Valid() {
		return h, core.ErrBadChecksum
	}
	if got := len(b) - HeaderSize; int(h.Size) != got {
		return h, fmt.Errorf("%w: header declares %d payload bytes, got %d", core.ErrTruncated, h.Size, got)
	}
	return h, nil
}

// Build encodes a datagram of length total into dst (reusing its capacity)
// and returns it. The header declares total-HeaderSize payload bytes, which
// are filled from the payload stream seeded with the header checksum.
//
// A total smaller than HeaderSize yields the truncated header prefix, which
// the receiver classifies as short.
func Build(dst []byte, seq, timestamp uint32, total int) ([]byte, error) {
	if total < 0 {
		return nil, fmt.Errorf("negative datagram length %d", total)
	}
	payloadLen := total - HeaderSize
	if payloadLen > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", core.ErrPayloadTooLarge, payloadLen)
	}
	if cap(dst) < total {
		dst = make([]byte, total)
	}
	dst = dst[:total]

	var size uint16
	if payloadLen > 0 {
		size = uint16(payloadLen)
	}
	h := NewHeader(seq, timestamp, size)
	if total < HeaderSize {
		var b [HeaderSize]byte
		h.Encode(b[:])
		copy(dst, b[:total])
		return dst, nil
	}

	h.Encode(dst)
	s := payload.New(h.Checksum)
	s.Fill(dst[HeaderSize:])
	return dst, nil
}
