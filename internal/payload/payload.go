// Package payload generates the deterministic byte stream that fills packet
// payloads. Sender and receiver seed it from the header checksum, so the
// receiver can regenerate the expected payload and count corrupted bytes
// without any verification data on the wire.
package payload

import "math/bits"

// Stream is a four-word mixing generator. The zero value is not seeded; use New.
type Stream struct {
	a, b, c, d uint32
}

// New seeds a stream. The seed is zero-extended to 32 bits.
func New(seed uint16) Stream {
	s := uint32(seed)
	return Stream{
		a: 0xdeadbeef ^ s,
		b: 0x0badcafe + s,
		c: 0xdeadface - s,
		d: 0xdefaced1 ^ s,
	}
}

func rol32(x, y uint32) uint32 {
	return bits.RotateLeft32(x, int(y&31))
}

// Step advances the state by one round. The operation order is part of the
// wire contract and must not change.
func (s *Stream) Step() {
	s.a = rol32(s.a, s.d)
	s.b ^= 0x89abcdef
	s.c = rol32(s.c, s.b)
	s.d = rol32(s.d, s.a)
	s.c ^= 0x31415926
	s.a ^= 0x01234567
	s.b = rol32(s.b, s.c)
	s.a += s.c
	s.b ^= s.d
	s.c -= s.a
	s.d -= s.b
	s.d ^= 0x54581414
}

// NextByte steps once and returns the low byte of the first word.
func (s *Stream) NextByte() byte {
	s.Step()
	return byte(s.a)
}

// Fill writes len(p) consecutive stream bytes into p.
func (s *Stream) Fill(p []byte) {
	for i := range p {
		p[i] = s.NextByte()
	}
}

// Mismatches consumes len(p) stream bytes and returns how many of them
// differ from p.
func (s *Stream) Mismatches(p []byte) int {
	n := 0
	for _, b := range p {
		if s.NextByte() != b {
			n++
		}
	}
	return n
}
