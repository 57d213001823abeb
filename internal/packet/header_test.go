package packet

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/udptool/internal/core"
	"firestige.xyz/udptool/internal/payload"
)

func TestChecksumRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		seq  uint32
		ts   uint32
		size uint16
	}{
		{"zero", 0, 0, 0},
		{"typical", 17, 123456, 1460},
		{"max", 0xffffffff, 0xffffffff, 0xffff},
		{"high bits only", 0xffff0000, 0x12340000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHeader(tt.seq, tt.ts, tt.size)
			buf := h.Append(nil)
			require.Len(t, buf, HeaderSize)

			got, err := Decode(buf)
			require.NoError(t, err)
			assert.Equal(t, h, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestChecksumFormula(t *testing.T) {
	h := NewHeader(0x00010002, 0x00000004, 0x0008)
	// ^(0x00010002 ^ 0x0008 ^ 0x0004) = ^0x0001000e, low 16 bits = 0xfff1
	assert.Equal(t, uint16(0xfff1), h.Checksum)
}

func TestEncodeBigEndian(t *testing.T) {
	h := Header{Sequence: 0x01020304, Timestamp: 0x05060708, Size: 0x090a, Checksum: 0x0b0c}
	buf := make([]byte, HeaderSize)
	h.Encode(buf)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, buf)
}

func TestDecodeShortPacket(t *testing.T) {
	_, err := Decode(make([]byte, HeaderSize-1))
	assert.True(t, errors.Is(err, core.ErrShortPacket))
}

func TestCorruptedHeaderInvalid(t *testing.T) {
	buf := NewHeader(99, 1000, 64).Append(nil)
	buf[2] ^= 0x10

	h, err := Decode(buf)
	require.NoError(t, err)
	assert.False(t, h.Valid())
}

func TestCheck(t *testing.T) {
	good, err := Build(nil, 5, 100, 64)
	require.NoError(t, err)

	h, err := Check(good)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), h.Sequence)

	_, err = Check(good[:HeaderSize-1])
	assert.ErrorIs(t, err, core.ErrShortPacket)

	corrupt := append([]byte(nil), good...)
	corrupt[0] ^= 0x01
	_, err = Check(corrupt)
	assert.ErrorIs(t, err, core.ErrBadChecksum)

	h, err = Check(good[:40])
	assert.ErrorIs(t, err, core.ErrTruncated)
	assert.Equal(t, uint32(5), h.Sequence)

	h, err = Check(append(append([]byte(nil), good...), 0))
	assert.ErrorIs(t, err, core.ErrTruncated)
	assert.Equal(t, uint16(52), h.Size)
}

func TestBuildFillsPayloadStream(t *testing.T) {
	dgram, err := Build(nil, 7, 555, HeaderSize+100)
	require.NoError(t, err)
	require.Len(t, dgram, HeaderSize+100)

	h, err := Decode(dgram)
	require.NoError(t, err)
	assert.True(t, h.Valid())
	assert.Equal(t, uint32(7), h.Sequence)
	assert.Equal(t, uint16(100), h.Size)

	s := payload.New(h.Checksum)
	assert.Equal(t, 0, s.Mismatches(dgram[HeaderSize:]))
}

func TestBuildReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 2048)
	dgram, err := Build(buf, 1, 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, &buf[:1][0], &dgram[0])
}

func TestBuildShortDatagramIsHeaderPrefix(t *testing.T) {
	dgram, err := Build(nil, 3, 4, 8)
	require.NoError(t, err)
	full := NewHeader(3, 4, 0).Append(nil)
	assert.Equal(t, full[:8], dgram)
}

func TestBuildRejectsOversizedPayload(t *testing.T) {
	_, err := Build(nil, 0, 0, HeaderSize+MaxPayload+1)
	assert.True(t, errors.Is(err, core.ErrPayloadTooLarge))
}
