// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Per-datagram classifications (short, bad checksum,
// truncated) never escalate past the analyzer; they exist so codec callers
// can tell the outcomes apart with errors.Is.
var (
	// Packet decoding errors
	ErrShortPacket     = errors.New("udptool: packet too short")
	ErrBadChecksum     = errors.New("udptool: bad header checksum")
	ErrTruncated       = errors.New("udptool: declared size does not match payload")
	ErrPayloadTooLarge = errors.New("udptool: payload too large")

	// Configuration errors
	ErrConfigInvalid = errors.New("udptool: invalid configuration")

	// Transport errors
	ErrTransport = errors.New("udptool: transport error")
)
