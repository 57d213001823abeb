// Package core defines core data structures with zero external dependencies.
package core

import (
	"net/netip"
	"time"
)

// Datagram is one UDP payload handed to the receive path, either read from a
// live socket or replayed from a capture file.
type Datagram struct {
	Data   []byte         // UDP payload, only valid until the next read
	Remote netip.AddrPort // Sender endpoint
	Local  netip.AddrPort // Receiving endpoint, zero when unknown
	At     time.Duration  // Receive time relative to the task clock origin
}
