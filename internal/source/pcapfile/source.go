// Package pcapfile replays UDP datagrams from a capture file.
package pcapfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/udptool/internal/core"
)

// pcapng section header block type
const ngMagic = 0x0A0D0D0A

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

type Config struct {
	FilePath string
	// Port keeps only datagrams sent to this UDP port; 0 keeps all.
	Port uint16
}

// Source yields UDP payloads from a pcap or pcapng file in capture order.
type Source struct {
	file   *os.File
	reader packetReader
	port   uint16
	first  time.Time
	seen   bool
}

// Open opens cfg.FilePath and detects the capture format.
func Open(cfg Config) (*Source, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("%w: capture file path is required", core.ErrConfigInvalid)
	}
	f, err := os.Open(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", cfg.FilePath, err)
	}

	r, err := newReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file %s: %w", cfg.FilePath, err)
	}
	return NewSource(r, cfg.Port, f), nil
}

func newReader(br *bufio.Reader) (packetReader, error) {
	magic, err := br.Peek(4)
	if err != nil {
		return nil, err
	}
	if binary.BigEndian.Uint32(magic) == ngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		return ng, nil
	}
	r, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// NewSource wraps an already opened reader; closer may be nil.
func NewSource(r packetReader, port uint16, closer *os.File) *Source {
	return &Source{file: closer, reader: r, port: port}
}

// ReadDatagram returns the next matching UDP datagram, or io.EOF at the
// end of the capture. Non-UDP frames are skipped.
func (s *Source) ReadDatagram() (core.Datagram, error) {
	for {
		data, ci, err := s.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return core.Datagram{}, io.EOF
			}
			return core.Datagram{}, fmt.Errorf("failed to read packet: %w", err)
		}

		d, ok := s.decode(data)
		if !ok {
			continue
		}
		if !s.seen {
			s.first = ci.Timestamp
			s.seen = true
		}
		d.At = ci.Timestamp.Sub(s.first)
		return d, nil
	}
}

func (s *Source) decode(data []byte) (core.Datagram, bool) {
	pkt := gopacket.NewPacket(data, s.reader.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	udpLayer := pkt.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return core.Datagram{}, false
	}
	udp := udpLayer.(*layers.UDP)
	if s.port != 0 && uint16(udp.DstPort) != s.port {
		return core.Datagram{}, false
	}

	var src, dst netip.Addr
	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		src, _ = netip.AddrFromSlice(ip.SrcIP.To4())
		dst, _ = netip.AddrFromSlice(ip.DstIP.To4())
	case *layers.IPv6:
		src, _ = netip.AddrFromSlice(ip.SrcIP)
		dst, _ = netip.AddrFromSlice(ip.DstIP)
	default:
		return core.Datagram{}, false
	}

	return core.Datagram{
		Data:   udp.Payload,
		Remote: netip.AddrPortFrom(src, uint16(udp.SrcPort)),
		Local:  netip.AddrPortFrom(dst, uint16(udp.DstPort)),
	}, true
}

func (s *Source) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
