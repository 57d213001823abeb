package sink

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/udptool/internal/core"
)

const snapLen = 65536

// PcapDump writes received datagrams to a pcap file. Link and network
// headers are synthesized from the datagram endpoints.
type PcapDump struct {
	mu  sync.Mutex
	out io.WriteCloser
	w   *pcapgo.Writer
	buf gopacket.SerializeBuffer
}

// CreatePcapDump creates path and writes the file header.
func CreatePcapDump(path string) (*PcapDump, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pcap file %s: %w", path, err)
	}
	d, err := NewPcapDump(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

func NewPcapDump(out io.WriteCloser) (*PcapDump, error) {
	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &PcapDump{out: out, w: w, buf: gopacket.NewSerializeBuffer()}, nil
}

// WriteDatagram records d as captured at ts.
func (p *PcapDump) WriteDatagram(d core.Datagram, ts time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	src := unmap(d.Remote)
	dst := unmap(d.Local)
	if !dst.Addr().IsValid() || dst.Addr().Is4() != src.Addr().Is4() {
		unspecified := netip.IPv6Unspecified()
		if src.Addr().Is4() {
			unspecified = netip.IPv4Unspecified()
		}
		dst = netip.AddrPortFrom(unspecified, dst.Port())
	}

	eth := &layers.Ethernet{
		SrcMAC: net.HardwareAddr{0, 0, 0, 0, 0, 0},
		DstMAC: net.HardwareAddr{0, 0, 0, 0, 0, 0},
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port()),
		DstPort: layers.UDPPort(dst.Port()),
	}

	var network gopacket.SerializableLayer
	if src.Addr().Is4() {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    net.IP(src.Addr().AsSlice()),
			DstIP:    net.IP(dst.Addr().AsSlice()),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}
		network = ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolUDP,
			SrcIP:      net.IP(src.Addr().AsSlice()),
			DstIP:      net.IP(dst.Addr().AsSlice()),
		}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}
		network = ip
	}

	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(p.buf, opts, eth, network, udp, gopacket.Payload(d.Data)); err != nil {
		return fmt.Errorf("failed to serialize datagram: %w", err)
	}

	frame := p.buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: min(len(frame), snapLen),
		Length:        len(frame),
	}
	return p.w.WritePacket(ci, frame[:ci.CaptureLength])
}

func (p *PcapDump) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Close()
}

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
