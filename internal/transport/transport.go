// Package transport opens the UDP sockets used by the transmitter and the
// receiver.
package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"firestige.xyz/udptool/internal/core"
)

type ListenOptions struct {
	// Address is host:port; an empty host binds all interfaces.
	Address string
	// NoCheck disables UDP checksum verification where supported.
	NoCheck    bool
	ReadBuffer int
}

type DialOptions struct {
	// Source is the optional local host:port.
	Source      string
	Destination string
	NoCheck     bool
	WriteBuffer int
	// TOS sets the IPv4 TOS byte or the IPv6 traffic class; negative leaves it.
	TOS int
	// TTL sets the IPv4 TTL or the IPv6 hop limit; 0 leaves it.
	TTL int
}

// Listen binds a UDP socket for receiving.
func Listen(ctx context.Context, opts ListenOptions) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: control(opts.NoCheck)}

	pc, err := lc.ListenPacket(ctx, "udp", opts.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: bind %s: %v", core.ErrTransport, opts.Address, err)
	}
	conn := pc.(*net.UDPConn)

	if opts.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(opts.ReadBuffer); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: set read buffer: %v", core.ErrTransport, err)
		}
	}
	return conn, nil
}

// Dial resolves the destination and returns a connected UDP socket.
func Dial(ctx context.Context, opts DialOptions) (*net.UDPConn, error) {
	raddr, err := net.ResolveUDPAddr("udp", opts.Destination)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", core.ErrTransport, opts.Destination, err)
	}

	network := "udp4"
	if raddr.IP.To4() == nil {
		network = "udp6"
	}

	d := net.Dialer{Control: control(opts.NoCheck)}
	if opts.Source != "" {
		laddr, err := net.ResolveUDPAddr(network, opts.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve %s: %v", core.ErrTransport, opts.Source, err)
		}
		d.LocalAddr = laddr
	}

	c, err := d.DialContext(ctx, network, raddr.String())
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", core.ErrTransport, raddr, err)
	}
	conn := c.(*net.UDPConn)

	if err := configure(conn, network, opts); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func configure(conn *net.UDPConn, network string, opts DialOptions) error {
	if opts.WriteBuffer > 0 {
		if err := conn.SetWriteBuffer(opts.WriteBuffer); err != nil {
			return fmt.Errorf("%w: set write buffer: %v", core.ErrTransport, err)
		}
	}

	if network == "udp4" {
		p := ipv4.NewConn(conn)
		if opts.TOS >= 0 {
			if err := p.SetTOS(opts.TOS); err != nil {
				return fmt.Errorf("%w: set tos: %v", core.ErrTransport, err)
			}
		}
		if opts.TTL > 0 {
			if err := p.SetTTL(opts.TTL); err != nil {
				return fmt.Errorf("%w: set ttl: %v", core.ErrTransport, err)
			}
		}
		return nil
	}

	p := ipv6.NewConn(conn)
	if opts.TOS >= 0 {
		if err := p.SetTrafficClass(opts.TOS); err != nil {
			return fmt.Errorf("%w: set traffic class: %v", core.ErrTransport, err)
		}
	}
	if opts.TTL > 0 {
		if err := p.SetHopLimit(opts.TTL); err != nil {
			return fmt.Errorf("%w: set hop limit: %v", core.ErrTransport, err)
		}
	}
	return nil
}

func control(noCheck bool) func(network, address string, c syscall.RawConn) error {
	if !noCheck {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		if err := c.Control(func(fd uintptr) {
			serr = disableChecksum(fd)
		}); err != nil {
			return err
		}
		return serr
	}
}
