package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/udptool/internal/core"
)

func TestLoopback(t *testing.T) {
	ctx := context.Background()

	rx, err := Listen(ctx, ListenOptions{Address: "127.0.0.1:0", NoCheck: true, ReadBuffer: 1 << 16})
	require.NoError(t, err)
	defer rx.Close()

	tx, err := Dial(ctx, DialOptions{
		Destination: rx.LocalAddr().String(),
		NoCheck:     true,
		TOS:         0x10,
		TTL:         32,
	})
	require.NoError(t, err)
	defer tx.Close()

	_, err = tx.Write([]byte("hello"))
	require.NoError(t, err)

	require.NoError(t, rx.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, from, err := rx.ReadFromUDPAddrPort(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	assert.Equal(t, tx.LocalAddr().(*net.UDPAddr).AddrPort().Port(), from.Port())
}

func TestBindErrors(t *testing.T) {
	_, err := Listen(context.Background(), ListenOptions{Address: "not-an-address"})
	assert.ErrorIs(t, err, core.ErrTransport)

	_, err = Dial(context.Background(), DialOptions{Destination: "127.0.0.1:notaport"})
	assert.ErrorIs(t, err, core.ErrTransport)
}
