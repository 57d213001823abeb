package sink

import (
	"bytes"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/udptool/internal/analyzer"
	"firestige.xyz/udptool/internal/core"
	"firestige.xyz/udptool/internal/packet"
	"firestige.xyz/udptool/internal/source/pcapfile"
)

type bufCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufCloser) Close() error {
	b.closed = true
	return nil
}

func datagram(t *testing.T, seq uint32, size int) []byte {
	t.Helper()
	b, err := packet.Build(nil, seq, seq*100, size)
	require.NoError(t, err)
	return b
}

func TestRxLogLines(t *testing.T) {
	out := &bufCloser{}
	l := NewRxLog(out, "run-1")

	remote := netip.MustParseAddrPort("10.0.0.1:9000")
	l.Flow(remote)
	a := analyzer.New(3, l)
	for _, seq := range []uint32{1, 2, 6, 7, 8} {
		v := a.Receive(datagram(t, seq, 40))
		l.Received(int64(seq)*10, v)
	}
	l.Received(99, a.Receive([]byte{1, 2, 3}))
	require.NoError(t, l.Close())
	assert.True(t, out.closed)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"# run run-1",
		"t_rx size status seq t_tx errors",
		"# flow 10.0.0.1:9000",
		"10 40 ok 1 100 0",
		"20 40 ok 2 200 0",
		"60 40 ok 6 600 0",
		"70 40 ok 7 700 0",
		"# missing 3 3 5",
		"80 40 ok 8 800 0",
		"99 3 short 0 0 0",
	}, lines)
}

func TestTxLog(t *testing.T) {
	out := &bufCloser{}
	l := NewTxLog(out, "")
	l.Transmitted(0, 1472, 0)
	l.Transmitted(1000, 5, 1)
	require.NoError(t, l.Flush())

	assert.Equal(t, "t_tx size seq\n0 1472 0\n1000 5 1\n", out.String())
}

func TestOpenLogFile(t *testing.T) {
	dir := t.TempDir()

	w, err := OpenLogFile(LogFileConfig{Filename: filepath.Join(dir, "rx.log")})
	require.NoError(t, err)
	_, err = io.WriteString(w, "plain\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w, err = OpenLogFile(LogFileConfig{Filename: filepath.Join(dir, "tx.log"), MaxSize: 1})
	require.NoError(t, err)
	_, err = io.WriteString(w, "rotating\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(filepath.Join(dir, "rx.log"))
	require.NoError(t, err)
	assert.Equal(t, "plain\n", string(data))
	data, err = os.ReadFile(filepath.Join(dir, "tx.log"))
	require.NoError(t, err)
	assert.Equal(t, "rotating\n", string(data))

	_, err = OpenLogFile(LogFileConfig{Filename: filepath.Join(dir, "missing", "x.log")})
	assert.Error(t, err)
}

func newFlow(t *testing.T) *analyzer.Flow {
	t.Helper()
	remote := netip.MustParseAddrPort("10.0.0.1:9000")
	f := analyzer.NewFlow(remote, 0, analyzer.FlowConfig{MissWindow: 3, AverageWindow: 10, MaxWindow: 10}, nil)
	for i, seq := range []uint32{1, 2, 6, 7, 8} {
		f.Receive(datagram(t, seq, 100), time.Duration(i+1)*time.Second)
	}
	return f
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "No packets received", Summary(nil))

	out := Summary(newFlow(t))
	assert.True(t, strings.HasPrefix(out, "RX statistics (10.0.0.1:9000):\n"))
	assert.Contains(t, out, "  Total packets ........................... 5 pk\n")
	assert.Contains(t, out, "  Lost decodables ......................... 3 pk\n")
	assert.Contains(t, out, "  Decodable loss ratio .................... 0.375\n")
	assert.True(t, strings.HasSuffix(out, "Decodables with erroneous payloads ...... 0 pk"))
}

func TestReportYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	r := NewReport("run-1", time.Unix(1700000000, 0).UTC())
	r.AddFlow(newFlow(t), 5*time.Second)
	require.NoError(t, r.WriteFile(path, time.Unix(1700000005, 0).UTC()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded struct {
		RunID string `yaml:"run_id"`
		Flows []struct {
			Remote    string  `yaml:"remote"`
			LossRatio float64 `yaml:"loss_ratio"`
			Counters  struct {
				Packets uint64 `yaml:"packets"`
				Missing uint64 `yaml:"missing"`
			} `yaml:"counters"`
		} `yaml:"flows"`
	}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	require.Len(t, decoded.Flows, 1)
	assert.Equal(t, "10.0.0.1:9000", decoded.Flows[0].Remote)
	assert.Equal(t, 0.375, decoded.Flows[0].LossRatio)
	assert.Equal(t, uint64(5), decoded.Flows[0].Counters.Packets)
	assert.Equal(t, uint64(3), decoded.Flows[0].Counters.Missing)
}

func TestPcapDumpRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rx.pcap")
	dump, err := CreatePcapDump(path)
	require.NoError(t, err)

	base := time.Unix(1700000000, 0)
	v4 := core.Datagram{
		Data:   datagram(t, 1, 64),
		Remote: netip.MustParseAddrPort("[::ffff:192.0.2.1]:4000"),
		Local:  netip.MustParseAddrPort("192.0.2.2:5000"),
	}
	v6 := core.Datagram{
		Data:   datagram(t, 2, 64),
		Remote: netip.MustParseAddrPort("[2001:db8::1]:4000"),
		Local:  netip.AddrPortFrom(netip.Addr{}, 5000),
	}
	require.NoError(t, dump.WriteDatagram(v4, base))
	require.NoError(t, dump.WriteDatagram(v6, base.Add(time.Second)))
	require.NoError(t, dump.Close())

	src, err := pcapfile.Open(pcapfile.Config{FilePath: path, Port: 5000})
	require.NoError(t, err)
	defer src.Close()

	d, err := src.ReadDatagram()
	require.NoError(t, err)
	assert.Equal(t, v4.Data, d.Data)
	assert.Equal(t, "192.0.2.1:4000", d.Remote.String())

	d, err = src.ReadDatagram()
	require.NoError(t, err)
	assert.Equal(t, v6.Data, d.Data)
	assert.Equal(t, "[2001:db8::1]:4000", d.Remote.String())
	assert.Equal(t, time.Second, d.At)

	_, err = src.ReadDatagram()
	assert.ErrorIs(t, err, io.EOF)
}
