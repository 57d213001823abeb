package analyzer

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/udptool/internal/packet"
)

type missingRange struct {
	count, first, last uint32
}

func datagram(t *testing.T, seq uint32, payloadLen int) []byte {
	t.Helper()
	b, err := packet.Build(nil, seq, 1000+seq, packet.HeaderSize+payloadLen)
	require.NoError(t, err)
	return b
}

func TestShortDatagram(t *testing.T) {
	a := New(8, nil)
	v := a.Receive(make([]byte, 8))

	assert.Equal(t, StatusShort, v.Status)
	c := a.Counters()
	assert.Equal(t, uint64(0), c.DecodableCount)
	assert.Equal(t, uint64(1), c.Count)
	assert.Equal(t, uint64(8), c.ByteCount)
}

func TestBadChecksum(t *testing.T) {
	a := New(8, nil)
	d := datagram(t, 5, 32)
	d[0] ^= 0x01

	v := a.Receive(d)
	assert.Equal(t, StatusBad, v.Status)
	c := a.Counters()
	assert.Equal(t, uint64(1), c.BadChecksum)
	assert.Equal(t, uint64(0), c.Original)
	assert.Equal(t, uint64(1), c.Count)
}

func TestCleanDatagram(t *testing.T) {
	a := New(8, nil)
	v := a.Receive(datagram(t, 42, 100))

	assert.Equal(t, StatusOK, v.Status)
	assert.Equal(t, uint32(42), v.Sequence)
	assert.Equal(t, uint32(1042), v.TxTimestamp)
	assert.Equal(t, uint32(0), v.Errors)

	c := a.Counters()
	assert.Equal(t, uint64(1), c.DecodableCount)
	assert.Equal(t, uint32(42), c.SeqMin)
	assert.Equal(t, uint32(42), c.SeqMax)
	assert.Equal(t, uint64(1), c.Original)
}

func TestTruncatedDoesNotCountErrors(t *testing.T) {
	a := New(8, nil)
	d := datagram(t, 1, 200)
	d = d[:packet.HeaderSize+150]

	v := a.Receive(d)
	assert.True(t, v.Status.Has(StatusTrunc))
	assert.False(t, v.Status.Has(StatusBER))
	c := a.Counters()
	assert.Equal(t, uint64(1), c.Truncated)
	assert.Equal(t, uint64(0), c.TotalErrors)
	assert.Equal(t, uint64(0), c.DecodableCount)
	assert.Equal(t, uint64(len(d)), c.ByteCount)
}

func TestTrailingBytesAreTruncation(t *testing.T) {
	a := New(8, nil)
	d := append(datagram(t, 1, 10), 0xaa)
	v := a.Receive(d)
	assert.True(t, v.Status.Has(StatusTrunc))
}

func TestPayloadErrors(t *testing.T) {
	a := New(8, nil)
	d := datagram(t, 9, 64)
	d[packet.HeaderSize] ^= 0xff
	d[packet.HeaderSize+10] ^= 0x01

	v := a.Receive(d)
	assert.Equal(t, StatusBER, v.Status)
	assert.Equal(t, uint32(2), v.Errors)
	c := a.Counters()
	assert.Equal(t, uint64(2), c.TotalErrors)
	assert.Equal(t, uint64(1), c.TotalErroneous)
	assert.Equal(t, uint64(1), c.DecodableCount)
}

func TestOutOfOrderStrictlyLess(t *testing.T) {
	a := New(8, nil)
	statuses := []Status{}
	for _, seq := range []uint32{1, 3, 2, 4, 4} {
		statuses = append(statuses, a.Receive(datagram(t, seq, 16)).Status)
	}

	assert.Equal(t, StatusOK, statuses[0])
	assert.Equal(t, StatusOK, statuses[1], "skipping ahead is not out of order")
	assert.Equal(t, StatusOOO, statuses[2])
	assert.Equal(t, StatusOK, statuses[3])
	assert.Equal(t, StatusDup, statuses[4], "equal to previous is a duplicate, not out of order")

	c := a.Counters()
	assert.Equal(t, uint64(1), c.OutOfOrder)
	assert.Equal(t, uint64(1), c.Duplicates)
	assert.Equal(t, uint32(1), c.SeqMin)
	assert.Equal(t, uint32(4), c.SeqMax)
	assert.Equal(t, uint32(4), c.SeqLast)
}

func TestDuplicateAndOutOfOrderCombine(t *testing.T) {
	a := New(8, nil)
	a.Receive(datagram(t, 1, 8))
	a.Receive(datagram(t, 2, 8))
	v := a.Receive(datagram(t, 1, 8))
	assert.Equal(t, StatusOOO|StatusDup, v.Status)
	assert.Equal(t, "ooo-dup", v.Status.String())
}

func TestMissingRangeObserver(t *testing.T) {
	var got []missingRange
	obs := MissingRangeFunc(func(count, first, last uint32) {
		got = append(got, missingRange{count, first, last})
	})
	a := New(3, obs)
	for _, seq := range []uint32{1, 2, 6, 7, 8} {
		a.Receive(datagram(t, seq, 4))
	}

	require.Len(t, got, 1)
	assert.Equal(t, missingRange{3, 3, 5}, got[0])
	c := a.Counters()
	assert.Equal(t, uint64(3), c.Missing)
	assert.InDelta(t, 3.0/8.0, c.LossRatio(), 1e-9)
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusOK, "ok"},
		{StatusShort, "short"},
		{StatusBad, "bad"},
		{StatusOOO | StatusTrunc, "ooo-trunc"},
		{StatusDup | StatusBER, "dup-ber"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestLossRatioEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Counters{}.LossRatio())
}

func TestTrackerSupersedesOnNewRemote(t *testing.T) {
	tr := NewTracker(FlowConfig{MissWindow: 4, AverageWindow: 4, MaxWindow: 4}, nil)
	a := netip.MustParseAddrPort("10.0.0.1:4000")
	b := netip.MustParseAddrPort("10.0.0.2:4000")

	f1, old := tr.Observe(a, 0)
	require.NotNil(t, f1)
	assert.Nil(t, old)

	f1again, old := tr.Observe(a, time.Millisecond)
	assert.Same(t, f1, f1again)
	assert.Nil(t, old)

	f2, old := tr.Observe(b, 2*time.Millisecond)
	assert.Same(t, f1, old)
	assert.NotSame(t, f1, f2)
	assert.Equal(t, b, f2.Remote)
	assert.Same(t, f2, tr.Live())
	assert.Equal(t, uint64(1), tr.Switches())
}

func TestFlowReceiveFeedsStats(t *testing.T) {
	f := NewFlow(netip.MustParseAddrPort("127.0.0.1:9"), time.Second, FlowConfig{}, nil)
	f.Receive(datagram(t, 0, 100), time.Second)
	f.Receive(datagram(t, 1, 100), 2*time.Second)

	assert.Equal(t, uint64(2), f.Stats.Count())
	assert.Equal(t, time.Second, f.Duration())
	assert.Equal(t, uint64(2), f.Analyzer.Counters().Count)
}
