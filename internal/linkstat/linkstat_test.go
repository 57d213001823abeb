package linkstat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAverageZeroWithFewerThanTwoSamples(t *testing.T) {
	s := New(10, 10)
	assert.Equal(t, 0.0, s.AverageBandwidth())
	assert.Equal(t, 0.0, s.InstantaneousBandwidth())

	s.Add(1000, time.Second)
	assert.Equal(t, 0.0, s.AverageBandwidth())
	assert.Equal(t, 0.0, s.InstantaneousBandwidth())
	assert.Equal(t, 0.0, s.MaxBandwidth())
}

func TestAverageExcludesNewestSample(t *testing.T) {
	s := New(10, 10)
	s.Add(1000, 0)
	s.Add(1000, 500*time.Millisecond)
	s.Add(5000, time.Second)

	// (1000 + 1000) bytes over 1 s = 2 kB/s
	assert.InDelta(t, 2.0, s.AverageBandwidth(), 1e-9)
	// 5000 bytes over 0.5 s = 10 kB/s
	assert.InDelta(t, 10.0, s.InstantaneousBandwidth(), 1e-9)
	assert.Equal(t, time.Second, s.AverageDuration())
}

func TestWindowNeverGrowsBeyondCapacity(t *testing.T) {
	const n = 4
	s := New(n, 3)
	for i := 0; i <= n; i++ {
		s.Add(100, time.Duration(i)*time.Millisecond)
	}
	assert.Equal(t, n, s.WindowLen())
	assert.Equal(t, uint64(n+1), s.Count())
	assert.Equal(t, uint64(100*(n+1)), s.TotalBytes())
	assert.Equal(t, 3, s.MaxWindowLen())
}

func TestEvictionSubtractsOldestSize(t *testing.T) {
	s := New(2, 10)
	s.Add(1000, 0)
	s.Add(2000, time.Second)
	s.Add(3000, 2*time.Second)

	// window holds (2000@1s, 3000@2s): 2000 bytes over 1 s
	assert.InDelta(t, 2.0, s.AverageBandwidth(), 1e-9)
}

func TestZeroDurationGuard(t *testing.T) {
	s := New(10, 10)
	s.Add(100, time.Second)
	s.Add(100, time.Second)
	assert.Equal(t, 0.0, s.AverageBandwidth())
	assert.Equal(t, 0.0, s.InstantaneousBandwidth())
}

func TestMaxTracksLargestAverageInWindow(t *testing.T) {
	s := New(2, 2)
	s.Add(1000, 0)
	s.Add(1000, time.Second)           // avg 1 kB/s
	s.Add(1000, 1100*time.Millisecond) // avg 1000/0.1 = 10 kB/s
	assert.InDelta(t, 10.0, s.MaxBandwidth(), 1e-9)

	s.Add(1000, 11100*time.Millisecond) // avg 0.1 kB/s
	assert.InDelta(t, 10.0, s.MaxBandwidth(), 1e-9)

	s.Add(1000, 21100*time.Millisecond) // avg 0.1 kB/s, the 10 kB/s value ages out
	assert.InDelta(t, 0.1, s.MaxBandwidth(), 1e-9)
}

func TestMaxMultisetKeepsEqualValues(t *testing.T) {
	s := New(2, 3)
	s.Add(1000, 0)
	s.Add(1000, time.Second)   // 1
	s.Add(1000, 2*time.Second) // 1
	s.Add(1000, 3*time.Second) // 1, evicts the initial 0
	assert.InDelta(t, 1.0, s.MaxBandwidth(), 1e-9)
	assert.Equal(t, 3, s.maxSet.Len())
}

func TestSnapshotString(t *testing.T) {
	s := New(10, 10)
	assert.Equal(t, "NA", s.Snapshot(0).String())

	s.Add(1250, 0)
	s.Add(1250, time.Second)
	snap := s.Snapshot(2 * time.Second)
	assert.Equal(t, uint64(2), snap.Count)
	assert.Equal(t, 2*time.Second, snap.Elapsed)
	assert.InDelta(t, 1.25, snap.Average, 1e-9)
	assert.InDelta(t, 2.0, snap.PacketRate(), 1e-9)
	assert.Contains(t, snap.String(), "total 2 packets")
	assert.Contains(t, snap.String(), "0.010 Mbit/s average")
}

func TestMbps(t *testing.T) {
	assert.InDelta(t, 8.0, Mbps(1000), 1e-9)
}
