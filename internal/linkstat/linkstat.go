// Package linkstat maintains running link bandwidth statistics: an average
// over the last N samples and a maximum of that average over the last M
// samples.
//
// Bandwidth values are kilobytes (10^3 bytes) per second. Conversion to
// Mbit/s happens only when a Snapshot is rendered.
package linkstat

import (
	"time"

	"github.com/google/btree"
)

const (
	DefaultAverageWindow = 10000
	DefaultMaxWindow     = 10000
)

type sample struct {
	size int
	at   time.Duration
}

// maxItem makes the B-tree a multiset: equal values are kept apart by the
// insertion serial.
type maxItem struct {
	value  float64
	serial uint64
}

func lessMaxItem(a, b maxItem) bool {
	if a.value != b.value {
		return a.value < b.value
	}
	return a.serial < b.serial
}

// Statistics is not safe for concurrent use; it belongs to one task.
type Statistics struct {
	count uint64
	total uint64
	first time.Duration

	// average window, ring buffer ordered oldest to newest
	samples     []sample
	head        int
	n           int
	bufferTotal int

	// max window, FIFO of averages mirrored into an ordered multiset
	maxFIFO   []maxItem
	maxHead   int
	maxN      int
	maxSet    *btree.BTreeG[maxItem]
	maxSerial uint64
}

// New creates statistics with the given window sizes (values below 1 are raised to 1).
func New(averageWindow, maxWindow int) *Statistics {
	if averageWindow < 1 {
		averageWindow = 1
	}
	if maxWindow < 1 {
		maxWindow = 1
	}
	return &Statistics{
		samples: make([]sample, averageWindow),
		maxFIFO: make([]maxItem, maxWindow),
		maxSet:  btree.NewG[maxItem](8, lessMaxItem),
	}
}

// Add records a packet of size bytes observed at time at.
func (s *Statistics) Add(size int, at time.Duration) {
	if s.count == 0 {
		s.first = at
	}
	s.count++
	s.total += uint64(size)

	if s.n == len(s.samples) {
		s.bufferTotal -= s.samples[s.head].size
		s.samples[s.head] = sample{size: size, at: at}
		s.head = (s.head + 1) % len(s.samples)
	} else {
		s.samples[(s.head+s.n)%len(s.samples)] = sample{size: size, at: at}
		s.n++
	}
	s.bufferTotal += size

	s.pushMax(s.AverageBandwidth())
}

func (s *Statistics) pushMax(bw float64) {
	if s.maxN == len(s.maxFIFO) {
		s.maxSet.Delete(s.maxFIFO[s.maxHead])
		s.maxHead = (s.maxHead + 1) % len(s.maxFIFO)
		s.maxN--
	}
	s.maxSerial++
	item := maxItem{value: bw, serial: s.maxSerial}
	s.maxFIFO[(s.maxHead+s.maxN)%len(s.maxFIFO)] = item
	s.maxN++
	s.maxSet.ReplaceOrInsert(item)
}

func (s *Statistics) at(i int) sample {
	return s.samples[(s.head+i)%len(s.samples)]
}

func (s *Statistics) newest() sample { return s.at(s.n - 1) }
func (s *Statistics) oldest() sample { return s.at(0) }

// AverageDuration is the time spanned by the average window.
func (s *Statistics) AverageDuration() time.Duration {
	if s.n == 0 {
		return 0
	}
	return s.newest().at - s.oldest().at
}

// AverageBandwidth is the byte rate over the average window. The newest
// sample closes the interval, so its bytes are not counted.
func (s *Statistics) AverageBandwidth() float64 {
	if s.n < 2 {
		return 0
	}
	dt := s.AverageDuration().Seconds()
	if dt <= 0 {
		return 0
	}
	return float64(s.bufferTotal-s.newest().size) / dt / 1e3
}

// InstantaneousBandwidth is the byte rate between the two newest samples.
func (s *Statistics) InstantaneousBandwidth() float64 {
	if s.n < 2 {
		return 0
	}
	last := s.newest()
	prev := s.at(s.n - 2)
	dt := (last.at - prev.at).Seconds()
	if dt <= 0 {
		return 0
	}
	return float64(last.size) / dt / 1e3
}

// MaxBandwidth is the largest average bandwidth in the max window.
func (s *Statistics) MaxBandwidth() float64 {
	item, ok := s.maxSet.Max()
	if !ok {
		return 0
	}
	return item.value
}

// Count returns the number of samples ever added.
func (s *Statistics) Count() uint64 { return s.count }

// TotalBytes returns the sum of all sample sizes ever added.
func (s *Statistics) TotalBytes() uint64 { return s.total }

// WindowLen returns the number of samples in the average window.
func (s *Statistics) WindowLen() int { return s.n }

// MaxWindowLen returns the number of values in the max window.
func (s *Statistics) MaxWindowLen() int { return s.maxN }
