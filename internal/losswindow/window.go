// Package losswindow classifies received sequence numbers as original,
// duplicate or as closing a gap of missing numbers, using bounded memory.
package losswindow

import "github.com/google/btree"

const btreeDegree = 8

// Result is the outcome of a single Add.
type Result struct {
	Duplicate    bool
	SomeMissing  bool
	FirstMissing uint32
	LastMissing  uint32
}

// MissingCount is the size of the reported gap, 0 when none.
func (r Result) MissingCount() uint32 {
	if !r.SomeMissing {
		return 0
	}
	return r.LastMissing - r.FirstMissing + 1
}

// Window retains at most Capacity distinct sequence numbers. A gap is only
// reported when the smallest retained number is evicted, that is once the
// window has moved past it, and each gap is reported exactly once. Smaller
// capacities report earlier but tolerate less reordering.
type Window struct {
	seen     *btree.BTreeG[uint32]
	capacity int

	duplicates uint64
	missing    uint64
	original   uint64
}

// New creates a window. Capacities below 1 are raised to 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		seen:     btree.NewG[uint32](btreeDegree, func(a, b uint32) bool { return a < b }),
		capacity: capacity,
	}
}

// Add records seq and classifies it.
func (w *Window) Add(seq uint32) Result {
	var r Result

	if w.seen.Has(seq) {
		w.duplicates++
		r.Duplicate = true
		return r
	}

	full := w.seen.Len() >= w.capacity
	if full {
		// Below the floor of a full window: it may have been seen and evicted
		// already, so it cannot be counted as original.
		if floor, _ := w.seen.Min(); seq < floor {
			w.duplicates++
			r.Duplicate = true
			return r
		}
	}

	w.original++
	if full {
		w.evictSmallest(&r)
	}
	w.seen.ReplaceOrInsert(seq)
	return r
}

func (w *Window) evictSmallest(r *Result) {
	if w.seen.Len() >= 2 {
		var s [2]uint32
		i := 0
		w.seen.Ascend(func(v uint32) bool {
			s[i] = v
			i++
			return i < 2
		})
		if gap := s[1] - s[0] - 1; gap > 0 {
			w.missing += uint64(gap)
			r.SomeMissing = true
			r.FirstMissing = s[0] + 1
			r.LastMissing = s[1] - 1
		}
	}
	w.seen.DeleteMin()
}

// Duplicates returns the number of duplicate (or too late) sequence numbers.
func (w *Window) Duplicates() uint64 { return w.duplicates }

// Missing returns the number of sequence numbers reported missing so far.
func (w *Window) Missing() uint64 { return w.missing }

// Original returns the number of distinct sequence numbers accepted.
func (w *Window) Original() uint64 { return w.original }

// Len returns the number of retained sequence numbers.
func (w *Window) Len() int { return w.seen.Len() }

// Capacity returns the configured window size.
func (w *Window) Capacity() int { return w.capacity }
