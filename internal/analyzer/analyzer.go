// Package analyzer classifies received probe datagrams and accounts for
// them per flow: short and corrupted headers, reordering, duplicates, gaps,
// truncation and payload byte errors.
package analyzer

import (
	"errors"

	"firestige.xyz/udptool/internal/core"
	"firestige.xyz/udptool/internal/losswindow"
	"firestige.xyz/udptool/internal/packet"
	"firestige.xyz/udptool/internal/payload"
)

// DefaultMissWindow is the loss window size used when none is configured.
const DefaultMissWindow = 50

// MissingRangeObserver is notified each time the loss window closes a gap.
type MissingRangeObserver interface {
	OnMissingRange(count, first, last uint32)
}

// MissingRangeFunc adapts a function to MissingRangeObserver.
type MissingRangeFunc func(count, first, last uint32)

func (f MissingRangeFunc) OnMissingRange(count, first, last uint32) {
	f(count, first, last)
}

// Verdict is the outcome of analyzing one datagram.
type Verdict struct {
	Status      Status
	Length      int
	Sequence    uint32
	TxTimestamp uint32
	Errors      uint32
}

// Counters are the cumulative per-flow counters.
type Counters struct {
	Count          uint64 `yaml:"packets"`
	ByteCount      uint64 `yaml:"bytes"`
	BadChecksum    uint64 `yaml:"bad_checksum"`
	Truncated      uint64 `yaml:"truncated"`
	OutOfOrder     uint64 `yaml:"out_of_order"`
	DecodableCount uint64 `yaml:"decodable"`
	TotalErrors    uint64 `yaml:"payload_byte_errors"`
	TotalErroneous uint64 `yaml:"erroneous_payloads"`
	SeqMin         uint32 `yaml:"seq_min"`
	SeqMax         uint32 `yaml:"seq_max"`
	SeqLast        uint32 `yaml:"seq_last"`

	Original   uint64 `yaml:"original"`
	Missing    uint64 `yaml:"missing"`
	Duplicates uint64 `yaml:"duplicates"`
}

// LossRatio is missing / (missing + original), 0 when nothing was decoded.
func (c Counters) LossRatio() float64 {
	den := c.Missing + c.Original
	if den == 0 {
		return 0
	}
	return float64(c.Missing) / float64(den)
}

// Analyzer holds the state of one flow. It is not safe for concurrent use.
type Analyzer struct {
	c        Counters
	seqSeen  bool
	window   *losswindow.Window
	observer MissingRangeObserver
}

// New creates an analyzer whose loss window retains missWindow sequence
// numbers. observer may be nil.
func New(missWindow int, observer MissingRangeObserver) *Analyzer {
	if missWindow <= 0 {
		missWindow = DefaultMissWindow
	}
	return &Analyzer{
		window:   losswindow.New(missWindow),
		observer: observer,
	}
}

// Receive classifies one datagram and updates the counters. It never fails:
// malformed input degrades to short, bad or truncated.
func (a *Analyzer) Receive(datagram []byte) Verdict {
	v := Verdict{Length: len(datagram)}
	a.classify(datagram, &v)

	a.c.ByteCount += uint64(len(datagram))
	a.c.Count++
	return v
}

func (a *Analyzer) classify(datagram []byte, v *Verdict) {
	h, err := packet.Check(datagram)
	switch {
	case errors.Is(err, core.ErrShortPacket):
		v.Status = StatusShort
		return
	case errors.Is(err, core.ErrBadChecksum):
		v.Status = StatusBad
		a.c.BadChecksum++
		return
	}

	seq := h.Sequence
	v.Sequence = seq
	v.TxTimestamp = h.Timestamp
	if !a.seqSeen || seq < a.c.SeqMin {
		a.c.SeqMin = seq
	}
	if !a.seqSeen || seq > a.c.SeqMax {
		a.c.SeqMax = seq
	}
	if a.seqSeen && seq < a.c.SeqLast {
		v.Status |= StatusOOO
		a.c.OutOfOrder++
	}
	a.c.SeqLast = seq
	a.seqSeen = true

	r := a.window.Add(seq)
	if r.Duplicate {
		v.Status |= StatusDup
	}
	if r.SomeMissing && a.observer != nil {
		a.observer.OnMissingRange(r.MissingCount(), r.FirstMissing, r.LastMissing)
	}

	if errors.Is(err, core.ErrTruncated) {
		v.Status |= StatusTrunc
		a.c.Truncated++
		return
	}

	a.c.DecodableCount++
	stream := payload.New(h.Checksum)
	if errs := stream.Mismatches(datagram[packet.HeaderSize:]); errs > 0 {
		v.Errors = uint32(errs)
		v.Status |= StatusBER
		a.c.TotalErroneous++
		a.c.TotalErrors += uint64(errs)
	}
}

// Counters returns a copy of the counters, including the loss window's.
func (a *Analyzer) Counters() Counters {
	c := a.c
	c.Original = a.window.Original()
	c.Missing = a.window.Missing()
	c.Duplicates = a.window.Duplicates()
	return c
}
