package analyzer

import (
	"net/netip"
	"time"

	"firestige.xyz/udptool/internal/linkstat"
)

// FlowConfig sizes the per-flow windows.
type FlowConfig struct {
	MissWindow    int
	AverageWindow int
	MaxWindow     int
}

// Flow is the state kept for one remote endpoint.
type Flow struct {
	Remote   netip.AddrPort
	FirstRx  time.Duration
	LastRx   time.Duration
	Analyzer *Analyzer
	Stats    *linkstat.Statistics
}

// NewFlow creates the state for remote, first seen at at.
func NewFlow(remote netip.AddrPort, at time.Duration, cfg FlowConfig, observer MissingRangeObserver) *Flow {
	return &Flow{
		Remote:   remote,
		FirstRx:  at,
		LastRx:   at,
		Analyzer: New(cfg.MissWindow, observer),
		Stats:    linkstat.New(cfg.AverageWindow, cfg.MaxWindow),
	}
}

// Receive analyzes a datagram that arrived at at and feeds the link statistics.
func (f *Flow) Receive(datagram []byte, at time.Duration) Verdict {
	f.LastRx = at
	f.Stats.Add(len(datagram), at)
	return f.Analyzer.Receive(datagram)
}

// Duration is the time between the first and last datagram of the flow.
func (f *Flow) Duration() time.Duration {
	return f.LastRx - f.FirstRx
}

// Tracker keeps the single live flow. A datagram from a different remote
// supersedes the live flow; the caller finalizes the superseded one.
type Tracker struct {
	cfg      FlowConfig
	observer MissingRangeObserver
	live     *Flow
	switches uint64
}

// NewTracker creates a tracker; observer is handed to every flow's analyzer.
func NewTracker(cfg FlowConfig, observer MissingRangeObserver) *Tracker {
	return &Tracker{cfg: cfg, observer: observer}
}

// Observe returns the flow for remote, creating it if remote differs from the
// live flow's. The previous live flow is returned as superseded, or nil.
func (t *Tracker) Observe(remote netip.AddrPort, at time.Duration) (live, superseded *Flow) {
	if t.live != nil && t.live.Remote == remote {
		return t.live, nil
	}
	superseded = t.live
	if superseded != nil {
		t.switches++
	}
	t.live = NewFlow(remote, at, t.cfg, t.observer)
	return t.live, superseded
}

// Live returns the live flow, nil before the first datagram.
func (t *Tracker) Live() *Flow {
	return t.live
}

// Switches counts how many flows were superseded.
func (t *Tracker) Switches() uint64 {
	return t.switches
}
