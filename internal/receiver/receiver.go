// Package receiver runs the receive loop: it reads datagrams from a socket
// or a capture, hands them to the flow analyzer and drives the periodic
// console output.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/time/rate"

	"firestige.xyz/udptool/internal/analyzer"
	"firestige.xyz/udptool/internal/core"
	"firestige.xyz/udptool/internal/log"
	"firestige.xyz/udptool/internal/metrics"
	"firestige.xyz/udptool/internal/sink"
)

const (
	DefaultBufferSize   = 65536
	DefaultDisplayEvery = time.Second
)

// PacketConn is the receive side of a UDP socket. *net.UDPConn satisfies it.
type PacketConn interface {
	ReadFromUDPAddrPort(b []byte) (int, netip.AddrPort, error)
	SetReadDeadline(t time.Time) error
}

// Source yields recorded datagrams and io.EOF when exhausted.
type Source interface {
	ReadDatagram() (core.Datagram, error)
}

type Options struct {
	Flow analyzer.FlowConfig
	// Count stops the loop after that many datagrams; 0 runs until cancelled.
	Count         uint64
	BufferSize    int
	DisplayEvery  time.Duration
	DetailedEvery time.Duration
	RunID         string
	// Local is the bound address, recorded in pcap dumps.
	Local netip.AddrPort

	Log     *sink.PacketLog
	Report  *sink.Report
	Pcap    *sink.PcapDump
	Console io.Writer
	Clock   core.Clock
}

type Receiver struct {
	opts    Options
	tracker *analyzer.Tracker
	limiter *rate.Limiter
	logger  log.Logger

	received     uint64
	rxErrs       uint64
	nextDisplay  time.Duration
	nextDetailed time.Duration
	replay       bool
	origin       time.Time
}

func New(opts Options) *Receiver {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.DisplayEvery <= 0 {
		opts.DisplayEvery = DefaultDisplayEvery
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = core.NewClock()
	}

	r := &Receiver{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		logger:  log.GetLogger().WithField("run", opts.RunID),
	}
	r.tracker = analyzer.NewTracker(opts.Flow, analyzer.MissingRangeFunc(r.onMissingRange))
	return r
}

func (r *Receiver) onMissingRange(count, first, last uint32) {
	metrics.RxMissingTotal.WithLabelValues(r.opts.RunID).Add(float64(count))
	if r.opts.Log != nil {
		r.opts.Log.OnMissingRange(count, first, last)
	}
}

// Live returns the flow currently being analyzed, nil before any datagram.
func (r *Receiver) Live() *analyzer.Flow {
	return r.tracker.Live()
}

// Received counts handled datagrams across all flows.
func (r *Receiver) Received() uint64 {
	return r.received
}

// Run reads from conn until Count datagrams were handled or ctx is
// cancelled. Cancellation pushes the read deadline into the past so a
// blocked read returns immediately.
func (r *Receiver) Run(ctx context.Context, conn PacketConn) error {
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	clock := r.opts.Clock
	r.origin = time.Now()
	start := clock.Now()
	r.nextDisplay = start + r.opts.DisplayEvery
	r.nextDetailed = start + r.opts.DetailedEvery

	r.logger.WithField("buffer", r.opts.BufferSize).Info("listening")

	buf := make([]byte, r.opts.BufferSize)
	for r.opts.Count == 0 || r.received < r.opts.Count {
		now := clock.Now()
		if err := conn.SetReadDeadline(time.Now().Add(r.untilTick(now))); err != nil {
			return fmt.Errorf("%w: set read deadline: %v", core.ErrTransport, err)
		}
		if ctx.Err() != nil {
			break
		}

		n, remote, err := conn.ReadFromUDPAddrPort(buf)
		at := clock.Now()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				r.finish()
				return fmt.Errorf("%w: %v", core.ErrTransport, err)
			}
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				r.receiveError(err)
			}
			r.tick(at)
			continue
		}
		if ctx.Err() != nil {
			break
		}

		r.handle(core.Datagram{
			Data:   buf[:n],
			Remote: netip.AddrPortFrom(remote.Addr().Unmap(), remote.Port()),
			Local:  r.opts.Local,
			At:     at,
		})
		r.tick(at)
	}

	r.finish()
	return nil
}

// Replay feeds a recorded capture through the same path as Run. Display
// ticks follow the capture timestamps.
func (r *Receiver) Replay(ctx context.Context, src Source) error {
	r.replay = true
	r.origin = time.Now()
	r.nextDisplay = r.opts.DisplayEvery
	r.nextDetailed = r.opts.DetailedEvery

	for r.opts.Count == 0 || r.received < r.opts.Count {
		if ctx.Err() != nil {
			break
		}
		d, err := src.ReadDatagram()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.finish()
			return err
		}
		r.handle(d)
		r.tick(d.At)
	}

	r.finish()
	return nil
}

func (r *Receiver) untilTick(now time.Duration) time.Duration {
	next := r.nextDisplay
	if r.opts.DetailedEvery > 0 && r.nextDetailed < next {
		next = r.nextDetailed
	}
	if next <= now {
		return time.Millisecond
	}
	return next - now
}

func (r *Receiver) handle(d core.Datagram) {
	flow, superseded := r.tracker.Observe(d.Remote, d.At)
	if superseded != nil {
		r.finalize(superseded, d.At)
		metrics.RxFlowSwitchesTotal.WithLabelValues(r.opts.RunID).Inc()
		r.logger.WithFields(map[string]interface{}{
			"previous": superseded.Remote.String(),
			"remote":   d.Remote.String(),
		}).Info("remote endpoint changed, starting new flow")
	}
	if flow.Analyzer.Counters().Count == 0 && r.opts.Log != nil {
		r.opts.Log.Flow(d.Remote)
	}

	v := flow.Receive(d.Data, d.At)
	r.received++

	if r.opts.Log != nil {
		r.opts.Log.Received(d.At.Microseconds(), v)
	}
	if r.opts.Pcap != nil {
		ts := time.Now()
		if r.replay {
			ts = r.origin.Add(d.At)
		}
		if err := r.opts.Pcap.WriteDatagram(d, ts); err != nil && r.limiter.Allow() {
			r.logger.WithError(err).Warn("failed to write pcap record")
		}
	}

	metrics.RxDatagramsTotal.WithLabelValues(r.opts.RunID, v.Status.String()).Inc()
	metrics.RxBytesTotal.WithLabelValues(r.opts.RunID).Add(float64(v.Length))
	if v.Status.Has(analyzer.StatusDup) {
		metrics.RxDuplicatesTotal.WithLabelValues(r.opts.RunID).Inc()
	}
	if v.Errors > 0 {
		metrics.RxPayloadErrorsTotal.WithLabelValues(r.opts.RunID).Add(float64(v.Errors))
	}
	metrics.AverageBandwidth.WithLabelValues(r.opts.RunID, metrics.DirectionRx).Set(flow.Stats.AverageBandwidth())
	metrics.MaxBandwidth.WithLabelValues(r.opts.RunID, metrics.DirectionRx).Set(flow.Stats.MaxBandwidth())
}

func (r *Receiver) receiveError(err error) {
	r.rxErrs++
	if r.limiter.Allow() {
		r.logger.WithError(err).WithField("errors", r.rxErrs).Warn("reception error")
	}
}

func (r *Receiver) tick(now time.Duration) {
	live := r.tracker.Live()
	if now >= r.nextDisplay {
		if live != nil {
			fmt.Fprintf(r.opts.Console, "Received: %s\n", live.Stats.Snapshot(now))
		}
		r.nextDisplay = now + r.opts.DisplayEvery
	}
	if r.opts.DetailedEvery > 0 && now >= r.nextDetailed {
		if live != nil {
			sink.WriteSummary(r.opts.Console, live)
		}
		r.nextDetailed = now + r.opts.DetailedEvery
	}
}

func (r *Receiver) finalize(flow *analyzer.Flow, now time.Duration) {
	sink.WriteSummary(r.opts.Console, flow)
	if flow != nil && r.opts.Report != nil {
		r.opts.Report.AddFlow(flow, now)
	}
}

func (r *Receiver) finish() {
	now := r.opts.Clock.Now()
	live := r.tracker.Live()
	if live != nil {
		if r.replay {
			now = live.LastRx
		}
		fmt.Fprintf(r.opts.Console, "Finally: %s\n", live.Stats.Snapshot(now))
	}
	r.finalize(live, now)

	if r.opts.Log != nil {
		if err := r.opts.Log.Flush(); err != nil {
			r.logger.WithError(err).Error("failed to flush rx log")
		}
	}
	r.logger.WithFields(map[string]interface{}{
		"received":      r.received,
		"flows":         r.tracker.Switches() + boolToUint(live != nil),
		"receive_error": r.rxErrs,
	}).Info("reception finished")
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
