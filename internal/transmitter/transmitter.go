// Package transmitter runs the paced send loop.
package transmitter

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/time/rate"

	"firestige.xyz/udptool/internal/core"
	"firestige.xyz/udptool/internal/linkstat"
	"firestige.xyz/udptool/internal/log"
	"firestige.xyz/udptool/internal/metrics"
	"firestige.xyz/udptool/internal/packet"
	"firestige.xyz/udptool/internal/pacer"
	"firestige.xyz/udptool/internal/sink"
)

// DefaultDisplayEvery is the interval between "Sent:" lines.
const DefaultDisplayEvery = time.Second

// Sender delivers one datagram. A connected *net.UDPConn satisfies it.
type Sender interface {
	Write(b []byte) (int, error)
}

type Options struct {
	Pacer *pacer.Pacer
	// Count stops the loop after that many scheduled packets; 0 runs until cancelled.
	Count         uint64
	DisplayEvery  time.Duration
	AverageWindow int
	MaxWindow     int
	RunID         string

	// Log receives one line per produced packet; nil disables it.
	Log *sink.PacketLog
	// Console receives the "Sent:" and "Total:" lines; defaults to stdout.
	Console io.Writer
	// Trace receives "size delay_ms" per packet when set.
	Trace io.Writer
	Clock core.Clock
}

// Transmitter owns the pacer, the link statistics and the send buffer.
type Transmitter struct {
	opts    Options
	sender  Sender
	stats   *linkstat.Statistics
	limiter *rate.Limiter
	logger  log.Logger
	buf     []byte

	seq       uint32
	scheduled uint64
	sendErrs  uint64
}

func New(opts Options, sender Sender) *Transmitter {
	if opts.DisplayEvery <= 0 {
		opts.DisplayEvery = DefaultDisplayEvery
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = core.NewClock()
	}
	return &Transmitter{
		opts:    opts,
		sender:  sender,
		stats:   linkstat.New(opts.AverageWindow, opts.MaxWindow),
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		logger:  log.GetLogger().WithField("run", opts.RunID),
		buf:     make([]byte, 0, pacer.MaxDatagramSize),
	}
}

// Stats exposes the transmit link statistics.
func (t *Transmitter) Stats() *linkstat.Statistics {
	return t.stats
}

// Sequence is the sequence number the next produced packet will carry.
func (t *Transmitter) Sequence() uint32 {
	return t.seq
}

// Run sends until Count packets were scheduled or ctx is cancelled. The
// final statistics are printed either way. Send errors are logged and do
// not stop the loop.
func (t *Transmitter) Run(ctx context.Context) error {
	clock := t.opts.Clock
	deadline := clock.Now()
	lastDisplay := deadline

	t.logger.WithField("plan", t.opts.Pacer.Mode().String()).Info("starting transmission")

	for t.opts.Count == 0 || t.scheduled < t.opts.Count {
		if ctx.Err() != nil {
			break
		}

		step := t.opts.Pacer.Next()
		t.scheduled++
		deadline += step.Delay

		if step.Skip {
			metrics.TxPacketsTotal.WithLabelValues(t.opts.RunID, metrics.ResultSkipped).Inc()
			continue
		}

		if err := t.emit(step); err != nil {
			return err
		}

		if now := clock.Now(); now-lastDisplay >= t.opts.DisplayEvery {
			fmt.Fprintf(t.opts.Console, "Sent: %s\n", t.stats.Snapshot(now))
			lastDisplay = now
		}

		if !t.waitUntil(ctx, deadline) {
			break
		}
	}

	t.finish()
	return nil
}

func (t *Transmitter) emit(step pacer.Step) error {
	now := t.opts.Clock.Now()
	b, err := packet.Build(t.buf[:0], t.seq, core.Micros(now), step.Size)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}

	if t.opts.Log != nil {
		t.opts.Log.Transmitted(now.Microseconds(), step.Size, t.seq)
	}
	if t.opts.Trace != nil {
		fmt.Fprintf(t.opts.Trace, "%d %g\n", step.Size, float64(step.Delay)/float64(time.Millisecond))
	}
	t.seq++

	if t.opts.Pacer.Drop() {
		metrics.TxPacketsTotal.WithLabelValues(t.opts.RunID, metrics.ResultDropped).Inc()
	} else if _, err := t.sender.Write(b); err != nil {
		t.sendErrs++
		metrics.TxPacketsTotal.WithLabelValues(t.opts.RunID, metrics.ResultError).Inc()
		if t.limiter.Allow() {
			t.logger.WithError(err).WithField("errors", t.sendErrs).Warn("send failed")
		}
	} else {
		metrics.TxPacketsTotal.WithLabelValues(t.opts.RunID, metrics.ResultSent).Inc()
		metrics.TxBytesTotal.WithLabelValues(t.opts.RunID).Add(float64(len(b)))
	}

	t.stats.Add(step.Size, now)
	metrics.AverageBandwidth.WithLabelValues(t.opts.RunID, metrics.DirectionTx).Set(t.stats.AverageBandwidth())
	metrics.MaxBandwidth.WithLabelValues(t.opts.RunID, metrics.DirectionTx).Set(t.stats.MaxBandwidth())
	return nil
}

// waitUntil blocks until the clock reaches deadline. It returns false when
// ctx was cancelled first.
func (t *Transmitter) waitUntil(ctx context.Context, deadline time.Duration) bool {
	wait := deadline - t.opts.Clock.Now()
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (t *Transmitter) finish() {
	fmt.Fprintf(t.opts.Console, "Total: %s\n", t.stats.Snapshot(t.opts.Clock.Now()))
	if t.opts.Log != nil {
		if err := t.opts.Log.Flush(); err != nil {
			t.logger.WithError(err).Error("failed to flush tx log")
		}
	}
	t.logger.WithFields(map[string]interface{}{
		"scheduled":   t.scheduled,
		"produced":    t.seq,
		"send_errors": t.sendErrs,
	}).Info("transmission finished")
}
