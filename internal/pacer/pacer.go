package pacer

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"firestige.xyz/udptool/internal/core"
)

// MaxDatagramSize is the largest UDP payload over IPv4.
const MaxDatagramSize = 65507

// Mode is the resolved pacing configuration.
type Mode int

const (
	// ModeSizeDelay draws both size and delay from distributions.
	ModeSizeDelay Mode = iota
	// ModeSizeBandwidth draws sizes and derives the delay from the bandwidth.
	ModeSizeBandwidth
	// ModeDelayBandwidth draws delays and derives the size from the bandwidth.
	ModeDelayBandwidth
)

func (m Mode) String() string {
	switch m {
	case ModeSizeDelay:
		return "size+delay"
	case ModeSizeBandwidth:
		return "size+bandwidth"
	case ModeDelayBandwidth:
		return "delay+bandwidth"
	default:
		return "unknown"
	}
}

// Config holds the pacing inputs. Sizes are datagram lengths in bytes,
// delays are milliseconds, bandwidth is bits per second (0 = unset).
type Config struct {
	Sizes           []Distribution
	Delays          []Distribution
	Bandwidth       float64
	LossProbability float64
}

// Step is the resolved schedule entry for one packet.
type Step struct {
	Size  int
	Delay time.Duration
	// Skip means nothing is sent, but the slot still counts.
	Skip bool
}

// Pacer is owned by the transmit task and is not safe for concurrent use.
type Pacer struct {
	cfg  Config
	mode Mode
	rng  *rand.Rand
	si   int
	di   int
}

// Validate checks cfg and returns the mode it resolves to.
func Validate(cfg Config) (Mode, error) {
	haveSizes := len(cfg.Sizes) > 0
	haveDelays := len(cfg.Delays) > 0
	haveBandwidth := cfg.Bandwidth != 0

	var mode Mode
	switch {
	case cfg.Bandwidth < 0:
		return 0, fmt.Errorf("%w: negative bandwidth %g", core.ErrConfigInvalid, cfg.Bandwidth)
	case !haveSizes && !haveDelays && !haveBandwidth:
		return 0, fmt.Errorf("%w: no delay, size nor bandwidth specified", core.ErrConfigInvalid)
	case haveSizes && haveDelays && haveBandwidth:
		return 0, fmt.Errorf("%w: cannot specify all three of bandwidth, delays and sizes", core.ErrConfigInvalid)
	case haveSizes && haveDelays:
		mode = ModeSizeDelay
	case !haveBandwidth:
		return 0, fmt.Errorf("%w: no bandwidth specified", core.ErrConfigInvalid)
	case haveSizes:
		mode = ModeSizeBandwidth
	case haveDelays:
		mode = ModeDelayBandwidth
	default:
		return 0, fmt.Errorf("%w: bandwidth needs a size or a delay distribution", core.ErrConfigInvalid)
	}

	if cfg.LossProbability < 0 || cfg.LossProbability > 1 {
		return 0, fmt.Errorf("%w: loss probability %g outside [0,1]", core.ErrConfigInvalid, cfg.LossProbability)
	}

	var errs []error
	for _, d := range cfg.Sizes {
		if d.Upper() > MaxDatagramSize {
			errs = append(errs, fmt.Errorf("%w: size %s exceeds %d bytes", core.ErrConfigInvalid, d, MaxDatagramSize))
		}
	}
	for _, d := range cfg.Delays {
		if d.Low < 0 {
			errs = append(errs, fmt.Errorf("%w: negative delay %s", core.ErrConfigInvalid, d))
		}
		if mode == ModeDelayBandwidth {
			if size := DerivedSize(d.Mean(), cfg.Bandwidth); size > MaxDatagramSize {
				errs = append(errs, fmt.Errorf("%w: delay %s at %g bit/s needs %.0f byte datagrams, max is %d",
					core.ErrConfigInvalid, d, cfg.Bandwidth, size, MaxDatagramSize))
			}
		}
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return mode, nil
}

// New validates cfg and creates a pacer drawing from rng.
func New(cfg Config, rng *rand.Rand) (*Pacer, error) {
	mode, err := Validate(cfg)
	if err != nil {
		return nil, err
	}
	return &Pacer{cfg: cfg, mode: mode, rng: rng}, nil
}

// Mode returns the resolved mode.
func (p *Pacer) Mode() Mode {
	return p.mode
}

// DerivedDelay is the inter-packet delay in milliseconds that sustains
// bandwidth bits/s with datagrams of meanSize bytes.
func DerivedDelay(meanSize, bandwidth float64) float64 {
	return 1e3 * meanSize / (bandwidth / 8)
}

// DerivedSize is the datagram size in bytes that sustains bandwidth bits/s
// with a mean delay of meanDelay milliseconds.
func DerivedSize(meanDelay, bandwidth float64) float64 {
	return meanDelay * 1e-3 * (bandwidth / 8)
}

// Next resolves the next packet. Size and delay lists cycle independently.
func (p *Pacer) Next() Step {
	var size, delayMs float64

	switch p.mode {
	case ModeSizeDelay:
		size = p.nextSize().Next(p.rng)
		delayMs = p.nextDelay().Next(p.rng)
	case ModeSizeBandwidth:
		d := p.nextSize()
		size = d.Next(p.rng)
		delayMs = DerivedDelay(d.Mean(), p.cfg.Bandwidth)
	case ModeDelayBandwidth:
		d := p.nextDelay()
		delayMs = d.Next(p.rng)
		size = DerivedSize(d.Mean(), p.cfg.Bandwidth)
	}

	step := Step{
		Size:  int(math.Min(size, MaxDatagramSize)),
		Delay: time.Duration(delayMs * float64(time.Millisecond)),
	}
	if step.Size <= 0 {
		step.Skip = true
		step.Size = 0
	}
	if step.Delay < 0 {
		step.Delay = 0
	}
	return step
}

// Drop draws the simulated loss decision for one packet.
func (p *Pacer) Drop() bool {
	return p.cfg.LossProbability > 0 && p.rng.Float64() < p.cfg.LossProbability
}

func (p *Pacer) nextSize() Distribution {
	d := p.cfg.Sizes[p.si]
	p.si = (p.si + 1) % len(p.cfg.Sizes)
	return d
}

func (p *Pacer) nextDelay() Distribution {
	d := p.cfg.Delays[p.di]
	p.di = (p.di + 1) % len(p.cfg.Delays)
	return d
}

// Describe renders the resolved plan, one line per distribution.
func (p *Pacer) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mode: %s\n", p.mode)
	switch p.mode {
	case ModeSizeDelay:
		for _, d := range p.cfg.Sizes {
			fmt.Fprintf(&sb, "size: %s (mean %.1f B)\n", d, d.Mean())
		}
		for _, d := range p.cfg.Delays {
			fmt.Fprintf(&sb, "delay: %s (mean %.3f ms)\n", d, d.Mean())
		}
	case ModeSizeBandwidth:
		for _, d := range p.cfg.Sizes {
			fmt.Fprintf(&sb, "size: %s -> delay %.3f ms\n", d, DerivedDelay(d.Mean(), p.cfg.Bandwidth))
		}
	case ModeDelayBandwidth:
		for _, d := range p.cfg.Delays {
			fmt.Fprintf(&sb, "delay: %s -> size %.0f B\n", d, DerivedSize(d.Mean(), p.cfg.Bandwidth))
		}
	}
	if p.cfg.Bandwidth > 0 {
		fmt.Fprintf(&sb, "bandwidth: %.3f Mbit/s\n", p.cfg.Bandwidth/1e6)
	}
	if p.cfg.LossProbability > 0 {
		fmt.Fprintf(&sb, "simulated loss: %.4f\n", p.cfg.LossProbability)
	}
	return sb.String()
}
