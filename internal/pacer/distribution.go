// Package pacer resolves the transmit schedule: a stream of (size, delay)
// pairs drawn from size and delay distributions, or derived from a target
// bandwidth.
package pacer

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"firestige.xyz/udptool/internal/core"
)

// Kind enumerates the supported distributions.
type Kind int

const (
	KindDirac Kind = iota
	KindUniform
)

func (k Kind) String() string {
	switch k {
	case KindDirac:
		return "dirac"
	case KindUniform:
		return "uniform"
	default:
		return "unknown"
	}
}

// Distribution is either a constant (Dirac) or a uniform draw in [Low, High).
type Distribution struct {
	Kind Kind
	Low  float64
	High float64
}

// Dirac always yields x0.
func Dirac(x0 float64) Distribution {
	return Distribution{Kind: KindDirac, Low: x0, High: x0}
}

// Uniform yields values uniformly distributed in [low, high).
func Uniform(low, high float64) Distribution {
	return Distribution{Kind: KindUniform, Low: low, High: high}
}

// Next draws the next value.
func (d Distribution) Next(rng *rand.Rand) float64 {
	if d.Kind == KindUniform {
		return d.Low + (d.High-d.Low)*rng.Float64()
	}
	return d.Low
}

// Mean is the expected value.
func (d Distribution) Mean() float64 {
	if d.Kind == KindUniform {
		return 0.5 * (d.Low + d.High)
	}
	return d.Low
}

// Upper is the supremum of the values Next can return.
func (d Distribution) Upper() float64 {
	return d.High
}

func (d Distribution) String() string {
	if d.Kind == KindUniform {
		return fmt.Sprintf("uniform:%g,%g", d.Low, d.High)
	}
	return fmt.Sprintf("dirac:%g", d.Low)
}

// MarshalText renders the distribution in the form ParseDistribution accepts.
func (d Distribution) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a distribution spec.
func (d *Distribution) UnmarshalText(text []byte) error {
	parsed, err := ParseDistribution(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDistribution parses "kind:param1[,param2]". Without a kind prefix the
// spec is a Dirac value, so "1472" equals "dirac:1472".
func ParseDistribution(spec string) (Distribution, error) {
	kind, params, found := strings.Cut(strings.TrimSpace(spec), ":")
	if !found {
		params = kind
		kind = "dirac"
	}

	switch strings.ToLower(kind) {
	case "dirac":
		x0, err := parseParam(params)
		if err != nil {
			return Distribution{}, fmt.Errorf("%w: bad dirac distribution %q", core.ErrConfigInvalid, spec)
		}
		return Dirac(x0), nil
	case "uniform":
		lo, hi, ok := strings.Cut(params, ",")
		if !ok {
			return Distribution{}, fmt.Errorf("%w: bad uniform distribution %q: want low,high", core.ErrConfigInvalid, spec)
		}
		low, err1 := parseParam(lo)
		high, err2 := parseParam(hi)
		if err1 != nil || err2 != nil {
			return Distribution{}, fmt.Errorf("%w: bad uniform distribution %q", core.ErrConfigInvalid, spec)
		}
		if low > high {
			return Distribution{}, fmt.Errorf("%w: uniform distribution %q has low > high", core.ErrConfigInvalid, spec)
		}
		return Uniform(low, high), nil
	default:
		return Distribution{}, fmt.Errorf("%w: unknown distribution kind %q", core.ErrConfigInvalid, kind)
	}
}

// ParseDistributions parses every spec, stopping at the first error.
func ParseDistributions(specs []string) ([]Distribution, error) {
	out := make([]Distribution, 0, len(specs))
	for _, s := range specs {
		d, err := ParseDistribution(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func parseParam(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not a finite number", core.ErrConfigInvalid, s)
	}
	return v, nil
}
