package linkstat

import (
	"fmt"
	"time"
)

// kBps to Mbit/s
const kBpsToMbps = 8.0 / 1e3

// Snapshot is a point-in-time copy of the statistics, suitable for display
// and reports.
type Snapshot struct {
	Count           uint64        `yaml:"packets"`
	TotalBytes      uint64        `yaml:"bytes"`
	Elapsed         time.Duration `yaml:"elapsed"`
	Instantaneous   float64       `yaml:"instantaneous_kBps"`
	Average         float64       `yaml:"average_kBps"`
	AverageDuration time.Duration `yaml:"average_duration"`
	AverageSamples  int           `yaml:"average_samples"`
	Max             float64       `yaml:"max_kBps"`
	MaxSamples      int           `yaml:"max_samples"`
}

// Snapshot captures the statistics; now is the current time on the same
// clock the samples were taken with.
func (s *Statistics) Snapshot(now time.Duration) Snapshot {
	snap := Snapshot{
		Count:           s.count,
		TotalBytes:      s.total,
		Instantaneous:   s.InstantaneousBandwidth(),
		Average:         s.AverageBandwidth(),
		AverageDuration: s.AverageDuration(),
		AverageSamples:  s.n,
		Max:             s.MaxBandwidth(),
		MaxSamples:      s.maxN,
	}
	if s.count > 0 && now > s.first {
		snap.Elapsed = now - s.first
	}
	return snap
}

// PacketRate is the packet rate over the average window.
func (s Snapshot) PacketRate() float64 {
	d := s.AverageDuration.Seconds()
	if d <= 0 {
		return 0
	}
	return float64(s.AverageSamples) / d
}

func (s Snapshot) String() string {
	if s.Count < 2 {
		return "NA"
	}
	return fmt.Sprintf("total %d packets, %.3f kB in %.3f s; bw %.3f Mbit/s instantaneous, "+
		"%.3f Mbit/s average (over %.3f s at %.1f packet/s), %.3f Mbit/s max (over %d samples)",
		s.Count, float64(s.TotalBytes)/1e3, s.Elapsed.Seconds(),
		kBpsToMbps*s.Instantaneous,
		kBpsToMbps*s.Average, s.AverageDuration.Seconds(), s.PacketRate(),
		kBpsToMbps*s.Max, s.MaxSamples)
}

// Mbps converts an internal bandwidth value to Mbit/s.
func Mbps(kBps float64) float64 {
	return kBpsToMbps * kBps
}
