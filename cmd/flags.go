package cmd

import (
	"strings"
	"time"

	"github.com/spf13/pflag"

	"firestige.xyz/udptool/internal/config"
	"firestige.xyz/udptool/internal/pacer"
)

// distributionList collects repeated --size/--delay flags. Each value is
// parsed when the flag is set so malformed specs fail before anything runs.
type distributionList struct {
	values []pacer.Distribution
}

func (d *distributionList) Set(s string) error {
	dist, err := pacer.ParseDistribution(s)
	if err != nil {
		return err
	}
	d.values = append(d.values, dist)
	return nil
}

func (d *distributionList) String() string {
	parts := make([]string, len(d.values))
	for i, v := range d.values {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (d *distributionList) Type() string {
	return "distribution"
}

// pacingFlags are applied to the config after loading rather than bound
// through viper.
var pacingFlags = []string{"size", "delay"}

func addPacingFlags(fs *pflag.FlagSet, sizes, delays *distributionList) {
	fs.Var(sizes, "size", "add a packet size distribution in bytes: dirac:N or uniform:LOW,HIGH (repeatable)")
	fs.Var(delays, "delay", "add an inter-packet delay distribution in ms: dirac:N or uniform:LOW,HIGH (repeatable)")
	fs.Float64("bandwidth", 0, "target bandwidth in Mbit/s; derives the delay or the packet size")
	fs.Float64("p-loss", 0, "simulated packet loss probability")
	fs.Int64("seed", 0, "random seed for distributions and simulated loss (0 = time based)")
}

func addWindowFlags(fs *pflag.FlagSet) {
	fs.Int("avg-window", 10000, "size of the running average window in packets")
	fs.Int("max-window", 10000, "size of the maximum bandwidth window in samples")
}

func addReceiveFlags(fs *pflag.FlagSet, logFile string) {
	addWindowFlags(fs)
	fs.Uint64("count", 0, "number of packets to process, or 0 for no limit")
	fs.Int("miss-window", 50, "size of the window for detecting lost packets")
	fs.String("log-file", logFile, "per-packet log file ('-' for stdout)")
	fs.Duration("display-every", time.Second, "interval between summary lines")
	fs.Duration("detailed-every", 0, "interval between detailed statistics, 0 disables")
	fs.String("report-file", "", "write a YAML report of every flow to this file")
	fs.Int("rx-buffer-size", 65536, "reception buffer size in bytes")
}

// applyPacingFlags overrides the loaded distributions with the ones given
// on the command line.
func applyPacingFlags(fs *pflag.FlagSet, cfg *config.Config, sizes, delays *distributionList) {
	if fs.Changed("size") {
		cfg.Tx.Sizes = sizes.values
	}
	if fs.Changed("delay") {
		cfg.Tx.Delays = delays.values
	}
}
