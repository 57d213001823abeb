package cmd

import (
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/udptool/internal/config"
	"firestige.xyz/udptool/internal/log"
	"firestige.xyz/udptool/internal/pacer"
	"firestige.xyz/udptool/internal/sink"
	"firestige.xyz/udptool/internal/transmitter"
	"firestige.xyz/udptool/internal/transport"
)

var txSizes, txDelays distributionList

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Transmit probe packets",
	Long: `Transmit paced probe packets to a receiver.

Exactly one pacing mode must be configured:
  --size and --delay           sizes and delays drawn from the distributions
  --size and --bandwidth       delay derived from the mean size
  --delay and --bandwidth      size derived from the mean delay

Examples:
  udptool tx --dip 192.0.2.1 --size 1472 --delay 1
  udptool tx --dip 192.0.2.1 --size uniform:64,1472 --bandwidth 10
  udptool tx --dip 192.0.2.1 --delay 5 --bandwidth 2 --count 1000 --p-loss 0.01`,
	Args: cobra.NoArgs,
	RunE: runTx,
}

func init() {
	f := txCmd.Flags()
	f.String("sip", "", "source IP to bind to")
	f.Int("sport", 0, "source port to bind to (0 = any)")
	f.String("dip", "", "destination IP or host name")
	f.Int("dport", config.DefaultPort, "destination port")
	addPacingFlags(f, &txSizes, &txDelays)
	addWindowFlags(f)
	f.Uint64("count", 0, "number of packets to send, or 0 for no limit")
	f.Bool("verbose", false, "print size and delay of each packet to stderr")
	f.String("log-file", "tx.log", "per-packet log file ('-' for stdout)")
	f.Duration("display-every", time.Second, "interval between summary lines")
	f.Bool("no-check", false, "disable UDP checksums (Linux)")
	f.Int("tos", -1, "IPv4 TOS or IPv6 traffic class (-1 = system default)")
	f.Int("ttl", 0, "IPv4 TTL or IPv6 hop limit (0 = system default)")
	f.Int("socket-buffer", 0, "socket send buffer size in bytes (0 = system default)")
}

func runTx(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "tx", config.CommandTx, &txSizes, &txDelays)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	runID := newRunID()
	logger := log.GetLogger().WithField("run", runID)

	seed := cfg.Tx.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p, err := pacer.New(cfg.Tx.PacerConfig(), rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}

	logger.WithField("destination", cfg.Tx.Destination()).Info("opening socket")
	if cfg.Tx.NoCheck {
		logger.Info("disabling UDP checksumming")
	}
	conn, err := transport.Dial(ctx, transport.DialOptions{
		Source:      cfg.Tx.Source(),
		Destination: cfg.Tx.Destination(),
		NoCheck:     cfg.Tx.NoCheck,
		WriteBuffer: cfg.Tx.SocketBuffer,
		TOS:         cfg.Tx.TOS,
		TTL:         cfg.Tx.TTL,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	out, err := sink.OpenLogFile(cfg.Tx.LogFile)
	if err != nil {
		return err
	}
	txLog := sink.NewTxLog(out, runID)
	defer txLog.Close()

	var trace io.Writer
	if cfg.Tx.Verbose {
		trace = os.Stderr
	}

	tx := transmitter.New(transmitter.Options{
		Pacer:         p,
		Count:         cfg.Tx.Count,
		DisplayEvery:  cfg.Tx.DisplayEvery,
		AverageWindow: cfg.Tx.AverageWindow,
		MaxWindow:     cfg.Tx.MaxWindow,
		RunID:         runID,
		Log:           txLog,
		Console:       cmd.OutOrStdout(),
		Trace:         trace,
	}, conn)

	logger.WithFields(map[string]interface{}{"seed": seed, "local": conn.LocalAddr().String()}).Info("starting flood")
	return runTask(ctx, cfg.Metrics, tx.Run)
}
