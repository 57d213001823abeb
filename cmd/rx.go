package cmd

import (
	"context"
	"net"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/udptool/internal/analyzer"
	"firestige.xyz/udptool/internal/config"
	"firestige.xyz/udptool/internal/log"
	"firestige.xyz/udptool/internal/receiver"
	"firestige.xyz/udptool/internal/sink"
	"firestige.xyz/udptool/internal/transport"
)

var rxCmd = &cobra.Command{
	Use:   "rx",
	Short: "Receive and analyze probe packets",
	Long: `Listen for probe packets and analyze them.

A summary line is printed every --display-every; the full statistics block
every --detailed-every and whenever the sending endpoint changes.

Examples:
  udptool rx
  udptool rx --sport 40000 --miss-window 200 --detailed-every 10s
  udptool rx --report-file report.yaml --pcap-file rx.pcap`,
	Args: cobra.NoArgs,
	RunE: runRx,
}

func init() {
	f := rxCmd.Flags()
	f.String("sip", "0.0.0.0", "IP to bind to")
	f.Int("sport", config.DefaultPort, "port to bind to")
	addReceiveFlags(f, "rx.log")
	f.Bool("no-check", false, "disable UDP checksums (Linux)")
	f.Int("socket-buffer", 0, "socket receive buffer size in bytes (0 = system default)")
	f.String("pcap-file", "", "dump received datagrams to this pcap file")
}

// receiveSinks are the optional outputs shared by rx and analyze.
type receiveSinks struct {
	log    *sink.PacketLog
	report *sink.Report
	pcap   *sink.PcapDump
}

func openReceiveSinks(cfg config.RxConfig, runID string, withPcap bool) (*receiveSinks, error) {
	s := &receiveSinks{}
	out, err := sink.OpenLogFile(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	s.log = sink.NewRxLog(out, runID)

	if cfg.ReportFile != "" {
		s.report = sink.NewReport(runID, time.Now())
	}
	if withPcap && cfg.PcapFile != "" {
		if s.pcap, err = sink.CreatePcapDump(cfg.PcapFile); err != nil {
			s.log.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *receiveSinks) close(cfg config.RxConfig, logger log.Logger) {
	if s.report != nil {
		if err := s.report.WriteFile(cfg.ReportFile, time.Now()); err != nil {
			logger.WithError(err).Error("failed to write report")
		}
	}
	if s.pcap != nil {
		if err := s.pcap.Close(); err != nil {
			logger.WithError(err).Error("failed to close pcap file")
		}
	}
	if err := s.log.Close(); err != nil {
		logger.WithError(err).Error("failed to close rx log")
	}
}

func receiverOptions(cfg config.RxConfig, runID string, sinks *receiveSinks) receiver.Options {
	return receiver.Options{
		Flow: analyzer.FlowConfig{
			MissWindow:    cfg.MissWindow,
			AverageWindow: cfg.AverageWindow,
			MaxWindow:     cfg.MaxWindow,
		},
		Count:         cfg.Count,
		BufferSize:    cfg.BufferSize,
		DisplayEvery:  cfg.DisplayEvery,
		DetailedEvery: cfg.DetailedEvery,
		RunID:         runID,
		Log:           sinks.log,
		Report:        sinks.report,
		Pcap:          sinks.pcap,
	}
}

func runRx(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "rx", config.CommandRx, nil, nil)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	runID := newRunID()
	logger := log.GetLogger().WithField("run", runID)

	logger.WithField("address", cfg.Rx.Address()).Info("opening socket")
	conn, err := transport.Listen(ctx, transport.ListenOptions{
		Address:    cfg.Rx.Address(),
		NoCheck:    cfg.Rx.NoCheck,
		ReadBuffer: cfg.Rx.SocketBuffer,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	sinks, err := openReceiveSinks(cfg.Rx, runID, true)
	if err != nil {
		return err
	}
	defer sinks.close(cfg.Rx, logger)

	opts := receiverOptions(cfg.Rx, runID, sinks)
	opts.Local = conn.LocalAddr().(*net.UDPAddr).AddrPort()
	opts.Console = cmd.OutOrStdout()
	rx := receiver.New(opts)

	return runTask(ctx, cfg.Metrics, func(ctx context.Context) error {
		return rx.Run(ctx, conn)
	})
}
