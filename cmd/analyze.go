package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/udptool/internal/config"
	"firestige.xyz/udptool/internal/log"
	"firestige.xyz/udptool/internal/receiver"
	"firestige.xyz/udptool/internal/source/pcapfile"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Analyze probe packets recorded in a pcap file",
	Long: `Replay a pcap or pcapng capture through the receive analyzer.

Only UDP datagrams sent to --port are analyzed (0 analyzes all UDP). Display
intervals follow the capture timestamps.

Examples:
  udptool analyze capture.pcap
  udptool analyze --port 40000 --report-file report.yaml capture.pcapng`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.Int("port", config.DefaultPort, "UDP destination port of the probe traffic (0 = all)")
	f.String("file", "", "capture file (alternative to the positional argument)")
	addReceiveFlags(f, "rx.log")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, "rx", cmd.Flags(), "port", "file")
	if err != nil {
		return err
	}
	// port and file live under analyze, everything else under rx.
	if cmd.Flags().Changed("port") {
		cfg.Analyze.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("file") {
		cfg.Analyze.File, _ = cmd.Flags().GetString("file")
	}
	if len(args) == 1 {
		cfg.Analyze.File = args[0]
	}
	if err := cfg.ValidateAndApplyDefaults(config.CommandAnalyze); err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	runID := newRunID()
	logger := log.GetLogger().WithField("run", runID)

	src, err := pcapfile.Open(pcapfile.Config{FilePath: cfg.Analyze.File, Port: uint16(cfg.Analyze.Port)})
	if err != nil {
		return err
	}
	defer src.Close()

	sinks, err := openReceiveSinks(cfg.Rx, runID, false)
	if err != nil {
		return err
	}
	defer sinks.close(cfg.Rx, logger)

	opts := receiverOptions(cfg.Rx, runID, sinks)
	opts.Console = cmd.OutOrStdout()
	rx := receiver.New(opts)

	logger.WithField("file", cfg.Analyze.File).Info("replaying capture")
	return runTask(ctx, cfg.Metrics, func(ctx context.Context) error {
		return rx.Replay(ctx, src)
	})
}
