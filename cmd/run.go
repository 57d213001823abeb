package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/udptool/internal/config"
	"firestige.xyz/udptool/internal/log"
	"firestige.xyz/udptool/internal/metrics"
)

// loadConfig loads and validates the configuration for command, binding the
// command's flags under section, then initializes logging.
func loadConfig(cmd *cobra.Command, section, command string, sizes, delays *distributionList) (*config.Config, error) {
	cfg, err := config.Load(configFile, section, cmd.Flags(), append(pacingFlags, "steps", "for")...)
	if err != nil {
		return nil, err
	}
	if sizes != nil && delays != nil {
		applyPacingFlags(cmd.Flags(), cfg, sizes, delays)
	}
	if err := cfg.ValidateAndApplyDefaults(command); err != nil {
		return nil, err
	}
	if err := log.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newRunID() string {
	return uuid.NewString()
}

// runTask runs task to completion. When a metrics address is configured the
// metrics server runs beside it and is stopped once the task returns.
func runTask(ctx context.Context, mcfg config.MetricsConfig, task func(context.Context) error) error {
	if mcfg.Listen == "" {
		return task(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	srv := metrics.NewServer(mcfg.Listen, mcfg.Path)
	g.Go(func() error {
		return srv.Run(serverCtx)
	})
	g.Go(func() error {
		defer stopServer()
		return task(gctx)
	})
	return g.Wait()
}
