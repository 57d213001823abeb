// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile    string
	logLevel      string
	metricsListen string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "udptool",
	Short: "udptool - synthetic UDP traffic generator and path analyzer",
	Long: `udptool sends paced, self-checking UDP probe packets and analyzes them on the
receiving side to characterize a network path.

The receiver reports packet loss, duplication, reordering, truncation, payload
bit errors and achieved bandwidth. The transmitter follows fixed or uniformly
distributed packet sizes and delays, or derives one of them from a target
bandwidth.

Commands:
  tx        transmit probe packets
  rx        receive and analyze probe packets
  analyze   replay a pcap capture through the analyzer
  plan      show the resolved transmit schedule
  validate  check a configuration file`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (YAML, optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&metricsListen, "metrics-listen", "",
		"serve Prometheus metrics on this address, e.g. :9091")

	// Add subcommands
	rootCmd.AddCommand(txCmd)
	rootCmd.AddCommand(rxCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(validateCmd)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
