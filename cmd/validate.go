package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/udptool/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file (YAML) for one command without running it.

Environment overrides (UDPTOOL_*) are applied as they would be at run time.

Examples:
  udptool validate -c udptool.yml --for tx
  udptool validate -c udptool.yml --for rx`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

var validateFor string

func init() {
	validateCmd.Flags().StringVar(&validateFor, "for", config.CommandTx,
		"command to validate the configuration for: tx, rx, analyze, plan")
}

func runValidate(cmd *cobra.Command) error {
	if configFile == "" {
		exitWithError("no configuration file given", nil)
	}
	cfg, err := config.Load(configFile, "", cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.ValidateAndApplyDefaults(validateFor); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "VALID: %s configuration in %s\n", validateFor, configFile)
	return nil
}
