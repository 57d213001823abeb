package cmd

import (
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/udptool/internal/config"
	"firestige.xyz/udptool/internal/pacer"
)

var planSizes, planDelays distributionList

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the resolved transmit schedule without sending",
	Long: `Resolve the pacing configuration exactly as tx would and print the mode,
the derived sizes or delays and the first --steps packets.

With no size, delay or bandwidth configured the plan uses --size 1472 and
--delay 1.

Examples:
  udptool plan --size 1000 --bandwidth 8
  udptool plan --delay uniform:1,3 --bandwidth 20 --steps 5 --seed 42`,
	Args: cobra.NoArgs,
	RunE: runPlanCommand,
}

func init() {
	f := planCmd.Flags()
	addPacingFlags(f, &planSizes, &planDelays)
	f.Int("steps", 10, "number of packets to show")
}

func runPlanCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, "tx", config.CommandPlan, &planSizes, &planDelays)
	if err != nil {
		return err
	}
	steps, _ := cmd.Flags().GetInt("steps")

	seed := cfg.Tx.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p, err := pacer.New(cfg.Tx.PacerConfig(), rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}
	return runPlan(cmd.OutOrStdout(), p, steps)
}

// runPlan writes the pacer description followed by its next steps.
func runPlan(w io.Writer, p *pacer.Pacer, steps int) error {
	if _, err := io.WriteString(w, p.Describe()); err != nil {
		return err
	}
	if steps <= 0 {
		return nil
	}
	fmt.Fprintf(w, "\n%6s %10s %12s\n", "#", "size", "delay_ms")
	for i := 0; i < steps; i++ {
		s := p.Next()
		size := fmt.Sprintf("%d", s.Size)
		if s.Skip {
			size = "skip"
		}
		if _, err := fmt.Fprintf(w, "%6d %10s %12.3f\n", i, size, float64(s.Delay)/float64(time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}
