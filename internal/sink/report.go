package sink

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"firestige.xyz/udptool/internal/analyzer"
	"firestige.xyz/udptool/internal/linkstat"
)

// FlowReport is the final record of one flow.
type FlowReport struct {
	Remote    string             `yaml:"remote"`
	Duration  time.Duration      `yaml:"duration"`
	LossRatio float64            `yaml:"loss_ratio"`
	Counters  analyzer.Counters  `yaml:"counters"`
	Link      linkstat.Snapshot  `yaml:"link"`
	Mbps      map[string]float64 `yaml:"bandwidth_mbps"`
}

// Report collects finalized flows and writes them as one YAML document.
type Report struct {
	RunID    string       `yaml:"run_id"`
	Started  time.Time    `yaml:"started"`
	Finished time.Time    `yaml:"finished,omitempty"`
	Flows    []FlowReport `yaml:"flows"`
}

func NewReport(runID string, started time.Time) *Report {
	return &Report{RunID: runID, Started: started}
}

// AddFlow records flow as seen at now on the task clock.
func (r *Report) AddFlow(flow *analyzer.Flow, now time.Duration) {
	c := flow.Analyzer.Counters()
	snap := flow.Stats.Snapshot(now)
	r.Flows = append(r.Flows, FlowReport{
		Remote:    flow.Remote.String(),
		Duration:  flow.Duration(),
		LossRatio: c.LossRatio(),
		Counters:  c,
		Link:      snap,
		Mbps: map[string]float64{
			"instantaneous": linkstat.Mbps(snap.Instantaneous),
			"average":       linkstat.Mbps(snap.Average),
			"max":           linkstat.Mbps(snap.Max),
		},
	})
}

// WriteFile marshals the report to path.
func (r *Report) WriteFile(path string, finished time.Time) error {
	r.Finished = finished
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}
