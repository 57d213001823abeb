package sink

import (
	"fmt"
	"io"
	"strings"

	"firestige.xyz/udptool/internal/analyzer"
)

// Summary renders the RX statistics block of a flow.
func Summary(flow *analyzer.Flow) string {
	if flow == nil || flow.Analyzer.Counters().Count == 0 {
		return "No packets received"
	}
	c := flow.Analyzer.Counters()
	dt := flow.Duration().Seconds()

	var rate, mbps float64
	if dt > 0 {
		rate = float64(c.Count) / dt
		mbps = 8e-6 * float64(c.ByteCount) / dt
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "RX statistics (%s):\n", flow.Remote)
	line := func(label, value string) {
		fmt.Fprintf(&sb, "  %s %s %s\n", label, strings.Repeat(".", 40-len(label)), value)
	}
	line("Total packets", fmt.Sprintf("%d pk", c.Count))
	line("Total bytes", fmt.Sprintf("%d B", c.ByteCount))
	line("Time", fmt.Sprintf("%g s", dt))
	line("Packet rate", fmt.Sprintf("%g pk/s", rate))
	line("Bandwidth", fmt.Sprintf("%g Mbit/s", mbps))
	line("Packets with bad checksum", fmt.Sprintf("%d pk", c.BadChecksum))
	line("Truncated packets", fmt.Sprintf("%d pk", c.Truncated))
	line("Lowest sequence #", fmt.Sprintf("%d", c.SeqMin))
	line("Highest sequence #", fmt.Sprintf("%d", c.SeqMax))
	line("Out of order packets", fmt.Sprintf("%d pk", c.OutOfOrder))
	line("Decodable packets", fmt.Sprintf("%d pk", c.DecodableCount))
	line("Decodable loss ratio", fmt.Sprintf("%g", c.LossRatio()))
	line("Original decodables", fmt.Sprintf("%d pk", c.Original))
	line("Lost decodables", fmt.Sprintf("%d pk", c.Missing))
	line("Duplicate decodables", fmt.Sprintf("%d pk", c.Duplicates))
	line("Payload byte errors", fmt.Sprintf("%d B", c.TotalErrors))
	line("Decodables with erroneous payloads", fmt.Sprintf("%d pk", c.TotalErroneous))
	return strings.TrimSuffix(sb.String(), "\n")
}

// WriteSummary prints the statistics block followed by a newline.
func WriteSummary(w io.Writer, flow *analyzer.Flow) error {
	_, err := fmt.Fprintln(w, Summary(flow))
	return err
}
