// Package report renders completed simulation runs as CSV or Markdown,
// with drift statistics quantifying the truncation bias of the run.
package report

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"

	"github.com/tsc-sim/tsc-sim/sim"
)

// DriftStats summarizes how far the truncating scale pulled the guest
// counter below the ideal linear clock over one run.
type DriftStats struct {
	Rows     int
	MaxBias  uint64
	MeanBias float64
	P99Bias  float64
}

// ComputeDriftStats measures each row's bias against the ideal guest
// counter guestHz*t. Meaningful for a guest booted at zero, which is
// how every simulation starts.
func ComputeDriftStats(rows []sim.SampleRow, guestHz uint64) DriftStats {
	if len(rows) == 0 {
		return DriftStats{}
	}

	biases := make([]uint64, 0, len(rows))
	for _, r := range rows {
		hi, ideal := bits.Mul64(r.Time, guestHz)
		if hi != 0 || ideal < r.GuestTSC {
			// The ideal clock is not representable for this row.
			continue
		}
		biases = append(biases, ideal-r.GuestTSC)
	}
	if len(biases) == 0 {
		return DriftStats{Rows: len(rows)}
	}

	sort.Slice(biases, func(i, j int) bool { return biases[i] < biases[j] })

	return DriftStats{
		Rows:     len(rows),
		MaxBias:  biases[len(biases)-1],
		MeanBias: CalculateMean(biases),
		P99Bias:  CalculatePercentile(biases, 99),
	}
}

// RenderCSV renders sample rows as a CSV string.
func RenderCSV(rows []sim.SampleRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("segment,time,guest_tsc,host_tsc\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%d,%d,%d,%d\n", r.Segment, r.Time, r.GuestTSC, r.HostTSC))
	}

	return sb.String()
}

// RenderMarkdown renders a full run report as a Markdown string.
func RenderMarkdown(cfg sim.SimulationConfig, rows []sim.SampleRow, stats DriftStats) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# TSC Simulation Report\n\n")
	sb.WriteString(fmt.Sprintf("Duration: %ds | Guest frequency: %d Hz | Fixed point: %d.%d\n\n",
		cfg.Duration, cfg.GuestHz, cfg.Layout.IntegerBits, cfg.Layout.FractionalBits))

	// Hosts
	sb.WriteString("## Hosts\n\n")
	sb.WriteString("| Segment | Start Time | Start TSC | Frequency (Hz) |\n")
	sb.WriteString("|---------|------------|-----------|----------------|\n")
	sb.WriteString(fmt.Sprintf("| 0 | %d | %d | %d |\n",
		cfg.Initial.StartTime, cfg.Initial.StartHostTSC, cfg.Initial.HostFrequencyHz))
	for i, m := range cfg.Migrations {
		sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d |\n",
			i+1, m.Time, m.HostTSC, m.HostFrequencyHz))
	}
	sb.WriteString("\n")

	// Drift
	sb.WriteString("## Guest Clock Drift\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Rows | %d |\n", stats.Rows))
	sb.WriteString(fmt.Sprintf("| Max bias (ticks) | %d |\n", stats.MaxBias))
	sb.WriteString(fmt.Sprintf("| Mean bias (ticks) | %.3f |\n", stats.MeanBias))
	sb.WriteString(fmt.Sprintf("| p99 bias (ticks) | %.3f |\n", stats.P99Bias))
	sb.WriteString("\n")

	// Samples
	sb.WriteString("## Samples\n\n")
	sb.WriteString("| Time | Guest TSC | Host TSC |\n")
	sb.WriteString("|------|-----------|----------|\n")
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("| %d | %d | %d |\n", r.Time, r.GuestTSC, r.HostTSC))
	}
	sb.WriteString("\n")

	return sb.String()
}
