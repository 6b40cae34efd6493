package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tsc-sim/tsc-sim/sim"
	"github.com/tsc-sim/tsc-sim/sim/record"
	"github.com/tsc-sim/tsc-sim/sim/report"
)

var (
	simDuration   uint64
	simInitialTSC uint64
	simHostHz     uint64
	simGuestHz    uint64
	simMigrations []string
	simArch       string
	simScaler     string
	simHex        bool
	simScenario   string
	simRecordDB   string
	simReportPath string
	simCSVPath    string
)

// simulateCmd runs a full guest TSC simulation from CLI flags or a
// YAML scenario file.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a guest TSC across host migrations",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := buildSimulationConfig()
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		s, err := sim.NewSimulator(cfg)
		if err != nil {
			logrus.Fatalf("could not build simulation: %v", err)
		}

		rows, err := s.Run()
		if err != nil {
			logrus.Fatalf("simulation failed: %v", err)
		}

		out := cmd.OutOrStdout()
		printRunConfig(out, cfg)
		printRows(out, rows, simHex)

		if simRecordDB != "" {
			rec := record.New(simRecordDB)
			if err := record.RecordRun(rec, s, rows); err != nil {
				logrus.Fatalf("could not record run: %v", err)
			}
		}
		if simCSVPath != "" {
			if err := os.WriteFile(simCSVPath, []byte(report.RenderCSV(rows)), 0644); err != nil {
				logrus.Fatalf("could not write CSV: %v", err)
			}
		}
		if simReportPath != "" {
			stats := report.ComputeDriftStats(rows, cfg.GuestHz)
			md := report.RenderMarkdown(cfg, rows, stats)
			if err := os.WriteFile(simReportPath, []byte(md), 0644); err != nil {
				logrus.Fatalf("could not write report: %v", err)
			}
		}
	},
}

// buildSimulationConfig assembles the run configuration from a scenario
// file when one is named, otherwise from the CLI flags. The scaling
// implementation always comes from the flag; it is an execution choice,
// not scenario data.
func buildSimulationConfig() (sim.SimulationConfig, error) {
	if simScenario != "" {
		cfg, err := LoadScenario(simScenario)
		if err != nil {
			return sim.SimulationConfig{}, err
		}
		cfg.Scaler = simScaler
		return cfg, nil
	}

	layout, err := sim.LayoutForArch(simArch)
	if err != nil {
		return sim.SimulationConfig{}, err
	}

	migrations := make([]sim.Migration, 0, len(simMigrations))
	for _, spec := range simMigrations {
		m, err := parseMigrationSpec(spec)
		if err != nil {
			return sim.SimulationConfig{}, err
		}
		migrations = append(migrations, m)
	}

	return sim.SimulationConfig{
		Duration:   simDuration,
		GuestHz:    simGuestHz,
		Layout:     layout,
		Initial:    sim.HostSegment{StartHostTSC: simInitialTSC, HostFrequencyHz: simHostHz},
		Migrations: migrations,
		Scaler:     simScaler,
	}, nil
}

// parseMigrationSpec parses one --migrate value of the form
// "TIME TSC HZ", each field decimal or prefixed hex.
func parseMigrationSpec(spec string) (sim.Migration, error) {
	fields := strings.Fields(spec)
	if len(fields) != 3 {
		return sim.Migration{}, fmt.Errorf("invalid migration %q: want \"TIME TSC HZ\"", spec)
	}

	var vals [3]uint64
	for i, f := range fields {
		v, err := parseCounterValue(f)
		if err != nil {
			return sim.Migration{}, fmt.Errorf("invalid migration %q: %v", spec, err)
		}
		vals[i] = v
	}

	return sim.Migration{Time: vals[0], HostTSC: vals[1], HostFrequencyHz: vals[2]}, nil
}

// printRunConfig prints the run header: duration, guest frequency, then
// each host in timeline order.
func printRunConfig(w io.Writer, cfg sim.SimulationConfig) {
	fmt.Fprintf(w, " %-15s %d %-30s\n", "DURATION", cfg.Duration, "seconds")
	fmt.Fprintf(w, " %15s %d %-30s\n", "GUEST FREQUENCY", cfg.GuestHz, "Hz")
	fmt.Fprintln(w)

	printHost := func(i int, startTime, tsc, hz uint64) {
		fmt.Fprintf(w, " %-15s\n", fmt.Sprintf("HOST %d", i))
		fmt.Fprintf(w, " %15s %d %-30s\n", "START TIME", startTime, "seconds")
		fmt.Fprintf(w, " %15s %-30d\n", "TSC", tsc)
		fmt.Fprintf(w, " %15s %d %-30s\n", "FREQUENCY", hz, "Hz")
		fmt.Fprintln(w)
	}
	printHost(0, 0, cfg.Initial.StartHostTSC, cfg.Initial.HostFrequencyHz)
	for i, m := range cfg.Migrations {
		printHost(i+1, m.Time, m.HostTSC, m.HostFrequencyHz)
	}
	fmt.Fprintln(w)
}

// printRows prints the sample table, inserting a banner each time the
// run moves to a new host.
func printRows(w io.Writer, rows []sim.SampleRow, hex bool) {
	fmt.Fprintf(w, "%-10s %16s %16s\n", "TIME", "GUEST_TSC", "HOST_TSC")

	seg := -1
	for _, row := range rows {
		if row.Segment != seg {
			seg = row.Segment
			desc := "GUEST_BOOT "
			if seg > 0 {
				desc = fmt.Sprintf("MIGRATION %d ", seg)
			}
			pad := 77 - len(desc)
			if pad < 0 {
				pad = 0
			}
			fmt.Fprintf(w, "=== %s%s\n", desc, strings.Repeat("=", pad))
		}

		if hex {
			fmt.Fprintf(w, "%-10d %#16x %#16x\n", row.Time, row.GuestTSC, row.HostTSC)
		} else {
			fmt.Fprintf(w, "%-10d %16d %16d\n", row.Time, row.GuestTSC, row.HostTSC)
		}
	}
}

// init sets up the simulate flags. Counter and frequency flags take
// decimal or prefixed hex values.
func init() {
	simulateCmd.Flags().Uint64VarP(&simDuration, "duration", "d", 20, "Duration of the simulation (seconds)")
	simulateCmd.Flags().Uint64VarP(&simInitialTSC, "initial-tsc", "i", 1000000000, "Initial host TSC value")
	simulateCmd.Flags().Uint64VarP(&simHostHz, "frequency", "f", 1000000000, "Initial host frequency (Hz)")
	simulateCmd.Flags().Uint64VarP(&simGuestHz, "guest-hz", "g", 1000000000, "Guest frequency (Hz)")
	simulateCmd.Flags().StringArrayVar(&simMigrations, "migrate", nil, "Migration as \"TIME TSC HZ\" (repeatable)")
	simulateCmd.Flags().StringVar(&simArch, "arch", "amd", "Fixed point format to model (amd, intel)")
	simulateCmd.Flags().StringVarP(&simScaler, "scaler", "m", sim.ScalerNative, "Scaling implementation (native, bitwise, both)")
	simulateCmd.Flags().BoolVar(&simHex, "hex", false, "Print TSC values in hex")
	simulateCmd.Flags().StringVar(&simScenario, "scenario", "", "Load the run from a YAML scenario file")
	simulateCmd.Flags().StringVar(&simRecordDB, "record-db", "", "Record the run to a SQLite database at this path")
	simulateCmd.Flags().StringVar(&simReportPath, "report", "", "Write a Markdown report to this path")
	simulateCmd.Flags().StringVar(&simCSVPath, "csv", "", "Write the sample rows as CSV to this path")
}
