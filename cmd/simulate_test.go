package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsc-sim/tsc-sim/sim"
)

// saveSimulateFlags snapshots the simulate flag variables and returns a
// restore function, so direct config tests do not leak into command runs.
func saveSimulateFlags() func() {
	d, i, f, g := simDuration, simInitialTSC, simHostHz, simGuestHz
	mig := simMigrations
	arch, sc, scen := simArch, simScaler, simScenario
	return func() {
		simDuration, simInitialTSC, simHostHz, simGuestHz = d, i, f, g
		simMigrations = mig
		simArch, simScaler, simScenario = arch, sc, scen
	}
}

func TestParseMigrationSpec(t *testing.T) {
	tests := []struct {
		spec string
		want sim.Migration
	}{
		{"5 300000000000 2000000000", sim.Migration{Time: 5, HostTSC: 300000000000, HostFrequencyHz: 2000000000}},
		{"0x5 0x77359400 0x3B9ACA00", sim.Migration{Time: 5, HostTSC: 2000000000, HostFrequencyHz: 1000000000}},
		{"  10\t0x77359400  1500000000 ", sim.Migration{Time: 10, HostTSC: 2000000000, HostFrequencyHz: 1500000000}},
	}
	for _, tt := range tests {
		got, err := parseMigrationSpec(tt.spec)
		if err != nil {
			t.Errorf("parseMigrationSpec(%q) returned %v", tt.spec, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseMigrationSpec(%q) = %+v, want %+v", tt.spec, got, tt.want)
		}
	}
}

func TestParseMigrationSpec_Malformed(t *testing.T) {
	for _, spec := range []string{"", "5", "5 100", "5 100 200 300", "a b c", "5 100 2.0e9"} {
		if _, err := parseMigrationSpec(spec); err == nil {
			t.Errorf("parseMigrationSpec(%q) succeeded, want error", spec)
		}
	}
}

func TestBuildSimulationConfig_FromFlags(t *testing.T) {
	defer saveSimulateFlags()()
	simScenario = ""
	simDuration = 7
	simInitialTSC = 42
	simHostHz = 2000000000
	simGuestHz = 1000000000
	simArch = "intel"
	simScaler = sim.ScalerBitwise
	simMigrations = []string{"3 0x77359400 1500000000"}

	cfg, err := buildSimulationConfig()
	require.NoError(t, err)

	assert.Equal(t, uint64(7), cfg.Duration)
	assert.Equal(t, uint64(1000000000), cfg.GuestHz)
	assert.Equal(t, sim.LayoutIntel, cfg.Layout)
	assert.Equal(t, sim.ScalerBitwise, cfg.Scaler)
	assert.Equal(t, sim.HostSegment{StartHostTSC: 42, HostFrequencyHz: 2000000000}, cfg.Initial)
	require.Len(t, cfg.Migrations, 1)
	assert.Equal(t, sim.Migration{Time: 3, HostTSC: 2000000000, HostFrequencyHz: 1500000000}, cfg.Migrations[0])
}

func TestBuildSimulationConfig_UnknownArch_Fails(t *testing.T) {
	defer saveSimulateFlags()()
	simScenario = ""
	simArch = "sparc"
	simMigrations = nil

	_, err := buildSimulationConfig()
	require.Error(t, err)
	assert.True(t, errors.Is(err, sim.ErrInvalidParameter), "got %v", err)
}

func TestBuildSimulationConfig_BadMigrationSpec_Fails(t *testing.T) {
	defer saveSimulateFlags()()
	simScenario = ""
	simArch = "amd"
	simMigrations = []string{"5 100"}

	_, err := buildSimulationConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid migration")
}

func TestBuildSimulationConfig_ScenarioFileWins(t *testing.T) {
	defer saveSimulateFlags()()
	path := writeScenario(t, `
duration: 7
guest_hz: 3000000000
arch: intel
host:
  start_tsc: 5
  frequency_hz: 1000000000
`)
	simScenario = path
	simScaler = sim.ScalerBoth
	simDuration = 99

	cfg, err := buildSimulationConfig()
	require.NoError(t, err)

	// THEN the run data comes from the file and only the scaling
	// implementation comes from the flags
	assert.Equal(t, uint64(7), cfg.Duration)
	assert.Equal(t, uint64(3000000000), cfg.GuestHz)
	assert.Equal(t, sim.LayoutIntel, cfg.Layout)
	assert.Equal(t, sim.HostSegment{StartHostTSC: 5, HostFrequencyHz: 1000000000}, cfg.Initial)
	assert.Equal(t, sim.ScalerBoth, cfg.Scaler)
}

func TestPrintRows_BannersAndAlignment(t *testing.T) {
	rows := []sim.SampleRow{
		{Segment: 0, Time: 0, GuestTSC: 0, HostTSC: 1000000000},
		{Segment: 0, Time: 1, GuestTSC: 1000000000, HostTSC: 2000000000},
		{Segment: 1, Time: 1, GuestTSC: 1000000000, HostTSC: 300000000000},
	}

	var buf bytes.Buffer
	printRows(&buf, rows, false)

	want := strings.Join([]string{
		"TIME              GUEST_TSC         HOST_TSC",
		"=== GUEST_BOOT " + strings.Repeat("=", 66),
		"0                         0       1000000000",
		"1                1000000000       2000000000",
		"=== MIGRATION 1 " + strings.Repeat("=", 65),
		"1                1000000000     300000000000",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestPrintRows_Hex(t *testing.T) {
	rows := []sim.SampleRow{
		{Segment: 0, Time: 0, GuestTSC: 0, HostTSC: 1000000000},
	}

	var buf bytes.Buffer
	printRows(&buf, rows, true)

	want := strings.Join([]string{
		"TIME              GUEST_TSC         HOST_TSC",
		"=== GUEST_BOOT " + strings.Repeat("=", 66),
		"0                       0x0       0x3b9aca00",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestPrintRunConfig_ListsAllHosts(t *testing.T) {
	cfg := sim.SimulationConfig{
		Duration: 20,
		GuestHz:  1000000000,
		Initial:  sim.HostSegment{StartHostTSC: 1000000000, HostFrequencyHz: 1000000000},
		Migrations: []sim.Migration{
			{Time: 5, HostTSC: 300000000000, HostFrequencyHz: 2000000000},
		},
	}

	var buf bytes.Buffer
	printRunConfig(&buf, cfg)
	out := buf.String()

	assert.Contains(t, out, " DURATION        20 seconds")
	assert.Contains(t, out, " GUEST FREQUENCY 1000000000 Hz")
	assert.Contains(t, out, "HOST 0")
	assert.Contains(t, out, "HOST 1")
	assert.Equal(t, 2, strings.Count(out, "HOST "))
	assert.Contains(t, out, "300000000000")
	assert.Equal(t, 2, strings.Count(out, "START TIME"))
}

func TestSimulateCommand_SingleHostTable(t *testing.T) {
	out := runCLI(t, "simulate", "-d", "3", "-i", "1000000000", "-f", "1000000000",
		"-g", "1000000000", "--arch", "amd", "-m", "native")

	assert.Contains(t, out, " DURATION        3 seconds")
	assert.Contains(t, out, "GUEST_BOOT")
	assert.NotContains(t, out, "MIGRATION")
	assert.Contains(t, out, "3                3000000000       4000000000")
}

// This test appends to the repeatable --migrate flag, which cobra keeps
// across executions, so it runs after every other command level test.
func TestSimulateCommand_MigrationBanners(t *testing.T) {
	out := runCLI(t, "simulate", "-d", "10", "-i", "1000000000", "-f", "1000000000",
		"-g", "1000000000", "--arch", "amd", "-m", "native",
		"--migrate", "5 300000000000 2000000000")

	assert.Contains(t, out, "HOST 1")
	assert.Contains(t, out, "MIGRATION 1")
	assert.Equal(t, 2, strings.Count(out, "=== "))

	// The migration instant appears once per host.
	var atFive int
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "5 ") {
			atFive++
		}
	}
	assert.Equal(t, 2, atFive)
}
