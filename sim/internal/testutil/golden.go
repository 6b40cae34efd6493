// Package testutil provides shared test infrastructure for the TSC
// simulator: golden dataset loading for the scenario tests in sim/.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenRun pins the complete expected output of one simulation
// scenario: the configuration and every emitted row.
type GoldenRun struct {
	Name       string            `json:"name"`
	Duration   uint64            `json:"duration"`
	GuestHz    uint64            `json:"guest_hz"`
	Arch       string            `json:"arch"`
	Host       GoldenSegment     `json:"host"`
	Migrations []GoldenMigration `json:"migrations"`
	Rows       []GoldenRow       `json:"rows"`
}

// GoldenSegment is the boot host in a golden scenario.
type GoldenSegment struct {
	StartTSC    uint64 `json:"start_tsc"`
	FrequencyHz uint64 `json:"frequency_hz"`
}

// GoldenMigration is one host change in a golden scenario.
type GoldenMigration struct {
	Time        uint64 `json:"time"`
	HostTSC     uint64 `json:"host_tsc"`
	FrequencyHz uint64 `json:"frequency_hz"`
}

// GoldenRow is one expected sample row.
type GoldenRow struct {
	Segment  int    `json:"segment"`
	Time     uint64 `json:"time"`
	GuestTSC uint64 `json:"guest_tsc"`
	HostTSC  uint64 `json:"host_tsc"`
}

// LoadGoldenRuns loads the golden scenarios from sim/testdata. The path
// is resolved relative to this source file:
// sim/internal/testutil/ → sim/testdata/.
func LoadGoldenRuns(t *testing.T) []GoldenRun {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "testdata", "goldenruns.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden runs: %v", err)
	}

	var runs []GoldenRun
	if err := json.Unmarshal(data, &runs); err != nil {
		t.Fatalf("Failed to parse golden runs: %v", err)
	}

	return runs
}
