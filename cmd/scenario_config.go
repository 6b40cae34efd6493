package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tsc-sim/tsc-sim/sim"
)

// ScenarioConfig is the YAML schema for a simulation run.
type ScenarioConfig struct {
	Duration   uint64              `yaml:"duration"`
	GuestHz    uint64              `yaml:"guest_hz"`
	Arch       string              `yaml:"arch"`
	Host       ScenarioHost        `yaml:"host"`
	Migrations []ScenarioMigration `yaml:"migrations"`
}

// ScenarioHost is the boot host in a scenario file.
type ScenarioHost struct {
	StartTSC    uint64 `yaml:"start_tsc"`
	FrequencyHz uint64 `yaml:"frequency_hz"`
}

// ScenarioMigration is one host change in a scenario file.
type ScenarioMigration struct {
	Time        uint64 `yaml:"time"`
	HostTSC     uint64 `yaml:"host_tsc"`
	FrequencyHz uint64 `yaml:"frequency_hz"`
}

// LoadScenario reads a YAML scenario file into a simulation config. An
// omitted arch defaults to amd, matching the simulate flag.
func LoadScenario(path string) (sim.SimulationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sim.SimulationConfig{}, fmt.Errorf("could not read scenario: %w", err)
	}

	var sc ScenarioConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return sim.SimulationConfig{}, fmt.Errorf("could not parse scenario: %w", err)
	}

	arch := sc.Arch
	if arch == "" {
		arch = "amd"
	}
	layout, err := sim.LayoutForArch(arch)
	if err != nil {
		return sim.SimulationConfig{}, err
	}

	migrations := make([]sim.Migration, 0, len(sc.Migrations))
	for _, m := range sc.Migrations {
		migrations = append(migrations, sim.Migration{
			Time:            m.Time,
			HostTSC:         m.HostTSC,
			HostFrequencyHz: m.FrequencyHz,
		})
	}

	return sim.SimulationConfig{
		Duration:   sc.Duration,
		GuestHz:    sc.GuestHz,
		Layout:     layout,
		Initial:    sim.HostSegment{StartHostTSC: sc.Host.StartTSC, HostFrequencyHz: sc.Host.FrequencyHz},
		Migrations: migrations,
	}, nil
}
