package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mobile-next/devicebridge/utils"
)

const simulatorStateBooted = "Booted"

// Simulator is one entry of `xcrun simctl list devices --json`.
type Simulator struct {
	Name        string `json:"name"`
	UDID        string `json:"udid"`
	State       string `json:"state"`
	IsAvailable bool   `json:"isAvailable"`
	Runtime     string `json:"-"`
}

type simctlDevices struct {
	Devices map[string][]Simulator `json:"devices"`
}

// ParseSimctlDevices flattens the per-runtime device lists, sorted by name then UDID.
func ParseSimctlDevices(data []byte) ([]Simulator, error) {
	var parsed simctlDevices
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse simulator list JSON: %w", err)
	}
	if parsed.Devices == nil {
		return nil, fmt.Errorf("unexpected format in simulator list: devices not found")
	}

	var simulators []Simulator
	for runtime, list := range parsed.Devices {
		for _, sim := range list {
			sim.Runtime = runtime
			simulators = append(simulators, sim)
		}
	}

	sort.Slice(simulators, func(i, j int) bool {
		if simulators[i].Name != simulators[j].Name {
			return simulators[i].Name < simulators[j].Name
		}
		return simulators[i].UDID < simulators[j].UDID
	})
	return simulators, nil
}

// ListSimulators runs simctl and returns every simulator it knows about.
func ListSimulators(ctx context.Context, runner utils.CommandRunner) ([]Simulator, error) {
	output, err := runner.Run(ctx, "xcrun", "simctl", "list", "devices", "--json")
	if err != nil {
		return nil, fmt.Errorf("failed to execute xcrun simctl list: %w", err)
	}
	return ParseSimctlDevices(output)
}

// BootedIOSSimulators keeps booted simulators from iOS runtimes.
func BootedIOSSimulators(simulators []Simulator) []Simulator {
	var booted []Simulator
	for _, sim := range simulators {
		if sim.State != simulatorStateBooted {
			continue
		}
		if !strings.Contains(strings.ToLower(sim.Runtime), "ios") {
			continue
		}
		booted = append(booted, sim)
	}
	return booted
}
