/*
energy-audit - Energy auditing for wired and wireless loads
Copyright (C) 2026, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package waste classifies devices as wasteful from their latest reading and
// recent history.
package waste

import (
	"fmt"
	"strings"

	"github.com/TheCacophonyProject/energy-audit/energy"
	"github.com/TheCacophonyProject/energy-audit/registry"
)

type Thresholds struct {
	StandbyCurrent  float64 // A, standby below this
	StandbyPower    float64 // W, standby above this
	LowPowerFactor  float64 // efficiency issue below this
	AlwaysOnPower   float64 // W, an entry counts as on above this
	AlwaysOnPercent int     // anomaly at or above this share of on entries
	MinHistory      int
	Window          int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		StandbyCurrent:  0.2,
		StandbyPower:    5.0,
		LowPowerFactor:  0.7,
		AlwaysOnPower:   1.0,
		AlwaysOnPercent: 95,
		MinHistory:      10,
		Window:          100,
	}
}

// IsStandbyWaste is power drawn out of proportion to a low current.
func IsStandbyWaste(r energy.Reading, t Thresholds) bool {
	return r.Current < t.StandbyCurrent && r.Power > t.StandbyPower
}

// IsEfficiencyIssue reports a low power factor. Zero means unknown.
func IsEfficiencyIssue(r energy.Reading, t Thresholds) bool {
	return r.PowerFactor > 0 && r.PowerFactor < t.LowPowerFactor
}

// IsUsageAnomaly reports a load that never powers down. history is the
// retained readings, oldest first; only the most recent Window are considered.
func IsUsageAnomaly(history []energy.Reading, t Thresholds) bool {
	if len(history) < t.MinHistory || len(history) == 0 {
		return false
	}
	if t.Window > 0 && len(history) > t.Window {
		history = history[len(history)-t.Window:]
	}
	on := 0
	for _, r := range history {
		if r.Power > t.AlwaysOnPower {
			on++
		}
	}
	return on*100 >= t.AlwaysOnPercent*len(history)
}

func Analyze(latest energy.Reading, history []energy.Reading, t Thresholds) registry.Flags {
	return registry.Flags{
		StandbyWaste:    IsStandbyWaste(latest, t),
		UsageAnomaly:    IsUsageAnomaly(history, t),
		EfficiencyIssue: IsEfficiencyIssue(latest, t),
	}
}

// Summary is one line per raised flag, or a single line when nothing is raised.
func Summary(flags registry.Flags, latest energy.Reading) string {
	var lines []string
	if flags.StandbyWaste {
		lines = append(lines, fmt.Sprintf("Standby waste detected: %.2fW consumed at low current.", latest.Power))
	}
	if flags.EfficiencyIssue {
		lines = append(lines, fmt.Sprintf("Low power factor (%.2f): Efficiency issue detected.", latest.PowerFactor))
	}
	if flags.UsageAnomaly {
		lines = append(lines, "Usage anomaly: Device appears to be running 24/7.")
	}
	if len(lines) == 0 {
		return "No waste detected"
	}
	return strings.Join(lines, "\n")
}

// Change is a device that had at least one flag raised by a sweep.
type Change struct {
	Device registry.Device
	Raised registry.Flags
}

// Sweep analyzes every device with a reading, stores the new flags and
// returns the devices where a flag went from off to on.
func Sweep(reg *registry.Registry, t Thresholds) []Change {
	var changes []Change
	for _, d := range reg.List() {
		if !d.HasReading {
			continue
		}
		device, history, err := reg.Recent(d.ID, t.Window)
		if err != nil {
			// Deleted since List.
			continue
		}
		flags := Analyze(device.Latest, history, t)
		prev, err := reg.SetFlags(device.ID, flags)
		if err != nil {
			continue
		}
		raised := registry.Flags{
			StandbyWaste:    flags.StandbyWaste && !prev.StandbyWaste,
			UsageAnomaly:    flags.UsageAnomaly && !prev.UsageAnomaly,
			EfficiencyIssue: flags.EfficiencyIssue && !prev.EfficiencyIssue,
		}
		device.Flags = flags
		if raised.Any() {
			changes = append(changes, Change{Device: device, Raised: raised})
		}
	}
	return changes
}
