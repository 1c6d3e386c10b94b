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

package fakemeter

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/TheCacophonyProject/energy-audit/pzem"
)

// Profile is the shape of the simulated load.
type Profile string

const (
	// Cycling switches between running and idle like a fridge compressor.
	Cycling Profile = "cycling"
	// Standby draws power out of proportion to its current.
	Standby Profile = "standby"
	// AlwaysOn never drops below its running power.
	AlwaysOn Profile = "always-on"
)

func ParseProfile(s string) (Profile, error) {
	switch p := Profile(s); p {
	case Cycling, Standby, AlwaysOn:
		return p, nil
	}
	return "", fmt.Errorf("unknown load profile '%s'", s)
}

// simulator produces slowly varying meter register values.
type simulator struct {
	mu        sync.Mutex
	profile   Profile
	power     float64 // W when running
	period    time.Duration
	start     time.Time
	last      time.Time
	energyKWh float64
	now       func() time.Time
}

func newSimulator(profile Profile, power float64, period time.Duration, now func() time.Time) *simulator {
	t := now()
	return &simulator{
		profile: profile,
		power:   power,
		period:  period,
		start:   t,
		last:    t,
		now:     now,
	}
}

type state struct {
	voltage     float64
	current     float64
	power       float64
	frequency   float64
	powerFactor float64
}

func (s *simulator) stateAt(t time.Time) state {
	elapsed := t.Sub(s.start).Seconds()
	phase := 2 * math.Pi * elapsed / s.period.Seconds()
	st := state{
		voltage:     230 + 2*math.Sin(phase/7),
		frequency:   50 + 0.05*math.Sin(phase/3),
		powerFactor: 0.92,
	}
	switch s.profile {
	case Standby:
		st.current = 0.08
		st.powerFactor = 0.45
		st.power = 8 + math.Sin(phase)
	case AlwaysOn:
		st.power = s.power * (1 + 0.05*math.Sin(phase))
	default:
		if math.Sin(phase) > 0 {
			st.power = s.power
		} else {
			st.power = 0.5
			st.powerFactor = 0.6
		}
	}
	if st.current == 0 {
		st.current = st.power / (st.voltage * st.powerFactor)
	}
	return st
}

func clamp16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v >= float64(pzem.NoData) {
		return pzem.NoData - 1
	}
	return uint16(math.Round(v))
}

// registers returns the raw register values at the current time.
func (s *simulator) registers() map[pzem.Register]uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now()
	st := s.stateAt(t)
	s.energyKWh += st.power * t.Sub(s.last).Hours() / 1000
	s.last = t

	wh := uint32(math.Round(s.energyKWh * 1000))
	return map[pzem.Register]uint16{
		pzem.RegVoltage:     clamp16(st.voltage * 10),
		pzem.RegCurrent:     clamp16(st.current * 1000),
		pzem.RegPower:       clamp16(st.power * 10),
		pzem.RegEnergyLow:   uint16(wh & 0xFFFF),
		pzem.RegEnergyHigh:  uint16(wh >> 16),
		pzem.RegFrequency:   clamp16(st.frequency * 10),
		pzem.RegPowerFactor: clamp16(st.powerFactor * 100),
	}
}
