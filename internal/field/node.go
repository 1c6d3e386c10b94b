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

package field

import (
	"fmt"

	"github.com/TheCacophonyProject/energy-audit/ctsensor"
	"github.com/TheCacophonyProject/energy-audit/telemetry"
	"periph.io/x/conn/v3/physic"
)

type measurer interface {
	Measure(voltage float64) (ctsensor.Measurement, error)
	Calibrate() error
}

type sender interface {
	Send(payload []byte)
}

type node struct {
	id          string
	lineVoltage float64
	sensor      measurer
	link        sender
	clock       func() int64

	// battery is nil when there is no battery divider.
	battery        ctsensor.Source
	batteryDivider float64
	lowBattery     float64
	batteryLow     bool
}

// cycle takes one measurement and sends it. A lost packet is not resent.
func (n *node) cycle() error {
	m, err := n.sensor.Measure(n.lineVoltage)
	if err != nil {
		return fmt.Errorf("measurement failed: %w", err)
	}
	payload, err := telemetry.Encode(telemetry.Packet{
		ID:          n.id,
		Current:     m.Current,
		Power:       m.Power,
		PowerFactor: m.PowerFactor,
		Timestamp:   n.clock(),
	})
	if err != nil {
		return err
	}
	n.link.Send(payload)
	log.Infof("Current: %.2f A | Power: %.2f W | PF: %.2f", m.Current, m.Power, m.PowerFactor)
	return nil
}

func (n *node) batteryVolts() (float64, error) {
	s, err := n.battery.Read()
	if err != nil {
		return 0, err
	}
	return float64(s.V) / float64(physic.Volt) * n.batteryDivider, nil
}

// checkBattery warns once each time the battery drops below the threshold.
func (n *node) checkBattery() {
	if n.battery == nil {
		return
	}
	v, err := n.batteryVolts()
	if err != nil {
		log.Errorf("Failed to read battery voltage: %v", err)
		return
	}
	low := v < n.lowBattery
	if low && !n.batteryLow {
		log.Warnf("Low battery: %.2fV", v)
	} else if !low && n.batteryLow {
		log.Infof("Battery recovered: %.2fV", v)
	}
	n.batteryLow = low
	log.Debugf("Battery: %.2fV", v)
}

func onSent(err error) {
	if err != nil {
		log.Warnf("Packet not delivered: %v", err)
		return
	}
	log.Debug("Packet delivered")
}
