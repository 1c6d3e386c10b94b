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

package energy

import "time"

// Reading is a single measurement instant. Energy is only reported by a meter,
// other sources leave it at zero.
type Reading struct {
	Voltage     float64 `json:"voltage"`     // V
	Current     float64 `json:"current"`     // A
	Power       float64 `json:"power"`       // W
	Energy      float64 `json:"energy"`      // kWh
	Frequency   float64 `json:"frequency"`   // Hz
	PowerFactor float64 `json:"powerFactor"` // 0.0 - 1.0
	Timestamp   int64   `json:"timestamp"`   // monotonic ms
}

// Clock returns monotonic milliseconds since it was started. It is not wall
// clock time and only makes sense relative to other values from the same Clock.
type Clock struct {
	start time.Time
}

func NewClock() *Clock {
	return &Clock{start: time.Now()}
}

func (c *Clock) Millis() int64 {
	return time.Since(c.start).Milliseconds()
}
