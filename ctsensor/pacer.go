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

package ctsensor

import "time"

// Pacer blocks until a deadline.
type Pacer interface {
	WaitUntil(deadline time.Time)
}

// BusyPacer spins on the clock. Sleeping has too coarse a resolution to hold
// the inter sample spacing at 10 kHz, and a yield could perturb the spacing.
type BusyPacer struct{}

func (BusyPacer) WaitUntil(deadline time.Time) {
	for time.Now().Before(deadline) {
	}
}
