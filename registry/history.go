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

package registry

import "github.com/TheCacophonyProject/energy-audit/energy"

// history is a fixed capacity ring of readings. total counts every insertion
// and keeps going after the ring wraps.
type history struct {
	entries []energy.Reading
	total   uint64
}

func newHistory(capacity int) history {
	return history{entries: make([]energy.Reading, capacity)}
}

func (h *history) capacity() int {
	return len(h.entries)
}

func (h *history) retained() int {
	if h.total < uint64(len(h.entries)) {
		return int(h.total)
	}
	return len(h.entries)
}

// newest returns the most recent entry.
func (h *history) newest() (energy.Reading, bool) {
	if h.total == 0 {
		return energy.Reading{}, false
	}
	return h.entries[(h.total-1)%uint64(len(h.entries))], true
}

func (h *history) push(r energy.Reading) {
	h.entries[h.total%uint64(len(h.entries))] = r
	h.total++
}

// last returns up to n of the most recent entries, oldest first.
func (h *history) last(n int) []energy.Reading {
	if n > h.retained() {
		n = h.retained()
	}
	if n <= 0 {
		return nil
	}
	out := make([]energy.Reading, n)
	size := uint64(len(h.entries))
	start := h.total - uint64(n)
	for i := range out {
		out[i] = h.entries[(start+uint64(i))%size]
	}
	return out
}
