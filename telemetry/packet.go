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

// Package telemetry is the packet format exchanged between field nodes and
// the hub, and the MQTT link that carries it.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/TheCacophonyProject/energy-audit/energy"
)

// MaxPacketSize is the largest payload the link will carry.
const MaxPacketSize = 200

var (
	ErrMalformed = errors.New("malformed packet")
	ErrMissingID = errors.New("packet has no node id")
	ErrTooLarge  = errors.New("packet too large")
)

// Packet is one field node measurement. Timestamp is the sender's monotonic
// millisecond counter and is not comparable with the hub's clock.
type Packet struct {
	ID          string
	Current     float64
	Power       float64
	PowerFactor float64
	Timestamp   int64
}

type wirePacket struct {
	ID          *string  `json:"id"`
	Current     *float64 `json:"i"`
	Power       *float64 `json:"p"`
	PowerFactor *float64 `json:"pf"`
	Timestamp   *int64   `json:"t"`
}

// Nominal holds the values substituted for what field nodes do not send.
type Nominal struct {
	Voltage     float64
	Frequency   float64
	PowerFactor float64
}

func DefaultNominal() Nominal {
	return Nominal{
		Voltage:     230.0,
		Frequency:   50.0,
		PowerFactor: 0.85,
	}
}

// Encode serializes a packet as {id, i, p, pf, t}.
func Encode(p Packet) ([]byte, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, ErrMissingID
	}
	data, err := json.Marshal(wirePacket{
		ID:          &p.ID,
		Current:     &p.Current,
		Power:       &p.Power,
		PowerFactor: &p.PowerFactor,
		Timestamp:   &p.Timestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(data) > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	return data, nil
}

// Decode parses a packet. A missing power factor takes nominal.PowerFactor,
// other missing numeric fields are zero. Any parse failure or a missing id is
// an error and the packet should be dropped.
func Decode(data []byte, nominal Nominal) (Packet, error) {
	if len(data) > MaxPacketSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	var w wirePacket
	if err := json.Unmarshal(data, &w); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.ID == nil || strings.TrimSpace(*w.ID) == "" {
		return Packet{}, ErrMissingID
	}
	p := Packet{
		ID:          *w.ID,
		PowerFactor: nominal.PowerFactor,
	}
	if w.Current != nil {
		p.Current = *w.Current
	}
	if w.Power != nil {
		p.Power = *w.Power
	}
	if w.PowerFactor != nil {
		p.PowerFactor = *w.PowerFactor
	}
	if w.Timestamp != nil {
		p.Timestamp = *w.Timestamp
	}
	return p, nil
}

// Reading builds the hub side reading, stamped with the hub's receive time.
func (p Packet) Reading(nominal Nominal, receivedAt int64) energy.Reading {
	return energy.Reading{
		Voltage:     nominal.Voltage,
		Current:     p.Current,
		Power:       p.Power,
		Frequency:   nominal.Frequency,
		PowerFactor: p.PowerFactor,
		Timestamp:   receivedAt,
	}
}
