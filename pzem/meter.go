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

package pzem

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/TheCacophonyProject/energy-audit/energy"
)

const (
	responseTimeout = 200 * time.Millisecond
	checkAttempts   = 3
	checkSettle     = 200 * time.Millisecond
	checkRetryDelay = 100 * time.Millisecond
)

var (
	sleepFn = time.Sleep
	nowFn   = time.Now
)

// Port is a half duplex serial line to one meter.
type Port interface {
	io.ReadWriter
	Flush() error
}

// Meter talks to a single addressed meter on a serial line.
type Meter struct {
	port    Port
	address byte
	clock   func() int64
	timeout time.Duration
}

// NewMeter returns a meter reading from the given port and address. clock is
// used to timestamp readings.
func NewMeter(port Port, address byte, clock func() int64) *Meter {
	return &Meter{
		port:    port,
		address: address,
		clock:   clock,
		timeout: responseTimeout,
	}
}

func (m *Meter) Address() byte {
	return m.address
}

// Check is the start up health check. It reads the voltage up to three times
// and only succeeds on a non zero value.
func (m *Meter) Check() error {
	sleepFn(checkSettle)
	var err error
	for i := 0; i < checkAttempts; i++ {
		var v uint16
		v, err = m.ReadRegister(RegVoltage)
		if err == nil && v > 0 {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("meter 0x%02X reported zero voltage", m.address)
		}
		log.Debugf("Health check attempt %d for meter 0x%02X failed: %v", i+1, m.address, err)
		sleepFn(checkRetryDelay)
	}
	return err
}

// ReadAll reads every register needed for a reading. If any read fails no
// reading is returned.
func (m *Meter) ReadAll() (energy.Reading, error) {
	timestamp := m.clock()

	regs := []Register{
		RegVoltage,
		RegCurrent,
		RegPower,
		RegEnergyLow,
		RegEnergyHigh,
		RegFrequency,
		RegPowerFactor,
	}
	raw := make(map[Register]uint16, len(regs))
	for _, reg := range regs {
		v, err := m.ReadRegister(reg)
		if err != nil {
			return energy.Reading{}, fmt.Errorf("reading %s from meter 0x%02X: %w", reg, m.address, err)
		}
		raw[reg] = v
	}

	return Scale(raw, timestamp), nil
}

// Scale converts raw register values into physical units.
func Scale(raw map[Register]uint16, timestamp int64) energy.Reading {
	energyRaw := uint32(raw[RegEnergyHigh])<<16 | uint32(raw[RegEnergyLow])
	return energy.Reading{
		Voltage:     float64(raw[RegVoltage]) / 10,
		Current:     float64(raw[RegCurrent]) / 1000,
		Power:       float64(raw[RegPower]) / 10,
		Energy:      float64(energyRaw) / 1000,
		Frequency:   float64(raw[RegFrequency]) / 10,
		PowerFactor: float64(raw[RegPowerFactor]) / 100,
		Timestamp:   timestamp,
	}
}

// ReadRegister does one request/response round trip for a single register.
func (m *Meter) ReadRegister(reg Register) (uint16, error) {
	if err := m.port.Flush(); err != nil {
		return NoData, err
	}
	req := EncodeRequest(m.address, FuncReadInput, reg, 1)
	log.Debugf("Meter 0x%02X request % X", m.address, req)
	n, err := m.port.Write(req)
	if err != nil {
		return NoData, err
	}
	if n != len(req) {
		return NoData, fmt.Errorf("wrote %d bytes, expected %d", n, len(req))
	}

	resp, err := m.receive()
	if err != nil {
		return NoData, err
	}
	log.Debugf("Meter 0x%02X response % X", m.address, resp)
	return DecodeResponse(m.address, FuncReadInput, resp)
}

// receive collects a response frame until it is complete or the deadline passes.
func (m *Meter) receive() ([]byte, error) {
	deadline := nowFn().Add(m.timeout)
	buf := make([]byte, responseLen)
	got := 0
	for got < responseLen {
		if isException(FuncReadInput, buf[:got]) {
			return nil, fmt.Errorf("%w: code 0x%02X", ErrException, buf[2])
		}
		if nowFn().After(deadline) {
			return nil, ErrTimeout
		}
		n, err := m.port.Read(buf[got:])
		got += n
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
	return buf, nil
}
