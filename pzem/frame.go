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
)

const (
	FuncReadInput byte = 0x04

	// NoData is what the meter protocol uses to mean "no value". A register
	// that decodes to it is never turned into a reading.
	NoData uint16 = 0xFFFF

	requestLen   = 8
	responseLen  = 7
	exceptionLen = 5
)

// Register is an input register address on the meter.
type Register uint16

const (
	RegVoltage     Register = 0x0000
	RegCurrent     Register = 0x0001
	RegPower       Register = 0x0002
	RegEnergyLow   Register = 0x0003
	RegEnergyHigh  Register = 0x0004
	RegFrequency   Register = 0x0005
	RegPowerFactor Register = 0x0006
)

func (r Register) String() string {
	switch r {
	case RegVoltage:
		return "voltage"
	case RegCurrent:
		return "current"
	case RegPower:
		return "power"
	case RegEnergyLow:
		return "energy-low"
	case RegEnergyHigh:
		return "energy-high"
	case RegFrequency:
		return "frequency"
	case RegPowerFactor:
		return "power-factor"
	}
	return fmt.Sprintf("register-0x%04X", uint16(r))
}

var (
	ErrTimeout   = errors.New("no response from meter before deadline")
	ErrCRC       = errors.New("response CRC mismatch")
	ErrAddress   = errors.New("response from wrong device address")
	ErrFunction  = errors.New("response has wrong function code")
	ErrNoData    = errors.New("meter returned no data")
	ErrException = errors.New("meter returned an exception")
)

// EncodeRequest builds the 8 byte read request:
// [address, function, regHi, regLo, countHi, countLo, crcLo, crcHi].
func EncodeRequest(address, function byte, reg Register, count uint16) []byte {
	frame := make([]byte, 0, requestLen)
	frame = append(frame,
		address,
		function,
		byte(reg>>8), byte(reg&0xFF),
		byte(count>>8), byte(count&0xFF),
	)
	return appendCRC(frame)
}

// DecodeResponse validates a 7 byte single register response
// [address, function, byteCount, valueHi, valueLo, crcLo, crcHi] and returns the value.
func DecodeResponse(address, function byte, frame []byte) (uint16, error) {
	if len(frame) != responseLen {
		return NoData, fmt.Errorf("response length %d, expected %d", len(frame), responseLen)
	}
	if !validCRC(frame) {
		return NoData, ErrCRC
	}
	if frame[0] != address {
		return NoData, ErrAddress
	}
	if frame[1] != function {
		return NoData, ErrFunction
	}
	value := uint16(frame[3])<<8 | uint16(frame[4])
	if value == NoData {
		return NoData, ErrNoData
	}
	return value, nil
}

// isException reports if the first bytes received are a complete exception
// response for the given function.
func isException(function byte, frame []byte) bool {
	return len(frame) >= exceptionLen &&
		frame[1] == function|0x80 &&
		validCRC(frame[:exceptionLen])
}
