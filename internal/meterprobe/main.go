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

// Package meterprobe takes the lock on a meter's serial line, reads every
// register once and releases the line.
package meterprobe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/TheCacophonyProject/energy-audit/energy"
	"github.com/TheCacophonyProject/energy-audit/internal/logging"
	"github.com/TheCacophonyProject/energy-audit/pzem"
	"github.com/TheCacophonyProject/energy-audit/serialhelper"
	"github.com/alexflint/go-arg"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	Port            string `arg:"--port" default:"/dev/ttyAMA1" help:"Serial port the meter is on."`
	Address         string `arg:"--address" default:"0x01" help:"Meter device address in hex (0xnn)."`
	Baud            int    `arg:"--baud" default:"9600" help:"Serial baud rate."`
	DriverEnablePin string `arg:"--de-pin" help:"GPIO for an RS-485 transceiver's driver enable."`
	logging.LogArgs
}

var defaultArgs = Args{}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log = logging.NewLogger(args.LogLevel)
	pzem.SetLogger(log)
	serialhelper.SetLogger(log)

	address, err := parseAddress(args.Address)
	if err != nil {
		return err
	}

	log.Infof("Getting lock on %s", args.Port)
	port, err := serialhelper.OpenMeterPort(serialhelper.PortConfig{
		Name:            args.Port,
		Baud:            args.Baud,
		ReadTimeout:     100 * time.Millisecond,
		DriverEnablePin: args.DriverEnablePin,
		LockRetries:     3,
		LockWait:        time.Second,
	})
	if err != nil {
		return err
	}
	defer func() {
		log.Info("Releasing serial")
		port.Close()
	}()

	clock := energy.NewClock()
	meter := pzem.NewMeter(port, address, clock.Millis)
	if err := meter.Check(); err != nil {
		return fmt.Errorf("meter 0x%02x on %s failed its check: %w", address, args.Port, err)
	}
	r, err := meter.ReadAll()
	if err != nil {
		return err
	}
	printReading(os.Stdout, r)
	return nil
}

func parseAddress(s string) (byte, error) {
	var a uint8
	if _, err := fmt.Sscanf(s, "0x%x", &a); err != nil {
		return 0, fmt.Errorf("invalid address '%s', should be hex (0xnn): %v", s, err)
	}
	if a == 0 || a > 0xF7 {
		return 0, fmt.Errorf("address 0x%02x out of range 0x01-0xf7", a)
	}
	return a, nil
}

func printReading(w io.Writer, r energy.Reading) {
	fmt.Fprintf(w, "Voltage:      %.1f V\n", r.Voltage)
	fmt.Fprintf(w, "Current:      %.3f A\n", r.Current)
	fmt.Fprintf(w, "Power:        %.1f W\n", r.Power)
	fmt.Fprintf(w, "Energy:       %.3f kWh\n", r.Energy)
	fmt.Fprintf(w, "Frequency:    %.1f Hz\n", r.Frequency)
	fmt.Fprintf(w, "Power factor: %.2f\n", r.PowerFactor)
}
