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

// Package fakemeter answers meter register reads on a serial port, for bench
// testing a hub without a real meter.
package fakemeter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/TheCacophonyProject/energy-audit/internal/logging"
	"github.com/TheCacophonyProject/energy-audit/pzem"
	"github.com/alexflint/go-arg"
	"github.com/goburrow/serial"
	"github.com/tbrandon/mbserver"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	Port    string  `arg:"--port" default:"/dev/ttyUSB0" help:"Serial port to answer on."`
	Baud    int     `arg:"--baud" default:"9600" help:"Serial baud rate."`
	Profile string  `arg:"--profile" default:"cycling" help:"Load profile: cycling, standby or always-on."`
	Power   float64 `arg:"--power" default:"150" help:"Running power of the simulated load in watts."`
	Period  int     `arg:"--period" default:"600" help:"Load cycle period in seconds."`
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

	log.Printf("Running version: %s", version)

	profile, err := ParseProfile(args.Profile)
	if err != nil {
		return err
	}
	if args.Period <= 0 {
		return fmt.Errorf("invalid period %d", args.Period)
	}
	sim := newSimulator(profile, args.Power, time.Duration(args.Period)*time.Second, time.Now)

	serv := mbserver.NewServer()
	serv.RegisterFunctionHandler(pzem.FuncReadInput, sim.handleReadInput)
	err = serv.ListenRTU(&serial.Config{
		Address:  args.Port,
		BaudRate: args.Baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", args.Port, err)
	}
	defer serv.Close()

	log.Infof("Simulating a %s load on %s", profile, args.Port)
	select {}
}

// handleReadInput answers a function 0x04 request for any run of the seven
// meter registers.
func (s *simulator) handleReadInput(_ *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	data := frame.GetData()
	if len(data) < 4 {
		return []byte{}, &mbserver.IllegalDataValue
	}
	start := binary.BigEndian.Uint16(data[0:2])
	count := binary.BigEndian.Uint16(data[2:4])
	if count == 0 || count > 7 || int(start)+int(count) > 7 {
		log.Debugf("Rejecting read of %d registers at 0x%04x", count, start)
		return []byte{}, &mbserver.IllegalDataAddress
	}

	regs := s.registers()
	out := make([]byte, 1+2*int(count))
	out[0] = byte(2 * count)
	for i := 0; i < int(count); i++ {
		reg := pzem.Register(int(start) + i)
		binary.BigEndian.PutUint16(out[1+2*i:], regs[reg])
		log.Debugf("%s = %d", reg, regs[reg])
	}
	return out, &mbserver.Success
}
