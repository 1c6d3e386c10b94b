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

package main

import (
	"fmt"
	"os"

	"github.com/TheCacophonyProject/energy-audit/internal/devicescli"
	"github.com/TheCacophonyProject/energy-audit/internal/fakemeter"
	"github.com/TheCacophonyProject/energy-audit/internal/field"
	"github.com/TheCacophonyProject/energy-audit/internal/hub"
	"github.com/TheCacophonyProject/energy-audit/internal/logging"
	"github.com/TheCacophonyProject/energy-audit/internal/meterprobe"
)

var log *logging.Logger

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

var version = "<not set>"

func runMain() error {
	log = logging.NewLogger("info")
	if len(os.Args) < 2 {
		log.Info("Usage: energy-audit <hub|field|devices|meter|fake-meter> [args]")
		return fmt.Errorf("no subcommand given")
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "hub":
		err = hub.Run(args, version)
	case "field":
		err = field.Run(args, version)
	case "devices":
		err = devicescli.Run(args, version)
	case "meter":
		err = meterprobe.Run(args, version)
	case "fake-meter":
		err = fakemeter.Run(args, version)
	default:
		err = fmt.Errorf("unknown subcommand: %s", subcommand)
	}

	return err
}
