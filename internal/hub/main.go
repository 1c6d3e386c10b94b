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

// Package hub runs the hub node: it polls the wired meters, receives packets
// from field nodes, keeps the device registry and serves it over D-Bus.
package hub

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/TheCacophonyProject/energy-audit/energy"
	"github.com/TheCacophonyProject/energy-audit/internal/config"
	"github.com/TheCacophonyProject/energy-audit/internal/logging"
	"github.com/TheCacophonyProject/energy-audit/pzem"
	"github.com/TheCacophonyProject/energy-audit/registry"
	"github.com/TheCacophonyProject/energy-audit/serialhelper"
	"github.com/TheCacophonyProject/energy-audit/telemetry"
	"github.com/TheCacophonyProject/energy-audit/waste"
	"github.com/alexflint/go-arg"
	"github.com/google/go-cmp/cmp"
	"github.com/rjeczalik/notify"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	NoLink bool `arg:"--no-link" help:"Only poll the wired meters, do not listen for field nodes."`
	config.ConfigArgs
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

// checkConfigChanges will compare the config from when first loaded to a new config each time
// the config file is modified.
// If there is a difference then the program will exit and systemd will restart the service, causing
// the new config to be loaded.
func checkConfigChanges(conf *HubConfig, configDir string) error {
	configFilePath := filepath.Join(configDir, config.ConfigFileName)
	fsEvents := make(chan notify.EventInfo, 1)
	if err := notify.Watch(configFilePath, fsEvents, notify.InCloseWrite, notify.InMovedTo); err != nil {
		return err
	}
	defer notify.Stop(fsEvents)

	for {
		<-fsEvents
		newConfig, err := ParseHubConfig(configDir)
		log.Debug("New config:", newConfig)

		if err != nil {
			log.Error("error reloading config:", err)
			continue
		}
		diff := cmp.Diff(conf, newConfig)
		log.Debug("Config diff:", diff)
		if diff != "" {
			log.Info("Config changed. Exiting to allow systemctl to restart service.")
			os.Exit(0)
		} else {
			log.Info("No relevant changes detected in config file.")
		}
	}
}

func setLoggers(l *logging.Logger) {
	log = l
	pzem.SetLogger(l)
	serialhelper.SetLogger(l)
	registry.SetLogger(l)
	telemetry.SetLogger(l)
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	setLoggers(logging.NewLogger(args.LogLevel))

	log.Printf("Running version: %s", version)

	conf, err := ParseHubConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	go func() {
		if err := checkConfigChanges(conf, args.ConfigDir); err != nil {
			log.Errorf("Not watching config for changes: %v", err)
		}
	}()

	clock := energy.NewClock()
	h := newHub(conf, clock.Millis)

	for _, m := range conf.Meters {
		meter, closer := openMeter(m, clock.Millis)
		if closer != nil {
			defer closer.Close()
		}
		var reader meterReader
		if meter != nil {
			reader = meter
		}
		if err := h.addMeter(m.ID, m.Name, reader); err != nil {
			log.Warnf("Meter '%s' not added: %v", m.ID, err)
		}
	}

	svc, err := startService(h)
	if err != nil {
		return err
	}
	h.onWaste = func(c waste.Change) {
		reportWaste(c)
		svc.emitWaste(c)
	}

	if !args.NoLink {
		sub := telemetry.NewSubscriber(conf.linkConfig(), conf.nominal(), h.enqueuePacket)
		if err := sub.Connect(); err != nil {
			return err
		}
		defer sub.Close()
	}

	h.run(context.Background())
	return nil
}

// openMeter opens the meter's serial line. The returned meter is nil when the
// line could not be opened.
func openMeter(m config.Meter, clock func() int64) (*pzem.Meter, *serialhelper.MeterPort) {
	port, err := serialhelper.OpenMeterPort(serialhelper.PortConfig{
		Name:            m.Port,
		Baud:            m.Baud,
		ReadTimeout:     serialReadTimeout,
		DriverEnablePin: m.DriverEnablePin,
		LockRetries:     serialLockRetries,
		LockWait:        serialLockWait,
	})
	if err != nil {
		log.Errorf("Failed to open %s for meter '%s': %v", m.Port, m.ID, err)
		return nil, nil
	}
	log.Infof("Meter '%s' at 0x%02x on %s", m.ID, m.Address, m.Port)
	return pzem.NewMeter(port, m.Address, clock), port
}
