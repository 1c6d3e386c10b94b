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

// Package field runs a field node: it samples a current transformer through
// an ADS1115 and sends a packet to the hub every transmit interval.
package field

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheCacophonyProject/energy-audit/ctsensor"
	"github.com/TheCacophonyProject/energy-audit/energy"
	"github.com/TheCacophonyProject/energy-audit/internal/config"
	"github.com/TheCacophonyProject/energy-audit/internal/logging"
	"github.com/TheCacophonyProject/energy-audit/telemetry"
	"github.com/alexflint/go-arg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	Once bool `arg:"--once" help:"Take and print one measurement without sending it."`
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

var adcChannels = []ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

func adcPin(adc *ads1x15.Dev, channel int, maxVolts float64, rate float64) (ads1x15.PinADC, error) {
	if channel < 0 || channel >= len(adcChannels) {
		return nil, fmt.Errorf("invalid ADC channel %d", channel)
	}
	maxV := physic.ElectricPotential(maxVolts * float64(physic.Volt))
	freq := physic.Frequency(rate * float64(physic.Hertz))
	return adc.PinForChannel(adcChannels[channel], maxV, freq, ads1x15.BestQuality)
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log = logging.NewLogger(args.LogLevel)
	ctsensor.SetLogger(log)
	telemetry.SetLogger(log)

	log.Printf("Running version: %s", version)

	conf, err := ParseFieldConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	log.Infof("Node ID: %s (%s)", conf.NodeID, conf.Name)
	if conf.TransmitInterval <= 0 {
		return fmt.Errorf("invalid transmit interval %s", conf.TransmitInterval)
	}

	log.Debug("Initializing host")
	if _, err := host.Init(); err != nil {
		return err
	}
	bus, err := i2creg.Open(conf.I2CBus)
	if err != nil {
		return err
	}
	defer bus.Close()

	adc, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: conf.ADCAddress})
	if err != nil {
		return fmt.Errorf("failed to init ADC at 0x%x: %w", conf.ADCAddress, err)
	}
	defer adc.Halt()

	ctPin, err := adcPin(adc, conf.CTChannel, conf.Vref, conf.SampleRate)
	if err != nil {
		return err
	}
	defer ctPin.Halt()

	log.Info("Initializing current sensor...")
	sensor := ctsensor.New(ctPin, conf.sensorConfig())
	if err := sensor.Calibrate(); err != nil {
		return err
	}

	clock := energy.NewClock()
	n := &node{
		id:             conf.NodeID,
		lineVoltage:    conf.LineVoltage,
		sensor:         sensor,
		clock:          clock.Millis,
		batteryDivider: conf.BatteryDivider,
		lowBattery:     conf.LowBatteryVolts,
	}
	if conf.BatteryChannel >= 0 {
		batteryPin, err := adcPin(adc, conf.BatteryChannel, conf.Vref, conf.SampleRate)
		if err != nil {
			log.Warnf("Battery monitoring disabled: %v", err)
		} else {
			defer batteryPin.Halt()
			n.battery = batteryPin
		}
	}

	if args.Once {
		m, err := sensor.Measure(conf.LineVoltage)
		if err != nil {
			return err
		}
		fmt.Printf("Current: %.3f A\nPower: %.2f W\nPower factor (estimated): %.2f\n", m.Current, m.Power, m.PowerFactor)
		return nil
	}

	// Without the link there is no way to report anything, so fail and let
	// the service manager restart the node.
	pub := telemetry.NewPublisher(conf.linkConfig(), conf.NodeID, onSent)
	if err := pub.Connect(); err != nil {
		return err
	}
	defer pub.Close()
	n.link = pub

	recalibrate := make(chan os.Signal, 1)
	signal.Notify(recalibrate, syscall.SIGUSR1)

	log.Infof("Sending data every %s", conf.TransmitInterval)
	return n.run(time.NewTicker(conf.TransmitInterval).C, recalibrate)
}

// run transmits on every tick and recalibrates when asked. It only returns
// when ticks is closed.
func (n *node) run(ticks <-chan time.Time, recalibrate <-chan os.Signal) error {
	for {
		select {
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
			if err := n.cycle(); err != nil {
				log.Error(err)
			}
			n.checkBattery()
		case <-recalibrate:
			log.Info("Recalibrating current sensor")
			if err := n.sensor.Calibrate(); err != nil {
				log.Errorf("Recalibration failed: %v", err)
			}
		}
	}
}
