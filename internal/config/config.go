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

// Package config reads the energy-audit configuration file. Every section has
// a Default constructor; values in the file override the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	ConfigFileName   = "config.toml"
	DefaultConfigDir = "/etc/energy-audit"
)

// ConfigArgs can be embedded in a go-arg Args struct.
type ConfigArgs struct {
	ConfigDir string `arg:"-c,--config-dir" default:"/etc/energy-audit" help:"path to the configuration directory"`
}

type Config struct {
	v *viper.Viper
}

// New reads config.toml from dir. A missing file is not an error, all
// sections will then be their defaults.
func New(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	path := filepath.Join(dir, ConfigFileName)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return &Config{v: v}, nil
}

// Unmarshal decodes the section key into raw, leaving raw untouched when the
// section is absent.
func (c *Config) Unmarshal(key string, raw interface{}) error {
	if !c.v.IsSet(key) {
		return nil
	}
	if err := c.v.UnmarshalKey(key, raw); err != nil {
		return fmt.Errorf("failed to parse config section '%s': %w", key, err)
	}
	return nil
}

const (
	HubKey    = "hub"
	MetersKey = "meters"
	FieldKey  = "field"
	WasteKey  = "waste"
	LinkKey   = "link"
)

type Hub struct {
	PollInterval     time.Duration `mapstructure:"poll-interval"`
	WasteInterval    time.Duration `mapstructure:"waste-interval"`
	LivenessInterval time.Duration `mapstructure:"liveness-interval"`
	GracePeriod      time.Duration `mapstructure:"grace-period"`
	Capacity         int           `mapstructure:"capacity"`
	HistorySize      int           `mapstructure:"history-size"`
	HistoryLimit     int           `mapstructure:"history-limit"`
	MaxNameLength    int           `mapstructure:"max-name-length"`
	PacketQueue      int           `mapstructure:"packet-queue"`
	// AllowedNodes restricts which field nodes are admitted. Empty allows any.
	AllowedNodes []string `mapstructure:"allowed-nodes"`
}

func DefaultHub() Hub {
	return Hub{
		PollInterval:     2 * time.Second,
		WasteInterval:    60 * time.Second,
		LivenessInterval: 5 * time.Second,
		GracePeriod:      30 * time.Second,
		Capacity:         10,
		HistorySize:      1000,
		HistoryLimit:     200,
		MaxNameLength:    50,
		PacketQueue:      32,
	}
}

type Meter struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	Port    string `mapstructure:"port"`
	Address uint8  `mapstructure:"address"`
	Baud    int    `mapstructure:"baud"`
	// DriverEnablePin is set when the meter is behind an RS-485 transceiver.
	DriverEnablePin string `mapstructure:"driver-enable-pin"`
}

func DefaultMeters() []Meter {
	return []Meter{
		{ID: "WIRED_01", Name: "Wired Load 1", Port: "/dev/ttyAMA1", Address: 0x01, Baud: 9600},
		{ID: "WIRED_02", Name: "Wired Load 2", Port: "/dev/ttyAMA2", Address: 0x02, Baud: 9600},
	}
}

// Meters returns the configured meters, or DefaultMeters when none are listed.
func (c *Config) Meters() ([]Meter, error) {
	var meters []Meter
	if err := c.Unmarshal(MetersKey, &meters); err != nil {
		return nil, err
	}
	if meters == nil {
		return DefaultMeters(), nil
	}
	for i := range meters {
		if meters[i].Baud == 0 {
			meters[i].Baud = 9600
		}
		if meters[i].Name == "" {
			meters[i].Name = meters[i].ID
		}
	}
	return meters, nil
}

// Field defaults suit an ADS1115 on its 4.096V range, which converts at
// most 860 times a second.
type Field struct {
	NodeID           string        `mapstructure:"node-id"`
	Name             string        `mapstructure:"name"`
	TransmitInterval time.Duration `mapstructure:"transmit-interval"`
	I2CBus           string        `mapstructure:"i2c-bus"`
	ADCAddress       uint16        `mapstructure:"adc-address"`
	CTChannel        int           `mapstructure:"ct-channel"`
	BurdenResistor   float64       `mapstructure:"burden-resistor"`
	CurrentRatio     float64       `mapstructure:"current-ratio"`
	Vref             float64       `mapstructure:"vref"`
	Resolution       float64       `mapstructure:"resolution"`
	Samples          int           `mapstructure:"samples"`
	SampleRate       float64       `mapstructure:"sample-rate"`
	CalibrationRuns  int           `mapstructure:"calibration-samples"`
	LineVoltage      float64       `mapstructure:"line-voltage"`

	// BatteryChannel is the ADC channel of the battery divider, -1 disables it.
	BatteryChannel  int     `mapstructure:"battery-channel"`
	BatteryDivider  float64 `mapstructure:"battery-divider"`
	LowBatteryVolts float64 `mapstructure:"low-battery-volts"`
}

func DefaultField() Field {
	return Field{
		NodeID:           "NODE_01",
		Name:             "Wireless Audit Node 1",
		TransmitInterval: 5 * time.Second,
		I2CBus:           "",
		ADCAddress:       0x48,
		CTChannel:        0,
		BurdenResistor:   33.0,
		CurrentRatio:     100.0,
		Vref:             4.096,
		Resolution:       32767.0,
		Samples:          100,
		SampleRate:       860,
		CalibrationRuns:  1000,
		LineVoltage:      230.0,
		BatteryChannel:   1,
		BatteryDivider:   2.0,
		LowBatteryVolts:  3.0,
	}
}

type Waste struct {
	StandbyCurrent  float64 `mapstructure:"standby-current"`
	StandbyPower    float64 `mapstructure:"standby-power"`
	LowPowerFactor  float64 `mapstructure:"low-power-factor"`
	AlwaysOnPower   float64 `mapstructure:"always-on-power"`
	AlwaysOnPercent int     `mapstructure:"always-on-percent"`
	MinHistory      int     `mapstructure:"min-history"`
	Window          int     `mapstructure:"window"`
}

func DefaultWaste() Waste {
	return Waste{
		StandbyCurrent:  0.2,
		StandbyPower:    5.0,
		LowPowerFactor:  0.7,
		AlwaysOnPower:   1.0,
		AlwaysOnPercent: 95,
		MinHistory:      10,
		Window:          100,
	}
}

type Link struct {
	Broker           string  `mapstructure:"broker"`
	Channel          int     `mapstructure:"channel"`
	ClientID         string  `mapstructure:"client-id"`
	TopicPrefix      string  `mapstructure:"topic-prefix"`
	NominalVoltage   float64 `mapstructure:"nominal-voltage"`
	NominalFrequency float64 `mapstructure:"nominal-frequency"`
	DefaultPF        float64 `mapstructure:"default-power-factor"`
}

func DefaultLink() Link {
	return Link{
		Broker:           "tcp://energy-hub.local:1883",
		Channel:          1,
		TopicPrefix:      "energy-audit",
		NominalVoltage:   230.0,
		NominalFrequency: 50.0,
		DefaultPF:        0.85,
	}
}
