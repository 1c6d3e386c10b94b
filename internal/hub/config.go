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

package hub

import (
	"time"

	"github.com/TheCacophonyProject/energy-audit/internal/config"
	"github.com/TheCacophonyProject/energy-audit/registry"
	"github.com/TheCacophonyProject/energy-audit/telemetry"
	"github.com/TheCacophonyProject/energy-audit/waste"
)

type HubConfig struct {
	config.Hub
	Meters []config.Meter
	Waste  config.Waste
	Link   config.Link
}

func ParseHubConfig(configDir string) (*HubConfig, error) {
	conf, err := config.New(configDir)
	if err != nil {
		return nil, err
	}

	h := config.DefaultHub()
	if err := conf.Unmarshal(config.HubKey, &h); err != nil {
		return nil, err
	}

	meters, err := conf.Meters()
	if err != nil {
		return nil, err
	}

	w := config.DefaultWaste()
	if err := conf.Unmarshal(config.WasteKey, &w); err != nil {
		return nil, err
	}

	link := config.DefaultLink()
	if err := conf.Unmarshal(config.LinkKey, &link); err != nil {
		return nil, err
	}

	return &HubConfig{
		Hub:    h,
		Meters: meters,
		Waste:  w,
		Link:   link,
	}, nil
}

func (c *HubConfig) registryConfig() registry.Config {
	return registry.Config{
		Capacity:      c.Capacity,
		HistorySize:   c.HistorySize,
		AverageWindow: c.Waste.Window,
		GracePeriodMs: c.GracePeriod.Milliseconds(),
		MaxNameLength: c.MaxNameLength,
		HistoryLimit:  c.HistoryLimit,
	}
}

func (c *HubConfig) thresholds() waste.Thresholds {
	return waste.Thresholds{
		StandbyCurrent:  c.Waste.StandbyCurrent,
		StandbyPower:    c.Waste.StandbyPower,
		LowPowerFactor:  c.Waste.LowPowerFactor,
		AlwaysOnPower:   c.Waste.AlwaysOnPower,
		AlwaysOnPercent: c.Waste.AlwaysOnPercent,
		MinHistory:      c.Waste.MinHistory,
		Window:          c.Waste.Window,
	}
}

func (c *HubConfig) linkConfig() telemetry.LinkConfig {
	return telemetry.LinkConfig{
		Broker:      c.Link.Broker,
		Channel:     c.Link.Channel,
		ClientID:    c.Link.ClientID,
		TopicPrefix: c.Link.TopicPrefix,
	}
}

func (c *HubConfig) nominal() telemetry.Nominal {
	return telemetry.Nominal{
		Voltage:     c.Link.NominalVoltage,
		Frequency:   c.Link.NominalFrequency,
		PowerFactor: c.Link.DefaultPF,
	}
}

const (
	serialReadTimeout = 100 * time.Millisecond
	serialLockRetries = 3
	serialLockWait    = time.Second
)
