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

package field

import (
	"github.com/TheCacophonyProject/energy-audit/ctsensor"
	"github.com/TheCacophonyProject/energy-audit/internal/config"
	"github.com/TheCacophonyProject/energy-audit/telemetry"
)

type FieldConfig struct {
	config.Field
	Link config.Link
}

func ParseFieldConfig(configDir string) (*FieldConfig, error) {
	conf, err := config.New(configDir)
	if err != nil {
		return nil, err
	}

	f := config.DefaultField()
	if err := conf.Unmarshal(config.FieldKey, &f); err != nil {
		return nil, err
	}

	link := config.DefaultLink()
	if err := conf.Unmarshal(config.LinkKey, &link); err != nil {
		return nil, err
	}

	return &FieldConfig{
		Field: f,
		Link:  link,
	}, nil
}

func (c *FieldConfig) sensorConfig() ctsensor.Config {
	s := ctsensor.DefaultConfig()
	s.BurdenResistor = c.BurdenResistor
	s.CurrentRatio = c.CurrentRatio
	s.Vref = c.Vref
	s.Resolution = c.Resolution
	s.Samples = c.Samples
	s.SampleRate = c.SampleRate
	s.CalibrationSamples = c.CalibrationRuns
	return s
}

func (c *FieldConfig) linkConfig() telemetry.LinkConfig {
	return telemetry.LinkConfig{
		Broker:      c.Link.Broker,
		Channel:     c.Link.Channel,
		ClientID:    c.Link.ClientID,
		TopicPrefix: c.Link.TopicPrefix,
	}
}
