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

// Package ctsensor derives RMS current and an estimated power from a current
// transformer sampled through an ADC.
package ctsensor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/TheCacophonyProject/energy-audit/internal/logging"
	"periph.io/x/conn/v3/analog"
)

var log = logging.NewLogger("info")

// SetLogger replaces the package logger.
func SetLogger(l *logging.Logger) {
	if l != nil {
		log = l
	}
}

var errNoSamples = errors.New("no samples configured")

// Source returns one ADC conversion. ads1x15 pins satisfy it.
type Source interface {
	Read() (analog.Sample, error)
}

type Config struct {
	BurdenResistor     float64 // ohms
	CurrentRatio       float64 // primary:secondary
	Vref               float64 // volts at full scale
	Resolution         float64 // full scale raw count
	Samples            int
	SampleRate         float64 // Hz
	CalibrationSamples int
	CalibrationSpacing time.Duration
	NoiseFloor         float64 // amps

	// Power factor estimate bands, see PowerFactorFor.
	LowCurrent    float64
	MediumCurrent float64
	LowPF         float64
	MediumPF      float64
	HighPF        float64
}

// DefaultConfig is an SCT-013 100A:50mA clamp with a 33 ohm burden on a 12 bit 3.3V ADC.
func DefaultConfig() Config {
	return Config{
		BurdenResistor:     33.0,
		CurrentRatio:       100.0,
		Vref:               3.3,
		Resolution:         4095.0,
		Samples:            100,
		SampleRate:         10000,
		CalibrationSamples: 1000,
		CalibrationSpacing: 100 * time.Microsecond,
		NoiseFloor:         0.05,
		LowCurrent:         0.5,
		MediumCurrent:      2.0,
		LowPF:              0.75,
		MediumPF:           0.85,
		HighPF:             0.90,
	}
}

// Measurement is the result of one sampling pass.
type Measurement struct {
	Current     float64
	Power       float64
	PowerFactor float64
}

type Sensor struct {
	src    Source
	cfg    Config
	offset float64
	pacer  Pacer
	now    func() time.Time
}

func New(src Source, cfg Config) *Sensor {
	return &Sensor{
		src:   src,
		cfg:   cfg,
		pacer: BusyPacer{},
		now:   time.Now,
	}
}

// Offset is the calibrated deviation of the idle signal from the ADC midpoint, in raw counts.
func (s *Sensor) Offset() float64 {
	return s.offset
}

// Calibrate averages a run of samples and records how far the idle signal
// sits from the midpoint of the ADC range. It can be called again at any time.
func (s *Sensor) Calibrate() error {
	n := s.cfg.CalibrationSamples
	if n <= 0 {
		return errNoSamples
	}
	sum := 0.0
	start := s.now()
	for i := 0; i < n; i++ {
		s.pacer.WaitUntil(start.Add(time.Duration(i) * s.cfg.CalibrationSpacing))
		sample, err := s.src.Read()
		if err != nil {
			return fmt.Errorf("calibration sample %d: %w", i, err)
		}
		sum += float64(sample.Raw)
	}
	s.offset = sum/float64(n) - s.cfg.Resolution/2
	log.Infof("Calibrated offset: %.2f", s.offset)
	return nil
}

// toCurrent converts a raw conversion to instantaneous primary current.
func (s *Sensor) toCurrent(raw int32) float64 {
	centered := float64(raw) - s.cfg.Resolution/2 - s.offset
	volts := centered / s.cfg.Resolution * s.cfg.Vref
	return volts / s.cfg.BurdenResistor * s.cfg.CurrentRatio
}

func (s *Sensor) sample() ([]float64, error) {
	n := s.cfg.Samples
	if n <= 0 || s.cfg.SampleRate <= 0 {
		return nil, errNoSamples
	}
	interval := time.Duration(float64(time.Second) / s.cfg.SampleRate)
	samples := make([]float64, n)
	start := s.now()
	for i := 0; i < n; i++ {
		s.pacer.WaitUntil(start.Add(time.Duration(i) * interval))
		sample, err := s.src.Read()
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		samples[i] = s.toCurrent(sample.Raw)
	}
	log.Debugf("Sampled %d points in %s", n, s.now().Sub(start))
	return samples, nil
}

// RMS is the root mean square of samples, clamped to zero below noiseFloor.
func RMS(samples []float64, noiseFloor float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range samples {
		sumSquares += v * v
	}
	rms := math.Sqrt(sumSquares / float64(len(samples)))
	if rms < noiseFloor {
		return 0
	}
	return rms
}

// ReadCurrent takes one sampling window and returns the RMS current in amps.
func (s *Sensor) ReadCurrent() (float64, error) {
	samples, err := s.sample()
	if err != nil {
		return 0, err
	}
	return RMS(samples, s.cfg.NoiseFloor), nil
}

// ReadPower is current times an assumed voltage and power factor. Nothing on
// this path measures voltage or phase.
func (s *Sensor) ReadPower(voltage, powerFactor float64) (float64, error) {
	current, err := s.ReadCurrent()
	if err != nil {
		return 0, err
	}
	return current * voltage * powerFactor, nil
}

// EstimatePowerFactor samples the current and maps it to a power factor band.
func (s *Sensor) EstimatePowerFactor() (float64, error) {
	current, err := s.ReadCurrent()
	if err != nil {
		return 0, err
	}
	return s.PowerFactorFor(current), nil
}

// PowerFactorFor is a rough guess from current magnitude alone: small loads
// tend to be electronics with poor power factor. It is not a measurement.
func (s *Sensor) PowerFactorFor(current float64) float64 {
	switch {
	case current < s.cfg.LowCurrent:
		return s.cfg.LowPF
	case current < s.cfg.MediumCurrent:
		return s.cfg.MediumPF
	default:
		return s.cfg.HighPF
	}
}

// Measure derives current, estimated power factor and power from a single
// sampling window.
func (s *Sensor) Measure(voltage float64) (Measurement, error) {
	current, err := s.ReadCurrent()
	if err != nil {
		return Measurement{}, err
	}
	pf := s.PowerFactorFor(current)
	return Measurement{
		Current:     current,
		Power:       current * voltage * pf,
		PowerFactor: pf,
	}, nil
}
