package ctsensor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/analog"
)

type noWait struct{}

func (noWait) WaitUntil(time.Time) {}

type seqSource struct {
	raw []int32
	i   int
	err error
}

func (s *seqSource) Read() (analog.Sample, error) {
	if s.err != nil {
		return analog.Sample{}, s.err
	}
	v := s.raw[s.i%len(s.raw)]
	s.i++
	return analog.Sample{Raw: v}, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Resolution = 4096
	return cfg
}

func newTestSensor(src Source, cfg Config) *Sensor {
	s := New(src, cfg)
	s.pacer = noWait{}
	return s
}

func TestRMSSymmetric(t *testing.T) {
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = 2.0
		if i%2 == 1 {
			samples[i] = -2.0
		}
	}
	assert.Equal(t, 2.0, RMS(samples, 0.05))
}

func TestRMSZero(t *testing.T) {
	assert.Equal(t, 0.0, RMS(make([]float64, 100), 0.05))
	assert.Equal(t, 0.0, RMS(nil, 0.05))
}

func TestRMSBelowNoiseFloor(t *testing.T) {
	assert.Equal(t, 0.0, RMS([]float64{0.04, -0.04}, 0.05))
	assert.Equal(t, 0.0625, RMS([]float64{0.0625, -0.0625}, 0.05))
}

func TestCalibrateRemovesBias(t *testing.T) {
	src := &seqSource{raw: []int32{2100}}
	s := newTestSensor(src, testConfig())
	require.NoError(t, s.Calibrate())
	assert.Equal(t, 52.0, s.Offset())
	assert.Equal(t, 1000, src.i)

	current, err := s.ReadCurrent()
	require.NoError(t, err)
	assert.Equal(t, 0.0, current)
}

func TestReadCurrentAlternating(t *testing.T) {
	src := &seqSource{raw: []int32{2048 + 410, 2048 - 410}}
	cfg := testConfig()
	s := newTestSensor(src, cfg)

	current, err := s.ReadCurrent()
	require.NoError(t, err)
	expected := 410.0 / 4096 * 3.3 / 33 * 100
	assert.InDelta(t, expected, current, 1e-9)
	assert.Equal(t, cfg.Samples, src.i)
}

func TestReadCurrentNoiseClamped(t *testing.T) {
	// 2 counts is about 5mA on the primary.
	src := &seqSource{raw: []int32{2050, 2046}}
	s := newTestSensor(src, testConfig())
	current, err := s.ReadCurrent()
	require.NoError(t, err)
	assert.Equal(t, 0.0, current)
}

func TestReadCurrentSourceError(t *testing.T) {
	readErr := errors.New("i2c nack")
	s := newTestSensor(&seqSource{err: readErr}, testConfig())
	_, err := s.ReadCurrent()
	assert.ErrorIs(t, err, readErr)
	assert.ErrorIs(t, s.Calibrate(), readErr)
}

func TestPowerFactorBands(t *testing.T) {
	s := newTestSensor(&seqSource{raw: []int32{2048}}, testConfig())
	cases := []struct {
		current float64
		pf      float64
	}{
		{0, 0.75},
		{0.49, 0.75},
		{0.5, 0.85},
		{1.99, 0.85},
		{2.0, 0.90},
		{15, 0.90},
	}
	for _, c := range cases {
		assert.Equal(t, c.pf, s.PowerFactorFor(c.current), "current %v", c.current)
	}
}

func TestMeasureSinglePass(t *testing.T) {
	src := &seqSource{raw: []int32{2048 + 410, 2048 - 410}}
	cfg := testConfig()
	s := newTestSensor(src, cfg)

	m, err := s.Measure(230)
	require.NoError(t, err)
	assert.Equal(t, cfg.Samples, src.i)
	assert.Equal(t, 0.85, m.PowerFactor)
	assert.InDelta(t, m.Current*230*0.85, m.Power, 1e-9)
}

func TestReadPower(t *testing.T) {
	src := &seqSource{raw: []int32{2048 + 410, 2048 - 410}}
	s := newTestSensor(src, testConfig())
	p, err := s.ReadPower(230, 1.0)
	require.NoError(t, err)
	assert.InDelta(t, 410.0/4096*3.3/33*100*230, p, 1e-9)
}
