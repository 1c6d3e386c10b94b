package fakemeter

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/TheCacophonyProject/energy-audit/pzem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tbrandon/mbserver"
)

type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile("standby")
	require.NoError(t, err)
	assert.Equal(t, Standby, p)
	_, err = ParseProfile("solar")
	assert.Error(t, err)
}

func TestRegistersScaleToPlausibleReading(t *testing.T) {
	clock := &stepClock{t: time.Unix(0, 0), step: time.Minute}
	sim := newSimulator(AlwaysOn, 200, 10*time.Minute, clock.now)

	r := pzem.Scale(sim.registers(), 0)
	assert.InDelta(t, 230, r.Voltage, 2.1)
	assert.InDelta(t, 50, r.Frequency, 0.15)
	assert.InDelta(t, 200, r.Power, 10.1)
	assert.Equal(t, 0.92, r.PowerFactor)
	assert.InDelta(t, r.Power/(r.Voltage*0.92), r.Current, 0.01)

	first := r.Energy
	for i := 0; i < 60; i++ {
		sim.registers()
	}
	r = pzem.Scale(sim.registers(), 0)
	assert.Greater(t, r.Energy, first)
	// About 200W for an hour.
	assert.InDelta(t, 0.2, r.Energy, 0.02)
}

func TestStandbyProfile(t *testing.T) {
	clock := &stepClock{t: time.Unix(0, 0), step: time.Second}
	sim := newSimulator(Standby, 150, time.Minute, clock.now)
	r := pzem.Scale(sim.registers(), 0)
	assert.Less(t, r.Current, 0.2)
	assert.Greater(t, r.Power, 5.0)
}

func TestHandleReadInput(t *testing.T) {
	clock := &stepClock{t: time.Unix(0, 0), step: time.Second}
	sim := newSimulator(Cycling, 150, time.Minute, clock.now)

	out, exc := sim.handleReadInput(nil, &mbserver.RTUFrame{Address: 1, Function: 4, Data: []byte{0x00, 0x00, 0x00, 0x01}})
	require.Equal(t, &mbserver.Success, exc)
	require.Len(t, out, 3)
	assert.Equal(t, byte(2), out[0])
	assert.InDelta(t, 2300, float64(binary.BigEndian.Uint16(out[1:])), 20)

	out, exc = sim.handleReadInput(nil, &mbserver.RTUFrame{Function: 4, Data: []byte{0x00, 0x00, 0x00, 0x07}})
	require.Equal(t, &mbserver.Success, exc)
	assert.Len(t, out, 15)

	_, exc = sim.handleReadInput(nil, &mbserver.RTUFrame{Function: 4, Data: []byte{0x00, 0x06, 0x00, 0x02}})
	assert.Equal(t, &mbserver.IllegalDataAddress, exc)
	_, exc = sim.handleReadInput(nil, &mbserver.RTUFrame{Function: 4, Data: []byte{0x00}})
	assert.Equal(t, &mbserver.IllegalDataValue, exc)
}
