package waste

import (
	"testing"

	"github.com/TheCacophonyProject/energy-audit/energy"
	"github.com/TheCacophonyProject/energy-audit/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readings(powers ...float64) []energy.Reading {
	out := make([]energy.Reading, len(powers))
	for i, p := range powers {
		out[i] = energy.Reading{Power: p, Timestamp: int64(i * 2000)}
	}
	return out
}

func repeat(p float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func TestStandbyWasteBoundaries(t *testing.T) {
	th := DefaultThresholds()
	assert.True(t, IsStandbyWaste(energy.Reading{Current: 0.1, Power: 6}, th))
	assert.False(t, IsStandbyWaste(energy.Reading{Current: 0.2, Power: 6}, th), "current at threshold")
	assert.False(t, IsStandbyWaste(energy.Reading{Current: 0.1, Power: 5}, th), "power at threshold")
	assert.False(t, IsStandbyWaste(energy.Reading{}, th))
}

func TestEfficiencyBoundaries(t *testing.T) {
	th := DefaultThresholds()
	assert.True(t, IsEfficiencyIssue(energy.Reading{PowerFactor: 0.69}, th))
	assert.False(t, IsEfficiencyIssue(energy.Reading{PowerFactor: 0.7}, th), "pf at threshold")
	assert.False(t, IsEfficiencyIssue(energy.Reading{PowerFactor: 0}, th), "pf unknown")
	assert.False(t, IsEfficiencyIssue(energy.Reading{PowerFactor: 0.95}, th))
}

func TestUsageAnomaly(t *testing.T) {
	th := DefaultThresholds()
	assert.False(t, IsUsageAnomaly(readings(append(repeat(50, 9), 0)...), th), "90% on")
	assert.True(t, IsUsageAnomaly(readings(repeat(50, 10)...), th), "100% on")
	assert.False(t, IsUsageAnomaly(readings(repeat(50, 9)...), th), "too little history")
	assert.False(t, IsUsageAnomaly(nil, th))
	assert.False(t, IsUsageAnomaly(readings(repeat(1.0, 20)...), th), "1W is not on")

	// 95 of 100 is exactly the threshold.
	assert.True(t, IsUsageAnomaly(readings(append(repeat(0, 5), repeat(50, 95)...)...), th))
	assert.False(t, IsUsageAnomaly(readings(append(repeat(0, 6), repeat(50, 94)...)...), th))
}

func TestUsageAnomalyUsesRecentWindow(t *testing.T) {
	th := DefaultThresholds()
	// An off period that has left the window no longer counts.
	history := readings(append(repeat(0, 50), repeat(50, 100)...)...)
	assert.True(t, IsUsageAnomaly(history, th))

	history = readings(append(repeat(50, 100), repeat(0, 50)...)...)
	assert.False(t, IsUsageAnomaly(history, th))
}

func TestSummary(t *testing.T) {
	latest := energy.Reading{Power: 6.5, PowerFactor: 0.55}
	assert.Equal(t, "No waste detected", Summary(registry.Flags{}, latest))
	assert.Equal(t,
		"Standby waste detected: 6.50W consumed at low current.\n"+
			"Low power factor (0.55): Efficiency issue detected.\n"+
			"Usage anomaly: Device appears to be running 24/7.",
		Summary(registry.Flags{StandbyWaste: true, UsageAnomaly: true, EfficiencyIssue: true}, latest))
	assert.Equal(t, "Usage anomaly: Device appears to be running 24/7.",
		Summary(registry.Flags{UsageAnomaly: true}, latest))
}

func TestSweepRaisesOnce(t *testing.T) {
	reg := registry.New(registry.DefaultConfig())
	require.NoError(t, reg.Provision("WIRED_01", "Wired Load 1", registry.Wired))
	standby := energy.Reading{Current: 0.05, Power: 8, PowerFactor: 0.9}
	require.NoError(t, reg.Upsert("n1", "Wireless Node n1", registry.Wireless, standby, 0))

	changes := Sweep(reg, DefaultThresholds())
	require.Len(t, changes, 1)
	assert.Equal(t, "n1", changes[0].Device.ID)
	assert.Equal(t, registry.Flags{StandbyWaste: true}, changes[0].Raised)

	d, err := reg.Get("n1")
	require.NoError(t, err)
	assert.True(t, d.StandbyWaste)
	assert.False(t, d.EfficiencyIssue)

	assert.Empty(t, Sweep(reg, DefaultThresholds()), "flag already raised")

	require.NoError(t, reg.Upsert("n1", "", registry.Wireless, energy.Reading{Current: 2, Power: 400, PowerFactor: 0.9}, 2000))
	assert.Empty(t, Sweep(reg, DefaultThresholds()))
	d, _ = reg.Get("n1")
	assert.False(t, d.Any())

	wired, _ := reg.Get("WIRED_01")
	assert.False(t, wired.Any())
}
