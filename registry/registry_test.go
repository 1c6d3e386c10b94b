package registry

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/TheCacophonyProject/energy-audit/energy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func power(p float64, ts int64) energy.Reading {
	return energy.Reading{Voltage: 230, Power: p, Timestamp: ts}
}

func ids(devices []Device) []string {
	out := make([]string, len(devices))
	for i, d := range devices {
		out[i] = d.ID
	}
	return out
}

func TestHistoryWraps(t *testing.T) {
	cfg := DefaultConfig()
	r := New(cfg)
	c := cfg.HistorySize
	for i := 0; i < c+5; i++ {
		require.NoError(t, r.Upsert("n1", "Node 1", Wireless, power(float64(i), int64(i)), int64(i)))
	}
	d, err := r.Get("n1")
	require.NoError(t, err)
	assert.Equal(t, c, d.Retained)
	assert.Equal(t, uint64(c+5), d.TotalInsertions)

	r.cfg.HistoryLimit = c
	h, err := r.History("n1", c)
	require.NoError(t, err)
	require.Len(t, h, c)
	assert.Equal(t, 5.0, h[0].Power, "oldest five overwritten")
	assert.Equal(t, float64(c+4), h[c-1].Power)
}

func TestRollingAverageConstant(t *testing.T) {
	r := New(DefaultConfig())
	for i := 0; i < 150; i++ {
		require.NoError(t, r.Upsert("n1", "Node 1", Wireless, power(42.5, int64(i*1000)), int64(i*1000)))
	}
	d, err := r.Get("n1")
	require.NoError(t, err)
	assert.Equal(t, 42.5, d.AvgPower)
	assert.Equal(t, 42.5, d.MaxPower)
}

func TestRollingAverageUsesRecentWindow(t *testing.T) {
	r := New(DefaultConfig())
	for i := 0; i < 50; i++ {
		require.NoError(t, r.Upsert("n1", "", Wireless, power(1000, int64(i)), int64(i)))
	}
	for i := 50; i < 150; i++ {
		require.NoError(t, r.Upsert("n1", "", Wireless, power(10, int64(i)), int64(i)))
	}
	d, err := r.Get("n1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, d.AvgPower)
	assert.Equal(t, 1000.0, d.MaxPower)

	r2 := New(DefaultConfig())
	require.NoError(t, r2.Upsert("n1", "", Wireless, power(10, 0), 0))
	require.NoError(t, r2.Upsert("n1", "", Wireless, power(20, 1), 1))
	d, err = r2.Get("n1")
	require.NoError(t, err)
	assert.Equal(t, 15.0, d.AvgPower)
}

func TestEnergyIntegration(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Upsert("n1", "", Wireless, power(1000, 0), 0))
	d, _ := r.Get("n1")
	assert.Equal(t, 0.0, d.TotalEnergy, "first entry has no reference point")

	// 1kW for an hour, then 2kW for half an hour.
	require.NoError(t, r.Upsert("n1", "", Wireless, power(1000, 3600000), 3600000))
	require.NoError(t, r.Upsert("n1", "", Wireless, power(2000, 5400000), 5400000))
	d, _ = r.Get("n1")
	assert.InDelta(t, 2.0, d.TotalEnergy, 1e-9)
}

func TestEnergyIsKilowattHours(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Upsert("n1", "", Wireless, power(1000, 0), 0))
	require.NoError(t, r.Upsert("n1", "", Wireless, power(1000, 3600000), 3600000))
	d, err := r.Get("n1")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, d.TotalEnergy, 1e-9, "1 kW for an hour")
}

func TestEnergyNotResetByWrap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 3
	r := New(cfg)
	for i := 0; i < 10; i++ {
		require.NoError(t, r.Upsert("n1", "", Wireless, power(3600, int64(i*1000)), int64(i*1000)))
	}
	d, _ := r.Get("n1")
	assert.Equal(t, 3, d.Retained)
	// 3600 W for 9 s is 9 Wh.
	assert.InDelta(t, 0.009, d.TotalEnergy, 1e-12)
}

func TestCapacityRejects(t *testing.T) {
	r := New(DefaultConfig())
	for i := 0; i < 10; i++ {
		require.NoError(t, r.Upsert(fmt.Sprint(i), "", Wireless, power(1, 0), 0))
	}
	err := r.Upsert("extra", "", Wireless, power(1, 0), 0)
	assert.ErrorIs(t, err, ErrFull)
	assert.ErrorIs(t, r.Provision("extra", "", Wired), ErrFull)
	assert.Equal(t, 10, r.Len())
	_, err = r.Get("extra")
	assert.ErrorIs(t, err, ErrNotFound)

	// Existing devices still update when full.
	require.NoError(t, r.Upsert("3", "", Wireless, power(5, 10), 10))
}

func TestKindNeverChanges(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Provision("WIRED_01", "Wired Load 1", Wired))
	err := r.Upsert("WIRED_01", "Wireless Node WIRED_01", Wireless, power(1, 0), 0)
	assert.ErrorIs(t, err, ErrKindConflict)

	require.NoError(t, r.Upsert("WIRED_01", "ignored", Wired, power(1, 0), 0))
	d, err := r.Get("WIRED_01")
	require.NoError(t, err)
	assert.Equal(t, Wired, d.Kind)
	assert.Equal(t, "Wired Load 1", d.Name)
	assert.Equal(t, uint64(1), d.TotalInsertions)
}

func TestProvisionedDeviceInactive(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Provision("WIRED_01", "Wired Load 1", Wired))
	require.NoError(t, r.Provision("WIRED_01", "Wired Load 1", Wired))
	d, err := r.Get("WIRED_01")
	require.NoError(t, err)
	assert.False(t, d.Active)
	assert.False(t, d.HasReading)
	assert.Equal(t, 0, d.Retained)
	assert.Equal(t, 1, r.Len())

	h, err := r.History("WIRED_01", 0)
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestLivenessSweep(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Upsert("n1", "", Wireless, power(1, 1000), 1000))
	d, _ := r.Get("n1")
	assert.True(t, d.Active)
	assert.Equal(t, int64(1000), d.LastSeen)

	assert.Empty(t, r.Sweep(31000), "exactly at the grace period is still active")
	assert.Equal(t, []string{"n1"}, r.Sweep(31001))
	d, _ = r.Get("n1")
	assert.False(t, d.Active)
	assert.Empty(t, r.Sweep(40000))

	require.NoError(t, r.Upsert("n1", "", Wireless, power(1, 40000), 40000))
	d, _ = r.Get("n1")
	assert.True(t, d.Active)
}

func TestListPreservesOrder(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Provision("WIRED_01", "Wired Load 1", Wired))
	require.NoError(t, r.Provision("WIRED_02", "Wired Load 2", Wired))
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.Upsert(id, "Wireless Node "+id, Wireless, power(1, 0), 0))
	}
	assert.Equal(t, []string{"WIRED_01", "WIRED_02", "a", "b", "c"}, ids(r.List()))

	require.NoError(t, r.Delete("b"))
	assert.Equal(t, []string{"WIRED_01", "WIRED_02", "a", "c"}, ids(r.List()))
}

func TestDeletePolicy(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Provision("WIRED_01", "Wired Load 1", Wired))
	assert.ErrorIs(t, r.Delete("WIRED_01"), ErrForbidden)
	assert.ErrorIs(t, r.Delete("nope"), ErrNotFound)
	assert.Equal(t, 1, r.Len())

	for i := 0; i < 9; i++ {
		require.NoError(t, r.Upsert(fmt.Sprint(i), "", Wireless, power(1, 0), 0))
	}
	assert.ErrorIs(t, r.Upsert("late", "", Wireless, power(1, 0), 0), ErrFull)
	require.NoError(t, r.Delete("4"))
	assert.NotContains(t, ids(r.List()), "4")
	require.NoError(t, r.Upsert("late", "", Wireless, power(1, 0), 0))
	assert.Equal(t, 10, r.Len())
}

func TestRename(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Upsert("n1", "Wireless Node n1", Wireless, power(1, 0), 0))

	for _, bad := range []string{"", "   ", strings.Repeat("x", 51)} {
		assert.ErrorIs(t, r.Rename("n1", bad), ErrInvalidName)
	}
	d, _ := r.Get("n1")
	assert.Equal(t, "Wireless Node n1", d.Name)
	assert.Empty(t, d.CustomName)

	require.NoError(t, r.Rename("n1", "  Fridge  "))
	d, _ = r.Get("n1")
	assert.Equal(t, "Fridge", d.Name)
	assert.Equal(t, "Wireless Node n1", d.DefaultName)
	assert.Equal(t, "Fridge", r.List()[0].Name)

	require.NoError(t, r.Rename("n1", strings.Repeat("é", 50)))
	assert.ErrorIs(t, r.Rename("missing", "Fridge"), ErrNotFound)
}

func TestHistoryQuery(t *testing.T) {
	r := New(DefaultConfig())
	for i := 0; i < 300; i++ {
		require.NoError(t, r.Upsert("n1", "", Wireless, power(float64(i), int64(i)), int64(i)))
	}
	h, err := r.History("n1", 0)
	require.NoError(t, err)
	require.Len(t, h, 200)
	assert.Equal(t, 100.0, h[0].Power)
	assert.Equal(t, 299.0, h[199].Power)

	h, err = r.History("n1", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{297, 298, 299}, []float64{h[0].Power, h[1].Power, h[2].Power})

	_, err = r.History("nope", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetFlags(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Upsert("n1", "", Wireless, power(1, 0), 0))
	prev, err := r.SetFlags("n1", Flags{StandbyWaste: true})
	require.NoError(t, err)
	assert.False(t, prev.Any())
	prev, err = r.SetFlags("n1", Flags{})
	require.NoError(t, err)
	assert.True(t, prev.StandbyWaste)
	_, err = r.SetFlags("nope", Flags{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotIsCopy(t *testing.T) {
	r := New(DefaultConfig())
	require.NoError(t, r.Upsert("n1", "", Wireless, power(1, 0), 0))
	d, _ := r.Get("n1")
	require.NoError(t, r.Upsert("n1", "", Wireless, power(99, 5), 5))
	assert.Equal(t, 1.0, d.Latest.Power)
}

func TestKindJSON(t *testing.T) {
	data, err := json.Marshal(Device{ID: "n1", Kind: Wireless})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"wireless"`)

	var d Device
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, Wireless, d.Kind)
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"solar"}`), &d))
}
