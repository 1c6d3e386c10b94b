package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644))
	return dir
}

func TestMissingFileUsesDefaults(t *testing.T) {
	conf, err := New(t.TempDir())
	require.NoError(t, err)

	hub := DefaultHub()
	require.NoError(t, conf.Unmarshal(HubKey, &hub))
	assert.Equal(t, DefaultHub(), hub)

	meters, err := conf.Meters()
	require.NoError(t, err)
	assert.Len(t, meters, 2)
	assert.Equal(t, "WIRED_01", meters[0].ID)
	assert.Equal(t, uint8(0x02), meters[1].Address)
}

func TestOverrides(t *testing.T) {
	dir := writeConfig(t, `
[hub]
poll-interval = "500ms"
capacity = 4
allowed-nodes = ["NODE_01", "NODE_02"]

[[meters]]
id = "MAINS"
name = "Mains"
port = "/dev/ttyUSB0"
address = 7

[waste]
low-power-factor = 0.6
`)
	conf, err := New(dir)
	require.NoError(t, err)

	hub := DefaultHub()
	require.NoError(t, conf.Unmarshal(HubKey, &hub))
	assert.Equal(t, 500*time.Millisecond, hub.PollInterval)
	assert.Equal(t, 4, hub.Capacity)
	assert.Equal(t, []string{"NODE_01", "NODE_02"}, hub.AllowedNodes)
	assert.Equal(t, 60*time.Second, hub.WasteInterval, "unset keys keep defaults")

	meters, err := conf.Meters()
	require.NoError(t, err)
	require.Len(t, meters, 1)
	assert.Equal(t, Meter{ID: "MAINS", Name: "Mains", Port: "/dev/ttyUSB0", Address: 7, Baud: 9600}, meters[0])

	waste := DefaultWaste()
	require.NoError(t, conf.Unmarshal(WasteKey, &waste))
	assert.Equal(t, 0.6, waste.LowPowerFactor)
	assert.Equal(t, 0.2, waste.StandbyCurrent)

	link := DefaultLink()
	require.NoError(t, conf.Unmarshal(LinkKey, &link))
	assert.Equal(t, DefaultLink(), link)
}

func TestInvalidFile(t *testing.T) {
	_, err := New(writeConfig(t, "[hub\ncapacity = "))
	assert.Error(t, err)
}
