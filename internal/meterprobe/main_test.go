package meterprobe

import (
	"bytes"
	"testing"

	"github.com/TheCacophonyProject/energy-audit/energy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	a, err := parseAddress("0x02")
	require.NoError(t, err)
	assert.Equal(t, byte(0x02), a)

	for _, bad := range []string{"2", "0x", "0x00", "0xf8", "zz"} {
		_, err := parseAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestPrintReading(t *testing.T) {
	var out bytes.Buffer
	printReading(&out, energy.Reading{Voltage: 230, Current: 1.5, Power: 310.5, Energy: 66.036, Frequency: 50, PowerFactor: 0.9})
	assert.Contains(t, out.String(), "Energy:       66.036 kWh")
	assert.Contains(t, out.String(), "Current:      1.500 A")
}
