package telemetry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	p := Packet{ID: "node-3", Current: 1.25, Power: 243.75, PowerFactor: 0.85, Timestamp: 120500}
	data, err := Encode(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"node-3","i":1.25,"p":243.75,"pf":0.85,"t":120500}`, string(data))

	decoded, err := Decode(data, DefaultNominal())
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
}

func TestEncodeRejects(t *testing.T) {
	_, err := Encode(Packet{ID: "  "})
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = Encode(Packet{ID: strings.Repeat("x", MaxPacketSize)})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDecodeDefaults(t *testing.T) {
	nominal := DefaultNominal()
	p, err := Decode([]byte(`{"id":"7"}`), nominal)
	require.NoError(t, err)
	assert.Equal(t, Packet{ID: "7", PowerFactor: 0.85}, p)

	p, err = Decode([]byte(`{"id":"7","i":0.4,"p":60,"pf":null}`), nominal)
	require.NoError(t, err)
	assert.Equal(t, 0.85, p.PowerFactor)
	assert.Equal(t, 0.4, p.Current)

	p, err = Decode([]byte(`{"id":"7","pf":0}`), nominal)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.PowerFactor)
}

func TestDecodeMalformed(t *testing.T) {
	inputs := []string{
		``,
		`{`,
		`not json`,
		`[1,2,3]`,
		`{"id":"7","i":"lots"}`,
		`{"id":7}`,
		`{"id":"7","t":1.5}`,
		"\x00\xff\x10",
	}
	for _, in := range inputs {
		_, err := Decode([]byte(in), DefaultNominal())
		assert.ErrorIs(t, err, ErrMalformed, "input %q", in)
	}
}

func TestDecodeMissingID(t *testing.T) {
	for _, in := range []string{`{}`, `{"id":""}`, `{"id":null,"i":1}`, `{"i":1,"p":2}`} {
		_, err := Decode([]byte(in), DefaultNominal())
		assert.ErrorIs(t, err, ErrMissingID, "input %q", in)
	}
}

func TestDecodeTooLarge(t *testing.T) {
	data := `{"id":"` + strings.Repeat("a", MaxPacketSize) + `"}`
	_, err := Decode([]byte(data), DefaultNominal())
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestPacketReading(t *testing.T) {
	p := Packet{ID: "7", Current: 2, Power: 391, PowerFactor: 0.85, Timestamp: 99}
	r := p.Reading(DefaultNominal(), 5000)
	assert.Equal(t, 230.0, r.Voltage)
	assert.Equal(t, 50.0, r.Frequency)
	assert.Equal(t, 2.0, r.Current)
	assert.Equal(t, 391.0, r.Power)
	assert.Equal(t, 0.85, r.PowerFactor)
	assert.Equal(t, 0.0, r.Energy)
	assert.Equal(t, int64(5000), r.Timestamp)
}
