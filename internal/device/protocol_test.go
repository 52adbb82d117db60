package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/models"
)

func TestParseTelemetry(t *testing.T) {
	now := time.Unix(1700000999, 0)
	line := `TELEMETRY:{"t":1700000000,"valve":"OPEN","p1":3.2,"p2":2.9,"c_src":120,"c_dst":80,"em":0}`

	s, err := ParseTelemetry(line, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), s.Timestamp)
	assert.Equal(t, models.ValveOpen, s.Valve)
	assert.Equal(t, 3.2, s.P1)
	assert.Equal(t, 2.9, s.P2)
	assert.Equal(t, 120.0, s.CSrc)
	assert.Equal(t, 80.0, s.CDst)
	assert.False(t, s.Emergency)
	assert.Equal(t, line, s.RawLine)
}

func TestParseTelemetryDefaultsTimestamp(t *testing.T) {
	now := time.Unix(1700000999, 0)
	s, err := ParseTelemetry(`TELEMETRY:{"valve":"CLOSED","p1":0,"p2":0,"c_src":0,"c_dst":0,"em":1}`, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000999), s.Timestamp)
	assert.Equal(t, models.ValveClosed, s.Valve)
	assert.True(t, s.Emergency)
}

func TestParseTelemetryAcceptsBooleanFlag(t *testing.T) {
	s, err := ParseTelemetry(`TELEMETRY:{"valve":"CLOSED","p1":1,"p2":1,"c_src":1,"c_dst":1,"em":true}`, time.Now())
	require.NoError(t, err)
	assert.True(t, s.Emergency)
}

func TestParseTelemetryRejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"no prefix", `{"valve":"OPEN"}`},
		{"bad json", `TELEMETRY:{"valve":`},
		{"missing pressure", `TELEMETRY:{"valve":"OPEN","p2":1,"c_src":1,"c_dst":1,"em":0}`},
		{"missing em", `TELEMETRY:{"valve":"OPEN","p1":1,"p2":1,"c_src":1,"c_dst":1}`},
		{"unknown valve", `TELEMETRY:{"valve":"AJAR","p1":1,"p2":1,"c_src":1,"c_dst":1,"em":0}`},
		{"bad flag", `TELEMETRY:{"valve":"OPEN","p1":1,"p2":1,"c_src":1,"c_dst":1,"em":"yes"}`},
		{"timestamp beyond int64", `TELEMETRY:{"t":1e30,"valve":"OPEN","p1":1,"p2":1,"c_src":1,"c_dst":1,"em":0}`},
		{"timestamp at int64 bound", `TELEMETRY:{"t":9223372036854775807,"valve":"OPEN","p1":1,"p2":1,"c_src":1,"c_dst":1,"em":0}`},
		{"timestamp overflows float", `TELEMETRY:{"t":1e400,"valve":"OPEN","p1":1,"p2":1,"c_src":1,"c_dst":1,"em":0}`},
		{"negative timestamp", `TELEMETRY:{"t":-5,"valve":"OPEN","p1":1,"p2":1,"c_src":1,"c_dst":1,"em":0}`},
		{"fractional timestamp", `TELEMETRY:{"t":1700000000.5,"valve":"OPEN","p1":1,"p2":1,"c_src":1,"c_dst":1,"em":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTelemetry(tt.line, time.Now())
			require.Error(t, err)
			var perr *gwerrors.ParseError
			assert.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.line, perr.Line)
		})
	}
}

func TestLineClassification(t *testing.T) {
	assert.True(t, IsTelemetry("TELEMETRY:{}"))
	assert.False(t, IsTelemetry("VALVE_OPENED"))
	assert.True(t, IsEcho("COMMAND_RECEIVED:OPEN"))
	assert.False(t, IsEcho("PONG"))
}
