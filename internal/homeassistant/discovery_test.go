package homeassistant

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() Settings {
	return Settings{
		DiscoveryPrefix: "homeassistant",
		DeviceID:        "valve_gw",
		DeviceName:      "Valve Gateway",
		TelemetryTopic:  "valve/telemetry",
		StatusTopic:     "valve/status",
		DiagnosticTopic: "valve/diagnostic",
	}
}

func TestMessagesDisabledWithoutPrefix(t *testing.T) {
	s := testSettings()
	s.DiscoveryPrefix = ""

	msgs, err := Messages(s)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessagesTopics(t *testing.T) {
	msgs, err := Messages(testSettings())
	require.NoError(t, err)

	topics := make([]string, 0, len(msgs))
	for _, m := range msgs {
		topics = append(topics, m.Topic)
	}
	assert.Equal(t, []string{
		"homeassistant/sensor/valve_gw_p1/config",
		"homeassistant/sensor/valve_gw_p2/config",
		"homeassistant/sensor/valve_gw_c_src/config",
		"homeassistant/sensor/valve_gw_c_dst/config",
		"homeassistant/binary_sensor/valve_gw_valve/config",
		"homeassistant/binary_sensor/valve_gw_emergency/config",
		"homeassistant/sensor/valve_gw_diagnostic/config",
	}, topics)
}

func TestSensorConfigPayload(t *testing.T) {
	msgs, err := Messages(testSettings())
	require.NoError(t, err)

	var p1 SensorConfig
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &p1))
	assert.Equal(t, "valve_gw_p1", p1.UniqueID)
	assert.Equal(t, "valve/telemetry", p1.StateTopic)
	assert.Equal(t, "{{ value_json.p1 }}", p1.ValueTemplate)
	assert.Equal(t, "bar", p1.UnitOfMeasurement)
	assert.Equal(t, "valve/status", p1.AvailabilityTopic)
	assert.Equal(t, []string{"valve_gw"}, p1.Device.Identifiers)

	var valve SensorConfig
	require.NoError(t, json.Unmarshal(msgs[4].Payload, &valve))
	assert.Equal(t, "OPEN", valve.PayloadOn)
	assert.Equal(t, "CLOSED", valve.PayloadOff)

	var diag SensorConfig
	require.NoError(t, json.Unmarshal(msgs[6].Payload, &diag))
	assert.Equal(t, "valve/diagnostic", diag.StateTopic)
	assert.Equal(t, "diagnostic", diag.EntityCategory)
}
