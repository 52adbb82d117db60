package homeassistant

import (
	"encoding/json"
	"fmt"
)

// Settings names the topics and the device the discovery entities point at
type Settings struct {
	DiscoveryPrefix string
	DeviceID        string
	DeviceName      string
	TelemetryTopic  string
	StatusTopic     string
	DiagnosticTopic string
}

// SensorConfig configuration for a Home Assistant sensor or binary_sensor
type SensorConfig struct {
	Name                   string     `json:"name"`
	UniqueID               string     `json:"unique_id"`
	StateTopic             string     `json:"state_topic"`
	UnitOfMeasurement      string     `json:"unit_of_measurement,omitempty"`
	DeviceClass            string     `json:"device_class,omitempty"`
	StateClass             string     `json:"state_class,omitempty"`
	Device                 DeviceInfo `json:"device"`
	ValueTemplate          string     `json:"value_template"`
	PayloadOn              string     `json:"payload_on,omitempty"`
	PayloadOff             string     `json:"payload_off,omitempty"`
	AvailabilityTopic      string     `json:"availability_topic"`
	PayloadAvailable       string     `json:"payload_available"`
	PayloadNotAvailable    string     `json:"payload_not_available"`
	JSONAttributesTemplate string     `json:"json_attributes_template,omitempty"`
	EntityCategory         string     `json:"entity_category,omitempty"`
}

// DeviceInfo information about the device
type DeviceInfo struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// Entity is one discoverable component
type Entity struct {
	Component string // sensor or binary_sensor
	ObjectID  string
	Config    SensorConfig
}

// Message is a retained discovery config ready to publish
type Message struct {
	Topic   string
	Payload []byte
}

type field struct {
	key, name, unit, deviceClass string
}

var telemetryFields = []field{
	{"p1", "Pressure 1", "bar", "pressure"},
	{"p2", "Pressure 2", "bar", "pressure"},
	{"c_src", "Source concentration", "units", ""},
	{"c_dst", "Destination concentration", "units", ""},
}

// Entities lists the valve entities: one sensor per telemetry reading, the valve
// and emergency flags as binary sensors and the diagnostic sensor
func Entities(s Settings) []Entity {
	device := DeviceInfo{
		Name:         s.DeviceName,
		Identifiers:  []string{s.DeviceID},
		Manufacturer: "Arduino",
		Model:        "Valve controller",
	}
	base := func(objectID, name string) SensorConfig {
		return SensorConfig{
			Name:                name,
			UniqueID:            fmt.Sprintf("%s_%s", s.DeviceID, objectID),
			StateTopic:          s.TelemetryTopic,
			Device:              device,
			AvailabilityTopic:   s.StatusTopic,
			PayloadAvailable:    "online",
			PayloadNotAvailable: "offline",
		}
	}

	entities := make([]Entity, 0, len(telemetryFields)+3)
	for _, f := range telemetryFields {
		cfg := base(f.key, f.name)
		cfg.UnitOfMeasurement = f.unit
		cfg.DeviceClass = f.deviceClass
		cfg.StateClass = "measurement"
		cfg.ValueTemplate = fmt.Sprintf("{{ value_json.%s }}", f.key)
		entities = append(entities, Entity{Component: "sensor", ObjectID: f.key, Config: cfg})
	}

	valve := base("valve", "Valve")
	valve.DeviceClass = "opening"
	valve.ValueTemplate = "{{ value_json.valve }}"
	valve.PayloadOn = "OPEN"
	valve.PayloadOff = "CLOSED"
	entities = append(entities, Entity{Component: "binary_sensor", ObjectID: "valve", Config: valve})

	emergency := base("emergency", "Emergency")
	emergency.DeviceClass = "problem"
	emergency.ValueTemplate = "{{ 'ON' if value_json.em else 'OFF' }}"
	emergency.PayloadOn = "ON"
	emergency.PayloadOff = "OFF"
	entities = append(entities, Entity{Component: "binary_sensor", ObjectID: "emergency", Config: emergency})

	diag := base("diagnostic", "Diagnostic")
	diag.StateTopic = s.DiagnosticTopic
	diag.DeviceClass = "enum"
	diag.ValueTemplate = "{{ value_json.message }}"
	diag.JSONAttributesTemplate = "{{ value_json | tojson }}"
	diag.EntityCategory = "diagnostic"
	entities = append(entities, Entity{Component: "sensor", ObjectID: "diagnostic", Config: diag})

	return entities
}

// Messages renders the discovery configs, or nothing when discovery is disabled
func Messages(s Settings) ([]Message, error) {
	if s.DiscoveryPrefix == "" {
		return nil, nil
	}

	entities := Entities(s)
	out := make([]Message, 0, len(entities))
	for _, e := range entities {
		payload, err := json.Marshal(e.Config)
		if err != nil {
			return nil, fmt.Errorf("error serializing %s configuration: %w", e.ObjectID, err)
		}
		out = append(out, Message{
			Topic:   fmt.Sprintf("%s/%s/%s_%s/config", s.DiscoveryPrefix, e.Component, s.DeviceID, e.ObjectID),
			Payload: payload,
		})
	}
	return out, nil
}
