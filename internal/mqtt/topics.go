package mqtt

import (
	"context"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const defaultTopicPrefix = "valve-gateway"

// TopicHandler publishes one kind of gateway event
type TopicHandler interface {
	PublishState(ctx context.Context, client paho.Client, data any) error
	GetTopic() string
}

// Topics holds every topic derived from the configured prefix
type Topics struct {
	Status     string
	Diagnostic string
	Telemetry  string
	Alert      string
	ValveEvent string
}

// NewTopics derives the topic set from prefix, e.g. valve-gateway/telemetry
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return Topics{
		Status:     prefix + "/status",
		Diagnostic: prefix + "/diagnostic",
		Telemetry:  prefix + "/telemetry",
		Alert:      prefix + "/alert",
		ValveEvent: prefix + "/valve_event",
	}
}

// TopicContext routes hub event types to their handlers
type TopicContext struct {
	handlers map[string]TopicHandler
}

// NewTopicContext creates a topic context with all event handlers
func NewTopicContext(topics Topics) *TopicContext {
	ctx := &TopicContext{handlers: make(map[string]TopicHandler)}

	// Telemetry is retained so late subscribers see the current state
	ctx.handlers["telemetry"] = NewEventTopic(topics.Telemetry, true)
	ctx.handlers["alert"] = NewEventTopic(topics.Alert, false)
	ctx.handlers["valve_event"] = NewEventTopic(topics.ValveEvent, false)

	return ctx
}

// GetHandler returns the handler for an event type, or nil
func (tc *TopicContext) GetHandler(eventType string) TopicHandler {
	return tc.handlers[eventType]
}

// RegisterHandler allows registering custom topic handlers
func (tc *TopicContext) RegisterHandler(eventType string, handler TopicHandler) {
	tc.handlers[eventType] = handler
}
