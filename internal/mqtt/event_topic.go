package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// EventTopic publishes the data of one event type as JSON
type EventTopic struct {
	topic    string
	retained bool
}

// NewEventTopic creates a handler for topic
func NewEventTopic(topic string, retained bool) *EventTopic {
	return &EventTopic{topic: topic, retained: retained}
}

// PublishState publishes data to the topic
func (e *EventTopic) PublishState(ctx context.Context, client paho.Client, data any) error {
	if !client.IsConnected() {
		return fmt.Errorf("client not connected")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("error marshaling %s payload: %w", e.topic, err)
	}

	return publish(ctx, client, e.topic, e.retained, payload)
}

// GetTopic returns the MQTT topic
func (e *EventTopic) GetTopic() string {
	return e.topic
}

// publish waits for the token or ctx, whichever comes first
func publish(ctx context.Context, client paho.Client, topic string, retained bool, payload any) error {
	token := client.Publish(topic, 0, retained, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("error publishing to %s: %w", topic, token.Error())
		}
	}
	return nil
}
