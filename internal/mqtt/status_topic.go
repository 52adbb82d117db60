package mqtt

import (
	"context"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"valve-gateway/internal/logger"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// StatusTopic handles gateway availability (online/offline), retained
type StatusTopic struct {
	topic string
}

// NewStatusTopic creates a new status topic handler
func NewStatusTopic(topic string) *StatusTopic {
	return &StatusTopic{topic: topic}
}

// PublishState publishes online for true and offline for false
func (s *StatusTopic) PublishState(ctx context.Context, client paho.Client, data any) error {
	online, ok := data.(bool)
	if !ok {
		return fmt.Errorf("invalid status data %T (expected bool)", data)
	}
	if online {
		return s.PublishOnline(ctx, client)
	}
	return s.PublishOffline(ctx, client)
}

// GetTopic returns the status topic
func (s *StatusTopic) GetTopic() string {
	return s.topic
}

// PublishOnline publishes online status
func (s *StatusTopic) PublishOnline(ctx context.Context, client paho.Client) error {
	if !client.IsConnected() {
		return fmt.Errorf("client not connected")
	}
	if err := publish(ctx, client, s.topic, true, StatusOnline); err != nil {
		return err
	}
	logger.LogDebug("📡 Published gateway status: online")
	return nil
}

// PublishOffline publishes offline status
func (s *StatusTopic) PublishOffline(ctx context.Context, client paho.Client) error {
	if !client.IsConnected() {
		return fmt.Errorf("client not connected")
	}
	if err := publish(ctx, client, s.topic, true, StatusOffline); err != nil {
		return err
	}
	logger.LogDebug("📡 Published gateway status: offline")
	return nil
}
