package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"valve-gateway/internal/logger"
)

// Diagnostic is the payload on the diagnostic topic
type Diagnostic struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// DiagnosticTopic handles diagnostic publishing
type DiagnosticTopic struct {
	topic string
	now   func() time.Time
}

// NewDiagnosticTopic creates a new diagnostic topic handler
func NewDiagnosticTopic(topic string) *DiagnosticTopic {
	return &DiagnosticTopic{topic: topic, now: time.Now}
}

// PublishState publishes a Diagnostic value
func (d *DiagnosticTopic) PublishState(ctx context.Context, client paho.Client, data any) error {
	diag, ok := data.(Diagnostic)
	if !ok {
		return fmt.Errorf("invalid diagnostic data %T", data)
	}
	return d.PublishDiagnostic(ctx, client, diag.Code, diag.Message)
}

// GetTopic returns the diagnostic topic
func (d *DiagnosticTopic) GetTopic() string {
	return d.topic
}

// ValidateData checks a diagnostic before it is published
func (d *DiagnosticTopic) ValidateData(code int, message string) error {
	if code < 0 || code > 9999 {
		return fmt.Errorf("invalid diagnostic code: %d", code)
	}
	if message == "" {
		return fmt.Errorf("diagnostic message is empty")
	}
	return nil
}

// PublishDiagnostic publishes diagnostic information with code and message
func (d *DiagnosticTopic) PublishDiagnostic(ctx context.Context, client paho.Client, code int, message string) error {
	if !client.IsConnected() {
		return fmt.Errorf("client not connected")
	}
	if err := d.ValidateData(code, message); err != nil {
		return fmt.Errorf("invalid diagnostic data: %w", err)
	}

	payload, err := json.Marshal(Diagnostic{
		Code:      code,
		Message:   message,
		Timestamp: d.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("error marshaling diagnostic: %w", err)
	}

	if err := publish(ctx, client, d.topic, false, payload); err != nil {
		return err
	}

	logger.LogDebug("🔧 Published diagnostic: [%d] %s", code, message)
	return nil
}
