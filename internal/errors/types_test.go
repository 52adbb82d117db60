package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"valve-gateway/internal/logger"
)

// TestConnectivityErrorMatchesSentinel tests errors.Is through the typed wrapper
func TestConnectivityErrorMatchesSentinel(t *testing.T) {
	err := NewConnectivityError("send_command", "OPEN")

	if !errors.Is(err, ErrNotConnected) {
		t.Error("Expected ConnectivityError to match ErrNotConnected")
	}
	if IsNoResponse(err) {
		t.Error("ConnectivityError must not match ErrNoResponse")
	}
	if !strings.Contains(err.Error(), "OPEN") {
		t.Errorf("Expected command name in message, got '%s'", err.Error())
	}
}

// TestNoResponseErrorWrapped tests that wrapping keeps the error distinguishable
func TestNoResponseErrorWrapped(t *testing.T) {
	err := fmt.Errorf("open valve: %w", NewNoResponseError("OPEN", 3*time.Second))

	if !IsNoResponse(err) {
		t.Error("Expected wrapped NoResponseError to match ErrNoResponse")
	}
	if IsNotConnected(err) {
		t.Error("NoResponseError must not match ErrNotConnected")
	}

	var nr *NoResponseError
	if !errors.As(err, &nr) {
		t.Fatal("Expected errors.As to find NoResponseError")
	}
	if nr.Timeout != 3*time.Second {
		t.Errorf("Expected timeout 3s, got %s", nr.Timeout)
	}
}

// TestErrorUnwrapping tests error unwrapping
func TestErrorUnwrapping(t *testing.T) {
	baseErr := fmt.Errorf("input/output error")
	transportErr := NewTransportError("read", baseErr, "/dev/ttyACM0")

	if errors.Unwrap(transportErr) != baseErr {
		t.Error("Expected to unwrap to base error")
	}
}

// TestErrorSeverity tests error severity levels
func TestErrorSeverity(t *testing.T) {
	tests := []struct {
		name string
		got  ErrorSeverity
		want ErrorSeverity
	}{
		{"transport", NewTransportError("read", fmt.Errorf("x"), "p").Severity, SeverityError},
		{"parse", NewParseError(fmt.Errorf("x"), "TELEMETRY:{").Severity, SeverityWarning},
		{"delivery", NewDeliveryError(fmt.Errorf("x"), "sub").Severity, SeverityWarning},
		{"config", NewConfigError("load", fmt.Errorf("x"), "device.port").Severity, SeverityCritical},
		{"validation", NewValidationError("f", 1, 2).Severity, SeverityWarning},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, tt.got)
		}
	}
}

// TestErrorCodes tests diagnostic error codes
func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, CodeOK},
		{NewConnectivityError("op", "OPEN"), CodeConnectivity},
		{NewNoResponseError("OPEN", time.Second), CodeNoResponse},
		{NewParseError(fmt.Errorf("x"), ""), CodeParse},
		{NewTransportError("read", fmt.Errorf("x"), ""), CodeTransport},
		{NewDeliveryError(fmt.Errorf("x"), "s"), CodeDelivery},
		{NewMQTTError("connect", fmt.Errorf("x"), "localhost"), CodeMQTT},
		{NewStoreError("insert", fmt.Errorf("x"), "telemetry"), CodeStore},
		{NewConfigError("load", fmt.Errorf("x"), "f"), CodeConfig},
		{fmt.Errorf("plain"), CodeGeneric},
	}

	for _, tt := range tests {
		if got := GetDiagnosticCode(tt.err); got != tt.want {
			t.Errorf("GetDiagnosticCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// TestIsRecoverable tests recoverability classification
func TestIsRecoverable(t *testing.T) {
	if IsRecoverable(NewConfigError("load", fmt.Errorf("x"), "f")) {
		t.Error("Config errors must not be recoverable")
	}
	if !IsRecoverable(NewConnectivityError("op", "OPEN")) {
		t.Error("Connectivity errors should be recoverable")
	}
	critical := &BridgeError{Op: "boot", Severity: SeverityCritical}
	if IsRecoverable(critical) {
		t.Error("Critical bridge errors must not be recoverable")
	}
}

type recordingPublisher struct {
	codes    []int
	messages []string
}

func (p *recordingPublisher) PublishDiagnostic(ctx context.Context, code int, message string) error {
	p.codes = append(p.codes, code)
	p.messages = append(p.messages, message)
	return nil
}

// TestHandlerPublishesDiagnostics tests the handler logs and publishes
func TestHandlerPublishesDiagnostics(t *testing.T) {
	pub := &recordingPublisher{}
	log := logger.NewMockLogger()
	h := NewErrorHandler(pub).WithLogger(log)

	h.Handle(context.Background(), NewNoResponseError("CLOSE", 3*time.Second))
	h.Handle(context.Background(), NewParseError(fmt.Errorf("bad json"), "TELEMETRY:{bad json}"))
	h.Handle(context.Background(), nil)

	if len(pub.codes) != 1 || pub.codes[0] != CodeNoResponse {
		t.Fatalf("Expected one no-response diagnostic, got %v", pub.codes)
	}
	if !strings.Contains(pub.messages[0], "CLOSE") {
		t.Errorf("Expected command in diagnostic, got '%s'", pub.messages[0])
	}
	if !log.HasErrorMessage() || !log.HasWarnMessage() {
		t.Error("Expected an error and a warning to be logged")
	}
}
