package errors

import (
	"context"
	"fmt"

	"valve-gateway/internal/logger"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	diagnosticPublisher DiagnosticPublisher
	log                 logger.ILogger
}

// DiagnosticPublisher interface for publishing diagnostics
type DiagnosticPublisher interface {
	PublishDiagnostic(ctx context.Context, code int, message string) error
}

// NewErrorHandler creates a new error handler. publisher may be nil.
func NewErrorHandler(publisher DiagnosticPublisher) *ErrorHandler {
	return &ErrorHandler{
		diagnosticPublisher: publisher,
		log:                 logger.NewStandardLogger(),
	}
}

// WithLogger replaces the logger used by the handler
func (h *ErrorHandler) WithLogger(l logger.ILogger) *ErrorHandler {
	h.log = l
	return h
}

// Handle processes an error with appropriate logging and diagnostics
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	switch e := err.(type) {
	case *ConnectivityError:
		h.report(ctx, "Device", &e.BridgeError, e.Error(), fmt.Sprintf("Command %s rejected: device not connected", e.Command))
	case *NoResponseError:
		h.report(ctx, "Device", &e.BridgeError, e.Error(), fmt.Sprintf("Command %s timed out after %s", e.Command, e.Timeout))
	case *TransportError:
		h.report(ctx, "Transport", &e.BridgeError, e.Error(), fmt.Sprintf("Port '%s': %s", e.Port, e.Op))
	case *ParseError:
		// malformed lines are frequent on a noisy link, keep them off the diagnostic topic
		h.log.LogWarn("⚠️ Telemetry Parse Warning: %s", e.Error())
	case *DeliveryError:
		h.log.LogDebug("Subscriber delivery failed: %s", e.Error())
	case *MQTTError:
		h.report(ctx, "MQTT", &e.BridgeError, e.Error(), fmt.Sprintf("Broker '%s': %s", e.Broker, e.Op))
	case *StoreError:
		h.report(ctx, "Store", &e.BridgeError, e.Error(), fmt.Sprintf("Table '%s': %s", e.Table, e.Op))
	case *ConfigError:
		h.log.LogError("🔴 CRITICAL Configuration Error: %s", e.Error())
		h.publish(ctx, e.Code, fmt.Sprintf("Config field '%s': %s", e.Field, e.Op))
	case *ValidationError:
		h.log.LogWarn("⚠️ Validation Error: %s", e.Error())
		h.publish(ctx, e.Code, fmt.Sprintf("Validation failed for '%s'", e.Field))
	case *BridgeError:
		h.report(ctx, "", e, e.Error(), e.Op)
	default:
		h.log.LogError("❌ Untyped Error: %v", err)
		h.publish(ctx, CodeGeneric, err.Error())
	}
}

// report logs by severity then publishes a diagnostic
func (h *ErrorHandler) report(ctx context.Context, scope string, base *BridgeError, text, diagnostic string) {
	prefix := scope
	if prefix != "" {
		prefix += " "
	}

	switch base.Severity {
	case SeverityCritical:
		h.log.LogError("🔴 CRITICAL %sError: %s", prefix, text)
	case SeverityError:
		h.log.LogError("❌ %sError: %s", prefix, text)
	case SeverityWarning:
		h.log.LogWarn("⚠️ %sWarning: %s", prefix, text)
	default:
		h.log.LogInfo("ℹ️ %sInfo: %s", prefix, text)
	}

	h.publish(ctx, base.Code, diagnostic)
}

func (h *ErrorHandler) publish(ctx context.Context, code int, message string) {
	if h.diagnosticPublisher == nil {
		return
	}
	if err := h.diagnosticPublisher.PublishDiagnostic(ctx, code, message); err != nil {
		h.log.LogDebug("Failed to publish error diagnostic: %v", err)
	}
}

// IsRecoverable returns true if the error is recoverable
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}

	switch e := err.(type) {
	case *ConfigError:
		return false
	case *ConnectivityError:
		return true // the read loop reconnects on its own
	case *NoResponseError:
		return true
	case *TransportError:
		return e.Severity != SeverityCritical
	case *MQTTError:
		return e.Severity != SeverityCritical
	case *StoreError:
		return e.Severity != SeverityCritical
	case *BridgeError:
		return e.Severity != SeverityCritical
	default:
		return true
	}
}

// GetDiagnosticCode extracts the diagnostic code from an error
func GetDiagnosticCode(err error) int {
	if err == nil {
		return CodeOK
	}

	switch e := err.(type) {
	case *ConnectivityError:
		return e.Code
	case *NoResponseError:
		return e.Code
	case *ParseError:
		return e.Code
	case *TransportError:
		return e.Code
	case *DeliveryError:
		return e.Code
	case *MQTTError:
		return e.Code
	case *StoreError:
		return e.Code
	case *ConfigError:
		return e.Code
	case *ValidationError:
		return e.Code
	case *BridgeError:
		return e.Code
	default:
		return CodeGeneric
	}
}
