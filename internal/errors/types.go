package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorSeverity defines the severity level of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Diagnostic codes published alongside errors
const (
	CodeOK           = 0
	CodeConfig       = 1
	CodeMQTT         = 4
	CodeValidation   = 5
	CodeStore        = 6
	CodeConnectivity = 10
	CodeNoResponse   = 11
	CodeParse        = 12
	CodeTransport    = 13
	CodeDelivery     = 14
	CodeGeneric      = 99
)

// Sentinel causes, matchable with errors.Is through every typed error below
var (
	ErrNotConnected = stderrors.New("device not connected")
	ErrNoResponse   = stderrors.New("no response from device")
)

// BridgeError is the base error type for all gateway errors
type BridgeError struct {
	Op       string        // Operation that failed
	Err      error         // Underlying error
	Severity ErrorSeverity // Error severity
	Code     int           // Diagnostic code
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Severity, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Severity, e.Op)
}

// Unwrap returns the underlying error
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// ConnectivityError is returned when a command is issued while the device link is down.
// No device interaction was attempted.
type ConnectivityError struct {
	BridgeError
	Command string
}

// NewConnectivityError creates a new connectivity error
func NewConnectivityError(op string, command string) *ConnectivityError {
	return &ConnectivityError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      ErrNotConnected,
			Severity: SeverityError,
			Code:     CodeConnectivity,
		},
		Command: command,
	}
}

// Error implements the error interface
func (e *ConnectivityError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("[%s] %s %s: %v", e.Severity, e.Op, e.Command, e.Err)
	}
	return e.BridgeError.Error()
}

// NoResponseError is returned when a command was written but no line arrived before the timeout
type NoResponseError struct {
	BridgeError
	Command string
	Timeout time.Duration
}

// NewNoResponseError creates a new no-response error
func NewNoResponseError(command string, timeout time.Duration) *NoResponseError {
	return &NoResponseError{
		BridgeError: BridgeError{
			Op:       "send_command",
			Err:      ErrNoResponse,
			Severity: SeverityError,
			Code:     CodeNoResponse,
		},
		Command: command,
		Timeout: timeout,
	}
}

// Error implements the error interface
func (e *NoResponseError) Error() string {
	return fmt.Sprintf("[%s] %s %s: %v after %s", e.Severity, e.Op, e.Command, e.Err, e.Timeout)
}

// ParseError marks a malformed telemetry line. The sample is dropped.
type ParseError struct {
	BridgeError
	Line string
}

// NewParseError creates a new parse error
func NewParseError(err error, line string) *ParseError {
	return &ParseError{
		BridgeError: BridgeError{
			Op:       "parse_telemetry",
			Err:      err,
			Severity: SeverityWarning,
			Code:     CodeParse,
		},
		Line: line,
	}
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("[%s] %s %q: %v", e.Severity, e.Op, e.Line, e.Err)
}

// TransportError is an I/O failure on the serial transport
type TransportError struct {
	BridgeError
	Port string
}

// NewTransportError creates a new transport error
func NewTransportError(op string, err error, port string) *TransportError {
	return &TransportError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodeTransport,
		},
		Port: port,
	}
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("[%s] Port '%s': %s: %v", e.Severity, e.Port, e.Op, e.Err)
	}
	return e.BridgeError.Error()
}

// DeliveryError is a failed send to a single subscriber
type DeliveryError struct {
	BridgeError
	SubscriberID string
}

// NewDeliveryError creates a new delivery error
func NewDeliveryError(err error, subscriberID string) *DeliveryError {
	return &DeliveryError{
		BridgeError: BridgeError{
			Op:       "deliver",
			Err:      err,
			Severity: SeverityWarning,
			Code:     CodeDelivery,
		},
		SubscriberID: subscriberID,
	}
}

// Error implements the error interface
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("[%s] Subscriber %s: %s: %v", e.Severity, e.SubscriberID, e.Op, e.Err)
}

// MQTTError represents errors from MQTT operations
type MQTTError struct {
	BridgeError
	Broker string
	Topic  string
}

// NewMQTTError creates a new MQTT error
func NewMQTTError(op string, err error, broker string) *MQTTError {
	return &MQTTError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodeMQTT,
		},
		Broker: broker,
	}
}

// WithTopic records the topic involved
func (e *MQTTError) WithTopic(topic string) *MQTTError {
	e.Topic = topic
	return e
}

// Error implements the error interface
func (e *MQTTError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("[%s] MQTT broker '%s' (topic: %s): %s: %v",
			e.Severity, e.Broker, e.Topic, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] MQTT broker '%s': %s: %v",
		e.Severity, e.Broker, e.Op, e.Err)
}

// StoreError represents errors from the persistence collaborator
type StoreError struct {
	BridgeError
	Table string
}

// NewStoreError creates a new store error
func NewStoreError(op string, err error, table string) *StoreError {
	return &StoreError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     CodeStore,
		},
		Table: table,
	}
}

// Error implements the error interface
func (e *StoreError) Error() string {
	return fmt.Sprintf("[%s] Store table '%s': %s: %v", e.Severity, e.Table, e.Op, e.Err)
}

// ConfigError represents configuration errors
type ConfigError struct {
	BridgeError
	Field string
}

// NewConfigError creates a new configuration error
func NewConfigError(op string, err error, field string) *ConfigError {
	return &ConfigError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityCritical,
			Code:     CodeConfig,
		},
		Field: field,
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] Configuration field '%s': %s: %v",
			e.Severity, e.Field, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] Configuration: %s: %v",
		e.Severity, e.Op, e.Err)
}

// ValidationError represents validation errors
type ValidationError struct {
	BridgeError
	Field    string
	Expected interface{}
	Actual   interface{}
}

// NewValidationError creates a new validation error
func NewValidationError(field string, expected, actual interface{}) *ValidationError {
	return &ValidationError{
		BridgeError: BridgeError{
			Op:       "validation",
			Err:      fmt.Errorf("validation failed"),
			Severity: SeverityWarning,
			Code:     CodeValidation,
		},
		Field:    field,
		Expected: expected,
		Actual:   actual,
	}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] Field '%s': expected %v, got %v",
		e.Severity, e.Field, e.Expected, e.Actual)
}

// IsNotConnected reports whether err carries a connectivity failure
func IsNotConnected(err error) bool {
	return stderrors.Is(err, ErrNotConnected)
}

// IsNoResponse reports whether err carries a command timeout
func IsNoResponse(err error) bool {
	return stderrors.Is(err, ErrNoResponse)
}
