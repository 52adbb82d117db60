package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"valve-gateway/internal/cache"
	"valve-gateway/internal/device"
	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/hub"
	"valve-gateway/internal/logger"
	"valve-gateway/internal/metrics"
	"valve-gateway/internal/models"
	"valve-gateway/internal/recovery"
	"valve-gateway/internal/rules"
	"valve-gateway/internal/store"
)

// ViolationType tags every emergency alert raised from telemetry
const ViolationType = models.AlertTypeSafetyViolation

const (
	msgNotConnected = "Arduino not connected"
	msgNoResponse   = "No response from Arduino"
	msgCircuitOpen  = "Device not answering, commands paused"
)

// Broadcaster is the part of the hub the coordinator publishes through
type Broadcaster interface {
	Publish(ctx context.Context, ev hub.Event) (int, error)
}

// AlertRaiser materializes alert records
type AlertRaiser interface {
	Raise(ctx context.Context, alertType, message string, metadata map[string]any) (models.Alert, error)
	RaiseEmergency(ctx context.Context, violationType, details string, sample *models.TelemetrySample) (models.Alert, error)
}

// Mirror receives a copy of every published event
type Mirror interface {
	PublishEvent(ctx context.Context, ev hub.Event) error
}

// ErrorReporter logs and publishes diagnostics for background failures
type ErrorReporter interface {
	Handle(ctx context.Context, err error)
}

// Coordinator wires telemetry and commands between the link, the hub and persistence.
// It holds no mutable state of its own.
type Coordinator struct {
	link      device.Commander
	hub       Broadcaster
	store     store.Store
	alerts    AlertRaiser
	evaluator *rules.Evaluator

	cache         cache.Cache
	mirror        Mirror
	errors        ErrorReporter
	metrics       metrics.MetricsCollector
	enforceOnOpen bool
	timeout       time.Duration
	now           func() time.Time
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithCache stores the latest sample for the open pre-check and the status page
func WithCache(c cache.Cache) Option {
	return func(co *Coordinator) { co.cache = c }
}

// WithMirror copies every event to m
func WithMirror(m Mirror) Option {
	return func(co *Coordinator) { co.mirror = m }
}

// WithErrorReporter routes background failures to r
func WithErrorReporter(r ErrorReporter) Option {
	return func(co *Coordinator) { co.errors = r }
}

// WithMetrics sets the metrics collector
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(co *Coordinator) { co.metrics = m }
}

// WithOpenPrecheck refuses OPEN locally when the cached sample fails CanOpen
func WithOpenPrecheck(enabled bool) Option {
	return func(co *Coordinator) { co.enforceOnOpen = enabled }
}

// WithCommandTimeout overrides the link's default command timeout
func WithCommandTimeout(d time.Duration) Option {
	return func(co *Coordinator) { co.timeout = d }
}

// New creates a coordinator
func New(link device.Commander, h Broadcaster, st store.Store, al AlertRaiser, ev *rules.Evaluator, opts ...Option) *Coordinator {
	c := &Coordinator{
		link:      link,
		hub:       h,
		store:     st,
		alerts:    al,
		evaluator: ev,
		cache:     cache.NewMemoryCache(),
		errors:    gwerrors.NewErrorHandler(nil),
		metrics:   metrics.NewNullMetrics(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleTelemetry persists, evaluates and broadcasts one sample.
// Failures of individual steps are reported and never stop the remaining steps.
func (c *Coordinator) HandleTelemetry(ctx context.Context, s models.TelemetrySample) {
	if err := c.store.SaveTelemetry(ctx, s); err != nil {
		c.errors.Handle(ctx, err)
	}
	if err := c.cache.SetLatest(ctx, s); err != nil {
		logger.LogDebug("Could not cache latest telemetry: %v", err)
	}

	verdict := c.evaluator.Evaluate(s)
	if !verdict.Safe {
		logger.LogWarn("🚨 Safety violation: %d check(s) failed at t=%d", len(verdict.Violations), s.Timestamp)

		for _, v := range verdict.Violations {
			a, err := c.alerts.RaiseEmergency(ctx, ViolationType, v, &s)
			if err != nil {
				c.errors.Handle(ctx, err)
				continue
			}
			logger.LogDebug("Raised alert %d: %s", a.ID, a.Message)
		}

		c.broadcast(ctx, hub.NewSafetyAlertEvent(verdict.Violations, s, c.now()))
	}

	c.broadcast(ctx, hub.NewTelemetryEvent(s))
}

// OpenValve opens the valve unless the device refuses
func (c *Coordinator) OpenValve(ctx context.Context, principal string) (*models.CommandResponse, error) {
	if c.enforceOnOpen {
		if ok, reason := c.precheckOpen(ctx); !ok {
			logger.LogWarn("OPEN refused before sending: %s", reason)
			c.record(ctx, models.CmdOpen, principal, models.OutcomeRejected, reason)
			return &models.CommandResponse{Success: false, Message: reason}, nil
		}
	}
	return c.execute(ctx, models.CmdOpen, principal)
}

// CloseValve closes the valve
func (c *Coordinator) CloseValve(ctx context.Context, principal string) (*models.CommandResponse, error) {
	return c.execute(ctx, models.CmdClose, principal)
}

// ForceOpenValve opens the valve bypassing the firmware safety checks
func (c *Coordinator) ForceOpenValve(ctx context.Context, principal string) (*models.CommandResponse, error) {
	resp, err := c.execute(ctx, models.CmdForceOpen, principal)
	if err != nil || !resp.Success {
		return resp, err
	}

	logger.LogWarn("⚠️ Valve force-opened by %s", principal)
	a, aerr := c.alerts.Raise(ctx, models.AlertTypeForceOpen,
		fmt.Sprintf("Valve force-opened by admin %s", principal),
		map[string]any{"user": principal})
	if aerr != nil {
		c.errors.Handle(ctx, aerr)
		return resp, nil
	}
	c.broadcast(ctx, hub.NewAlertEvent(a))
	return resp, nil
}

// ResetEmergency clears the firmware emergency latch
func (c *Coordinator) ResetEmergency(ctx context.Context, principal string) (*models.CommandResponse, error) {
	return c.execute(ctx, models.CmdResetEmergency, principal)
}

// EnableTestMode switches the firmware to mock sensor values
func (c *Coordinator) EnableTestMode(ctx context.Context, principal string) (*models.CommandResponse, error) {
	return c.execute(ctx, models.CmdTestModeOn, principal)
}

// DisableTestMode switches the firmware back to real sensor values
func (c *Coordinator) DisableTestMode(ctx context.Context, principal string) (*models.CommandResponse, error) {
	return c.execute(ctx, models.CmdTestModeOff, principal)
}

// Ping checks the device answers
func (c *Coordinator) Ping(ctx context.Context, principal string) (*models.CommandResponse, error) {
	return c.execute(ctx, models.CmdPing, principal)
}

func (c *Coordinator) execute(ctx context.Context, cmd models.CommandName, principal string) (*models.CommandResponse, error) {
	if !c.link.IsConnected() {
		err := gwerrors.NewConnectivityError("send_command", string(cmd))
		c.fail(ctx, cmd, principal, msgNotConnected, err)
		return nil, err
	}

	logger.LogInfo("➡️ %s requested by %s", cmd, principal)

	response, err := c.link.SendCommand(ctx, cmd, c.timeout)
	if err != nil {
		c.fail(ctx, cmd, principal, failureMessage(err), err)
		return nil, err
	}

	cl := Classify(cmd, response)
	logger.LogInfo("⬅️ %s -> %s (%q)", cmd, cl.Outcome, response)
	c.record(ctx, cmd, principal, cl.Outcome, cl.Detail)

	return &models.CommandResponse{
		Success:    cl.Success(),
		Message:    cl.Reply,
		ValveState: cl.ValveState,
	}, nil
}

func (c *Coordinator) fail(ctx context.Context, cmd models.CommandName, principal, message string, err error) {
	c.errors.Handle(ctx, err)
	c.record(ctx, cmd, principal, models.OutcomeFailed, message)
}

func failureMessage(err error) string {
	switch {
	case gwerrors.IsNotConnected(err):
		return msgNotConnected
	case gwerrors.IsNoResponse(err):
		return msgNoResponse
	case errors.Is(err, recovery.ErrCircuitOpen):
		return msgCircuitOpen
	default:
		return err.Error()
	}
}

// record persists the result and publishes a valve event regardless of outcome
func (c *Coordinator) record(ctx context.Context, cmd models.CommandName, principal string, outcome models.Outcome, message string) models.CommandResult {
	r := models.CommandResult{
		ID:        uuid.NewString(),
		Timestamp: c.now().UTC().Truncate(time.Second),
		Command:   cmd,
		Principal: principal,
		Outcome:   outcome,
		Message:   message,
	}
	c.metrics.IncCommand(string(cmd), string(outcome))

	if err := c.store.SaveCommandResult(ctx, r); err != nil {
		c.errors.Handle(ctx, err)
	}
	c.broadcast(ctx, hub.NewValveEvent(r))
	return r
}

func (c *Coordinator) precheckOpen(ctx context.Context) (bool, string) {
	latest, err := c.cache.Latest(ctx)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			logger.LogDebug("Open pre-check skipped: %v", err)
		}
		// no recent sample, leave the decision to the firmware
		return true, ""
	}
	return c.evaluator.CanOpen(latest)
}

func (c *Coordinator) broadcast(ctx context.Context, ev hub.Event) {
	if _, err := c.hub.Publish(ctx, ev); err != nil {
		logger.LogWarn("Could not broadcast %s event: %v", ev.Type, err)
	}
	if c.mirror == nil {
		return
	}
	if err := c.mirror.PublishEvent(ctx, ev); err != nil {
		c.errors.Handle(ctx, err)
	}
}
