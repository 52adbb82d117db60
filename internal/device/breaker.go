package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/logger"
	"valve-gateway/internal/models"
	"valve-gateway/internal/recovery"
)

// Commander is the part of the link the coordinator drives
type Commander interface {
	IsConnected() bool
	SendCommand(ctx context.Context, name models.CommandName, timeout time.Duration) (string, error)
}

// BreakerLink fails commands fast after repeated timeouts.
// Only NoResponse errors count; a disconnected link is reported as such.
type BreakerLink struct {
	inner   Commander
	breaker *recovery.CircuitBreaker
}

// NewBreakerLink wraps inner with a circuit breaker
func NewBreakerLink(inner Commander, maxFailures int, timeout time.Duration, halfOpenMaxTries int) *BreakerLink {
	return &BreakerLink{
		inner: inner,
		breaker: recovery.NewCircuitBreaker(recovery.CircuitBreakerConfig{
			MaxFailures:      maxFailures,
			Timeout:          timeout,
			HalfOpenMaxTries: halfOpenMaxTries,
			IsFailure:        gwerrors.IsNoResponse,
			OnStateChange: func(from, to recovery.CircuitState) {
				logger.LogWarn("Command circuit breaker %s -> %s", from, to)
			},
		}),
	}
}

// IsConnected delegates to the wrapped link
func (b *BreakerLink) IsConnected() bool {
	return b.inner.IsConnected()
}

// SendCommand calls through the breaker
func (b *BreakerLink) SendCommand(ctx context.Context, name models.CommandName, timeout time.Duration) (string, error) {
	var resp string
	err := b.breaker.Call(func() error {
		r, err := b.inner.SendCommand(ctx, name, timeout)
		resp = r
		return err
	})
	if errors.Is(err, recovery.ErrCircuitOpen) {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return resp, err
}

// BreakerState reports the breaker state for /health
func (b *BreakerLink) BreakerState() recovery.CircuitState {
	return b.breaker.GetState()
}
