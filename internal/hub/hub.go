package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/logger"
	"valve-gateway/internal/metrics"
)

const defaultSendTimeout = 5 * time.Second

// Subscriber is one client message stream.
// Send must be safe for concurrent use and return once ctx is done.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, msg []byte) error
}

// Hub fans events out to every registered subscriber.
// A subscriber whose send fails is removed after the sweep; the others still receive the event.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber

	// publishMu keeps sweeps in publish order for each subscriber
	publishMu sync.Mutex

	sendTimeout time.Duration
	metrics     metrics.MetricsCollector
}

// New creates an empty hub. sendTimeout <= 0 uses 5s.
func New(sendTimeout time.Duration, m metrics.MetricsCollector) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	if m == nil {
		m = metrics.NewNullMetrics()
	}
	return &Hub{
		subscribers: make(map[string]Subscriber),
		sendTimeout: sendTimeout,
		metrics:     m,
	}
}

// Register adds a subscriber, replacing any with the same ID
func (h *Hub) Register(sub Subscriber) {
	h.mu.Lock()
	h.subscribers[sub.ID()] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	h.metrics.SetSubscribers(count)
	logger.LogInfo("🔗 Subscriber %s connected (%d total)", sub.ID(), count)
}

// Unregister removes a subscriber. Unknown subscribers are ignored.
func (h *Hub) Unregister(sub Subscriber) {
	h.mu.Lock()
	current, ok := h.subscribers[sub.ID()]
	if ok && current == sub {
		delete(h.subscribers, sub.ID())
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		h.metrics.SetSubscribers(count)
		logger.LogInfo("🔌 Subscriber %s disconnected (%d total)", sub.ID(), count)
	}
}

// Count returns the number of registered subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish delivers ev to every subscriber registered when the sweep starts.
// It returns the number of successful deliveries. Delivery failures are not errors.
func (h *Hub) Publish(ctx context.Context, ev Event) (int, error) {
	payload, err := ev.Encode()
	if err != nil {
		return 0, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}

	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	start := time.Now()
	snapshot := h.snapshot()
	if len(snapshot) == 0 {
		return 0, nil
	}

	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		failed []Subscriber
	)
	for _, sub := range snapshot {
		wg.Add(1)
		go func(sub Subscriber) {
			defer wg.Done()
			if err := h.send(ctx, sub, payload); err != nil {
				failMu.Lock()
				failed = append(failed, sub)
				failMu.Unlock()
			}
		}(sub)
	}
	wg.Wait()

	for _, sub := range failed {
		h.Unregister(sub)
	}

	h.metrics.ObserveBroadcastDuration(ev.Type, time.Since(start))
	logger.LogTrace("Published %s to %d/%d subscribers", ev.Type, len(snapshot)-len(failed), len(snapshot))
	return len(snapshot) - len(failed), nil
}

// SendTo delivers a unicast message. A failed subscriber is removed.
func (h *Hub) SendTo(ctx context.Context, sub Subscriber, msg []byte) error {
	if err := h.send(ctx, sub, msg); err != nil {
		h.Unregister(sub)
		return err
	}
	return nil
}

func (h *Hub) send(ctx context.Context, sub Subscriber, msg []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()

	if err := sub.Send(sendCtx, msg); err != nil {
		derr := gwerrors.NewDeliveryError(err, sub.ID())
		h.metrics.IncDeliveryFailures()
		logger.LogDebug("%v", derr)
		return derr
	}
	return nil
}

func (h *Hub) snapshot() []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make([]Subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	return subs
}
