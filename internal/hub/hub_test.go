package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valve-gateway/internal/metrics"
	"valve-gateway/internal/models"
)

// memorySubscriber collects messages in memory
type memorySubscriber struct {
	id    string
	fail  bool
	block bool

	mu       sync.Mutex
	messages [][]byte
}

func (s *memorySubscriber) ID() string { return s.id }

func (s *memorySubscriber) Send(ctx context.Context, msg []byte) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.fail {
		return errors.New("broken pipe")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *memorySubscriber) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, 0, len(s.messages))
	for _, m := range s.messages {
		var ev Event
		_ = json.Unmarshal(m, &ev)
		out = append(out, ev)
	}
	return out
}

func sample(ts int64) models.TelemetrySample {
	return models.TelemetrySample{Timestamp: ts, Valve: models.ValveClosed, P1: 1, P2: 1}
}

func TestPublishDropsFailedSubscriber(t *testing.T) {
	h := New(time.Second, nil)
	subs := []*memorySubscriber{{id: "a"}, {id: "b"}, {id: "c", fail: true}, {id: "d"}}
	for _, s := range subs {
		h.Register(s)
	}
	require.Equal(t, 4, h.Count())

	delivered, err := h.Publish(context.Background(), NewTelemetryEvent(sample(1)))
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	assert.Equal(t, 3, h.Count())

	for _, s := range subs {
		if s.fail {
			continue
		}
		got := s.received()
		require.Len(t, got, 1, s.id)
		assert.Equal(t, EventTelemetry, got[0].Type)
	}
}

func TestPublishSlowSubscriberTimesOut(t *testing.T) {
	h := New(50*time.Millisecond, nil)
	fast := &memorySubscriber{id: "fast"}
	slow := &memorySubscriber{id: "slow", block: true}
	h.Register(fast)
	h.Register(slow)

	start := time.Now()
	delivered, err := h.Publish(context.Background(), NewTelemetryEvent(sample(1)))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 1, h.Count())
	assert.Len(t, fast.received(), 1)
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	h := New(time.Second, nil)
	a := &memorySubscriber{id: "a"}
	b := &memorySubscriber{id: "b"}
	h.Register(a)
	h.Register(b)

	for i := int64(1); i <= 20; i++ {
		_, err := h.Publish(context.Background(), NewTelemetryEvent(sample(i)))
		require.NoError(t, err)
	}

	for _, s := range []*memorySubscriber{a, b} {
		got := s.received()
		require.Len(t, got, 20)
		for i, ev := range got {
			data := ev.Data.(map[string]any)
			assert.Equal(t, float64(i+1), data["t"])
		}
	}
}

func TestConcurrentRegisterAndPublish(t *testing.T) {
	h := New(time.Second, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			h.Register(&memorySubscriber{id: fmt.Sprintf("s%d", i)})
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = h.Publish(context.Background(), NewTelemetryEvent(sample(int64(i))))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, h.Count())
}

func TestPublishWithoutSubscribers(t *testing.T) {
	h := New(0, nil)
	delivered, err := h.Publish(context.Background(), NewSafetyAlertEvent([]string{"x"}, sample(1), time.Now()))
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestSendToRemovesFailedSubscriber(t *testing.T) {
	h := New(time.Second, nil)
	ok := &memorySubscriber{id: "ok"}
	bad := &memorySubscriber{id: "bad", fail: true}
	h.Register(ok)
	h.Register(bad)

	require.NoError(t, h.SendTo(context.Background(), ok, ControlMessage(MessagePong, "", time.Now())))
	assert.Error(t, h.SendTo(context.Background(), bad, ControlMessage(MessageHeartbeat, "", time.Now())))
	assert.Equal(t, 1, h.Count())
}

func TestUnregisterIgnoresReplacedSubscriber(t *testing.T) {
	h := New(time.Second, nil)
	old := &memorySubscriber{id: "same"}
	replacement := &memorySubscriber{id: "same"}
	h.Register(old)
	h.Register(replacement)

	h.Unregister(old)
	assert.Equal(t, 1, h.Count())
	h.Unregister(replacement)
	assert.Equal(t, 0, h.Count())
}

func TestHubMetrics(t *testing.T) {
	m := metrics.NewPrometheusMetrics()
	h := New(time.Second, m)
	h.Register(&memorySubscriber{id: "a"})
	h.Register(&memorySubscriber{id: "b", fail: true})

	_, err := h.Publish(context.Background(), NewTelemetryEvent(sample(1)))
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				values[f.GetName()] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				values[f.GetName()] = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["valve_gateway_hub_subscribers"])
	assert.Equal(t, 1.0, values["valve_gateway_hub_delivery_failures_total"])
}

func TestEventEncoding(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := NewValveEvent(models.CommandResult{
		Command:   models.CmdOpen,
		Principal: "alice",
		Outcome:   models.OutcomeSuccess,
		Message:   "Valve opened",
		Timestamp: at,
	})

	b, err := ev.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"valve_event","data":{"command":"OPEN","user":"alice","result":"SUCCESS","message":"Valve opened","timestamp":1714564800}}`, string(b))

	s := models.TelemetrySample{Timestamp: 1714564790, Valve: models.ValveOpen, P1: 7.5, P2: 3, CSrc: 150, CDst: 250, Emergency: true}
	b, err = NewSafetyAlertEvent([]string{"Pressure sensor 1: 7.50 bar exceeds 6.00 bar"}, s, at).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"alert","data":{"type":"SAFETY_VIOLATION","violations":["Pressure sensor 1: 7.50 bar exceeds 6.00 bar"],`+
		`"telemetry":{"t":1714564790,"valve":"OPEN","p1":7.5,"p2":3,"c_src":150,"c_dst":250,"em":1},"timestamp":1714564800}}`, string(b))

	s.Emergency = false
	b, err = NewTelemetryEvent(s).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"telemetry","data":{"t":1714564790,"valve":"OPEN","p1":7.5,"p2":3,"c_src":150,"c_dst":250,"em":0}}`, string(b))

	var ctl map[string]any
	require.NoError(t, json.Unmarshal(ControlMessage(MessageAuthError, "Invalid token", at), &ctl))
	assert.Equal(t, "auth_error", ctl["type"])
	assert.Equal(t, "Invalid token", ctl["message"])
	assert.Equal(t, float64(at.Unix()), ctl["timestamp"])

	assert.JSONEq(t, `{"type":"auth_success","user":"alice","message":"Authenticated successfully","timestamp":1714564800}`,
		string(AuthSuccessMessage("alice", at)))
}
