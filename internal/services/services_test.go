package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valve-gateway/internal/cache"
	"valve-gateway/internal/config"
	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/health"
)

type diagnostic struct {
	code    int
	message string
}

type fakePublisher struct {
	mu          sync.Mutex
	statusErr   error
	statuses    []bool
	diagnostics []diagnostic
}

func (p *fakePublisher) PublishStatus(_ context.Context, online bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.statusErr != nil {
		return p.statusErr
	}
	p.statuses = append(p.statuses, online)
	return nil
}

func (p *fakePublisher) PublishDiagnostic(_ context.Context, code int, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diagnostics = append(p.diagnostics, diagnostic{code, message})
	return nil
}

type linkState bool

func (l linkState) IsConnected() bool { return bool(l) }

func TestHeartbeatSkipsWhileOffline(t *testing.T) {
	pub := &fakePublisher{}
	monitor := health.NewDeviceHealthMonitor(time.Second)
	svc := NewHeartbeatService(pub, monitor, time.Minute)

	svc.SendHeartbeat(context.Background())
	assert.Empty(t, pub.statuses)

	monitor.RecordTelemetry()
	svc.SendHeartbeat(context.Background())
	assert.Equal(t, []bool{true}, pub.statuses)
	require.Len(t, pub.diagnostics, 1)
	assert.Equal(t, gwerrors.CodeOK, pub.diagnostics[0].code)
}

func TestHeartbeatStatusFailureSkipsDiagnostic(t *testing.T) {
	pub := &fakePublisher{statusErr: errors.New("broker down")}
	monitor := health.NewDeviceHealthMonitor(time.Second)
	monitor.MarkOnline()

	NewHeartbeatService(pub, monitor, time.Minute).SendHeartbeat(context.Background())
	assert.Empty(t, pub.diagnostics)
}

func TestHeartbeatStopsWithContext(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewHeartbeatService(pub, health.NewDeviceHealthMonitor(time.Second), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("heartbeat loop did not stop")
	}
}

func TestWatchdogMarksStaleDeviceOffline(t *testing.T) {
	pub := &fakePublisher{}
	monitor := health.NewDeviceHealthMonitor(time.Second)
	c := cache.NewMemoryCache()
	w := NewWatchdogService(linkState(true), monitor, c, pub, nil,
		config.WatchdogSettings{CheckInterval: time.Second, GracePeriod: 10 * time.Second})

	monitor.RecordTelemetry()
	assert.True(t, w.Check(context.Background()))
	assert.Empty(t, pub.diagnostics)

	connected, err := c.Connected(context.Background())
	require.NoError(t, err)
	assert.True(t, connected)

	w.now = func() time.Time { return time.Now().Add(time.Minute) }
	assert.False(t, w.Check(context.Background()))
	assert.False(t, monitor.IsOnline())
	require.Len(t, pub.diagnostics, 1)
	assert.Equal(t, gwerrors.CodeConnectivity, pub.diagnostics[0].code)
	assert.Contains(t, pub.diagnostics[0].message, "No telemetry for")

	// already offline, no repeated diagnostic
	assert.False(t, w.Check(context.Background()))
	assert.Len(t, pub.diagnostics, 1)

	monitor.RecordTelemetry()
	w.now = time.Now
	assert.True(t, w.Check(context.Background()))
}

func TestWatchdogWithoutDiagnostics(t *testing.T) {
	monitor := health.NewDeviceHealthMonitor(time.Second)
	monitor.MarkOnline()
	w := NewWatchdogService(linkState(false), monitor, nil, nil, nil,
		config.WatchdogSettings{CheckInterval: time.Second, GracePeriod: time.Second})
	w.now = func() time.Time { return time.Now().Add(time.Hour) }

	assert.False(t, w.Check(context.Background()))
	assert.False(t, monitor.IsOnline())
}
