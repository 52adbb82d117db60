package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/health"
	"valve-gateway/internal/models"
)

const telemetryLine = `TELEMETRY:{"t":%d,"valve":"OPEN","p1":3.0,"p2":2.5,"c_src":100,"c_dst":50,"em":0}`

func connectedLink(t *testing.T, script map[string][]string) (*Link, *fakePort) {
	t.Helper()
	if _, ok := script["PING"]; !ok {
		script["PING"] = []string{"PONG"}
	}
	port := newFakePort(script)
	link := NewLink(testSettings(), &fakeOpener{ports: []*fakePort{port}}, nil)
	require.NoError(t, link.Connect(context.Background()))
	t.Cleanup(link.Disconnect)
	return link, port
}

func TestSendCommandSkipsEcho(t *testing.T) {
	link, _ := connectedLink(t, map[string][]string{
		"OPEN": {"COMMAND_RECEIVED:OPEN", "VALVE_OPENED"},
	})

	resp, err := link.SendCommand(context.Background(), models.CmdOpen, 0)
	require.NoError(t, err)
	assert.Equal(t, "VALVE_OPENED", resp)
}

func TestSendCommandFallsBackToLastEcho(t *testing.T) {
	link, _ := connectedLink(t, map[string][]string{
		"CLOSE": {"COMMAND_RECEIVED:CLOSE"},
	})

	resp, err := link.SendCommand(context.Background(), models.CmdClose, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "COMMAND_RECEIVED:CLOSE", resp)
}

func TestSendCommandNoResponse(t *testing.T) {
	link, _ := connectedLink(t, map[string][]string{})

	start := time.Now()
	_, err := link.SendCommand(context.Background(), models.CmdStatus, 80*time.Millisecond)
	require.Error(t, err)
	assert.True(t, gwerrors.IsNoResponse(err))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestSendCommandNotConnected(t *testing.T) {
	port := newFakePort(nil)
	link := NewLink(testSettings(), &fakeOpener{ports: []*fakePort{port}}, nil)

	_, err := link.SendCommand(context.Background(), models.CmdOpen, 0)
	require.Error(t, err)
	assert.True(t, gwerrors.IsNotConnected(err))
	assert.Empty(t, port.commands())
}

func TestUnsolicitedLinesDoNotAnswerLaterCommands(t *testing.T) {
	link, port := connectedLink(t, map[string][]string{
		"STATUS": {"STATUS:OK"},
	})

	_, err := link.SendCommand(context.Background(), models.CmdInfo, 50*time.Millisecond)
	require.Error(t, err)

	// A late reply arrives while nothing is in flight
	port.emit("INFO:v1.2")
	time.Sleep(50 * time.Millisecond)

	resp, err := link.SendCommand(context.Background(), models.CmdStatus, 0)
	require.NoError(t, err)
	assert.Equal(t, "STATUS:OK", resp)
	assert.Equal(t, []string{"PING", "INFO", "STATUS"}, port.commands())
}

func TestCommandsAreSerialized(t *testing.T) {
	script := map[string][]string{}
	for _, c := range []string{"OPEN", "CLOSE", "STATUS", "INFO"} {
		script[c] = []string{"COMMAND_RECEIVED:" + c, "ACK_" + c}
	}
	link, _ := connectedLink(t, script)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for _, c := range []models.CommandName{models.CmdOpen, models.CmdClose, models.CmdStatus, models.CmdInfo} {
		wg.Add(1)
		go func(c models.CommandName) {
			defer wg.Done()
			resp, err := link.SendCommand(context.Background(), c, 0)
			if err != nil {
				errs <- err
				return
			}
			if resp != "ACK_"+string(c) {
				errs <- fmt.Errorf("%s answered with %q", c, resp)
			}
		}(c)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestHandshakeDegradedStillConnects(t *testing.T) {
	port := newFakePort(map[string][]string{
		"TEST_MODE_ON": {"Test mode Enabled"},
	})
	link := NewLink(withInit(testSettings(), models.CmdTestModeOn, models.CmdResetEmergency),
		&fakeOpener{ports: []*fakePort{port}}, nil)

	require.NoError(t, link.Connect(context.Background()))
	defer link.Disconnect()

	assert.True(t, link.IsConnected())
	st := link.Status()
	assert.Equal(t, "CONNECTED", st.State)
	assert.False(t, st.HandshakeOK)
	assert.Equal(t, "/dev/ttyTEST0", st.Port)
	assert.Equal(t, []string{"PING", "TEST_MODE_ON", "RESET_EMERGENCY"}, port.commands())
}

func TestHandshakeOK(t *testing.T) {
	link, _ := connectedLink(t, map[string][]string{})
	assert.True(t, link.Status().HandshakeOK)
	assert.NotNil(t, link.Status().ConnectedSince)
}

func TestConnectOpenFailure(t *testing.T) {
	link := NewLink(testSettings(), &fakeOpener{err: errors.New("permission denied")}, nil)

	err := link.Connect(context.Background())
	require.Error(t, err)
	var terr *gwerrors.TransportError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, models.Disconnected, link.State())
}

func TestResolveAddress(t *testing.T) {
	tests := []struct {
		name       string
		port       string
		autoDetect bool
		discoverer Discoverer
		want       string
		wantErr    bool
	}{
		{"discovered", "/dev/ttyS0", true, fakeDiscoverer{address: "/dev/ttyACM0"}, "/dev/ttyACM0", false},
		{"fallback to manual", "/dev/ttyS0", true, fakeDiscoverer{err: ErrNoDevice}, "/dev/ttyS0", false},
		{"auto without device", "AUTO", true, fakeDiscoverer{err: ErrNoDevice}, "", true},
		{"autodetect disabled", "COM3", false, fakeDiscoverer{address: "/dev/ttyACM0"}, "COM3", false},
		{"nil discoverer", "auto", true, nil, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings()
			s.Port = tt.port
			s.AutoDetect = tt.autoDetect
			link := NewLink(s, &fakeOpener{}, tt.discoverer)

			got, err := link.resolveAddress()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoDevice)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunDeliversTelemetryInOrder(t *testing.T) {
	port := newFakePort(map[string][]string{"PING": {"PONG"}})
	monitor := health.NewDeviceHealthMonitor(time.Minute)
	link := NewLink(testSettings(), &fakeOpener{ports: []*fakePort{port}}, nil, WithHealthMonitor(monitor))

	got := make(chan models.TelemetrySample, 10)
	link.SetTelemetryHandler(func(_ context.Context, s models.TelemetrySample) {
		got <- s
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = link.Run(ctx) }()

	require.Eventually(t, link.IsConnected, time.Second, 5*time.Millisecond)

	port.emit(fmt.Sprintf(telemetryLine, 1))
	port.emit("TELEMETRY:{broken")
	port.emit("Valve controller ready")
	port.emit(fmt.Sprintf(telemetryLine, 2))
	port.emit(fmt.Sprintf(telemetryLine, 3))

	for want := int64(1); want <= 3; want++ {
		select {
		case s := <-got:
			assert.Equal(t, want, s.Timestamp)
		case <-time.After(time.Second):
			t.Fatalf("sample %d not delivered", want)
		}
	}
	assert.False(t, monitor.GetLastTelemetryTime().IsZero())

	require.NoError(t, link.Stop(time.Second))
}

func TestRunReconnectsAfterTransportError(t *testing.T) {
	first := newFakePort(map[string][]string{"PING": {"PONG"}})
	second := newFakePort(map[string][]string{"PING": {"PONG"}, "STATUS": {"STATUS:OK"}})
	opener := &fakeOpener{ports: []*fakePort{first, second}}
	link := NewLink(testSettings(), opener, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = link.Run(ctx) }()

	require.Eventually(t, link.IsConnected, time.Second, 5*time.Millisecond)
	first.hangUp()

	require.Eventually(t, func() bool {
		return opener.openCount() == 2 && link.IsConnected()
	}, 2*time.Second, 5*time.Millisecond)

	resp, err := link.SendCommand(ctx, models.CmdStatus, 0)
	require.NoError(t, err)
	assert.Equal(t, "STATUS:OK", resp)

	require.NoError(t, link.Stop(time.Second))
}

func TestRunRetriesWhileDeviceMissing(t *testing.T) {
	opener := &fakeOpener{}
	link := NewLink(testSettings(), opener, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = link.Run(ctx) }()

	require.Eventually(t, func() bool { return opener.openCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, link.IsConnected())

	cancel()
	require.NoError(t, link.Stop(time.Second))
}

func TestStopClosesPortAndEndsLoop(t *testing.T) {
	port := newFakePort(map[string][]string{"PING": {"PONG"}})
	link := NewLink(testSettings(), &fakeOpener{ports: []*fakePort{port}}, nil)

	done := make(chan error, 1)
	go func() { done <- link.Run(context.Background()) }()
	require.Eventually(t, link.IsConnected, time.Second, 5*time.Millisecond)

	require.NoError(t, link.Stop(time.Second))
	assert.True(t, port.closed.Load())
	assert.False(t, link.IsConnected())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestStopWithoutRun(t *testing.T) {
	link := NewLink(testSettings(), &fakeOpener{}, nil)
	assert.NoError(t, link.Stop(10*time.Millisecond))
}

func TestHandlerPanicDoesNotStopLoop(t *testing.T) {
	port := newFakePort(map[string][]string{"PING": {"PONG"}})
	link := NewLink(testSettings(), &fakeOpener{ports: []*fakePort{port}}, nil)

	calls := make(chan int64, 4)
	link.SetTelemetryHandler(func(_ context.Context, s models.TelemetrySample) {
		calls <- s.Timestamp
		if s.Timestamp == 1 {
			panic("boom")
		}
	})

	go func() { _ = link.Run(context.Background()) }()
	defer func() { _ = link.Stop(time.Second) }()
	require.Eventually(t, link.IsConnected, time.Second, 5*time.Millisecond)

	port.emit(fmt.Sprintf(telemetryLine, 1))
	port.emit(fmt.Sprintf(telemetryLine, 2))

	assert.Equal(t, int64(1), <-calls)
	select {
	case ts := <-calls:
		assert.Equal(t, int64(2), ts)
	case <-time.After(time.Second):
		t.Fatal("loop stopped after handler panic")
	}
}
