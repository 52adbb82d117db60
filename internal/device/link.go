package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"valve-gateway/internal/config"
	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/health"
	"valve-gateway/internal/logger"
	"valve-gateway/internal/metrics"
	"valve-gateway/internal/models"
)

const (
	// maxLineLength bounds a line without terminator; longer input is discarded
	maxLineLength = 4096
	lineBuffer    = 16
	sampleBuffer  = 128
)

var (
	errStopped       = errors.New("device link stopped")
	errSessionClosed = errors.New("connection closed")
)

// TelemetryHandler receives every parsed sample, in line order
type TelemetryHandler func(ctx context.Context, sample models.TelemetrySample)

// Status is a point-in-time view of the link for /health and the status event
type Status struct {
	State          string     `json:"state"`
	Port           string     `json:"port,omitempty"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
	HandshakeOK    bool       `json:"handshake_ok"`
	LastLineAt     *time.Time `json:"last_line_at,omitempty"`
}

// Option configures a Link
type Option func(*Link)

// WithMetrics reports link activity to a collector
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(l *Link) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithHealthMonitor records telemetry, command replies and failures on a monitor
func WithHealthMonitor(h *health.DeviceHealthMonitor) Option {
	return func(l *Link) { l.health = h }
}

// Link owns the serial connection to the valve controller.
// One goroutine per connection reads lines and routes them: telemetry to the
// read loop, everything else to the command in flight.
type Link struct {
	settings   config.DeviceSettings
	opener     Opener
	discoverer Discoverer
	metrics    metrics.MetricsCollector
	health     *health.DeviceHealthMonitor
	now        func() time.Time

	mu             sync.RWMutex
	state          models.ConnectionState
	sess           *session
	connectedSince time.Time
	handshakeOK    bool
	lastLineAt     time.Time

	connectMu sync.Mutex // one connect attempt at a time
	commandMu sync.Mutex // one command in flight

	handlerMu sync.RWMutex
	handler   TelemetryHandler

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewLink creates a disconnected link. discoverer may be nil.
func NewLink(settings config.DeviceSettings, opener Opener, discoverer Discoverer, opts ...Option) *Link {
	l := &Link{
		settings:   settings,
		opener:     opener,
		discoverer: discoverer,
		metrics:    metrics.NewNullMetrics(),
		now:        time.Now,
		state:      models.Disconnected,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetTelemetryHandler installs the sample handler, replacing any previous one
func (l *Link) SetTelemetryHandler(h TelemetryHandler) {
	l.handlerMu.Lock()
	defer l.handlerMu.Unlock()
	l.handler = h
}

// State returns the current connection state
func (l *Link) State() models.ConnectionState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsConnected reports whether commands can be sent
func (l *Link) IsConnected() bool {
	return l.State() == models.Connected
}

// Status returns a snapshot for health reporting
func (l *Link) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Status{
		State:       l.state.String(),
		HandshakeOK: l.handshakeOK,
	}
	if l.sess != nil {
		st.Port = l.sess.address
	}
	if l.state == models.Connected {
		since := l.connectedSince
		st.ConnectedSince = &since
	}
	if !l.lastLineAt.IsZero() {
		last := l.lastLineAt
		st.LastLineAt = &last
	}
	return st
}

// Connect discovers the controller, opens it, waits out the reset after open
// and runs the handshake. Handshake failures are logged, not fatal.
func (l *Link) Connect(ctx context.Context) error {
	l.connectMu.Lock()
	defer l.connectMu.Unlock()

	if l.IsConnected() {
		return nil
	}
	if l.stopping() {
		return errStopped
	}

	l.setState(models.Connecting)

	address, err := l.resolveAddress()
	if err != nil {
		l.setState(models.Disconnected)
		return gwerrors.NewTransportError("discover", err, l.settings.Port)
	}

	logger.LogInfo("🔌 Opening valve controller on %s @ %d baud", address, l.settings.BaudRate)
	port, err := l.opener.Open(address)
	if err != nil {
		l.setState(models.Disconnected)
		return gwerrors.NewTransportError("open", err, address)
	}

	s := newSession(port, address)
	l.mu.Lock()
	l.sess = s
	l.mu.Unlock()
	go l.pump(s)

	// Opening the port resets the controller
	if !l.sleep(ctx, l.settings.ResetDelay) {
		l.dropSession(s)
		if err := ctx.Err(); err != nil {
			return err
		}
		return errStopped
	}
	if r, ok := port.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			logger.LogDebug("Input reset on %s failed: %v", address, err)
		}
	}
	s.drain()

	handshakeOK := l.handshake(ctx, s)

	l.mu.Lock()
	if l.sess != s {
		l.mu.Unlock()
		return gwerrors.NewTransportError("handshake", errSessionClosed, address)
	}
	l.state = models.Connected
	l.connectedSince = l.now()
	l.handshakeOK = handshakeOK
	l.mu.Unlock()

	l.metrics.SetDeviceConnected(true)
	logger.LogInfo("✅ Connected to valve controller on %s", address)
	return nil
}

// Disconnect closes the port. Safe to call in any state.
func (l *Link) Disconnect() {
	l.mu.Lock()
	s := l.sess
	l.sess = nil
	l.state = models.Disconnected
	l.handshakeOK = false
	l.mu.Unlock()

	if s != nil {
		s.close()
		logger.LogInfo("🔌 Disconnected from %s", s.address)
	}
	l.metrics.SetDeviceConnected(false)
}

// SendCommand writes one command and waits for its reply line. Echo lines are
// skipped: the first non-echo line wins, otherwise the last echo seen before
// the timeout. A timeout <= 0 uses the configured command timeout.
func (l *Link) SendCommand(ctx context.Context, name models.CommandName, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = l.settings.CommandTimeout
	}

	l.commandMu.Lock()
	defer l.commandMu.Unlock()

	s := l.connectedSession()
	if s == nil {
		return "", gwerrors.NewConnectivityError("send_command", string(name))
	}

	start := l.now()
	resp, err := l.exchange(ctx, s, name, timeout)
	l.metrics.ObserveCommandDuration(string(name), l.now().Sub(start))

	if l.health != nil {
		if err != nil {
			l.health.RecordError()
		} else {
			l.health.RecordSuccess()
		}
	}

	return resp, err
}

// Run is the read loop. It reconnects with a fixed backoff and hands samples
// to the telemetry handler until ctx is done or Stop is called.
func (l *Link) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("device read loop already running")
	}
	defer close(l.done)

	logger.LogInfo("🔄 Device read loop started")
	defer logger.LogInfo("🛑 Device read loop stopped")

	for {
		if l.stopping() || ctx.Err() != nil {
			l.Disconnect()
			return nil
		}

		s := l.connectedSession()
		if s == nil {
			l.metrics.IncReconnects()
			if err := l.Connect(ctx); err != nil {
				if l.stopping() || ctx.Err() != nil {
					continue
				}
				logger.LogWarn("Device connect failed: %v (retrying in %s)", err, l.settings.ReconnectInterval)
				l.sleep(ctx, l.settings.ReconnectInterval)
			}
			continue
		}

		select {
		case <-ctx.Done():
		case <-l.stopCh:
		case sample := <-s.samples:
			l.dispatch(ctx, sample)
		case err := <-s.errs:
			logger.LogError("Device link lost: %v", err)
			l.dropSession(s)
			if l.health != nil {
				l.health.RecordError()
			}
			l.sleep(ctx, l.settings.ReconnectInterval)
		}
	}
}

// Stop ends the read loop and closes the port, waiting up to timeout for the loop to exit
func (l *Link) Stop(timeout time.Duration) error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.Disconnect()

	if !l.running.Load() {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("device read loop did not stop within %s", timeout)
	}
}

func (l *Link) handshake(ctx context.Context, s *session) bool {
	l.commandMu.Lock()
	defer l.commandMu.Unlock()

	ok := true
	resp, err := l.exchange(ctx, s, models.CmdPing, l.settings.HandshakeTimeout)
	switch {
	case err != nil:
		logger.LogWarn("Handshake: %v, continuing without confirmation", err)
		ok = false
	case !strings.Contains(resp, "PONG"):
		logger.LogWarn("Handshake: expected PONG, got %q, continuing", resp)
		ok = false
	default:
		logger.LogInfo("🤝 Handshake OK")
	}

	for _, cmd := range l.settings.InitCommands {
		resp, err := l.exchange(ctx, s, cmd, l.settings.InitTimeout)
		if err != nil {
			logger.LogWarn("Init command %s failed: %v", cmd, err)
			ok = false
			continue
		}
		logger.LogInfo("Init %s: %s", cmd, resp)
	}

	return ok
}

// exchange assumes commandMu is held
func (l *Link) exchange(ctx context.Context, s *session, name models.CommandName, timeout time.Duration) (string, error) {
	s.drainLines()
	s.awaiting.Store(true)
	defer s.awaiting.Store(false)

	logger.LogTrace("→ %s", name)
	if _, err := s.port.Write([]byte(string(name) + "\n")); err != nil {
		s.fail(gwerrors.NewTransportError("write", err, s.address))
		return "", gwerrors.NewConnectivityError("send_command", string(name))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var lastEcho string
	for {
		select {
		case line := <-s.lines:
			if IsEcho(line) {
				lastEcho = line
				continue
			}
			return line, nil
		case <-timer.C:
			if lastEcho != "" {
				return lastEcho, nil
			}
			return "", gwerrors.NewNoResponseError(string(name), timeout)
		case <-s.closed:
			if lastEcho != "" {
				return lastEcho, nil
			}
			return "", gwerrors.NewNoResponseError(string(name), timeout)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// pump reads the port until it fails or the session is closed
func (l *Link) pump(s *session) {
	buf := make([]byte, 256)
	var pending []byte

	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				idx := bytes.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				l.route(s, string(pending[:idx]))
				pending = pending[idx+1:]
			}
			if len(pending) > maxLineLength {
				logger.LogWarn("Discarding %d bytes without line terminator", len(pending))
				pending = pending[:0]
			}
		}

		if s.isClosed() {
			return
		}
		if err != nil {
			s.fail(gwerrors.NewTransportError("read", err, s.address))
			return
		}
	}
}

func (l *Link) route(s *session, raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}

	l.mu.Lock()
	l.lastLineAt = l.now()
	l.mu.Unlock()
	logger.LogTrace("← %s", line)

	if IsTelemetry(line) {
		sample, err := ParseTelemetry(line, l.now())
		if err != nil {
			l.metrics.IncTelemetryParseErrors()
			logger.LogWarn("Dropping telemetry line: %v", err)
			return
		}
		if !l.running.Load() {
			// Nobody consumes samples without the read loop
			select {
			case s.samples <- sample:
			default:
			}
			return
		}
		select {
		case s.samples <- sample:
		case <-s.closed:
		}
		return
	}

	if s.awaiting.Load() {
		select {
		case s.lines <- line:
		case <-s.closed:
		}
		return
	}

	logger.LogInfo("📟 Controller: %s", line)
}

func (l *Link) dispatch(ctx context.Context, sample models.TelemetrySample) {
	l.metrics.IncTelemetryReceived()
	if l.health != nil {
		l.health.RecordTelemetry()
	}

	l.handlerMu.RLock()
	h := l.handler
	l.handlerMu.RUnlock()
	if h == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.LogError("Telemetry handler panicked: %v", r)
		}
	}()
	h(ctx, sample)
}

func (l *Link) resolveAddress() (string, error) {
	if l.settings.AutoDetect && l.discoverer != nil {
		address, err := l.discoverer.Discover()
		if err == nil && address != "" {
			return address, nil
		}
		logger.LogDebug("Auto-detect found nothing: %v", err)
	}

	if l.settings.Port != "" && !strings.EqualFold(l.settings.Port, "auto") {
		return l.settings.Port, nil
	}
	return "", ErrNoDevice
}

func (l *Link) connectedSession() *session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != models.Connected {
		return nil
	}
	return l.sess
}

// dropSession closes s if it is still the current session
func (l *Link) dropSession(s *session) {
	l.mu.Lock()
	current := l.sess == s
	if current {
		l.sess = nil
		l.state = models.Disconnected
		l.handshakeOK = false
	}
	l.mu.Unlock()

	s.close()
	if current {
		l.metrics.SetDeviceConnected(false)
	}
}

func (l *Link) setState(state models.ConnectionState) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
}

func (l *Link) stopping() bool {
	select {
	case <-l.stopCh:
		return true
	default:
		return false
	}
}

// sleep waits d, returning false if interrupted by ctx or Stop
func (l *Link) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil && !l.stopping()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-l.stopCh:
		return false
	}
}

// session is one open port and the channels fed by its pump
type session struct {
	port    Port
	address string

	lines    chan string
	samples  chan models.TelemetrySample
	errs     chan error
	closed   chan struct{}
	awaiting atomic.Bool

	closeOnce sync.Once
}

func newSession(port Port, address string) *session {
	return &session{
		port:    port,
		address: address,
		lines:   make(chan string, lineBuffer),
		samples: make(chan models.TelemetrySample, sampleBuffer),
		errs:    make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if err := s.port.Close(); err != nil {
			logger.LogDebug("Closing %s: %v", s.address, err)
		}
	})
}

func (s *session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fail reports a transport error once; later errors are dropped
func (s *session) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// drainLines discards replies left over from an earlier command
func (s *session) drainLines() {
	for {
		select {
		case line := <-s.lines:
			logger.LogDebug("Discarding stale line: %s", line)
		default:
			return
		}
	}
}

// drain discards everything buffered, used right after the reset on open
func (s *session) drain() {
	s.drainLines()
	for {
		select {
		case <-s.samples:
		default:
			return
		}
	}
}
