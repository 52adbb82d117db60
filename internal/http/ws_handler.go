package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"valve-gateway/internal/auth"
	"valve-gateway/internal/config"
	"valve-gateway/internal/hub"
	"valve-gateway/internal/logger"
)

// SubscriberRegistry is the part of the hub a websocket session uses
type SubscriberRegistry interface {
	Register(sub hub.Subscriber)
	Unregister(sub hub.Subscriber)
	Count() int
	SendTo(ctx context.Context, sub hub.Subscriber, msg []byte) error
}

type authMessage struct {
	Token string `json:"token"`
}

type clientMessage struct {
	Type string `json:"type"`
}

// WebSocketHandler authenticates real-time clients and attaches them to the hub
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      SubscriberRegistry
	verifier auth.TokenVerifier
	settings config.ServerSettings
	now      func() time.Time

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewWebSocketHandler creates the /ws/telemetry handler
func NewWebSocketHandler(h SubscriberRegistry, verifier auth.TokenVerifier, settings config.ServerSettings) *WebSocketHandler {
	if settings.AuthTimeout <= 0 {
		settings.AuthTimeout = 10 * time.Second
	}
	if settings.HeartbeatInterval <= 0 {
		settings.HeartbeatInterval = 60 * time.Second
	}
	if settings.SendTimeout <= 0 {
		settings.SendTimeout = 5 * time.Second
	}

	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			// dashboards are served from other origins; clients authenticate in-band
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		hub:      h,
		verifier: verifier,
		settings: settings,
		now:      time.Now,
		shutdown: make(chan struct{}),
	}
}

// Close ends every open session; http.Server.Shutdown does not track hijacked connections
func (h *WebSocketHandler) Close() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

// ServeHTTP upgrades the connection and runs the session until the client goes away
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.LogDebug("Websocket upgrade failed: %v", err)
		return
	}

	client := newWSClient(conn, h.settings.SendTimeout)
	defer client.Close()

	ctx := r.Context()
	principal, ok := h.authenticate(ctx, client)
	if !ok {
		return
	}

	h.hub.Register(client)
	defer h.hub.Unregister(client)
	logger.LogInfo("🔌 Websocket client %s connected as %s (%d total)", client.ID(), principal.Name, h.hub.Count())

	h.serve(ctx, client)
	logger.LogInfo("🔌 Websocket client %s disconnected", client.ID())
}

// authenticate waits for the token message and answers accept or reject
func (h *WebSocketHandler) authenticate(ctx context.Context, c *wsClient) (auth.Principal, bool) {
	_ = c.conn.SetReadDeadline(h.now().Add(h.settings.AuthTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			h.reject(ctx, c, "Authentication timeout")
		}
		return auth.Principal{}, false
	}
	_ = c.conn.SetReadDeadline(time.Time{})

	var msg authMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Token == "" {
		h.reject(ctx, c, "Authentication required")
		return auth.Principal{}, false
	}

	p, err := h.verifier.Verify(ctx, msg.Token)
	if err != nil {
		h.reject(ctx, c, "Invalid token")
		return auth.Principal{}, false
	}

	if err := c.Send(ctx, hub.AuthSuccessMessage(p.Name, h.now())); err != nil {
		return auth.Principal{}, false
	}
	return p, true
}

func (h *WebSocketHandler) reject(ctx context.Context, c *wsClient, reason string) {
	logger.LogWarn("🔒 Websocket authentication failed: %s", reason)
	if err := c.Send(ctx, hub.ControlMessage(hub.MessageAuthError, reason, h.now())); err != nil {
		return
	}
	c.closeWith(websocket.ClosePolicyViolation, reason)
}

// serve answers pings and sends a heartbeat after each idle interval.
// Reads run on their own goroutine since a gorilla read timeout is not recoverable.
func (h *WebSocketHandler) serve(ctx context.Context, c *wsClient) {
	messages := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case messages <- data:
			case <-done:
				return
			}
		}
	}()

	idle := time.NewTimer(h.settings.HeartbeatInterval)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-h.shutdown:
			c.closeWith(websocket.CloseGoingAway, "server shutting down")
			return

		case err := <-readErr:
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.LogDebug("Websocket client %s read failed: %v", c.ID(), err)
			}
			return

		case data := <-messages:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(h.settings.HeartbeatInterval)

			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.LogTrace("Ignoring non-JSON websocket message from %s", c.ID())
				continue
			}
			if msg.Type == "ping" {
				if err := h.hub.SendTo(ctx, c, hub.ControlMessage(hub.MessagePong, "", h.now())); err != nil {
					return
				}
			}

		case <-idle.C:
			if err := h.hub.SendTo(ctx, c, hub.ControlMessage(hub.MessageHeartbeat, "", h.now())); err != nil {
				return
			}
			idle.Reset(h.settings.HeartbeatInterval)
		}
	}
}

// wsClient is a hub subscriber backed by a websocket connection
type wsClient struct {
	id          string
	conn        *websocket.Conn
	sendTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, sendTimeout time.Duration) *wsClient {
	return &wsClient{
		id:          uuid.NewString(),
		conn:        conn,
		sendTimeout: sendTimeout,
	}
}

func (c *wsClient) ID() string { return c.id }

// Send writes one text frame. gorilla connections allow a single concurrent writer.
// A failed write closes the connection so the session ends with the eviction.
func (c *wsClient) Send(ctx context.Context, msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.sendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		c.Close()
		return err
	}
	return nil
}

func (c *wsClient) closeWith(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

// Close closes the underlying connection once
func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

var _ hub.Subscriber = (*wsClient)(nil)
