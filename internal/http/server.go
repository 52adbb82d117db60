package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"valve-gateway/internal/logger"
)

// Routes groups every handler served by the gateway
type Routes struct {
	Status    http.Handler
	Health    http.Handler
	Metrics   http.Handler // nil when metrics are disabled
	WebSocket http.Handler
	API       *API
}

// NewMux mounts the routes
func NewMux(routes Routes) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", routes.Status)
	mux.Handle("GET /health", routes.Health)
	if routes.Metrics != nil {
		mux.Handle("GET /metrics", routes.Metrics)
	}
	mux.Handle("GET /ws/telemetry", routes.WebSocket)
	routes.API.Register(mux)
	return mux
}

// Server wraps the HTTP listener
type Server struct {
	server *http.Server
}

// NewServer creates a server on port with the gateway timeouts
func NewServer(port int, handler http.Handler) *Server {
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadTimeout:       15 * time.Second, // Max time to read request
			ReadHeaderTimeout: 10 * time.Second, // Max time to read headers
			WriteTimeout:      15 * time.Second, // Max time to write response
			IdleTimeout:       60 * time.Second, // Max time for keep-alive connections
		},
	}
}

// Start serves in the background; a listener failure is sent on errCh
func (s *Server) Start(errCh chan<- error) {
	go func() {
		logger.LogInfo("🌐 HTTP server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogError("HTTP server error: %v", err)
			select {
			case errCh <- err:
			default:
			}
		}
	}()
}

// Shutdown stops accepting connections and waits for handlers within ctx
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
