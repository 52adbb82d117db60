package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/logger"
	"valve-gateway/internal/store"
)

// Pinger checks a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.LogDebug("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		return def
	}
	return i
}

// statusFor maps a command or store error onto an HTTP status
func statusFor(err error) int {
	switch {
	case gwerrors.IsNotConnected(err):
		return http.StatusServiceUnavailable
	case gwerrors.IsNoResponse(err):
		return http.StatusGatewayTimeout
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// detailFor returns the client facing message for err
func detailFor(err error) string {
	switch {
	case gwerrors.IsNotConnected(err):
		return "Arduino not connected"
	case gwerrors.IsNoResponse(err):
		return "No response from Arduino"
	case errors.Is(err, store.ErrNotFound):
		return "Not found"
	default:
		return err.Error()
	}
}
