package http

import (
	"context"
	"net/http"
	"strconv"

	"valve-gateway/internal/auth"
	"valve-gateway/internal/config"
	"valve-gateway/internal/device"
	"valve-gateway/internal/logger"
	"valve-gateway/internal/models"
	"valve-gateway/internal/store"
)

const (
	defaultHistoryLimit    = 100
	defaultOperationsLimit = 50
	maxListLimit           = 1000
)

// ValveController issues valve commands on behalf of a principal
type ValveController interface {
	OpenValve(ctx context.Context, principal string) (*models.CommandResponse, error)
	CloseValve(ctx context.Context, principal string) (*models.CommandResponse, error)
	ForceOpenValve(ctx context.Context, principal string) (*models.CommandResponse, error)
	ResetEmergency(ctx context.Context, principal string) (*models.CommandResponse, error)
	EnableTestMode(ctx context.Context, principal string) (*models.CommandResponse, error)
	DisableTestMode(ctx context.Context, principal string) (*models.CommandResponse, error)
}

// LinkStatus reports the serial link state
type LinkStatus interface {
	IsConnected() bool
	Status() device.Status
}

// AlertQueries is the part of the alert service the API exposes
type AlertQueries interface {
	Acknowledge(ctx context.Context, id int64) error
	Unacknowledged(ctx context.Context, limit int) ([]models.Alert, error)
	Recent(ctx context.Context, hours, limit int) ([]models.Alert, error)
}

type commandFunc func(ctx context.Context, principal string) (*models.CommandResponse, error)

type principalKey struct{}

// API serves the valve, telemetry and alert routes
type API struct {
	valves   ValveController
	store    store.Store
	alerts   AlertQueries
	verifier auth.TokenVerifier
}

// NewAPI creates the REST handlers
func NewAPI(valves ValveController, st store.Store, al AlertQueries, verifier auth.TokenVerifier) *API {
	return &API{valves: valves, store: st, alerts: al, verifier: verifier}
}

// Register mounts the routes on mux
func (a *API) Register(mux *http.ServeMux) {
	anyRole := []string{config.RoleAdmin, config.RoleOperator, config.RoleViewer}
	operators := []string{config.RoleAdmin, config.RoleOperator}
	admins := []string{config.RoleAdmin}

	mux.Handle("POST /api/valve/open", a.authorize(a.command(a.valves.OpenValve), operators...))
	mux.Handle("POST /api/valve/close", a.authorize(a.command(a.valves.CloseValve), anyRole...))
	mux.Handle("POST /api/valve/force-open", a.authorize(a.command(a.valves.ForceOpenValve), admins...))
	mux.Handle("POST /api/valve/reset-emergency", a.authorize(a.command(a.valves.ResetEmergency), admins...))
	mux.Handle("POST /api/valve/test-mode/on", a.authorize(a.command(a.valves.EnableTestMode), admins...))
	mux.Handle("POST /api/valve/test-mode/off", a.authorize(a.command(a.valves.DisableTestMode), admins...))
	mux.Handle("GET /api/valve/operations", a.authorize(http.HandlerFunc(a.operations), anyRole...))

	mux.Handle("GET /api/telemetry/latest", a.authorize(http.HandlerFunc(a.latestTelemetry), anyRole...))
	mux.Handle("GET /api/telemetry/history", a.authorize(http.HandlerFunc(a.telemetryHistory), anyRole...))

	mux.Handle("GET /api/alerts", a.authorize(http.HandlerFunc(a.listAlerts), anyRole...))
	mux.Handle("POST /api/alerts/{id}/ack", a.authorize(http.HandlerFunc(a.acknowledgeAlert), operators...))
}

// authorize resolves the bearer token and checks the principal holds one of roles
func (a *API) authorize(next http.Handler, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		p, err := a.verifier.Verify(r.Context(), token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		if !p.HasRole(roles...) {
			logger.LogWarn("🔒 %s (%s) denied %s %s", p.Name, p.Role, r.Method, r.URL.Path)
			writeError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func principalFrom(ctx context.Context) auth.Principal {
	p, _ := ctx.Value(principalKey{}).(auth.Principal)
	return p
}

func (a *API) command(fn commandFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		resp, err := fn(r.Context(), p.Name)
		if err != nil {
			writeError(w, statusFor(err), detailFor(err))
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

func (a *API) operations(w http.ResponseWriter, r *http.Request) {
	limit := min(parseInt(r.URL.Query().Get("limit"), defaultOperationsLimit), maxListLimit)
	results, err := a.store.RecentCommandResults(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), detailFor(err))
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *API) latestTelemetry(w http.ResponseWriter, r *http.Request) {
	sample, err := a.store.LatestTelemetry(r.Context())
	if err != nil {
		writeError(w, statusFor(err), detailFor(err))
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (a *API) telemetryHistory(w http.ResponseWriter, r *http.Request) {
	limit := min(parseInt(r.URL.Query().Get("limit"), defaultHistoryLimit), maxListLimit)
	samples, err := a.store.TelemetryHistory(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), detailFor(err))
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// zero lets the service apply its defaults
	limit := min(parseInt(q.Get("limit"), 0), maxListLimit)

	var (
		list []models.Alert
		err  error
	)
	if unack, _ := strconv.ParseBool(q.Get("unacknowledged")); unack {
		list, err = a.alerts.Unacknowledged(r.Context(), limit)
	} else {
		list, err = a.alerts.Recent(r.Context(), parseInt(q.Get("hours"), 0), limit)
	}
	if err != nil {
		writeError(w, statusFor(err), detailFor(err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}
	if err := a.alerts.Acknowledge(r.Context(), id); err != nil {
		writeError(w, statusFor(err), detailFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "acknowledged": true})
}
