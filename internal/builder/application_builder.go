package builder

import (
	"context"
	"fmt"
	"time"

	"valve-gateway/internal/alerts"
	"valve-gateway/internal/auth"
	"valve-gateway/internal/cache"
	"valve-gateway/internal/config"
	"valve-gateway/internal/coordinator"
	"valve-gateway/internal/device"
	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/health"
	gwhttp "valve-gateway/internal/http"
	"valve-gateway/internal/hub"
	"valve-gateway/internal/logger"
	"valve-gateway/internal/metrics"
	"valve-gateway/internal/mqtt"
	"valve-gateway/internal/rules"
	"valve-gateway/internal/services"
	"valve-gateway/internal/store"
)

// memoryRows bounds each table of the in-memory store
const memoryRows = 10000

// ApplicationBuilder provides a fluent interface for constructing Application instances
// Following Builder pattern to enable dependency injection and improve testability
type ApplicationBuilder struct {
	config        *config.Config
	version       string
	link          DeviceLink
	store         store.Store
	cache         cache.Cache
	publisher     PublisherInterface
	healthMonitor *health.DeviceHealthMonitor
	metrics       metrics.MetricsCollector
}

// DeviceLink defines the contract for the serial link
// Enables running the application against a fake controller
type DeviceLink interface {
	device.Commander
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
	Stop(timeout time.Duration) error
	Status() device.Status
	SetTelemetryHandler(h device.TelemetryHandler)
}

// PublisherInterface defines the contract for the MQTT mirror
// Enables mocking and testing
type PublisherInterface interface {
	Connect(ctx context.Context) error
	Disconnect()
	PublishEvent(ctx context.Context, ev hub.Event) error
	PublishStatus(ctx context.Context, online bool) error
	PublishDiagnostic(ctx context.Context, code int, message string) error
}

// NewApplicationBuilder creates a new builder with default configuration
func NewApplicationBuilder(cfg *config.Config) *ApplicationBuilder {
	return &ApplicationBuilder{
		config:  cfg,
		version: "dev",
	}
}

// WithVersion sets the version reported by / and /health
func (b *ApplicationBuilder) WithVersion(version string) *ApplicationBuilder {
	b.version = version
	return b
}

// WithLink sets a custom device link
func (b *ApplicationBuilder) WithLink(link DeviceLink) *ApplicationBuilder {
	b.link = link
	return b
}

// WithStore sets a custom store
func (b *ApplicationBuilder) WithStore(st store.Store) *ApplicationBuilder {
	b.store = st
	return b
}

// WithCache sets a custom latest-state cache
func (b *ApplicationBuilder) WithCache(c cache.Cache) *ApplicationBuilder {
	b.cache = c
	return b
}

// WithPublisher sets a custom MQTT publisher
func (b *ApplicationBuilder) WithPublisher(pub PublisherInterface) *ApplicationBuilder {
	b.publisher = pub
	return b
}

// WithHealthMonitor sets a custom health monitor
func (b *ApplicationBuilder) WithHealthMonitor(monitor *health.DeviceHealthMonitor) *ApplicationBuilder {
	b.healthMonitor = monitor
	return b
}

// WithMetrics sets a custom metrics collector
func (b *ApplicationBuilder) WithMetrics(m metrics.MetricsCollector) *ApplicationBuilder {
	b.metrics = m
	return b
}

// Build constructs the Application with all dependencies.
// Creates default implementations for any missing dependencies; ctx bounds the
// database and redis connection checks.
func (b *ApplicationBuilder) Build(ctx context.Context) (*Application, error) {
	if b.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := b.config

	if b.metrics == nil {
		if cfg.Metrics.Enabled {
			b.metrics = metrics.NewPrometheusMetrics()
		} else {
			b.metrics = metrics.NewNullMetrics()
		}
	}

	if b.store == nil {
		st, err := b.openStore(ctx)
		if err != nil {
			return nil, err
		}
		b.store = st
	}

	if b.cache == nil {
		b.cache = b.openCache(ctx)
	}

	if b.publisher == nil && cfg.MQTT.Enabled {
		b.publisher = mqtt.NewPublisher(config.NewMQTTSettings(cfg), b.metrics)
	}

	watchdogSettings := config.NewWatchdogSettings(cfg)
	if b.healthMonitor == nil {
		b.healthMonitor = health.NewDeviceHealthMonitor(watchdogSettings.GracePeriod)
	}

	deviceSettings := config.NewDeviceSettings(cfg)
	if b.link == nil {
		var discoverer device.Discoverer
		if cfg.Device.AutoDetect {
			discoverer = device.NewUSBDiscoverer(cfg.Device.KnownIDs)
		}
		b.link = device.NewLink(deviceSettings, device.NewSerialOpener(deviceSettings), discoverer,
			device.WithMetrics(b.metrics),
			device.WithHealthMonitor(b.healthMonitor))
	}

	// a nil *mqtt.Publisher must not end up inside a non-nil interface
	var diagnostics gwerrors.DiagnosticPublisher
	var mirror coordinator.Mirror
	if b.publisher != nil {
		diagnostics = b.publisher
		mirror = b.publisher
	}
	errorHandler := gwerrors.NewErrorHandler(diagnostics).WithLogger(logger.NewComponentLogger("errors"))

	serverSettings := config.NewServerSettings(cfg)
	eventHub := hub.New(serverSettings.SendTimeout, b.metrics)
	alertService := alerts.NewService(b.store, b.metrics)
	evaluator := rules.NewEvaluator(cfg.Rules.Thresholds)

	var commander device.Commander = b.link
	if cb := cfg.Device.CircuitBreaker; cb.Enabled {
		commander = device.NewBreakerLink(b.link, cb.MaxFailures, time.Duration(cb.Timeout)*time.Second, cb.HalfOpenMaxTries)
		logger.LogInfo("🔌 Command circuit breaker enabled (max failures: %d)", cb.MaxFailures)
	}

	opts := []coordinator.Option{
		coordinator.WithCache(b.cache),
		coordinator.WithErrorReporter(errorHandler),
		coordinator.WithMetrics(b.metrics),
		coordinator.WithOpenPrecheck(cfg.Rules.EnforceOnOpen),
		coordinator.WithCommandTimeout(deviceSettings.CommandTimeout),
	}
	if mirror != nil {
		opts = append(opts, coordinator.WithMirror(mirror))
	}
	coord := coordinator.New(commander, eventHub, b.store, alertService, evaluator, opts...)
	b.link.SetTelemetryHandler(coord.HandleTelemetry)

	verifier := auth.NewStaticVerifier(cfg.Auth.Tokens)
	wsHandler := gwhttp.NewWebSocketHandler(eventHub, verifier, serverSettings)
	mux := gwhttp.NewMux(gwhttp.Routes{
		Status:    gwhttp.NewStatusHandler(b.link, eventHub, b.version),
		Health:    gwhttp.NewHealthHandler(b.healthMonitor, b.link, b.store, b.version),
		Metrics:   b.metrics.Handler(),
		WebSocket: wsHandler,
		API:       gwhttp.NewAPI(coord, b.store, alertService, verifier),
	})

	watchdog := services.NewWatchdogService(b.link, b.healthMonitor, b.cache, diagnostics, b.metrics, watchdogSettings)

	app := &Application{
		config:        cfg,
		link:          b.link,
		coordinator:   coord,
		hub:           eventHub,
		store:         b.store,
		cache:         b.cache,
		publisher:     b.publisher,
		metrics:       b.metrics,
		healthMonitor: b.healthMonitor,
		wsHandler:     wsHandler,
		server:        gwhttp.NewServer(serverSettings.Port, mux),
		watchdog:      watchdog,
		stopTimeout:   deviceSettings.StopTimeout,
		errCh:         make(chan error, 1),
	}
	if b.publisher != nil {
		app.heartbeat = services.NewHeartbeatService(b.publisher, b.healthMonitor,
			config.NewMQTTSettings(cfg).HeartbeatInterval)
	}
	return app, nil
}

func (b *ApplicationBuilder) openStore(ctx context.Context) (store.Store, error) {
	if !b.config.Database.Enabled {
		logger.LogWarn("💾 Database disabled, history is kept in memory only")
		return store.NewMemory(memoryRows), nil
	}

	pg, err := store.OpenPostgres(ctx, b.config.Database)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("error creating schema: %w", err)
	}
	return pg, nil
}

func (b *ApplicationBuilder) openCache(ctx context.Context) cache.Cache {
	if !b.config.Redis.Enabled {
		return cache.NewMemoryCache()
	}

	c, err := cache.NewStateCache(ctx, config.NewCacheSettings(b.config))
	if err != nil {
		// the cache only serves the status page and the open pre-check
		logger.LogWarn("⚠️ Redis unavailable, using in-process cache: %v", err)
		return cache.NewMemoryCache()
	}
	return c
}

var (
	_ DeviceLink         = (*device.Link)(nil)
	_ PublisherInterface = (*mqtt.Publisher)(nil)
)
