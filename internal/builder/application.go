package builder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"valve-gateway/internal/cache"
	"valve-gateway/internal/config"
	"valve-gateway/internal/coordinator"
	gwerrors "valve-gateway/internal/errors"
	"valve-gateway/internal/health"
	gwhttp "valve-gateway/internal/http"
	"valve-gateway/internal/hub"
	"valve-gateway/internal/logger"
	"valve-gateway/internal/metrics"
	"valve-gateway/internal/services"
	"valve-gateway/internal/store"
)

// shutdownTimeout bounds the HTTP drain on Stop
const shutdownTimeout = 5 * time.Second

// Application represents the running gateway
// Facade over the link, the coordinator and the HTTP surface
type Application struct {
	config        *config.Config
	link          DeviceLink
	coordinator   *coordinator.Coordinator
	hub           *hub.Hub
	store         store.Store
	cache         cache.Cache
	publisher     PublisherInterface
	metrics       metrics.MetricsCollector
	healthMonitor *health.DeviceHealthMonitor
	wsHandler     *gwhttp.WebSocketHandler
	server        *gwhttp.Server
	heartbeat     *services.HeartbeatService
	watchdog      *services.WatchdogService
	stopTimeout   time.Duration

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	errCh    chan error
	stopOnce sync.Once
}

// Start launches the read loop, the background services and the HTTP server
func (app *Application) Start(ctx context.Context) error {
	if app.cancel != nil {
		return fmt.Errorf("application already started")
	}
	logger.LogInfo("🚀 Starting Valve Gateway...")

	runCtx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	app.goRun(func() {
		if err := app.link.Run(runCtx); err != nil {
			logger.LogError("Device read loop error: %v", err)
		}
	})
	app.goRun(func() { app.watchdog.Start(runCtx) })

	if app.publisher != nil {
		app.goRun(func() {
			// the broker may come up after the gateway; retry in the background
			if err := app.publisher.Connect(runCtx); err != nil {
				logger.LogDebug("MQTT connect abandoned: %v", err)
				return
			}
			if err := app.publisher.PublishDiagnostic(runCtx, gwerrors.CodeOK, "Valve gateway started successfully"); err != nil {
				logger.LogError("⚠️ Error publishing diagnostic: %v", err)
			}
			app.heartbeat.Start(runCtx)
		})
	}

	app.server.Start(app.errCh)

	logger.LogInfo("✅ Valve Gateway started successfully")
	return nil
}

// Errors reports fatal runtime failures such as the HTTP listener going away
func (app *Application) Errors() <-chan error {
	return app.errCh
}

// Stop shuts everything down in reverse order. Safe to call more than once.
func (app *Application) Stop() {
	app.stopOnce.Do(app.stop)
}

func (app *Application) stop() {
	logger.LogInfo("🛑 Stopping Valve Gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		logger.LogError("⚠️ HTTP shutdown error: %v", err)
	}
	app.wsHandler.Close()

	if app.cancel != nil {
		app.cancel()
	}
	if err := app.link.Stop(app.stopTimeout); err != nil {
		logger.LogError("⚠️ %v", err)
	}
	if !app.waitBackground(app.stopTimeout) {
		logger.LogWarn("Background tasks still running after %s, continuing shutdown", app.stopTimeout)
	}

	if app.publisher != nil {
		if err := app.publisher.PublishDiagnostic(ctx, gwerrors.CodeOK, "Valve gateway stopped gracefully"); err != nil {
			logger.LogDebug("Could not publish stop diagnostic: %v", err)
		}
		app.publisher.Disconnect()
	}
	if err := app.cache.Close(); err != nil {
		logger.LogError("⚠️ Cache close error: %v", err)
	}
	if err := app.store.Close(); err != nil {
		logger.LogError("⚠️ Store close error: %v", err)
	}

	logger.LogInfo("✅ Valve Gateway stopped")
}

// DiagnosticMode connects to the controller once and checks it answers a PING
func (app *Application) DiagnosticMode(ctx context.Context) error {
	logger.LogInfo("🔍 Starting diagnostic mode...")

	logger.LogInfo("🔍 Test 1: Serial connection")
	if err := app.link.Connect(ctx); err != nil {
		logger.LogError("❌ Could not open the valve controller: %v", err)
		logger.LogInfo("💡 Possible issues:")
		logger.LogInfo("   - Controller is not plugged in or not powered")
		logger.LogInfo("   - Wrong port (%s) or USB id list", app.config.Device.Port)
		logger.LogInfo("   - Port held by another process")
		return fmt.Errorf("serial connection failed: %w", err)
	}
	defer func() {
		if err := app.link.Stop(app.stopTimeout); err != nil {
			logger.LogWarn("%v", err)
		}
	}()
	status := app.link.Status()
	logger.LogInfo("✅ Connected on %s (handshake ok: %v)", status.Port, status.HandshakeOK)

	logger.LogInfo("🔍 Test 2: Command round trip")
	resp, err := app.coordinator.Ping(ctx, "diagnostic")
	if err != nil {
		logger.LogError("❌ Controller did not answer PING: %v", err)
		logger.LogInfo("💡 Possible issues:")
		logger.LogInfo("   - Wrong baud rate (%d)", app.config.Device.BaudRate)
		logger.LogInfo("   - Firmware still booting, try a longer reset_delay")
		return fmt.Errorf("device communication failed: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("unexpected PING reply: %s", resp.Message)
	}
	logger.LogInfo("✅ Controller answered: %s", resp.Message)

	logger.LogInfo("🎉 All diagnostic tests passed!")
	return nil
}

// GetConfig returns the application configuration
func (app *Application) GetConfig() *config.Config {
	return app.config
}

// GetCoordinator returns the command and telemetry coordinator
func (app *Application) GetCoordinator() *coordinator.Coordinator {
	return app.coordinator
}

// GetHub returns the broadcast hub
func (app *Application) GetHub() *hub.Hub {
	return app.hub
}

// GetHealthMonitor returns the health monitor
func (app *Application) GetHealthMonitor() *health.DeviceHealthMonitor {
	return app.healthMonitor
}

// waitBackground waits for goroutines started by goRun, giving up after timeout
func (app *Application) waitBackground(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (app *Application) goRun(fn func()) {
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		fn()
	}()
}
