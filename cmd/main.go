package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"valve-gateway/internal/builder"
	"valve-gateway/internal/config"
	"valve-gateway/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT and SIGTERM for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Parse command line arguments
	configPath := ""
	diagnosticMode := false

	for i, arg := range os.Args[1:] {
		if arg == "--help" || arg == "-h" {
			fmt.Printf("Usage: %s [config_path] [--diagnostic]\n", os.Args[0])
			fmt.Printf("  config_path: Path to configuration file (optional)\n")
			fmt.Printf("  --diagnostic: Connect to the valve controller, send PING and exit\n")
			return
		} else if arg == "--version" {
			fmt.Println(version)
			return
		} else if arg == "--diagnostic" {
			diagnosticMode = true
		} else if i == 0 { // First argument is config path
			configPath = arg
		}
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.LogError("Error loading configuration: %v", err)
		os.Exit(1)
	}

	// Initialize logging with level
	if err := logger.Init(&cfg.Logging); err != nil {
		logger.LogError("Logger initialization error: %v", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.LogStartup("🔧 Logging initialized with level: %s", cfg.Logging.Level)

	buildCtx, buildCancel := context.WithTimeout(ctx, 30*time.Second)
	app, err := builder.NewApplicationBuilder(cfg).WithVersion(version).Build(buildCtx)
	buildCancel()
	if err != nil {
		logger.LogError("Application creation error: %v", err)
		os.Exit(1)
	}

	// Run diagnostic mode if requested
	if diagnosticMode {
		logger.LogInfo("🔍 Running diagnostic mode...")
		if err := app.DiagnosticMode(ctx); err != nil {
			logger.LogError("Diagnostic failed: %v", err)
			os.Exit(1)
		}
		logger.LogInfo("✅ Diagnostic completed successfully")
		return
	}

	// Start application
	if err := app.Start(ctx); err != nil {
		logger.LogError("Application start error: %v", err)
		os.Exit(1)
	}

	// Wait for stop signal or a fatal server error
	exitCode := 0
	select {
	case <-sigChan:
		logger.LogInfo("📢 Stop signal received...")
	case err := <-app.Errors():
		logger.LogError("Fatal error: %v", err)
		exitCode = 1
	}

	// Stop application
	app.Stop()
	if exitCode != 0 {
		logger.Sync()
		os.Exit(exitCode)
	}
}
