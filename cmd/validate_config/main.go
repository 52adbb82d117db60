package main

import (
	"fmt"
	"os"

	"valve-gateway/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/validate_config <config-file>")
		os.Exit(1)
	}

	configPath := os.Args[1]
	fmt.Printf("📄 Loading config from: %s\n", configPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("❌ Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Config loaded successfully!\n")
	fmt.Printf("   Version: %s\n", cfg.Version)

	dev := cfg.Device
	fmt.Printf("   Device port: %s @ %d baud (auto detect: %v)\n", dev.Port, dev.BaudRate, dev.AutoDetect)
	for _, id := range dev.KnownIDs {
		if id.PID == "" {
			fmt.Printf("     - USB VID %s (any product)\n", id.VID)
		} else {
			fmt.Printf("     - USB VID %s PID %s\n", id.VID, id.PID)
		}
	}
	fmt.Printf("   Init commands: %v\n", dev.InitCommands)
	if dev.CircuitBreaker.Enabled {
		fmt.Printf("   Circuit breaker: %d failures, %ds timeout\n", dev.CircuitBreaker.MaxFailures, dev.CircuitBreaker.Timeout)
	}

	r := cfg.Rules
	fmt.Printf("   Rules: max pressure %.2f bar, critical concentration %.1f, min source %.1f (enforce on open: %v)\n",
		r.MaxPressure, r.CriticalConcentration, r.MinSourceConcentration, r.EnforceOnOpen)

	fmt.Printf("   HTTP port: %d\n", cfg.Server.Port)
	roles := map[string]int{}
	for _, tok := range cfg.Auth.Tokens {
		roles[tok.Role]++
	}
	fmt.Printf("   Tokens: %d (admin %d, operator %d, viewer %d)\n", len(cfg.Auth.Tokens),
		roles[config.RoleAdmin], roles[config.RoleOperator], roles[config.RoleViewer])

	if cfg.Database.Enabled {
		fmt.Printf("   Database: postgres %s:%d/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	} else {
		fmt.Printf("   Database: disabled (in-memory history)\n")
	}
	if cfg.Redis.Enabled {
		fmt.Printf("   Redis: %s\n", cfg.Redis.Addr)
	}
	if cfg.MQTT.Enabled {
		fmt.Printf("   MQTT Broker: %s:%d (prefix %s)\n", cfg.MQTT.Broker, cfg.MQTT.Port, cfg.MQTT.TopicPrefix)
	}
	fmt.Printf("   Metrics: %v\n", cfg.Metrics.Enabled)

	fmt.Println("\n✅ Configuration is valid!")
}
