package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"valve-gateway/internal/logger"
	"valve-gateway/internal/models"
	"valve-gateway/internal/rules"
)

// Config represents the complete application configuration
type Config struct {
	Version  string               `yaml:"version,omitempty"`
	Device   DeviceConfig         `yaml:"device"`
	Rules    RulesConfig          `yaml:"rules"`
	Server   ServerConfig         `yaml:"server"`
	Auth     AuthConfig           `yaml:"auth"`
	Database DatabaseConfig       `yaml:"database"`
	Redis    RedisConfig          `yaml:"redis"`
	MQTT     MQTTConfig           `yaml:"mqtt"`
	Metrics  MetricsConfig        `yaml:"metrics"`
	Logging  logger.LoggingConfig `yaml:"logging"`
}

// DeviceConfig contains the serial link settings. Durations are in milliseconds.
type DeviceConfig struct {
	Port              string               `yaml:"port"` // "auto" disables the manual fallback
	BaudRate          int                  `yaml:"baud_rate"`
	AutoDetect        bool                 `yaml:"auto_detect"`
	KnownIDs          []USBID              `yaml:"known_ids"`
	ReconnectInterval int                  `yaml:"reconnect_interval"`
	CommandTimeout    int                  `yaml:"command_timeout"`
	HandshakeTimeout  int                  `yaml:"handshake_timeout"`
	InitTimeout       int                  `yaml:"init_timeout"`
	ResetDelay        int                  `yaml:"reset_delay"`
	PollInterval      int                  `yaml:"poll_interval"`
	StopTimeout       int                  `yaml:"stop_timeout"`
	InitCommands      []string             `yaml:"init_commands"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// USBID identifies a USB serial adapter. An empty PID matches any product.
type USBID struct {
	VID string `yaml:"vid"`
	PID string `yaml:"pid"`
}

// CircuitBreakerConfig wraps device commands in a circuit breaker when enabled
type CircuitBreakerConfig struct {
	Enabled          bool `yaml:"enabled"`
	MaxFailures      int  `yaml:"max_failures"`
	Timeout          int  `yaml:"timeout"` // seconds
	HalfOpenMaxTries int  `yaml:"half_open_max_tries"`
}

// RulesConfig contains the safety thresholds
type RulesConfig struct {
	rules.Thresholds `yaml:",inline"`
	EnforceOnOpen    bool `yaml:"enforce_on_open"`
}

// ServerConfig contains HTTP and websocket settings
type ServerConfig struct {
	Port              int `yaml:"port"`
	AuthTimeout       int `yaml:"auth_timeout"`       // milliseconds
	HeartbeatInterval int `yaml:"heartbeat_interval"` // milliseconds
	SendTimeout       int `yaml:"send_timeout"`       // milliseconds
}

// AuthConfig holds the static token table
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens"`
}

// TokenConfig maps a bearer token to a principal and role
type TokenConfig struct {
	Token     string `yaml:"token"`
	Principal string `yaml:"principal"`
	Role      string `yaml:"role"`
}

// DatabaseConfig contains Postgres settings
type DatabaseConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// DSN builds the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig contains latest-state cache settings
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	TTL       int    `yaml:"ttl"` // seconds
}

// MQTTConfig contains MQTT broker settings for the event mirror
type MQTTConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Broker            string `yaml:"broker"`
	Port              int    `yaml:"port"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	ClientID          string `yaml:"client_id"`
	RetryDelay        int    `yaml:"retry_delay"`        // milliseconds
	KeepAlive         int    `yaml:"keep_alive"`         // seconds
	HeartbeatInterval int    `yaml:"heartbeat_interval"` // seconds
	TopicPrefix       string `yaml:"topic_prefix"`
	DiscoveryPrefix   string `yaml:"discovery_prefix"` // Home Assistant; empty disables
	DeviceID          string `yaml:"device_id"`
	DeviceName        string `yaml:"device_name"`
}

// MetricsConfig toggles prometheus collection
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration populated with the factory defaults
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Device: DeviceConfig{
			Port:       "auto",
			BaudRate:   115200,
			AutoDetect: true,
			KnownIDs: []USBID{
				{VID: "2341"},              // Arduino
				{VID: "2A03"},              // Arduino.org
				{VID: "1A86", PID: "7523"}, // CH340 clones
			},
			ReconnectInterval: 5000,
			CommandTimeout:    3000,
			HandshakeTimeout:  3000,
			InitTimeout:       2000,
			ResetDelay:        2000,
			PollInterval:      50,
			StopTimeout:       5000,
			InitCommands:      []string{string(models.CmdTestModeOn), string(models.CmdResetEmergency)},
			CircuitBreaker: CircuitBreakerConfig{
				MaxFailures:      5,
				Timeout:          30,
				HalfOpenMaxTries: 3,
			},
		},
		Rules: RulesConfig{Thresholds: rules.DefaultThresholds()},
		Server: ServerConfig{
			Port:              8000,
			AuthTimeout:       10000,
			HeartbeatInterval: 60000,
			SendTimeout:       5000,
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			User:         "valve",
			Name:         "valve",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "valve:",
			TTL:       60,
		},
		MQTT: MQTTConfig{
			Broker:            "localhost",
			Port:              1883,
			ClientID:          "valve-gateway",
			RetryDelay:        5000,
			KeepAlive:         60,
			HeartbeatInterval: 20,
			TopicPrefix:       "valve",
			DiscoveryPrefix:   "homeassistant",
			DeviceID:          "valve_gateway",
			DeviceName:        "Valve Gateway",
		},
		Metrics: MetricsConfig{Enabled: true},
		Logging: logger.LoggingConfig{
			Level:   "info",
			Format:  "json",
			Service: "valve-gateway",
		},
	}
}

// LoadConfig loads configuration from the given file or the first default location found
func LoadConfig(configPath string) (*Config, error) {
	paths := []string{
		configPath,
		"/etc/valve-gateway/config.yaml",
		"/etc/valve-gateway.yaml",
		"./config.yaml",
	}

	var data []byte
	var err error
	var usedPath string

	for _, path := range paths {
		if path == "" {
			continue
		}
		// #nosec G304 - Paths are from a hardcoded list of safe configuration file locations
		data, err = os.ReadFile(path)
		if err == nil {
			usedPath = path
			break
		}
	}

	if err != nil {
		return nil, fmt.Errorf("cannot read configuration file from any of the locations: %v. Last error: %w", paths, err)
	}

	cfg, err := parse(data, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", usedPath, err)
	}

	logger.LogInfo("✅ Configuration loaded successfully from %s (version: %s)", usedPath, cfg.Version)
	return cfg, nil
}

// LoadConfigFromString loads configuration from a YAML string (for testing)
func LoadConfigFromString(yamlContent string) (*Config, error) {
	return parse([]byte(yamlContent), func(string) (string, bool) { return "", false })
}

// LoadConfigFromStringWithEnv is LoadConfigFromString with an explicit environment lookup
func LoadConfigFromStringWithEnv(yamlContent string, lookup func(string) (string, bool)) (*Config, error) {
	return parse([]byte(yamlContent), lookup)
}

func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var versionCheck VersionInfo
	if err := yaml.Unmarshal(data, &versionCheck); err != nil {
		return nil, fmt.Errorf("error parsing configuration version: %w", err)
	}
	if versionCheck.Version == "" {
		logger.LogWarn("No 'version' field in configuration, assuming %s", CurrentVersion)
	} else if err := ValidateVersion(versionCheck.Version); err != nil {
		return nil, err
	} else if note := UpgradeNote(versionCheck.Version); note != "" {
		logger.LogInfo("Configuration version %s: %s", versionCheck.Version, note)
	}

	cfg := Default()
	// known_ids and init_commands replace the defaults wholesale when present
	cfg.Device.KnownIDs = nil
	cfg.Device.InitCommands = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing configuration: %w", err)
	}
	if cfg.Device.KnownIDs == nil {
		cfg.Device.KnownIDs = Default().Device.KnownIDs
	}
	if cfg.Device.InitCommands == nil {
		cfg.Device.InitCommands = Default().Device.InitCommands
	}
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv applies the environment overrides the deployment scripts set
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("ARDUINO_PORT"); ok && v != "" {
		c.Device.Port = v
	}
	if v, ok := lookup("AUTO_DETECT_ARDUINO"); ok && v != "" {
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return fmt.Errorf("AUTO_DETECT_ARDUINO: %w", err)
		}
		c.Device.AutoDetect = b
	}
	if v, ok := lookup("MAX_PRESSURE_BAR"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MAX_PRESSURE_BAR: %w", err)
		}
		c.Rules.MaxPressure = f
	}
	if v, ok := lookup("CRITICAL_CONCENTRATION"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CRITICAL_CONCENTRATION: %w", err)
		}
		c.Rules.CriticalConcentration = f
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Database.URL = v
		c.Database.Enabled = true
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Device.Port == "" {
		return fmt.Errorf("device.port is not specified (use \"auto\" for discovery only)")
	}
	if !c.Device.AutoDetect && strings.EqualFold(c.Device.Port, "auto") {
		return fmt.Errorf("device.port is \"auto\" but device.auto_detect is disabled")
	}
	if c.Device.BaudRate <= 0 {
		return fmt.Errorf("device.baud_rate must be positive")
	}
	if c.Device.ReconnectInterval <= 0 {
		return fmt.Errorf("device.reconnect_interval must be positive")
	}
	if c.Device.CommandTimeout <= 0 {
		return fmt.Errorf("device.command_timeout must be positive")
	}
	if c.Device.PollInterval <= 0 {
		return fmt.Errorf("device.poll_interval must be positive")
	}
	if c.Device.ResetDelay < 0 {
		return fmt.Errorf("device.reset_delay must be non-negative")
	}
	for _, id := range c.Device.KnownIDs {
		if id.VID == "" {
			return fmt.Errorf("device.known_ids entry without vid")
		}
	}
	for _, cmd := range c.Device.InitCommands {
		if !models.IsKnownCommand(cmd) {
			return fmt.Errorf("device.init_commands contains unknown command %q", cmd)
		}
	}

	if c.Rules.MaxPressure <= 0 {
		return fmt.Errorf("rules.max_pressure must be positive")
	}
	if c.Rules.CriticalConcentration <= 0 {
		return fmt.Errorf("rules.critical_concentration must be positive")
	}
	if c.Rules.MinSourceConcentration < 0 {
		return fmt.Errorf("rules.min_src_concentration must be non-negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.AuthTimeout <= 0 || c.Server.HeartbeatInterval <= 0 || c.Server.SendTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	for i, tok := range c.Auth.Tokens {
		if tok.Token == "" || tok.Principal == "" {
			return fmt.Errorf("auth.tokens[%d] needs token and principal", i)
		}
		switch tok.Role {
		case RoleAdmin, RoleOperator, RoleViewer:
		default:
			return fmt.Errorf("auth.tokens[%d] has unknown role %q", i, tok.Role)
		}
	}

	if c.Database.Enabled && c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("database.host is not specified")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is not specified")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is not specified")
		}
		if c.MQTT.Port <= 0 {
			return fmt.Errorf("mqtt.port must be positive")
		}
		if c.MQTT.DiscoveryPrefix != "" && c.MQTT.DeviceID == "" {
			return fmt.Errorf("mqtt.device_id is required when mqtt.discovery_prefix is set")
		}
	}

	if len(c.Auth.Tokens) == 0 {
		logger.LogWarn("auth.tokens is empty, every websocket and API request will be rejected")
	}
	return nil
}

// Roles understood by the façade
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)
