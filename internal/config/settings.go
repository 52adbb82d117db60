package config

import (
	"time"

	"valve-gateway/internal/models"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// DeviceSettings contains only serial link configuration
// Used for dependency injection to avoid coupling to full Config
type DeviceSettings struct {
	Port              string
	BaudRate          int
	AutoDetect        bool
	KnownIDs          []USBID
	ReconnectInterval time.Duration
	CommandTimeout    time.Duration
	HandshakeTimeout  time.Duration
	InitTimeout       time.Duration
	ResetDelay        time.Duration
	PollInterval      time.Duration
	StopTimeout       time.Duration
	InitCommands      []models.CommandName
}

// NewDeviceSettings extracts device settings from full config
func NewDeviceSettings(cfg *Config) DeviceSettings {
	cmds := make([]models.CommandName, 0, len(cfg.Device.InitCommands))
	for _, c := range cfg.Device.InitCommands {
		cmds = append(cmds, models.CommandName(c))
	}

	return DeviceSettings{
		Port:              cfg.Device.Port,
		BaudRate:          cfg.Device.BaudRate,
		AutoDetect:        cfg.Device.AutoDetect,
		KnownIDs:          cfg.Device.KnownIDs,
		ReconnectInterval: ms(cfg.Device.ReconnectInterval),
		CommandTimeout:    ms(cfg.Device.CommandTimeout),
		HandshakeTimeout:  ms(cfg.Device.HandshakeTimeout),
		InitTimeout:       ms(cfg.Device.InitTimeout),
		ResetDelay:        ms(cfg.Device.ResetDelay),
		PollInterval:      ms(cfg.Device.PollInterval),
		StopTimeout:       ms(cfg.Device.StopTimeout),
		InitCommands:      cmds,
	}
}

// ServerSettings contains HTTP and websocket timing
type ServerSettings struct {
	Port              int
	AuthTimeout       time.Duration
	HeartbeatInterval time.Duration
	SendTimeout       time.Duration
}

// NewServerSettings extracts server settings from full config
func NewServerSettings(cfg *Config) ServerSettings {
	return ServerSettings{
		Port:              cfg.Server.Port,
		AuthTimeout:       ms(cfg.Server.AuthTimeout),
		HeartbeatInterval: ms(cfg.Server.HeartbeatInterval),
		SendTimeout:       ms(cfg.Server.SendTimeout),
	}
}

// MQTTSettings contains only MQTT-specific configuration
type MQTTSettings struct {
	Broker            string
	Port              int
	Username          string
	Password          string
	ClientID          string
	RetryDelay        time.Duration
	KeepAlive         time.Duration
	HeartbeatInterval time.Duration
	TopicPrefix       string
	DiscoveryPrefix   string // empty disables Home Assistant discovery
	DeviceID          string
	DeviceName        string
}

// NewMQTTSettings extracts MQTT settings from full config
func NewMQTTSettings(cfg *Config) MQTTSettings {
	return MQTTSettings{
		Broker:            cfg.MQTT.Broker,
		Port:              cfg.MQTT.Port,
		Username:          cfg.MQTT.Username,
		Password:          cfg.MQTT.Password,
		ClientID:          cfg.MQTT.ClientID,
		RetryDelay:        ms(cfg.MQTT.RetryDelay),
		KeepAlive:         time.Duration(cfg.MQTT.KeepAlive) * time.Second,
		HeartbeatInterval: time.Duration(cfg.MQTT.HeartbeatInterval) * time.Second,
		TopicPrefix:       cfg.MQTT.TopicPrefix,
		DiscoveryPrefix:   cfg.MQTT.DiscoveryPrefix,
		DeviceID:          cfg.MQTT.DeviceID,
		DeviceName:        cfg.MQTT.DeviceName,
	}
}

// CacheSettings contains redis cache configuration
type CacheSettings struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewCacheSettings extracts cache settings from full config
func NewCacheSettings(cfg *Config) CacheSettings {
	return CacheSettings{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       time.Duration(cfg.Redis.TTL) * time.Second,
	}
}

// WatchdogSettings contains telemetry staleness monitoring configuration
type WatchdogSettings struct {
	CheckInterval time.Duration
	GracePeriod   time.Duration
}

// NewWatchdogSettings derives watchdog timing from the device settings
func NewWatchdogSettings(cfg *Config) WatchdogSettings {
	return WatchdogSettings{
		CheckInterval: 5 * time.Second,
		GracePeriod:   3 * ms(cfg.Device.ReconnectInterval),
	}
}
