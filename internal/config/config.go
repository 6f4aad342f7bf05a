package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConnectorType identifies which transport backend should be used.
type ConnectorType string

const (
	ConnectorTCP    ConnectorType = "tcp"
	ConnectorSerial ConnectorType = "serial"

	DefaultDevicePort    = 8088
	DefaultSerialBaud    = 115200
	DefaultHTTPListen    = ":5000"
	DefaultProbeTimeout  = 400
	DefaultProbeWorkers  = 64
	DefaultRetryInterval = 8
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// ConnectionConfig contains connector-specific connection parameters.
// An empty Host with the tcp connector means the device address is
// unknown and must be discovered.
type ConnectionConfig struct {
	Connector  ConnectorType `json:"connector"`
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	SerialPort string        `json:"serial_port"`
	SerialBaud int           `json:"serial_baud"`
}

// DiscoveryConfig tunes the subnet scanner.
type DiscoveryConfig struct {
	Enabled        bool `json:"enabled"`
	ProbeTimeoutMS int  `json:"probe_timeout_ms"`
	Workers        int  `json:"workers"`
}

// DeviceConfig tunes the connection supervisor.
type DeviceConfig struct {
	RetryIntervalS int  `json:"retry_interval_s"`
	AutoStart      bool `json:"auto_start"`
}

// HTTPConfig configures the collaborator-facing HTTP API.
type HTTPConfig struct {
	Listen string `json:"listen"`
}

// NotificationConfig stores desktop notification preferences.
type NotificationConfig struct {
	ConnectionStatus bool `json:"connection_status"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Connection    ConnectionConfig   `json:"connection"`
	Discovery     DiscoveryConfig    `json:"discovery"`
	Device        DeviceConfig       `json:"device"`
	HTTP          HTTPConfig         `json:"http"`
	Logging       LoggingConfig      `json:"logging"`
	Notifications NotificationConfig `json:"notifications"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			Connector:  ConnectorTCP,
			Host:       "",
			Port:       DefaultDevicePort,
			SerialPort: "",
			SerialBaud: DefaultSerialBaud,
		},
		Discovery: DiscoveryConfig{
			Enabled:        true,
			ProbeTimeoutMS: DefaultProbeTimeout,
			Workers:        DefaultProbeWorkers,
		},
		Device: DeviceConfig{
			RetryIntervalS: DefaultRetryInterval,
			AutoStart:      true,
		},
		HTTP: HTTPConfig{
			Listen: DefaultHTTPListen,
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		Notifications: NotificationConfig{
			ConnectionStatus: false,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by app runtime and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Connection.Connector == "" {
		c.Connection.Connector = ConnectorTCP
	}
	if c.Connection.Port <= 0 {
		c.Connection.Port = DefaultDevicePort
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if c.Discovery.ProbeTimeoutMS <= 0 {
		c.Discovery.ProbeTimeoutMS = DefaultProbeTimeout
	}
	if c.Discovery.Workers <= 0 {
		c.Discovery.Workers = DefaultProbeWorkers
	}
	if c.Device.RetryIntervalS <= 0 {
		c.Device.RetryIntervalS = DefaultRetryInterval
	}
	if strings.TrimSpace(c.HTTP.Listen) == "" {
		c.HTTP.Listen = DefaultHTTPListen
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c AppConfig) Validate() error {
	switch c.Connection.Connector {
	case ConnectorTCP:
		if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
			return fmt.Errorf("invalid device port: %d", c.Connection.Port)
		}
		if strings.TrimSpace(c.Connection.Host) == "" && !c.Discovery.Enabled {
			return errors.New("tcp host is required when discovery is disabled")
		}
	case ConnectorSerial:
		if strings.TrimSpace(c.Connection.SerialPort) == "" {
			return errors.New("serial port is required")
		}
		if c.Connection.SerialBaud <= 0 {
			return errors.New("serial baud must be positive")
		}
	default:
		return fmt.Errorf("unknown connector: %s", c.Connection.Connector)
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
