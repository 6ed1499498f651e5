// Package config loads the bridge and runner configuration from a YAML file
// and environment variables.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend kinds for the bridge's instrument side.
const (
	BackendSim    = "sim"
	BackendSerial = "serial"
)

// Config is the application configuration shared by the bridge daemon and
// the scenario runner.
type Config struct {
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Client    ClientConfig    `mapstructure:"client"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scenario  ScenarioConfig  `mapstructure:"scenario"`
}

// BridgeConfig configures the bridge daemon's listener.
type BridgeConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Board       int           `mapstructure:"board"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// BackendConfig selects and configures the bridge's instrument backend.
type BackendConfig struct {
	Kind   string       `mapstructure:"kind"`
	Sim    SimConfig    `mapstructure:"sim"`
	Serial SerialConfig `mapstructure:"serial"`
}

// SimConfig configures the simulated-instrument backend. An empty
// definitions path selects the built-in device definitions.
type SimConfig struct {
	Definitions string `mapstructure:"definitions"`
}

// SerialConfig configures the serial-line backend. Ports maps GPIB primary
// addresses to serial device paths so controller clients can address
// serial-attached instruments by GPIB address.
type SerialConfig struct {
	BaudRate    int               `mapstructure:"baud_rate"`
	ReadTimeout time.Duration     `mapstructure:"read_timeout"`
	Terminator  string            `mapstructure:"terminator"`
	Ports       map[string]string `mapstructure:"ports"`
}

// PortMap parses the serial port map's keys into GPIB primary addresses.
func (c *SerialConfig) PortMap() (map[int]string, error) {
	ports := make(map[int]string, len(c.Ports))
	for key, path := range c.Ports {
		addr, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("config: backend.serial.ports key %q is not a GPIB address", key)
		}
		ports[addr] = path
	}

	return ports, nil
}

// ClientConfig configures the runner's connection to a bridge.
type ClientConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	TransportTimeout time.Duration `mapstructure:"transport_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
}

// DashboardConfig configures the runner's WebSocket event hub.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig configures log level and optional file output.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	MaxSize int    `mapstructure:"max_size"` // megabytes, file output only
}

// ScenarioConfig carries the runner's default scenario path; the command
// line overrides it.
type ScenarioConfig struct {
	Path string `mapstructure:"path"`
}

// Load reads the configuration from path, overlaid with GPIB_BRIDGE_*
// environment variables. An empty path searches the working directory for
// config.yaml; a missing file there is not an error and yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("GPIB_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bridge.host", "0.0.0.0")
	v.SetDefault("bridge.port", 1234)
	v.SetDefault("bridge.board", 0)
	v.SetDefault("bridge.send_timeout", "3s")

	v.SetDefault("backend.kind", BackendSim)
	v.SetDefault("backend.sim.definitions", "")
	v.SetDefault("backend.serial.baud_rate", 9600)
	v.SetDefault("backend.serial.read_timeout", "1s")
	v.SetDefault("backend.serial.terminator", "\n")

	v.SetDefault("client.host", "127.0.0.1")
	v.SetDefault("client.port", 1234)
	v.SetDefault("client.read_timeout", "1s")
	v.SetDefault("client.transport_timeout", "3s")
	v.SetDefault("client.connect_timeout", "3s")

	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.addr", "127.0.0.1:8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 100)
}

func validate(cfg *Config) error {
	if cfg.Backend.Kind != BackendSim && cfg.Backend.Kind != BackendSerial {
		return fmt.Errorf("config: backend.kind must be %q or %q, got %q",
			BackendSim, BackendSerial, cfg.Backend.Kind)
	}
	if cfg.Backend.Kind == BackendSerial && len(cfg.Backend.Serial.Terminator) != 1 {
		return fmt.Errorf("config: backend.serial.terminator must be a single character")
	}
	if cfg.Bridge.Port < 0 || cfg.Bridge.Port > 65535 {
		return fmt.Errorf("config: bridge.port %d out of range [0, 65535]", cfg.Bridge.Port)
	}
	if cfg.Client.Port < 1 || cfg.Client.Port > 65535 {
		return fmt.Errorf("config: client.port %d out of range [1, 65535]", cfg.Client.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("config: logging.level %q must be one of debug, info, warn, error, fatal", cfg.Logging.Level)
	}

	if cfg.Dashboard.Enabled && cfg.Dashboard.Addr == "" {
		return fmt.Errorf("config: dashboard.addr is required when the dashboard is enabled")
	}

	return nil
}

// BridgeAddr returns the bridge daemon's listen address.
func (c *Config) BridgeAddr() string {
	return fmt.Sprintf("%s:%d", c.Bridge.Host, c.Bridge.Port)
}
