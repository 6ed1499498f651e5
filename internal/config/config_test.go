package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "{}\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:1234", cfg.BridgeAddr())
	assert.Equal(t, BackendSim, cfg.Backend.Kind)
	assert.Equal(t, 9600, cfg.Backend.Serial.BaudRate)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Dashboard.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
bridge:
  host: 127.0.0.1
  port: 5555
backend:
  kind: serial
  serial:
    baud_rate: 115200
    read_timeout: 250ms
logging:
  level: debug
  file: /tmp/bridge.log
dashboard:
  enabled: true
  addr: 0.0.0.0:9000
scenario:
  path: scenarios/dcv.yaml
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:5555", cfg.BridgeAddr())
	assert.Equal(t, BackendSerial, cfg.Backend.Kind)
	assert.Equal(t, 115200, cfg.Backend.Serial.BaudRate)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/bridge.log", cfg.Logging.File)
	assert.True(t, cfg.Dashboard.Enabled)
	assert.Equal(t, "scenarios/dcv.yaml", cfg.Scenario.Path)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad backend kind", yaml: "backend:\n  kind: usb\n"},
		{name: "bad log level", yaml: "logging:\n  level: verbose\n"},
		{name: "bridge port out of range", yaml: "bridge:\n  port: 70000\n"},
		{name: "client port zero", yaml: "client:\n  port: 0\n"},
		{name: "dashboard enabled without addr", yaml: "dashboard:\n  enabled: true\n  addr: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSerialPortMap(t *testing.T) {
	path := writeConfig(t, `
backend:
  kind: serial
  serial:
    ports:
      22: /dev/ttyUSB0
      13: /dev/ttyUSB1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	ports, err := cfg.Backend.Serial.PortMap()
	require.NoError(t, err)
	assert.Equal(t, map[int]string{22: "/dev/ttyUSB0", 13: "/dev/ttyUSB1"}, ports)

	bad := SerialConfig{Ports: map[string]string{"first": "/dev/ttyUSB0"}}
	_, err = bad.PortMap()
	assert.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GPIB_BRIDGE_LOGGING_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
