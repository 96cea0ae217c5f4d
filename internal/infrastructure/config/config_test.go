package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
controller:
  address: "10.0.0.4:11000"
  local_address: "0.0.0.0:11001"
  timeout: 1500
cache:
  path: "/tmp/local.json"
sync:
  enabled: true
  interval: "10"
database:
  path: "/tmp/test.db"
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Controller.Address != "10.0.0.4:11000" {
		t.Errorf("Controller.Address = %q, want %q", cfg.Controller.Address, "10.0.0.4:11000")
	}
	if cfg.GetControllerTimeout() != 1500*time.Millisecond {
		t.Errorf("GetControllerTimeout() = %s, want 1.5s", cfg.GetControllerTimeout())
	}
	if cfg.Cache.Path != "/tmp/local.json" {
		t.Errorf("Cache.Path = %q, want %q", cfg.Cache.Path, "/tmp/local.json")
	}
	if cfg.Sync.Interval != "10" {
		t.Errorf("Sync.Interval = %q, want %q", cfg.Sync.Interval, "10")
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.TopicPrefix != "localectl" {
		t.Errorf("MQTT = %+v, want enabled with default prefix", cfg.MQTT)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
controller:
  address: "no-port"
cache:
  path: ""
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"controller.address", "cache.path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"controller without port", func(c *Config) { c.Controller.Address = "192.168.0.4" }, true},
		{"controller port zero", func(c *Config) { c.Controller.Address = "192.168.0.4:0" }, true},
		{"bad local address", func(c *Config) { c.Controller.LocalAddress = "11001" }, true},
		{"zero timeout", func(c *Config) { c.Controller.Timeout = 0 }, true},
		{"missing cache path", func(c *Config) { c.Cache.Path = "" }, true},
		{"interval seconds", func(c *Config) { c.Sync.Interval = "30" }, false},
		{"interval garbage", func(c *Config) { c.Sync.Interval = "often" }, true},
		{"interval ignored when disabled", func(c *Config) { c.Sync.Enabled = false; c.Sync.Interval = "often" }, false},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"database disabled", func(c *Config) { c.Database.Enabled = false; c.Database.Path = "" }, false},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"mqtt without prefix", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.TopicPrefix = "" }, true},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, true},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{HistoryRetention: 2},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetHistoryRetention(); got != 48*time.Hour {
		t.Errorf("GetHistoryRetention() = %v, want 48h", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("LOCALECTL_CONTROLLER_ADDRESS", "10.1.1.1:11000")
	t.Setenv("LOCALECTL_CONTROLLER_LOCAL_ADDRESS", "0.0.0.0:12001")
	t.Setenv("LOCALECTL_CACHE_PATH", "/custom/local.json")
	t.Setenv("LOCALECTL_SYNC_INTERVAL", "1m")
	t.Setenv("LOCALECTL_SYNC_ENABLED", "false")
	t.Setenv("LOCALECTL_DATABASE_PATH", "/custom/path.db")
	t.Setenv("LOCALECTL_MQTT_HOST", "mqtt.example.com")
	t.Setenv("LOCALECTL_MQTT_USERNAME", "testuser")
	t.Setenv("LOCALECTL_MQTT_PASSWORD", "testpass")
	t.Setenv("LOCALECTL_API_HOST", "192.168.1.1")
	t.Setenv("LOCALECTL_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("LOCALECTL_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Controller.Address", cfg.Controller.Address, "10.1.1.1:11000"},
		{"Controller.LocalAddress", cfg.Controller.LocalAddress, "0.0.0.0:12001"},
		{"Cache.Path", cfg.Cache.Path, "/custom/local.json"},
		{"Sync.Interval", cfg.Sync.Interval, "1m"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.name, c.got, c.want)
		}
	}
	if cfg.Sync.Enabled {
		t.Error("Sync.Enabled = true, want false from LOCALECTL_SYNC_ENABLED")
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("LOCALECTL_CONFIG", "")
	if got := ResolvePath(""); got != DefaultPath {
		t.Errorf("ResolvePath(\"\") = %q, want %q", got, DefaultPath)
	}

	t.Setenv("LOCALECTL_CONFIG", "/etc/localectl.yaml")
	if got := ResolvePath(""); got != "/etc/localectl.yaml" {
		t.Errorf("ResolvePath(\"\") = %q, want env value", got)
	}
	if got := ResolvePath("/flag.yaml"); got != "/flag.yaml" {
		t.Errorf("ResolvePath(flag) = %q, want flag value", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Controller.Address != "192.168.0.4:11000" {
		t.Errorf("defaultConfig Controller.Address = %q", cfg.Controller.Address)
	}
	if cfg.Controller.LocalAddress != "0.0.0.0:11001" {
		t.Errorf("defaultConfig Controller.LocalAddress = %q", cfg.Controller.LocalAddress)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig does not validate: %v", err)
	}
}
