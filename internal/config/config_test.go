package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"handraise/pkg/database"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// FUNCTIONAL VALIDATION TEST: Default configuration provides production-ready settings
func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if config.Database.Driver != database.DriverSQLite {
		t.Errorf("Expected sqlite by default, got %s", config.Database.Driver)
	}
	if config.Jobs.MaxClassDuration != 6*time.Hour || config.Jobs.AutoCloseSchedule != "@every 5m" {
		t.Errorf("Unexpected job defaults %+v", config.Jobs)
	}
	if config.Redis.Enabled() {
		t.Error("Redis should be disabled by default")
	}
	if config.HTTP.RateLimit != 100 {
		t.Errorf("Expected 100 requests per minute, got %d", config.HTTP.RateLimit)
	}
}

// FUNCTIONAL VALIDATION TEST: Configuration validation prevents invalid settings
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = -1 }, "port"},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }, "host"},
		{"empty sqlite path", func(c *Config) { c.Database.DatabasePath = "" }, "database"},
		{"postgres without url", func(c *Config) { c.Database.Driver = database.DriverPostgres }, "database url"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mongo" }, "unknown database driver"},
		{"pong before ping", func(c *Config) { c.WebSocket.PongWait = c.WebSocket.PingInterval }, "pong wait"},
		{"no hub queue", func(c *Config) { c.Notifications.HubQueueSize = 0 }, "queue size"},
		{"negative duration", func(c *Config) { c.Jobs.MaxClassDuration = -time.Minute }, "negative"},
		{"empty schedule", func(c *Config) { c.Jobs.AutoCloseSchedule = "" }, "schedules"},
		{"no rate limit", func(c *Config) { c.HTTP.RateLimit = 0 }, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	memory := DefaultConfig()
	memory.Database.Driver = database.DriverMemory
	memory.Database.DatabasePath = ""
	if err := memory.Validate(); err != nil {
		t.Errorf("Memory driver needs no path: %v", err)
	}
}

// FUNCTIONAL VALIDATION TEST: Environment variable configuration loading
func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("HANDRAISE_HTTP_PORT", "9090")
	t.Setenv("HANDRAISE_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("HANDRAISE_REDIS_ADDR", "localhost:6379")
	t.Setenv("HANDRAISE_MAX_CLASS_DURATION", "90m")
	t.Setenv("HANDRAISE_NOTIFICATION_SUPPRESS_RULE", `kind == "new_question"`)
	t.Setenv("HANDRAISE_WEBSOCKET_PING_INTERVAL", "not-a-duration")
	t.Setenv("HANDRAISE_NOTIFICATION_LOG", "true")

	config := LoadFromEnv()

	if config.HTTP.Port != 9090 {
		t.Errorf("Expected HTTP port 9090, got %d", config.HTTP.Port)
	}
	if config.Database.DatabasePath != "/tmp/test.db" {
		t.Errorf("Expected database path /tmp/test.db, got %s", config.Database.DatabasePath)
	}
	if !config.Redis.Enabled() {
		t.Error("Expected redis to be enabled")
	}
	if config.Jobs.MaxClassDuration != 90*time.Minute {
		t.Errorf("Expected 90m, got %v", config.Jobs.MaxClassDuration)
	}
	if config.Notifications.SuppressRule != `kind == "new_question"` {
		t.Errorf("Unexpected rule %q", config.Notifications.SuppressRule)
	}
	if !config.Notifications.LogDeliveries {
		t.Error("Expected delivery logging to be enabled")
	}
	if config.WebSocket.PingInterval != 30*time.Second {
		t.Errorf("Malformed duration should keep the default, got %v", config.WebSocket.PingInterval)
	}
}

// FUNCTIONAL VALIDATION TEST: File-based configuration loading
func TestConfig_LoadFromFile(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"database": {"driver": "memory"},
		"http": {"port": 7070, "read_timeout": "15s"},
		"websocket": {"ping_interval": "10s", "pong_wait": "25s"},
		"notifications": {"hub_queue_size": 50, "suppress_rule": "hour < 8"},
		"jobs": {"max_class_duration": "0s"}
	}`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.Database.Driver != database.DriverMemory || config.HTTP.Port != 7070 {
		t.Errorf("Unexpected config %+v %+v", config.Database, config.HTTP)
	}
	if config.HTTP.ReadTimeout != 15*time.Second || config.HTTP.WriteTimeout != 30*time.Second {
		t.Errorf("Expected read 15s and default write, got %v/%v", config.HTTP.ReadTimeout, config.HTTP.WriteTimeout)
	}
	if config.WebSocket.PongWait != 25*time.Second || config.Notifications.HubQueueSize != 50 {
		t.Errorf("Unexpected websocket/hub settings")
	}
	if config.Jobs.MaxClassDuration != 0 {
		t.Errorf("Expected auto-close disabled, got %v", config.Jobs.MaxClassDuration)
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed json", `{"http": `},
		{"bad duration", `{"http": {"read_timeout": "soon"}}`},
		{"invalid result", `{"http": {"port": 70000}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFromFile(writeFile(t, "config.json", tt.content)); err == nil {
				t.Error("Expected an error")
			}
		})
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

// FUNCTIONAL VALIDATION TEST: file > environment > defaults
func TestConfig_LoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("HANDRAISE_HTTP_PORT", "9090")
	t.Setenv("HANDRAISE_HTTP_HOST", "127.0.0.1")

	path := writeFile(t, "config.json", `{"http": {"port": 7070}}`)
	config, err := LoadConfigWithPrecedence(path)
	if err != nil {
		t.Fatal(err)
	}
	if config.HTTP.Port != 7070 {
		t.Errorf("File should win over env, got port %d", config.HTTP.Port)
	}
	if config.HTTP.Host != "127.0.0.1" {
		t.Errorf("Env should win over defaults, got host %s", config.HTTP.Host)
	}

	config, err = LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Missing file should fall back to env: %v", err)
	}
	if config.HTTP.Port != 9090 {
		t.Errorf("Expected env port 9090, got %d", config.HTTP.Port)
	}

	if _, err := LoadConfigWithPrecedence(writeFile(t, "bad.json", `{`)); err == nil {
		t.Error("A broken config file must not be ignored")
	}
}

func TestConfig_LoadEnvFiles(t *testing.T) {
	path := writeFile(t, ".env", "HANDRAISE_TEST_ONLY_VALUE=from-file\nHANDRAISE_TEST_PRESET=from-file\n")
	t.Setenv("HANDRAISE_TEST_PRESET", "from-env")
	t.Setenv("HANDRAISE_TEST_ONLY_VALUE", "")
	os.Unsetenv("HANDRAISE_TEST_ONLY_VALUE")

	if err := LoadEnvFiles(path, filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadEnvFiles failed: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("HANDRAISE_TEST_ONLY_VALUE") })

	if got := os.Getenv("HANDRAISE_TEST_ONLY_VALUE"); got != "from-file" {
		t.Errorf("Expected value from file, got %q", got)
	}
	if got := os.Getenv("HANDRAISE_TEST_PRESET"); got != "from-env" {
		t.Errorf("Existing variables must not be overridden, got %q", got)
	}
}
