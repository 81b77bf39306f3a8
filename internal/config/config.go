package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"handraise/pkg/database"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "HANDRAISE_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database      *database.Config     `json:"database"`
	HTTP          *HTTPConfig          `json:"http"`
	WebSocket     *WebSocketConfig     `json:"websocket"`
	Redis         *RedisConfig         `json:"redis"`
	Notifications *NotificationsConfig `json:"notifications"`
	Jobs          *JobsConfig          `json:"jobs"`
}

// FUNCTIONAL DISCOVERY: HTTP configuration balances performance and reliability
type HTTPConfig struct {
	Port              int           `json:"port"`
	Host              string        `json:"host"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	RateLimit         int           `json:"rate_limit"`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	PongWait     time.Duration `json:"pong_wait"`
}

// RedisConfig enables cross-process notification dedup when Addr is set.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Enabled reports whether a redis server is configured.
func (r *RedisConfig) Enabled() bool {
	return r != nil && r.Addr != ""
}

// NotificationsConfig sizes the dispatch hub and holds the suppression rule.
type NotificationsConfig struct {
	HubQueueSize  int    `json:"hub_queue_size"`
	SuppressRule  string `json:"suppress_rule"`
	LogDeliveries bool   `json:"log_deliveries"` // copy deliveries to the process log
}

// JobsConfig schedules the maintenance jobs. A zero MaxClassDuration
// disables auto-close.
type JobsConfig struct {
	AutoCloseSchedule string        `json:"auto_close_schedule"`
	MaxClassDuration  time.Duration `json:"max_class_duration"`
	CleanupSchedule   string        `json:"cleanup_schedule"`
}

// FUNCTIONAL DISCOVERY: Production-ready defaults based on classroom requirements
// Embedded SQLite store, HTTP on standard port, WebSocket with 30s heartbeat
func DefaultConfig() *Config {
	return &Config{
		Database: database.DefaultConfig(),
		HTTP: &HTTPConfig{
			Port:              8080,
			Host:              "0.0.0.0",
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			RateLimit:         100,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			PongWait:     60 * time.Second,
		},
		Redis: &RedisConfig{},
		Notifications: &NotificationsConfig{
			HubQueueSize: 1000,
		},
		Jobs: &JobsConfig{
			AutoCloseSchedule: "@every 5m",
			MaxClassDuration:  6 * time.Hour,
			CleanupSchedule:   "@every 5m",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	// Port 0 asks the kernel for a free port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.ReadHeaderTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.HTTP.RateLimit <= 0 {
		return fmt.Errorf("HTTP rate limit must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	// TECHNICAL DISCOVERY: A pong wait shorter than the ping interval drops healthy peers
	if c.WebSocket.PongWait <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket pong wait must exceed the ping interval")
	}

	if c.Notifications == nil || c.Notifications.HubQueueSize <= 0 {
		return fmt.Errorf("notification hub queue size must be positive")
	}

	if c.Jobs == nil {
		return fmt.Errorf("jobs configuration is required")
	}
	if c.Jobs.AutoCloseSchedule == "" || c.Jobs.CleanupSchedule == "" {
		return fmt.Errorf("job schedules cannot be empty")
	}
	if c.Jobs.MaxClassDuration < 0 {
		return fmt.Errorf("max class duration cannot be negative")
	}

	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	return nil
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		log.Printf("Loaded environment from %s", path)
	}
	return nil
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// Malformed values are ignored and the default kept
func LoadFromEnv() *Config {
	config := DefaultConfig()

	envString("DATABASE_DRIVER", &config.Database.Driver)
	envString("DATABASE_PATH", &config.Database.DatabasePath)
	envString("DATABASE_URL", &config.Database.DatabaseURL)
	envInt("DATABASE_MAX_CONNECTIONS", &config.Database.MaxConnections)
	envString("DATABASE_NOTIFY_CHANNEL", &config.Database.NotifyChannel)

	envInt("HTTP_PORT", &config.HTTP.Port)
	envString("HTTP_HOST", &config.HTTP.Host)
	envDuration("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	envInt("HTTP_RATE_LIMIT", &config.HTTP.RateLimit)

	envDuration("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("WEBSOCKET_PONG_WAIT", &config.WebSocket.PongWait)

	envString("REDIS_ADDR", &config.Redis.Addr)
	envString("REDIS_PASSWORD", &config.Redis.Password)
	envInt("REDIS_DB", &config.Redis.DB)

	envInt("HUB_QUEUE_SIZE", &config.Notifications.HubQueueSize)
	envString("NOTIFICATION_SUPPRESS_RULE", &config.Notifications.SuppressRule)
	if v := os.Getenv(EnvPrefix + "NOTIFICATION_LOG"); v != "" {
		config.Notifications.LogDeliveries = v == "true" || v == "1"
	}

	envString("AUTO_CLOSE_SCHEDULE", &config.Jobs.AutoCloseSchedule)
	envDuration("MAX_CLASS_DURATION", &config.Jobs.MaxClassDuration)

	return config
}

func envString(key string, dst *string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Database      *DatabaseConfigFile      `json:"database"`
	HTTP          *HTTPConfigFile          `json:"http"`
	WebSocket     *WebSocketConfigFile     `json:"websocket"`
	Redis         *RedisConfig             `json:"redis"`
	Notifications *NotificationsConfigFile `json:"notifications"`
	Jobs          *JobsConfigFile          `json:"jobs"`
}

type DatabaseConfigFile struct {
	Driver         string `json:"driver"`
	Path           string `json:"path"`
	URL            string `json:"url"`
	MaxConnections int    `json:"max_connections"`
	NotifyChannel  string `json:"notify_channel"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	RateLimit    int    `json:"rate_limit"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	PongWait     string `json:"pong_wait"`
}

type NotificationsConfigFile struct {
	HubQueueSize  int     `json:"hub_queue_size"`
	SuppressRule  *string `json:"suppress_rule"`
	LogDeliveries *bool   `json:"log_deliveries"`
}

type JobsConfigFile struct {
	AutoCloseSchedule string `json:"auto_close_schedule"`
	MaxClassDuration  string `json:"max_class_duration"`
	CleanupSchedule   string `json:"cleanup_schedule"`
}

// FUNCTIONAL DISCOVERY: File-based configuration supports complex deployment scenarios
func LoadFromFile(filepath string) (*Config, error) {
	return loadFile(filepath, DefaultConfig())
}

func loadFile(filepath string, config *Config) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if err := file.apply(config); err != nil {
		return nil, fmt.Errorf("invalid value in %s: %w", filepath, err)
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

// apply overlays the values present in the file onto config. Unlike
// environment variables, a malformed duration in a file is an error.
func (f *ConfigFile) apply(config *Config) error {
	if db := f.Database; db != nil {
		setString(&config.Database.Driver, db.Driver)
		setString(&config.Database.DatabasePath, db.Path)
		setString(&config.Database.DatabaseURL, db.URL)
		setString(&config.Database.NotifyChannel, db.NotifyChannel)
		setInt(&config.Database.MaxConnections, db.MaxConnections)
	}

	if h := f.HTTP; h != nil {
		setInt(&config.HTTP.Port, h.Port)
		setString(&config.HTTP.Host, h.Host)
		setInt(&config.HTTP.RateLimit, h.RateLimit)
		if err := setDuration(&config.HTTP.ReadTimeout, h.ReadTimeout); err != nil {
			return err
		}
		if err := setDuration(&config.HTTP.WriteTimeout, h.WriteTimeout); err != nil {
			return err
		}
	}

	if ws := f.WebSocket; ws != nil {
		if err := setDuration(&config.WebSocket.PingInterval, ws.PingInterval); err != nil {
			return err
		}
		if err := setDuration(&config.WebSocket.PongWait, ws.PongWait); err != nil {
			return err
		}
	}

	if f.Redis != nil {
		config.Redis = f.Redis
	}

	if n := f.Notifications; n != nil {
		setInt(&config.Notifications.HubQueueSize, n.HubQueueSize)
		if n.SuppressRule != nil {
			config.Notifications.SuppressRule = *n.SuppressRule
		}
		if n.LogDeliveries != nil {
			config.Notifications.LogDeliveries = *n.LogDeliveries
		}
	}

	if j := f.Jobs; j != nil {
		setString(&config.Jobs.AutoCloseSchedule, j.AutoCloseSchedule)
		setString(&config.Jobs.CleanupSchedule, j.CleanupSchedule)
		if err := setDuration(&config.Jobs.MaxClassDuration, j.MaxClassDuration); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
// Enables flexible deployment patterns while maintaining sane defaults
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config := LoadFromEnv()

	if filepath != "" {
		fileConfig, err := loadFile(filepath, config)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Printf("Config file %s not found, using environment and defaults", filepath)
			} else {
				return nil, err
			}
		} else {
			return fileConfig, nil
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
