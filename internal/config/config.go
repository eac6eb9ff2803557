// Package config provides configuration management for the storefront server.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// APP_* environment variables, then command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultAuthMode        = "none"
	DefaultDataDir         = "data"
	DefaultItemsFile       = "products.json"
	DefaultCartsFile       = "carts.json"
	DefaultWSEventRate     = 10.0
	DefaultWSEventBurst    = 20
	DefaultWSSendQueue     = 16
)

// Environment variable names.
const (
	EnvConfigFile      = "APP_CONFIG_FILE"
	EnvServerPort      = "APP_SERVER_PORT"
	EnvLogLevel        = "APP_LOG_LEVEL"
	EnvShutdownTimeout = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled  = "APP_METRICS_ENABLED"
	EnvOTLPEndpoint    = "APP_OTLP_ENDPOINT"
	EnvDataDir         = "APP_DATA_DIR"
	EnvItemsFile       = "APP_ITEMS_FILE"
	EnvCartsFile       = "APP_CARTS_FILE"
	EnvWSEventRate     = "APP_WS_EVENT_RATE"
	EnvWSEventBurst    = "APP_WS_EVENT_BURST"
	EnvWSSendQueue     = "APP_WS_SEND_QUEUE"
	EnvAuthMode        = "APP_AUTH_MODE"
	EnvBasicAuthUsers  = "APP_BASIC_AUTH_USERS"
	EnvAPIKeys         = "APP_API_KEYS" //nolint:gosec // env var name, not a credential
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int           `yaml:"server_port"`
	LogLevel        string        `yaml:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	OTLPEndpoint    string        `yaml:"otlp_endpoint"`

	// Storage settings. File names are resolved against DataDir unless absolute.
	DataDir   string `yaml:"data_dir"`
	ItemsFile string `yaml:"items_file"`
	CartsFile string `yaml:"carts_file"`

	// Real-time channel settings.
	WSEventRate  float64 `yaml:"ws_event_rate"`
	WSEventBurst int     `yaml:"ws_event_burst"`
	WSSendQueue  int     `yaml:"ws_send_queue"`

	// Authentication mode: none, basic, apikey, multi.
	AuthMode string `yaml:"auth_mode"`

	// Basic auth settings (format: "user1:bcrypt_hash,user2:bcrypt_hash").
	BasicAuthUsers string `yaml:"basic_auth_users"`

	// API key settings (format: "key1:name1,key2:name2").
	APIKeys string `yaml:"api_keys"`
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidDataFiles       = errors.New("data dir, items file and carts file must be set")
	ErrSameDataFile           = errors.New("items and carts must be stored in different files")
	ErrInvalidWSEventRate     = errors.New("websocket event rate must not be negative")
	ErrInvalidWSEventBurst    = errors.New("websocket event burst must be positive when a rate is set")
	ErrInvalidWSSendQueue     = errors.New("websocket send queue must be positive")
	ErrInvalidAuthMode        = errors.New("auth mode must be one of: none, basic, apikey, multi")
	ErrInvalidBasicAuthConfig = errors.New(
		"basic auth users must be set when auth mode is basic",
	)
	ErrInvalidAPIKeyConfig = errors.New(
		"API keys must be set when auth mode is apikey",
	)
	ErrInvalidMultiAuthConfig = errors.New(
		"basic auth users or API keys must be set when auth mode is multi",
	)
)

// Default returns a Config holding the built-in defaults.
func Default() *Config {
	return &Config{
		ServerPort:      DefaultServerPort,
		LogLevel:        DefaultLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  DefaultMetricsEnabled,
		DataDir:         DefaultDataDir,
		ItemsFile:       DefaultItemsFile,
		CartsFile:       DefaultCartsFile,
		WSEventRate:     DefaultWSEventRate,
		WSEventBurst:    DefaultWSEventBurst,
		WSSendQueue:     DefaultWSSendQueue,
		AuthMode:        DefaultAuthMode,
	}
}

// Load builds the configuration. path names an optional YAML file; when
// empty, APP_CONFIG_FILE is consulted. Overrides run after the
// environment has been applied and before validation.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile merges a YAML file over the current values. Keys absent
// from the file keep their defaults.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	c.loadStorageEnv()

	if err := c.loadWebSocketEnv(); err != nil {
		return err
	}

	c.loadAuthEnv()

	return nil
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	if val := os.Getenv(EnvOTLPEndpoint); val != "" {
		c.OTLPEndpoint = val
	}

	return nil
}

// loadStorageEnv loads data file locations.
func (c *Config) loadStorageEnv() {
	if val := os.Getenv(EnvDataDir); val != "" {
		c.DataDir = val
	}

	if val := os.Getenv(EnvItemsFile); val != "" {
		c.ItemsFile = val
	}

	if val := os.Getenv(EnvCartsFile); val != "" {
		c.CartsFile = val
	}
}

// loadWebSocketEnv loads real-time channel tuning.
func (c *Config) loadWebSocketEnv() error {
	if val := os.Getenv(EnvWSEventRate); val != "" {
		rate, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvWSEventRate, err)
		}
		c.WSEventRate = rate
	}

	if val := os.Getenv(EnvWSEventBurst); val != "" {
		burst, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvWSEventBurst, err)
		}
		c.WSEventBurst = burst
	}

	if val := os.Getenv(EnvWSSendQueue); val != "" {
		queue, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvWSSendQueue, err)
		}
		c.WSSendQueue = queue
	}

	return nil
}

// loadAuthEnv loads authentication environment variables.
func (c *Config) loadAuthEnv() {
	if val := os.Getenv(EnvAuthMode); val != "" {
		c.AuthMode = val
	}

	if val := os.Getenv(EnvBasicAuthUsers); val != "" {
		c.BasicAuthUsers = val
	}

	if val := os.Getenv(EnvAPIKeys); val != "" {
		c.APIKeys = val
	}
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateWebSocket(); err != nil {
		return err
	}

	return c.validateAuth()
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

func (c *Config) validateStorage() error {
	if c.DataDir == "" || c.ItemsFile == "" || c.CartsFile == "" {
		return ErrInvalidDataFiles
	}
	if c.ItemsPath() == c.CartsPath() {
		return ErrSameDataFile
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	if c.WSEventRate < 0 {
		return ErrInvalidWSEventRate
	}
	if c.WSEventRate > 0 && c.WSEventBurst < 1 {
		return ErrInvalidWSEventBurst
	}
	if c.WSSendQueue < 1 {
		return ErrInvalidWSSendQueue
	}
	return nil
}

// validateAuth validates the auth mode and its required settings.
func (c *Config) validateAuth() error {
	switch c.authModeOrDefault() {
	case "none":
	case "basic":
		if c.BasicAuthUsers == "" {
			return ErrInvalidBasicAuthConfig
		}
	case "apikey":
		if c.APIKeys == "" {
			return ErrInvalidAPIKeyConfig
		}
	case "multi":
		if c.BasicAuthUsers == "" && c.APIKeys == "" {
			return ErrInvalidMultiAuthConfig
		}
	default:
		return ErrInvalidAuthMode
	}

	return nil
}

// authModeOrDefault returns the auth mode, defaulting to "none" if empty.
func (c *Config) authModeOrDefault() string {
	if c.AuthMode == "" {
		return DefaultAuthMode
	}
	return c.AuthMode
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// ItemsPath returns the location of the item collection file.
func (c *Config) ItemsPath() string {
	return c.resolve(c.ItemsFile)
}

// CartsPath returns the location of the cart collection file.
func (c *Config) CartsPath() string {
	return c.resolve(c.CartsFile)
}

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(c.DataDir, name)
}
