package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all environment variable overrides.
const EnvPrefix = "LEAPBRIDGE"

// Config is the root configuration structure for the LEAP bridge service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Lutron    LutronConfig    `yaml:"lutron"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays bounds the state_history table. 0 keeps
	// everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains admin HTTP API server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	TLS       TLSConfig        `yaml:"tls"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// LutronConfig contains the Lutron LEAP engine settings.
type LutronConfig struct {
	// HealthInterval is how often bridge health is published (seconds).
	HealthInterval int `yaml:"health_interval"`

	// EventQueueSize bounds the hand-off queue between LEAP reader
	// goroutines and the event loop.
	EventQueueSize int `yaml:"event_queue_size"`

	// ResyncInterval is the periodic full-state refresh interval (minutes).
	// 0 disables periodic resync.
	ResyncInterval int `yaml:"resync_interval"`

	// CommandTimeout bounds a single fire-and-forget bridge command (seconds).
	CommandTimeout int `yaml:"command_timeout"`

	// RestartInterval is the first backoff before a failed or lost bridge is
	// restarted (seconds). Negative disables restarts.
	RestartInterval int `yaml:"restart_interval"`

	Gesture GestureConfig  `yaml:"gesture"`
	Bridges []BridgeConfig `yaml:"bridges"`
	Devices []DeviceConfig `yaml:"devices"`
}

// GestureConfig contains multi-tap detection settings.
type GestureConfig struct {
	ClickTimeoutMS     int  `yaml:"click_timeout_ms"`
	TickIntervalMS     int  `yaml:"tick_interval_ms"`
	IndependentWindows bool `yaml:"independent_windows"`
}

// BridgeConfig describes one paired Lutron bridge.
//
// Credentials default to the layout written by pairing:
// {cert_dir}/{address}/leapHub.key, leapHub.crt and leapHub-bridge.crt.
type BridgeConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	Port     int    `yaml:"port"`
	CertDir  string `yaml:"cert_dir"`
	KeyFile  string `yaml:"key_file"`
	CertFile string `yaml:"cert_file"`
	CAFile   string `yaml:"ca_file"`
}

// Credentials returns the resolved key, certificate and CA file paths.
func (b BridgeConfig) Credentials() (keyFile, certFile, caFile string) {
	dir := filepath.Join(b.CertDir, b.Address)
	keyFile, certFile, caFile = b.KeyFile, b.CertFile, b.CAFile
	if keyFile == "" {
		keyFile = filepath.Join(dir, "leapHub.key")
	}
	if certFile == "" {
		certFile = filepath.Join(dir, "leapHub.crt")
	}
	if caFile == "" {
		caFile = filepath.Join(dir, "leapHub-bridge.crt")
	}
	return keyFile, certFile, caFile
}

// DeviceConfig declares a host device backed by a bridge entity.
type DeviceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Bridge   string `yaml:"bridge"`
	NativeID string `yaml:"native_id"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// envOverrides lists the settings that may be overridden from the environment.
// Unset variables leave the loaded value untouched.
type envOverrides struct {
	DatabasePath   *string `envconfig:"DATABASE_PATH"`
	MQTTHost       *string `envconfig:"MQTT_HOST"`
	MQTTPort       *int    `envconfig:"MQTT_PORT"`
	MQTTUsername   *string `envconfig:"MQTT_USERNAME"`
	MQTTPassword   *string `envconfig:"MQTT_PASSWORD"`
	APIHost        *string `envconfig:"API_HOST"`
	APIPort        *int    `envconfig:"API_PORT"`
	InfluxDBURL    *string `envconfig:"INFLUXDB_URL"`
	InfluxDBToken  *string `envconfig:"INFLUXDB_TOKEN"`
	LogLevel       *string `envconfig:"LOG_LEVEL"`
	JWTSecret      *string `envconfig:"JWT_SECRET"`
	ResyncInterval *int    `envconfig:"RESYNC_INTERVAL"`
	ClickTimeoutMS *int    `envconfig:"CLICK_TIMEOUT_MS"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LEAPBRIDGE_SECTION_KEY
// For example: LEAPBRIDGE_DATABASE_PATH, LEAPBRIDGE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Home",
		},
		Database: DatabaseConfig{
			Path:        "./data/leapbridge.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "leapbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 100,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Lutron: LutronConfig{
			HealthInterval:  30,
			EventQueueSize:  256,
			ResyncInterval:  15,
			CommandTimeout:  5,
			RestartInterval: 5,
			Gesture: GestureConfig{
				ClickTimeoutMS: 500,
				TickIntervalMS: 100,
			},
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies LEAPBRIDGE_* environment variables to the configuration.
func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	setString(&cfg.Database.Path, env.DatabasePath)
	setString(&cfg.MQTT.Broker.Host, env.MQTTHost)
	setInt(&cfg.MQTT.Broker.Port, env.MQTTPort)
	setString(&cfg.MQTT.Auth.Username, env.MQTTUsername)
	setString(&cfg.MQTT.Auth.Password, env.MQTTPassword)
	setString(&cfg.API.Host, env.APIHost)
	setInt(&cfg.API.Port, env.APIPort)
	setString(&cfg.InfluxDB.URL, env.InfluxDBURL)
	setString(&cfg.InfluxDB.Token, env.InfluxDBToken)
	setString(&cfg.Logging.Level, env.LogLevel)
	setInt(&cfg.Lutron.ResyncInterval, env.ResyncInterval)
	setInt(&cfg.Lutron.Gesture.ClickTimeoutMS, env.ClickTimeoutMS)

	// Security - JWT secret (IMPORTANT: always override in production)
	setString(&cfg.Security.JWT.Secret, env.JWTSecret)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// validKinds lists the host device kinds the engine can project onto.
var validKinds = map[string]bool{
	"bridge":    true,
	"auto":      true,
	"switch":    true,
	"dimmer":    true,
	"shade":     true,
	"fan":       true,
	"color":     true,
	"occupancy": true,
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetentionDays < 0 {
		errs = append(errs, "database.history_retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}

		// The admin API can toggle lights and rewrite automation rules,
		// so it never runs without a usable signing secret.
		const minJWTSecretLength = 32
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required when api.enabled (set LEAPBRIDGE_JWT_SECRET)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	errs = append(errs, c.Lutron.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (l *LutronConfig) validate() []string {
	var errs []string

	if l.EventQueueSize < 1 {
		errs = append(errs, "lutron.event_queue_size must be positive")
	}
	if l.ResyncInterval < 0 {
		errs = append(errs, "lutron.resync_interval must not be negative")
	}
	if l.Gesture.ClickTimeoutMS < 1 {
		errs = append(errs, "lutron.gesture.click_timeout_ms must be positive")
	}
	if l.Gesture.TickIntervalMS < 1 {
		errs = append(errs, "lutron.gesture.tick_interval_ms must be positive")
	} else if l.Gesture.TickIntervalMS > l.Gesture.ClickTimeoutMS {
		errs = append(errs, "lutron.gesture.tick_interval_ms must not exceed click_timeout_ms")
	}

	bridges := make(map[string]bool, len(l.Bridges))
	for i, b := range l.Bridges {
		switch {
		case b.ID == "":
			errs = append(errs, fmt.Sprintf("lutron.bridges[%d].id is required", i))
		case bridges[b.ID]:
			errs = append(errs, fmt.Sprintf("lutron.bridges[%d].id %q is duplicated", i, b.ID))
		case strings.Contains(b.ID, ":"):
			errs = append(errs, fmt.Sprintf("lutron.bridges[%d].id must not contain ':'", i))
		}
		bridges[b.ID] = true
		if b.Address == "" {
			errs = append(errs, fmt.Sprintf("lutron.bridges[%d].address is required", i))
		}
	}

	devices := make(map[string]bool, len(l.Devices))
	for i, d := range l.Devices {
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("lutron.devices[%d].id is required", i))
		} else if devices[d.ID] || bridges[d.ID] {
			errs = append(errs, fmt.Sprintf("lutron.devices[%d].id %q is duplicated", i, d.ID))
		}
		devices[d.ID] = true
		if !validKinds[d.Kind] || d.Kind == "bridge" {
			errs = append(errs, fmt.Sprintf("lutron.devices[%d].kind %q is not supported", i, d.Kind))
		}
		if !bridges[d.Bridge] {
			errs = append(errs, fmt.Sprintf("lutron.devices[%d].bridge %q is not a configured bridge", i, d.Bridge))
		}
		if d.NativeID == "" {
			errs = append(errs, fmt.Sprintf("lutron.devices[%d].native_id is required", i))
		}
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// ClickTimeout returns the gesture click timeout as a Duration.
func (l LutronConfig) ClickTimeout() time.Duration {
	return time.Duration(l.Gesture.ClickTimeoutMS) * time.Millisecond
}

// TickInterval returns the gesture expiry tick interval as a Duration.
func (l LutronConfig) TickInterval() time.Duration {
	return time.Duration(l.Gesture.TickIntervalMS) * time.Millisecond
}

// ResyncEvery returns the periodic resync interval, or 0 when disabled.
func (l LutronConfig) ResyncEvery() time.Duration {
	return time.Duration(l.ResyncInterval) * time.Minute
}
