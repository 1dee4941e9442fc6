// Package config provides configuration management for agentd.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for agentd.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Events    EventsConfig    `mapstructure:"events"`
	Session   SessionConfig   `mapstructure:"session"`
	Hub       HubConfig       `mapstructure:"hub"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds WebSocket listener configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClusterID     string `mapstructure:"clusterId"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// EventsConfig holds event bus namespace configuration.
type EventsConfig struct {
	// Namespace isolates queue-group subscribers across deployments/instances.
	// Empty value means derive from runtime data identity.
	Namespace string `mapstructure:"namespace"`
}

// SessionConfig holds Session Runtime tunables.
type SessionConfig struct {
	// RapidFireWindowMs is the circuit breaker's rapid-fire error window
	// (milliseconds). The session runtime builds its breaker from
	// session.DefaultBreakerConfig and does not read this value.
	RapidFireWindowMs int `mapstructure:"rapidFireWindowMs"`
	// QueueConsumeTimeout bounds (seconds) how long an enqueued message may
	// wait to be consumed before its enqueue future fails with a timeout.
	// The session runtime uses constants.QueueConsumeTimeout instead.
	QueueConsumeTimeout int `mapstructure:"queueConsumeTimeoutSeconds"`
	// BreakerThreshold is the number of consecutive matching errors of the
	// same kind from one agent that trips the circuit breaker. The session
	// runtime uses session.DefaultBreakerConfig and does not read it.
	BreakerThreshold int `mapstructure:"breakerThreshold"`
	// BreakerCooldownSeconds is not read by the circuit breaker, which has
	// no cooldown: a tripped breaker stays tripped until it is reset.
	BreakerCooldownSeconds int `mapstructure:"breakerCooldownSeconds"`
}

// HubConfig holds Message Hub tunables.
type HubConfig struct {
	// DedupCacheSize bounds the number of cached responses in the Hub's
	// dedup cache, keyed by (method, session, payload).
	DedupCacheSize int `mapstructure:"dedupCacheSize"`
	// DedupCacheTTLSeconds is how long a cached response stays valid.
	DedupCacheTTLSeconds int `mapstructure:"dedupCacheTtlSeconds"`
	// ClientSendBuffer bounds the per-client outbound channel depth.
	ClientSendBuffer int `mapstructure:"clientSendBuffer"`
}

// SchedulerConfig holds Recurring Job Scheduler tunables.
type SchedulerConfig struct {
	// SweepIntervalSeconds is loaded and validated but not read by the
	// scheduler, which arms one timer per job instead of sweeping.
	SweepIntervalSeconds int `mapstructure:"sweepIntervalSeconds"`
	// MaxConcurrentFirings is not read by the scheduler; concurrent
	// firings are not capped.
	MaxConcurrentFirings int `mapstructure:"maxConcurrentFirings"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RapidFireWindow returns the rapid-fire error window as a time.Duration.
func (s *SessionConfig) RapidFireWindow() time.Duration {
	return time.Duration(s.RapidFireWindowMs) * time.Millisecond
}

// QueueConsumeTimeoutDuration returns the queue consume timeout as a time.Duration.
func (s *SessionConfig) QueueConsumeTimeoutDuration() time.Duration {
	return time.Duration(s.QueueConsumeTimeout) * time.Second
}

// BreakerCooldown returns the breaker cooldown as a time.Duration.
func (s *SessionConfig) BreakerCooldown() time.Duration {
	return time.Duration(s.BreakerCooldownSeconds) * time.Second
}

// DedupCacheTTL returns the dedup cache TTL as a time.Duration.
func (h *HubConfig) DedupCacheTTL() time.Duration {
	return time.Duration(h.DedupCacheTTLSeconds) * time.Second
}

// SweepInterval returns the scheduler sweep interval as a time.Duration.
func (s *SchedulerConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTD_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8082)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./agentd.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "agentd")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "agentd")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clusterId", "agentd-cluster")
	v.SetDefault("nats.clientId", "agentd-client")
	v.SetDefault("nats.maxReconnects", 10)

	// Events defaults
	v.SetDefault("events.namespace", "")

	// Session defaults
	v.SetDefault("session.rapidFireWindowMs", 3000)
	v.SetDefault("session.queueConsumeTimeoutSeconds", 30)
	v.SetDefault("session.breakerThreshold", 3)
	v.SetDefault("session.breakerCooldownSeconds", 60)

	// Hub defaults
	v.SetDefault("hub.dedupCacheSize", 1000)
	v.SetDefault("hub.dedupCacheTtlSeconds", 60)
	v.SetDefault("hub.clientSendBuffer", 256)

	// Scheduler defaults
	v.SetDefault("scheduler.sweepIntervalSeconds", 30)
	v.SetDefault("scheduler.maxConcurrentFirings", 8)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AGENTD_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/agentd/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("logging.level", "AGENTD_LOG_LEVEL")
	_ = v.BindEnv("events.namespace", "AGENTD_EVENTS_NAMESPACE")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentd/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Database.Driver == "postgres" {
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for postgres driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for postgres driver")
		}
	}

	if cfg.Session.BreakerThreshold <= 0 {
		errs = append(errs, "session.breakerThreshold must be positive")
	}

	if cfg.Hub.DedupCacheSize <= 0 {
		errs = append(errs, "hub.dedupCacheSize must be positive")
	}

	if cfg.Scheduler.SweepIntervalSeconds <= 0 {
		errs = append(errs, "scheduler.sweepIntervalSeconds must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}
