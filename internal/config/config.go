// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Evict      EvictConfig      `mapstructure:"evict"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	MaxUploadBytes int `mapstructure:"max_upload_bytes"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// RedisConfig locates the ephemeral progress store. When Addr is empty the
// service falls back to the in-memory store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTLHours int    `mapstructure:"ttl_hours"`
}

// MonitorConfig governs the availability sweep.
type MonitorConfig struct {
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	MaxConcurrent   int    `mapstructure:"max_concurrent"`
	UserAgent       string `mapstructure:"user_agent"`
}

// EvictConfig governs eviction of long-unavailable resources.
type EvictConfig struct {
	IntervalHours int `mapstructure:"interval_hours"`
	Threshold     int `mapstructure:"threshold"`
}

// IngestConfig governs the bulk-ingestion worker pool.
type IngestConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// StorageConfig selects the blob backend for archive staging.
type StorageConfig struct {
	// Backend is one of "memory", "local", "gcs".
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// FeedConfig sizes the in-process event buffer and optionally mirrors events
// to Pub/Sub.
type FeedConfig struct {
	BufferSize    int    `mapstructure:"buffer_size"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// ScreenshotConfig toggles headless capture.
type ScreenshotConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	MaxParallel   int    `mapstructure:"max_parallel"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	UserAgent     string `mapstructure:"user_agent"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_bytes", 64<<20)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("redis.ttl_hours", 24)
	v.SetDefault("monitor.interval_minutes", 60)
	v.SetDefault("monitor.timeout_seconds", 10)
	v.SetDefault("monitor.max_concurrent", 8)
	v.SetDefault("monitor.user_agent", "resourcewatch/0.1")
	v.SetDefault("evict.interval_hours", 24)
	v.SetDefault("evict.threshold", 7)
	v.SetDefault("ingest.workers", 2)
	v.SetDefault("ingest.queue_depth", 16)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "archives")
	v.SetDefault("feed.buffer_size", 256)
	v.SetDefault("screenshot.enabled", false)
	v.SetDefault("screenshot.max_parallel", 1)
	v.SetDefault("screenshot.nav_timeout_seconds", 25)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Monitor.IntervalMinutes <= 0 {
		return fmt.Errorf("monitor.interval_minutes must be > 0")
	}
	if c.Monitor.TimeoutSeconds <= 0 {
		return fmt.Errorf("monitor.timeout_seconds must be > 0")
	}
	if c.Monitor.MaxConcurrent <= 0 {
		return fmt.Errorf("monitor.max_concurrent must be > 0")
	}
	if c.Evict.Threshold <= 0 {
		return fmt.Errorf("evict.threshold must be > 0")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be > 0")
	}
	switch c.Storage.Backend {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.Storage.Backend == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set for the local backend")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
	}
	if (c.Feed.PubSubProject == "") != (c.Feed.PubSubTopic == "") {
		return fmt.Errorf("feed.pubsub_project and feed.pubsub_topic must be set together")
	}
	return nil
}

// MonitorInterval returns the sweep period as a duration.
func (c Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalMinutes) * time.Minute
}

// CheckTimeout returns the per-check budget as a duration.
func (c Config) CheckTimeout() time.Duration {
	return time.Duration(c.Monitor.TimeoutSeconds) * time.Second
}

// EvictInterval returns the eviction period as a duration.
func (c Config) EvictInterval() time.Duration {
	return time.Duration(c.Evict.IntervalHours) * time.Hour
}
