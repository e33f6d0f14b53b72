// Package config loads and validates relay service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Messages  MessagesConfig  `mapstructure:"messages"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Download  DownloadConfig  `mapstructure:"download"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Store     StoreConfig     `mapstructure:"store"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// MessagesConfig points at the upstream message API.
type MessagesConfig struct {
	APIBase        string `mapstructure:"api_base"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// EngineConfig configures the shared browser automation engine.
type EngineConfig struct {
	Headless     bool   `mapstructure:"headless"`
	UserAgent    string `mapstructure:"user_agent"`
	DownloadRoot string `mapstructure:"download_root"`
}

// DownloadConfig governs the browser-driven download leg.
type DownloadConfig struct {
	MaxRetries           int `mapstructure:"max_retries"`
	BackoffMs            int `mapstructure:"backoff_ms"`
	NavTimeoutSeconds    int `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSeconds   int `mapstructure:"wait_timeout_seconds"`
	ReloadTimeoutSeconds int `mapstructure:"reload_timeout_seconds"`
}

// RelayConfig holds webhook routing targets and upload retry behavior.
type RelayConfig struct {
	ReportURL      string `mapstructure:"report_url"`
	InvoiceURL     string `mapstructure:"invoice_url"`
	ReportMarker   string `mapstructure:"report_marker"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	BackoffMs      int    `mapstructure:"backoff_ms"`
}

// PipelineConfig sizes the async run executor.
type PipelineConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// StoreConfig selects the run-history provider.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxRuns  int    `mapstructure:"max_runs"`
}

// PublisherConfig selects the run-event publisher.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ArchiveConfig selects the optional artifact archive.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	Dir      string `mapstructure:"dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RELAY")
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
	v.SetDefault("messages.timeout_seconds", 10)
	v.SetDefault("engine.headless", true)
	v.SetDefault("engine.user_agent", "report-relay/0.1")
	v.SetDefault("engine.download_root", "/tmp/report-relay")
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.backoff_ms", 2000)
	v.SetDefault("download.nav_timeout_seconds", 30)
	v.SetDefault("download.wait_timeout_seconds", 30)
	v.SetDefault("download.reload_timeout_seconds", 5)
	v.SetDefault("relay.report_marker", "grandtotal")
	v.SetDefault("relay.timeout_seconds", 30)
	v.SetDefault("relay.max_retries", 3)
	v.SetDefault("relay.backoff_ms", 2000)
	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.queue_depth", 16)
	v.SetDefault("store.provider", "memory")
	v.SetDefault("store.max_runs", 256)
	v.SetDefault("publisher.provider", "memory")
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "artifacts")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Messages.TimeoutSeconds <= 0 {
		return fmt.Errorf("messages.timeout_seconds must be > 0")
	}
	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("download.max_retries must be >= 0")
	}
	if c.Relay.MaxRetries < 0 {
		return fmt.Errorf("relay.max_retries must be >= 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Pipeline.QueueDepth <= 0 {
		return fmt.Errorf("pipeline.queue_depth must be > 0")
	}
	if c.Engine.DownloadRoot == "" {
		return fmt.Errorf("engine.download_root must be set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Store.Provider {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown store provider: %s", c.Store.Provider)
	}
	switch c.Publisher.Provider {
	case "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.TopicName == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic_name must be set when publisher.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown publisher provider: %s", c.Publisher.Provider)
	}
	switch c.Archive.Provider {
	case "noop", "memory":
	case "local":
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir must be set when archive.provider is local")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown archive provider: %s", c.Archive.Provider)
	}
	return nil
}

// MessageTimeout converts the message API timeout to a duration.
func (c Config) MessageTimeout() time.Duration {
	return time.Duration(c.Messages.TimeoutSeconds) * time.Second
}

// DownloadBackoff converts the download backoff to a duration.
func (c Config) DownloadBackoff() time.Duration {
	return time.Duration(c.Download.BackoffMs) * time.Millisecond
}

// RelayBackoff converts the relay backoff to a duration.
func (c Config) RelayBackoff() time.Duration {
	return time.Duration(c.Relay.BackoffMs) * time.Millisecond
}
