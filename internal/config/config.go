// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Hiscores  HiscoresConfig  `mapstructure:"hiscores"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Output    OutputConfig    `mapstructure:"output"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig protects the run submission endpoints with an API key.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig sizes the worker pools and the inter-stage queue.
type CrawlerConfig struct {
	// PageWorkers resolve leaderboard pages.
	PageWorkers int `mapstructure:"page_workers"`
	// LookupWorkers resolve player stat sheets.
	LookupWorkers int `mapstructure:"lookup_workers"`
	// LookupQueueCapacity bounds the queue between the page and lookup stages.
	LookupQueueCapacity int `mapstructure:"lookup_queue_capacity"`
	// StaggerMs spaces out worker start-up: worker i waits i*StaggerMs.
	StaggerMs int `mapstructure:"stagger_ms"`
	// MaxConcurrentRuns caps runs submitted through the API.
	MaxConcurrentRuns int `mapstructure:"max_concurrent_runs"`
}

// HiscoresConfig describes the remote leaderboard.
type HiscoresConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	AccountType string `mapstructure:"account_type"`
	PageSize    int    `mapstructure:"page_size"`
	MaxPages    int    `mapstructure:"max_pages"`
}

// HTTPConfig configures the HTTP client and request pacing.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RetryConfig configures the linear backoff of remote calls.
type RetryConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	InitialDelayMs int `mapstructure:"initial_delay_ms"`
}

// ProxyConfig points at a file of proxy URLs, one per line.
type ProxyConfig struct {
	File string `mapstructure:"file"`
}

// OutputConfig selects where results and failed calls go.
type OutputConfig struct {
	// Target is "file" (JSON lines) or "postgres".
	Target string `mapstructure:"target"`
	// ErrorFile receives one line per call that exhausted its retries.
	ErrorFile string `mapstructure:"error_file"`
	// Dir holds the output files of API-submitted runs.
	Dir string `mapstructure:"dir"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MinConns     int32  `mapstructure:"min_conns"`
	RecordsTable string `mapstructure:"records_table"`
	PlayersTable string `mapstructure:"players_table"`
	RunsTable    string `mapstructure:"runs_table"`
}

// StorageConfig selects the blob store that archives output files.
type StorageConfig struct {
	// Backend is "none", "memory", "local" or "gcs".
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig selects where run summaries are published.
type PubSubConfig struct {
	// Backend is "none", "memory" or "pubsub".
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("crawler.page_workers", 2)
	v.SetDefault("crawler.lookup_workers", 50)
	v.SetDefault("crawler.lookup_queue_capacity", 100)
	v.SetDefault("crawler.stagger_ms", 100)
	v.SetDefault("crawler.max_concurrent_runs", 2)
	v.SetDefault("hiscores.base_url", "https://secure.runescape.com")
	v.SetDefault("hiscores.account_type", "regular")
	v.SetDefault("hiscores.page_size", 25)
	v.SetDefault("hiscores.max_pages", 80000)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("retry.max_retries", 10)
	v.SetDefault("retry.initial_delay_ms", 2000)
	v.SetDefault("output.target", "file")
	v.SetDefault("output.error_file", "error_log")
	v.SetDefault("output.dir", "output")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.prefix", "runs")
	v.SetDefault("pubsub.backend", "none")
	v.SetDefault("pubsub.topic_name", "hiscore-runs")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "hiscore-crawler")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.PageWorkers <= 0 {
		return fmt.Errorf("crawler.page_workers must be > 0")
	}
	if c.Crawler.LookupWorkers <= 0 {
		return fmt.Errorf("crawler.lookup_workers must be > 0")
	}
	if c.Crawler.LookupQueueCapacity < 0 {
		return fmt.Errorf("crawler.lookup_queue_capacity must be >= 0")
	}
	if c.Crawler.StaggerMs < 0 {
		return fmt.Errorf("crawler.stagger_ms must be >= 0")
	}
	if c.Hiscores.PageSize <= 0 {
		return fmt.Errorf("hiscores.page_size must be > 0")
	}
	if c.Hiscores.MaxPages <= 0 {
		return fmt.Errorf("hiscores.max_pages must be > 0")
	}
	if _, err := hiscore.ParseAccountType(c.Hiscores.AccountType); err != nil {
		return fmt.Errorf("hiscores.account_type: %w", err)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.Retry.MaxRetries <= 0 {
		return fmt.Errorf("retry.max_retries must be > 0")
	}
	if c.Retry.InitialDelayMs < 0 {
		return fmt.Errorf("retry.initial_delay_ms must be >= 0")
	}
	switch c.Output.Target {
	case "file":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when output.target is postgres")
		}
	default:
		return fmt.Errorf("output.target must be file or postgres, got %q", c.Output.Target)
	}
	switch c.Storage.Backend {
	case "none", "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be none, memory, local or gcs, got %q", c.Storage.Backend)
	}
	switch c.PubSub.Backend {
	case "none", "memory":
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set for the pubsub backend")
		}
	default:
		return fmt.Errorf("pubsub.backend must be none, memory or pubsub, got %q", c.PubSub.Backend)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// Account returns the configured account type. Validate guarantees it parses.
func (c Config) Account() hiscore.AccountType {
	acc, err := hiscore.ParseAccountType(c.Hiscores.AccountType)
	if err != nil {
		return hiscore.AccountRegular
	}
	return acc
}

// Timeout converts http.timeout_seconds to a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// InitialDelay converts retry.initial_delay_ms to a duration.
func (c Config) InitialDelay() time.Duration {
	return time.Duration(c.Retry.InitialDelayMs) * time.Millisecond
}

// Stagger converts crawler.stagger_ms to a duration.
func (c Config) Stagger() time.Duration {
	return time.Duration(c.Crawler.StaggerMs) * time.Millisecond
}
