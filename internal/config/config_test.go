package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.PageWorkers != 2 || cfg.Crawler.LookupWorkers != 50 {
		t.Fatalf("unexpected worker defaults: %+v", cfg.Crawler)
	}
	if cfg.Crawler.LookupQueueCapacity != 100 {
		t.Fatalf("expected lookup queue capacity 100, got %d", cfg.Crawler.LookupQueueCapacity)
	}
	if cfg.Hiscores.PageSize != 25 || cfg.Hiscores.MaxPages != 80000 {
		t.Fatalf("unexpected hiscore defaults: %+v", cfg.Hiscores)
	}
	if cfg.Account() != hiscore.AccountRegular {
		t.Fatalf("expected regular account, got %s", cfg.Account())
	}
	if cfg.Retry.MaxRetries != 10 || cfg.InitialDelay() != 2*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Output.Target != "file" || cfg.Output.Dir != "output" || cfg.Storage.Backend != "none" || cfg.PubSub.Backend != "none" {
		t.Fatalf("unexpected sink defaults: %+v %+v %+v", cfg.Output, cfg.Storage, cfg.PubSub)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawler:
  page_workers: 4
  lookup_workers: 16
  lookup_queue_capacity: 10
  stagger_ms: 0
hiscores:
  base_url: http://localhost:9999
  account_type: im
  page_size: 25
  max_pages: 1000
http:
  timeout_seconds: 45
  user_agent: hiscore-test
  requests_per_second: 5
  burst: 2
retry:
  max_retries: 3
  initial_delay_ms: 100
proxy:
  file: proxies.txt
output:
  target: postgres
  error_file: failed.log
db:
  dsn: postgres://localhost/hiscores
storage:
  backend: local
  base_dir: /tmp/archive
pubsub:
  backend: memory
logging:
  development: false
  level: debug
telemetry:
  enabled: true
  sample_ratio: 0.25
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected server/auth overrides to apply: %+v %+v", cfg.Server, cfg.Auth)
	}
	if cfg.Crawler.PageWorkers != 4 || cfg.Crawler.LookupWorkers != 16 || cfg.Stagger() != 0 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Account() != hiscore.AccountIronman {
		t.Fatalf("expected ironman account, got %s", cfg.Account())
	}
	if cfg.Timeout() != 45*time.Second || cfg.HTTP.RequestsPerSecond != 5 {
		t.Fatalf("expected http overrides to apply: %+v", cfg.HTTP)
	}
	if cfg.InitialDelay() != 100*time.Millisecond || cfg.Retry.MaxRetries != 3 {
		t.Fatalf("expected retry overrides to apply: %+v", cfg.Retry)
	}
	if cfg.Output.Target != "postgres" || cfg.DB.DSN == "" {
		t.Fatalf("expected output overrides to apply: %+v", cfg.Output)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.Prefix != "runs" {
		t.Fatalf("expected storage overrides to keep prefix default: %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "debug" || cfg.Telemetry.SampleRatio != 0.25 {
		t.Fatalf("expected logging/telemetry overrides: %+v %+v", cfg.Logging, cfg.Telemetry)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRAWLER_CRAWLER_PAGE_WORKERS", "7")
	t.Setenv("CRAWLER_HISCORES_ACCOUNT_TYPE", "uim")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.PageWorkers != 7 {
		t.Fatalf("expected env to set page workers, got %d", cfg.Crawler.PageWorkers)
	}
	if cfg.Account() != hiscore.AccountUltimate {
		t.Fatalf("expected uim, got %s", cfg.Account())
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Crawler:  CrawlerConfig{PageWorkers: 1, LookupWorkers: 1},
		Hiscores: HiscoresConfig{AccountType: "regular", PageSize: 25, MaxPages: 10},
		HTTP:     HTTPConfig{TimeoutSeconds: 10},
		Retry:    RetryConfig{MaxRetries: 1},
		Output:   OutputConfig{Target: "file"},
		Storage:  StorageConfig{Backend: "none"},
		PubSub:   PubSubConfig{Backend: "none"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"no page workers", func(c *Config) { c.Crawler.PageWorkers = 0 }, "crawler.page_workers"},
		{"negative lookup workers", func(c *Config) { c.Crawler.LookupWorkers = -1 }, "crawler.lookup_workers"},
		{"negative capacity", func(c *Config) { c.Crawler.LookupQueueCapacity = -1 }, "crawler.lookup_queue_capacity"},
		{"page size", func(c *Config) { c.Hiscores.PageSize = 0 }, "hiscores.page_size"},
		{"max pages", func(c *Config) { c.Hiscores.MaxPages = 0 }, "hiscores.max_pages"},
		{"account type", func(c *Config) { c.Hiscores.AccountType = "main" }, "hiscores.account_type"},
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"negative rps", func(c *Config) { c.HTTP.RequestsPerSecond = -1 }, "http.requests_per_second"},
		{"no retries", func(c *Config) { c.Retry.MaxRetries = 0 }, "retry.max_retries"},
		{"postgres without dsn", func(c *Config) { c.Output.Target = "postgres" }, "db.dsn"},
		{"unknown target", func(c *Config) { c.Output.Target = "s3" }, "output.target"},
		{"local without dir", func(c *Config) { c.Storage.Backend = "local" }, "storage.base_dir"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = "gcs" }, "storage.gcs_bucket"},
		{"pubsub without project", func(c *Config) { c.PubSub.Backend = "pubsub" }, "pubsub.project_id"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 2 }, "telemetry.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
