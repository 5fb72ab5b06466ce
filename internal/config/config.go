// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/hubspot-onboarding/internal/database"
	"github.com/JakeFAU/hubspot-onboarding/internal/storage/local"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  database.Config `mapstructure:"database"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlConfig holds crawl defaults and the async worker pool size.
type CrawlConfig struct {
	MaxPages        int      `mapstructure:"max_pages"`
	MaxDepth        int      `mapstructure:"max_depth"`
	DelayMs         int      `mapstructure:"delay_ms"`
	UserAgent       string   `mapstructure:"user_agent"`
	RespectRobots   bool     `mapstructure:"respect_robots"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	IncludePatterns []string `mapstructure:"include_patterns"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
	StoreRawHTML    bool     `mapstructure:"store_raw_html"`
	Async           bool     `mapstructure:"async"`
	Workers         int      `mapstructure:"workers"`
	QueueDepth      int      `mapstructure:"queue_depth"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// StorageConfig selects where raw page HTML is archived. Backend "none"
// disables archiving.
type StorageConfig struct {
	Backend     string       `mapstructure:"backend"`
	Bucket      string       `mapstructure:"bucket"`
	Prefix      string       `mapstructure:"prefix"`
	ContentType string       `mapstructure:"content_type"`
	Local       local.Config `mapstructure:"local"`
}

// PubSubConfig holds metadata for crawl notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig names the service in trace resources.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
}

// legacyEnv maps config keys onto the unprefixed variable names deployments
// already use.
var legacyEnv = map[string][]string{
	"server.port":              {"ONBOARDING_SERVER_PORT", "PORT"},
	"database.url":             {"DATABASE_URL"},
	"database.host":            {"DB_HOST"},
	"database.port":            {"DB_PORT"},
	"database.name":            {"DB_NAME"},
	"database.username":        {"DB_USERNAME"},
	"database.password":        {"DB_PASSWORD"},
	"database.ssl":             {"DB_SSL"},
	"database.max_connections": {"DB_MAX_CONNECTIONS"},
	"crawl.max_pages":          {"CRAWL_MAX_PAGES"},
	"crawl.max_depth":          {"CRAWL_MAX_DEPTH"},
	"crawl.delay_ms":           {"CRAWL_DELAY"},
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ONBOARDING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

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

// setDefaults registers every key, zero values included: AutomaticEnv only
// reaches Unmarshal for keys viper already knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "hubspot_onboarding")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.ssl", false)
	v.SetDefault("database.max_connections", 20)
	v.SetDefault("database.memory", false)
	v.SetDefault("crawl.max_pages", 10)
	v.SetDefault("crawl.max_depth", 2)
	v.SetDefault("crawl.delay_ms", 1000)
	v.SetDefault("crawl.user_agent", "hubspot-onboarding-bot/1.0")
	v.SetDefault("crawl.respect_robots", true)
	v.SetDefault("crawl.timeout_seconds", 15)
	v.SetDefault("crawl.include_patterns", []string{})
	v.SetDefault("crawl.exclude_patterns", []string{
		"/admin/*", "/wp-admin/*", "*.pdf", "*.jpg", "*.png", "*.gif", "*.css", "*.js",
	})
	v.SetDefault("crawl.store_raw_html", true)
	v.SetDefault("crawl.async", false)
	v.SetDefault("crawl.workers", 2)
	v.SetDefault("crawl.queue_depth", 16)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.local.base_dir", "")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "hubspot-onboarding")
	v.SetDefault("telemetry.version", "dev")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be >= 0")
	}
	if c.Crawl.DelayMs < 0 {
		return fmt.Errorf("crawl.delay_ms must be >= 0")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "", "none", "memory":
	case "local":
		if strings.TrimSpace(c.Storage.Local.BaseDir) == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	return nil
}

// CrawlDelay is the politeness delay between requests to one host.
func (c Config) CrawlDelay() time.Duration {
	return time.Duration(c.Crawl.DelayMs) * time.Millisecond
}

// CrawlTimeout bounds a single page fetch.
func (c Config) CrawlTimeout() time.Duration {
	if c.Crawl.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Crawl.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds non-crawl API requests.
func (c Config) RequestTimeout() time.Duration {
	if c.Server.RequestTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
