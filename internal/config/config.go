// Package config handles loading, validation, and access to application
// settings. Values are resolved in layers: environment variables override
// a .env file, which overrides config.yaml, which overrides defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// Default configuration values. Timeouts encode the latency budgets the
// resolver and engine are designed around; changing them changes crawl
// behavior.
const (
	DefaultFetchTimeout      = 15 * time.Second
	DefaultProbeTimeout      = 3 * time.Second
	DefaultSitemapTimeout    = 5 * time.Second
	DefaultAttemptTimeout    = 30 * time.Second
	DefaultBrowserTimeout    = 30 * time.Second
	DefaultClassifierTimeout = 20 * time.Second
	DefaultContentDelay      = 500 * time.Millisecond
	DefaultMaxConcurrent     = 5
	DefaultUserAgent         = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultAcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
)

// ErrMissingClassifierURL is returned when classifier-assisted detection
// is enabled without an endpoint.
var ErrMissingClassifierURL = errors.New("classifier enabled but url is empty")

// Config is the root configuration.
type Config struct {
	Log        logger.Config    `mapstructure:"log"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// CrawlerConfig holds fetch and engine settings.
type CrawlerConfig struct {
	// UserAgent is sent on every HTTP request.
	UserAgent string `mapstructure:"user_agent"`
	// AcceptLanguage is sent on every HTTP request.
	AcceptLanguage string `mapstructure:"accept_language"`
	// FetchTimeout bounds a single page download.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// ProbeTimeout bounds feed-path existence probes.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	// SitemapTimeout bounds sitemap validation probes.
	SitemapTimeout time.Duration `mapstructure:"sitemap_timeout"`
	// AttemptTimeout bounds one technique attempt in the engine.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	// ContentDelay is the pause between article-body fetches.
	ContentDelay time.Duration `mapstructure:"content_delay"`
	// MaxConcurrent bounds concurrent source runs in a batch.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// BrowserConfig holds headless browser settings.
type BrowserConfig struct {
	// ExecPath overrides the Chrome binary location; empty auto-detects.
	ExecPath string `mapstructure:"exec_path"`
	// Timeout bounds a full render including network idle.
	Timeout time.Duration `mapstructure:"timeout"`
	// Headless disables the visible window. Always true in production;
	// flipping it helps when debugging challenge pages.
	Headless bool `mapstructure:"headless"`
}

// ClassifierConfig holds classifier-service settings.
type ClassifierConfig struct {
	// URL is the classifier endpoint. Empty disables assisted detection;
	// the resolver then relies on heuristics alone.
	URL string `mapstructure:"url"`
	// Timeout bounds one classifier call.
	Timeout time.Duration `mapstructure:"timeout"`
	// Enabled toggles classifier-assisted stages.
	Enabled bool `mapstructure:"enabled"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	// DSN is the Postgres connection string.
	DSN string `mapstructure:"dsn"`
	// MaxOpenConns bounds the connection pool.
	MaxOpenConns int `mapstructure:"max_open_conns"`
}

// RedisConfig holds Redis connection settings for the seen-article tracker.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string `mapstructure:"addr"`
	// DB selects the logical database.
	DB int `mapstructure:"db"`
	// TTL bounds how long seen-article keys live.
	TTL time.Duration `mapstructure:"ttl"`
}

// Load reads configuration from config.yaml, .env, and the environment.
// Missing files are not errors; defaults cover every value.
func Load() (*Config, error) {
	// .env feeds process env before viper binds it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers the default value for every key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.accept_language", DefaultAcceptLanguage)
	v.SetDefault("crawler.fetch_timeout", DefaultFetchTimeout)
	v.SetDefault("crawler.probe_timeout", DefaultProbeTimeout)
	v.SetDefault("crawler.sitemap_timeout", DefaultSitemapTimeout)
	v.SetDefault("crawler.attempt_timeout", DefaultAttemptTimeout)
	v.SetDefault("crawler.content_delay", DefaultContentDelay)
	v.SetDefault("crawler.max_concurrent", DefaultMaxConcurrent)

	v.SetDefault("browser.timeout", DefaultBrowserTimeout)
	v.SetDefault("browser.headless", true)

	v.SetDefault("classifier.timeout", DefaultClassifierTimeout)
	v.SetDefault("classifier.enabled", false)

	v.SetDefault("database.dsn", "postgres://localhost:5432/insights?sslmode=disable")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 30*24*time.Hour)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Classifier.Enabled && c.Classifier.URL == "" {
		return ErrMissingClassifierURL
	}

	if c.Crawler.MaxConcurrent <= 0 {
		c.Crawler.MaxConcurrent = DefaultMaxConcurrent
	}

	return nil
}
