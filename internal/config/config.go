// Package config loads and validates riftlens configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// EnvPrefix prefixes every environment override, e.g. RIFTLENS_RIOT_API_KEY.
const EnvPrefix = "RIFTLENS"

// Store and artifact backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Riot      RiotConfig      `mapstructure:"riot"`
	Throttle  ThrottleConfig  `mapstructure:"throttle"`
	Pacing    PacingConfig    `mapstructure:"pacing"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Aggregate AggregateConfig `mapstructure:"aggregate"`
	Store     StoreConfig     `mapstructure:"store"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// RiotConfig configures the telemetry client.
type RiotConfig struct {
	APIKey         string `mapstructure:"api_key"`
	AccountRegion  string `mapstructure:"account_region"`
	MatchRegion    string `mapstructure:"match_region"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Queue          int    `mapstructure:"queue"`
}

// ThrottleConfig is the fixed-window quota shared by all calls.
type ThrottleConfig struct {
	Quota         int `mapstructure:"quota"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

// PacingConfig adds a minimum delay between calls.
type PacingConfig struct {
	DelayMs int `mapstructure:"delay_ms"`
}

// RetryConfig controls retries of transient failures. Zero attempts disables retry.
type RetryConfig struct {
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// ParseSeed parses a command-line seed of the form "Name#Tag".
func ParseSeed(raw string) (riftlens.Seed, error) {
	name, tag, ok := strings.Cut(strings.TrimSpace(raw), "#")
	if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(tag) == "" {
		return riftlens.Seed{}, fmt.Errorf("seed %q: want Name#Tag", raw)
	}
	return riftlens.Seed{Name: strings.TrimSpace(name), Tag: strings.TrimSpace(tag)}, nil
}

// CrawlerConfig governs frontier expansion.
type CrawlerConfig struct {
	Seeds          []riftlens.Seed `mapstructure:"seeds"`
	MatchesPerSeed int             `mapstructure:"matches_per_seed"`
	Concurrency    int             `mapstructure:"concurrency"`
	// SeedManifest is a previous manifest whose entries are treated as known.
	SeedManifest string `mapstructure:"seed_manifest"`
	ManifestPath string `mapstructure:"manifest_path"`
}

// IngestConfig governs the worker pool.
type IngestConfig struct {
	MatchesPerEntity int  `mapstructure:"matches_per_entity"`
	AllParticipants  bool `mapstructure:"all_participants"`
	QueueDepth       int  `mapstructure:"queue_depth"`
	Concurrency      int  `mapstructure:"concurrency"`
}

// AggregateConfig governs report refreshes.
type AggregateConfig struct {
	WorstKDAThreshold float64 `mapstructure:"worst_kda_threshold"`
	PageSize          int     `mapstructure:"page_size"`
}

// StoreConfig selects and configures the report store.
type StoreConfig struct {
	Backend            string         `mapstructure:"backend"`
	Postgres           PostgresConfig `mapstructure:"postgres"`
	Redis              RedisConfig    `mapstructure:"redis"`
	MaxConflictRetries int            `mapstructure:"max_conflict_retries"`
}

// PostgresConfig controls the Postgres report store.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig controls the Redis report store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// ArtifactsConfig selects where manifests, exports and run logs are written.
type ArtifactsConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds report.updated notification settings. An empty topic
// disables notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port           int        `mapstructure:"port"`
	TimeoutSeconds int        `mapstructure:"timeout_seconds"`
	Auth           AuthConfig `mapstructure:"auth"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from an optional .env file, an optional config file
// and RIFTLENS_* environment variables.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("riot.api_key", "")
	v.SetDefault("riot.account_region", "europe")
	v.SetDefault("riot.match_region", "europe")
	v.SetDefault("riot.base_url", "")
	v.SetDefault("riot.timeout_seconds", 10)
	v.SetDefault("riot.queue", 0)
	v.SetDefault("throttle.quota", 100)
	v.SetDefault("throttle.window_seconds", 121)
	v.SetDefault("pacing.delay_ms", 0)
	v.SetDefault("retry.max_attempts", 0)
	v.SetDefault("retry.backoff_initial_ms", 500)
	v.SetDefault("retry.backoff_max_ms", 10000)
	v.SetDefault("crawler.matches_per_seed", 5)
	v.SetDefault("crawler.concurrency", 1)
	v.SetDefault("crawler.seed_manifest", "")
	v.SetDefault("crawler.manifest_path", "manifest.json")
	v.SetDefault("ingest.matches_per_entity", 20)
	v.SetDefault("ingest.all_participants", false)
	v.SetDefault("ingest.queue_depth", 64)
	v.SetDefault("ingest.concurrency", 1)
	v.SetDefault("aggregate.worst_kda_threshold", 1.0)
	v.SetDefault("aggregate.page_size", 100)
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.table", "entity_reports")
	v.SetDefault("store.postgres.max_conns", 4)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "riftlens:report:")
	v.SetDefault("store.max_conflict_retries", 3)
	v.SetDefault("artifacts.backend", BackendLocal)
	v.SetDefault("artifacts.base_dir", "data")
	v.SetDefault("artifacts.gcs_bucket", "")
	v.SetDefault("artifacts.prefix", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits. The Riot API key
// is checked by the commands that call the API, so offline commands such as
// aggregate and serve run without one.
func (c Config) Validate() error {
	if c.Throttle.Quota <= 0 {
		return fmt.Errorf("throttle.quota must be > 0")
	}
	if c.Throttle.WindowSeconds <= 0 {
		return fmt.Errorf("throttle.window_seconds must be > 0")
	}
	if c.Riot.TimeoutSeconds <= 0 {
		return fmt.Errorf("riot.timeout_seconds must be > 0")
	}
	if c.Pacing.DelayMs < 0 {
		return fmt.Errorf("pacing.delay_ms must be >= 0")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be >= 0")
	}
	if c.Crawler.MatchesPerSeed <= 0 {
		return fmt.Errorf("crawler.matches_per_seed must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Ingest.MatchesPerEntity <= 0 {
		return fmt.Errorf("ingest.matches_per_entity must be > 0")
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be > 0")
	}
	if c.Ingest.QueueDepth <= 0 {
		return fmt.Errorf("ingest.queue_depth must be > 0")
	}
	if c.Aggregate.WorstKDAThreshold <= 0 {
		return fmt.Errorf("aggregate.worst_kda_threshold must be > 0")
	}
	for _, s := range c.Crawler.Seeds {
		if s.Name == "" || s.Tag == "" {
			return fmt.Errorf("crawler.seeds: %q needs both name and tag", s.String())
		}
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn must be set for the postgres backend")
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not one of memory, postgres, redis", c.Store.Backend)
	}
	switch c.Artifacts.Backend {
	case BackendMemory, BackendLocal:
	case BackendGCS:
		if c.Artifacts.GCSBucket == "" {
			return fmt.Errorf("artifacts.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("artifacts.backend %q is not one of memory, local, gcs", c.Artifacts.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.Auth.Enabled && c.Server.Auth.APIKey == "" {
		return fmt.Errorf("server.auth.api_key must be set when auth is enabled")
	}
	return nil
}

// RequireAPIKey reports a configuration error when no Riot API key is set.
func (c Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Riot.APIKey) == "" {
		return fmt.Errorf("riot.api_key must be set (env %s_RIOT_API_KEY)", EnvPrefix)
	}
	return nil
}

// RiotTimeout returns the per-request HTTP timeout.
func (c Config) RiotTimeout() time.Duration {
	return time.Duration(c.Riot.TimeoutSeconds) * time.Second
}

// ThrottleWindow returns the quota window.
func (c Config) ThrottleWindow() time.Duration {
	return time.Duration(c.Throttle.WindowSeconds) * time.Second
}

// PacingDelay returns the minimum spacing between calls.
func (c Config) PacingDelay() time.Duration {
	return time.Duration(c.Pacing.DelayMs) * time.Millisecond
}

// RetryBackoff returns the initial and maximum retry delays.
func (c Config) RetryBackoff() (initial, maximum time.Duration) {
	return time.Duration(c.Retry.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.Retry.BackoffMaxMs) * time.Millisecond
}

// ServerTimeout returns the per-request handler timeout.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
