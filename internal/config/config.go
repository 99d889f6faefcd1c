package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metadata MetadataConfig `yaml:"metadata"`
	Retry    RetryConfig    `yaml:"retry"`
	Import   ImportConfig   `yaml:"import"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Sources  SourcesConfig  `yaml:"sources"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	// APIToken, when set, is required as a bearer token on import routes.
	APIToken     string        `yaml:"api_token"`
	TriggerEvery time.Duration `yaml:"trigger_every"`
	TriggerBurst int           `yaml:"trigger_burst"`
}

// Catalog drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and configures the catalog store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`

	// Maintenance applies to the sqlite driver only.
	OptimizeInterval time.Duration `yaml:"optimize_interval"`
	BackupDir        string        `yaml:"backup_dir"`
	BackupRetention  int           `yaml:"backup_retention"`
	BackupInterval   time.Duration `yaml:"backup_interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level          string `yaml:"level"`
	Format         string `yaml:"format"`
	FilePath       string `yaml:"file_path"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxFiles   int    `yaml:"file_max_files"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// RateLimitConfig is a fixed-window request budget for one endpoint category.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// MetadataConfig configures the metadata service client and its credentials.
type MetadataConfig struct {
	BaseURL      string                     `yaml:"base_url"`
	TokenURL     string                     `yaml:"token_url"`
	ClientID     string                     `yaml:"client_id"`
	ClientSecret string                     `yaml:"client_secret"`
	TokenSkew    time.Duration              `yaml:"token_skew"`
	Timeout      time.Duration              `yaml:"timeout"`
	RateLimits   map[string]RateLimitConfig `yaml:"rate_limits"`
}

// RetryConfig is the resolver's backoff policy.
// MaxRetryAfter caps how long a server-requested wait is honored.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	Factor        float64       `yaml:"factor"`
	MaxRetryAfter time.Duration `yaml:"max_retry_after"`
}

// ImportConfig controls batch pacing. Interval > 0 enables the scheduled
// import in serve mode.
type ImportConfig struct {
	BatchSize   int           `yaml:"batch_size"`
	Stagger     time.Duration `yaml:"stagger"`
	BatchDelay  time.Duration `yaml:"batch_delay"`
	Interval    time.Duration `yaml:"interval"`
	PrincipalID string        `yaml:"principal_id"`
}

// DedupConfig tunes the fuzzy name threshold.
type DedupConfig struct {
	MaxDistance   int     `yaml:"max_distance"`
	DistanceRatio float64 `yaml:"distance_ratio"`
}

// SourcesConfig enables and configures discovery sources.
type SourcesConfig struct {
	Forum     ForumSourceConfig    `yaml:"forum"`
	Chart     ChartSourceConfig    `yaml:"chart"`
	Playlists PlaylistSourceConfig `yaml:"playlists"`
}

// ForumSourceConfig configures the forum search feed.
type ForumSourceConfig struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"`
	Community string        `yaml:"community"`
	Query     string        `yaml:"query"`
	MaxPages  int           `yaml:"max_pages"`
	PageDelay time.Duration `yaml:"page_delay"`
}

// ChartSourceConfig configures the public chart page scraper.
type ChartSourceConfig struct {
	Enabled   bool          `yaml:"enabled"`
	URL       string        `yaml:"url"`
	MaxPages  int           `yaml:"max_pages"`
	PageDelay time.Duration `yaml:"page_delay"`
}

// PlaylistSourceConfig lists curated playlists on the metadata service.
type PlaylistSourceConfig struct {
	Enabled  bool     `yaml:"enabled"`
	IDs      []string `yaml:"ids"`
	MaxPages int      `yaml:"max_pages"`
}

// WebhookConfig is a notification endpoint for import runs. Type is one of
// generic, discord or slack. Empty Events means every import event.
type WebhookConfig struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Type   string   `yaml:"type"`
	Events []string `yaml:"events"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			TriggerEvery: time.Minute,
			TriggerBurst: 3,
		},
		Database: DatabaseConfig{
			Driver:   DriverSQLite,
			Path:     "/data/releasewire.db",
			MaxConns: 4,

			BackupDir:       "/data/backups",
			BackupRetention: 7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metadata: MetadataConfig{
			BaseURL:   "https://api.spotify.com/v1",
			TokenURL:  "https://accounts.spotify.com/api/token",
			TokenSkew: 60 * time.Second,
			Timeout:   10 * time.Second,
			RateLimits: map[string]RateLimitConfig{
				"albums":    {MaxRequests: 10, Window: 30 * time.Second},
				"artists":   {MaxRequests: 10, Window: 30 * time.Second},
				"playlists": {MaxRequests: 10, Window: 30 * time.Second},
			},
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Second,
			Factor:        2,
			MaxRetryAfter: time.Minute,
		},
		Import: ImportConfig{
			BatchSize:   4,
			Stagger:     250 * time.Millisecond,
			BatchDelay:  time.Second,
			PrincipalID: "scheduler",
		},
		Dedup: DedupConfig{
			MaxDistance:   2,
			DistanceRatio: 0.2,
		},
		Sources: SourcesConfig{
			Forum: ForumSourceConfig{
				BaseURL:   "https://www.reddit.com",
				Community: "indieheads",
				Query:     "flair:FRESH ALBUM",
				MaxPages:  5,
				PageDelay: 2 * time.Second,
			},
			Chart: ChartSourceConfig{
				MaxPages:  3,
				PageDelay: 2 * time.Second,
			},
			Playlists: PlaylistSourceConfig{
				MaxPages: 10,
			},
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("RW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("RW_API_TOKEN"); v != "" {
		c.Server.APIToken = v
	}
	if v := os.Getenv("RW_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("RW_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("RW_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("RW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RW_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("RW_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("RW_CLIENT_ID"); v != "" {
		c.Metadata.ClientID = v
	}
	if v := os.Getenv("RW_CLIENT_SECRET"); v != "" {
		c.Metadata.ClientSecret = v
	}
	if v := os.Getenv("RW_METADATA_BASE_URL"); v != "" {
		c.Metadata.BaseURL = v
	}
	if v := os.Getenv("RW_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Import.BatchSize = n
		}
	}
	if v := os.Getenv("RW_IMPORT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Import.Interval = d
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.MaxRetryAfter < 0 {
		return fmt.Errorf("retry.max_retry_after must not be negative")
	}
	if c.Retry.Factor < 1 {
		return fmt.Errorf("retry.factor must be at least 1")
	}
	if c.Import.BatchSize < 1 {
		return fmt.Errorf("import.batch_size must be at least 1")
	}
	for key, rl := range c.Metadata.RateLimits {
		if rl.MaxRequests < 1 || rl.Window <= 0 {
			return fmt.Errorf("rate limit %q needs max_requests >= 1 and a positive window", key)
		}
	}
	if c.Database.BackupRetention < 0 {
		return fmt.Errorf("database.backup_retention must not be negative")
	}
	for i := range c.Webhooks {
		w := &c.Webhooks[i]
		if w.URL == "" {
			return fmt.Errorf("webhook %d: url is required", i)
		}
		if w.Name == "" {
			w.Name = w.URL
		}
		switch w.Type {
		case "":
			w.Type = "generic"
		case "generic", "discord", "slack":
		default:
			return fmt.Errorf("webhook %q: unknown type %q", w.Name, w.Type)
		}
	}
	c.Metadata.BaseURL = strings.TrimRight(c.Metadata.BaseURL, "/")
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}
