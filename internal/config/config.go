// Package config loads and validates job watcher configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/jobwatch/internal/crawler"
	"github.com/JakeFAU/jobwatch/internal/delivery"
)

// EnvPrefix namespaces environment overrides, e.g. JOBWATCH_SERVER_PORT.
const EnvPrefix = "JOBWATCH"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// ErrNoSites is returned by RequireSites when no site is configured.
var ErrNoSites = errors.New("no sites configured")

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig        `mapstructure:"logging"`
	Server   ServerConfig         `mapstructure:"server"`
	HTTP     HTTPConfig           `mapstructure:"http"`
	Storage  StorageConfig        `mapstructure:"storage"`
	Run      RunConfig            `mapstructure:"run"`
	Report   ReportConfig         `mapstructure:"report"`
	Schedule ScheduleConfig       `mapstructure:"schedule"`
	API      APIConfig            `mapstructure:"api"`
	Sites    []crawler.SiteConfig `mapstructure:"sites"`
}

// LoggingConfig toggles zap development features. An empty Level keeps the
// preset's level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// HTTPConfig configures page fetching.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// Timeout converts TimeoutSeconds to a duration.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// StorageConfig selects and configures the posting store.
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig points at the database file.
type SQLiteConfig struct {
	Path     string `mapstructure:"path"`
	SeedPath string `mapstructure:"seed_path"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RunConfig bounds crawl fan-out.
type RunConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// ReportConfig selects how the run report is formatted and delivered.
type ReportConfig struct {
	Method    string        `mapstructure:"method"`
	MaxLength int           `mapstructure:"max_length"`
	Title     string        `mapstructure:"title"`
	Webhook   WebhookConfig `mapstructure:"webhook"`
	SMTP      SMTPConfig    `mapstructure:"smtp"`
	PubSub    PubSubConfig  `mapstructure:"pubsub"`
	GCS       GCSConfig     `mapstructure:"gcs"`
}

// WebhookConfig targets a JSON webhook such as a Home Assistant automation.
type WebhookConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SMTPConfig describes the outgoing mail relay.
type SMTPConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// GCSConfig sets where archived reports are written.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// ScheduleConfig drives the in-process cron used by serve.
type ScheduleConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Cron      string `mapstructure:"cron"`
	Backfill  bool   `mapstructure:"backfill"`
	ReportAll bool   `mapstructure:"report_all"`
}

// APIConfig bounds the /jobs endpoint.
type APIConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindLegacyEnv(v)

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
	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (compatible; JobWatcher/1.0)")
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.sqlite.path", "jobs.db")
	v.SetDefault("storage.postgres.table", "jobs")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("run.concurrency", 1)
	v.SetDefault("report.method", delivery.MethodLog)
	v.SetDefault("report.max_length", 3500)
	v.SetDefault("report.title", "Job watcher")
	v.SetDefault("report.webhook.timeout_seconds", 15)
	v.SetDefault("report.smtp.port", 587)
	v.SetDefault("report.gcs.prefix", "reports")
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.cron", "0 7 * * *")
	v.SetDefault("api.default_limit", 100)
	v.SetDefault("api.max_limit", 1000)
}

// bindLegacyEnv keeps the unprefixed variable names older deployments use.
// The prefixed name wins when both are set.
func bindLegacyEnv(v *viper.Viper) {
	legacy := map[string]string{
		"report.webhook.url":       "HA_WEBHOOK_URL",
		"report.smtp.username":     "SMTP_USER",
		"report.smtp.password":     "SMTP_PASS",
		"storage.postgres.dsn":     "DATABASE_URL",
		"report.pubsub.project_id": "GOOGLE_CLOUD_PROJECT",
	}
	for key, name := range legacy {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, prefixed, name)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Run.Concurrency <= 0 {
		return fmt.Errorf("run.concurrency must be > 0")
	}
	if c.API.DefaultLimit <= 0 || c.API.MaxLimit <= 0 {
		return fmt.Errorf("api.default_limit and api.max_limit must be > 0")
	}
	if c.API.DefaultLimit > c.API.MaxLimit {
		return fmt.Errorf("api.default_limit must be <= api.max_limit")
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if err := c.Report.validate(); err != nil {
		return err
	}
	if c.Schedule.Enabled {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron %q: %w", c.Schedule.Cron, err)
		}
	}
	return c.validateSites()
}

// RequireSites fails with ErrNoSites when the config has nothing to crawl.
func (c Config) RequireSites() error {
	if len(c.Sites) == 0 {
		return ErrNoSites
	}
	return nil
}

func (s StorageConfig) validate() error {
	switch s.Driver {
	case DriverSQLite:
		if strings.TrimSpace(s.SQLite.Path) == "" {
			return fmt.Errorf("storage.sqlite.path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(s.Postgres.DSN) == "" {
			return fmt.Errorf("storage.postgres.dsn must be set for the postgres driver")
		}
		if s.Postgres.MaxConns < 0 {
			return fmt.Errorf("storage.postgres.max_conns must be >= 0")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q is not one of sqlite, postgres, memory", s.Driver)
	}
	return nil
}

func (r ReportConfig) validate() error {
	if r.MaxLength <= 0 {
		return fmt.Errorf("report.max_length must be > 0")
	}
	switch r.Method {
	case delivery.MethodLog:
	case delivery.MethodWebhook:
		if r.Webhook.URL == "" {
			return fmt.Errorf("report.webhook.url must be set for the webhook method")
		}
	case delivery.MethodSMTP:
		if r.SMTP.Host == "" {
			return fmt.Errorf("report.smtp.host must be set for the smtp method")
		}
		if r.SMTP.From == "" && r.SMTP.Username == "" {
			return fmt.Errorf("report.smtp.from or username must be set for the smtp method")
		}
	case delivery.MethodPubSub:
		if r.PubSub.ProjectID == "" || r.PubSub.Topic == "" {
			return fmt.Errorf("report.pubsub.project_id and topic must be set for the pubsub method")
		}
	case delivery.MethodGCS:
		if r.GCS.Bucket == "" {
			return fmt.Errorf("report.gcs.bucket must be set for the gcs method")
		}
	default:
		return fmt.Errorf("report.method %q is not one of log, webhook, smtp, pubsub, gcs", r.Method)
	}
	return nil
}

func (c Config) validateSites() error {
	seen := make(map[string]struct{}, len(c.Sites))
	for i, site := range c.Sites {
		if err := site.Validate(); err != nil {
			return fmt.Errorf("sites[%d]: %w", i, err)
		}
		if _, dup := seen[site.Name]; dup {
			return fmt.Errorf("sites[%d]: %w: duplicate name %q", i, crawler.ErrInvalidSite, site.Name)
		}
		seen[site.Name] = struct{}{}
	}
	return nil
}
