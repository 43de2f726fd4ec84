package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/raptrack/raptrack/pkg/logging"
	"github.com/raptrack/raptrack/pkg/threshold"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one report-level alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "regression_count > 0",
	// "probation_count >= 3", "missing_count > 0", "total_members < 1".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort          = 8080
	DefaultStorageBackend    = "sqlite"
	DefaultStoragePath       = "raptrack.db"
	DefaultBroadcastInterval = 5 * time.Second
	DefaultTimezone          = "UTC"
	DefaultWorkers           = 4
	DefaultAPIKeyHeader      = "x-api-key"
)

// Config holds the server-side configuration.
type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Thresholds map[string]threshold.Entry `yaml:"thresholds"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Workers bounds goroutines used when evaluating uploaded or scheduled rosters.
	Workers int `yaml:"workers"`

	// Auth configures how the server authenticates REST clients.
	Auth AuthConfig `yaml:"auth"`

	// Report controls in-memory report retention.
	Report ReportConfig `yaml:"report"`

	// Storage selects where report history is persisted.
	Storage StorageConfig `yaml:"storage"`

	// Schedule configures periodic roster evaluation.
	Schedule ScheduleConfig `yaml:"schedule"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`

	// BroadcastInterval is how often the WebSocket hub pushes the report list.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAPIKeyHeader
}

// ReportConfig controls in-memory report retention.
type ReportConfig struct {
	// TTL is how long a roster's latest report remains in the store after it
	// was received. Zero keeps reports until replaced.
	TTL time.Duration `yaml:"ttl"`
}

// StorageConfig selects the history backend.
type StorageConfig struct {
	// Backend is sqlite or memory. memory keeps no history.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// Retention is how long stored runs are kept. Zero keeps every run.
	Retention time.Duration `yaml:"retention"`
}

// ScheduleConfig configures the cron-driven evaluation job.
type ScheduleConfig struct {
	// Cron is a standard five-field cron expression. Empty disables the job.
	Cron string `yaml:"cron"`

	// Timezone is the IANA zone the expression is evaluated in.
	Timezone string `yaml:"timezone"`

	// Rosters are the CSV files evaluated on each run.
	Rosters []RosterFile `yaml:"rosters"`
}

// Enabled reports whether a cron expression is configured.
func (s ScheduleConfig) Enabled() bool { return s.Cron != "" }

// RosterFile is one roster evaluated by the scheduler.
type RosterFile struct {
	ID         string `yaml:"id"`
	Path       string `yaml:"path"`
	HeaderRows int    `yaml:"header_rows"`
}

// Registry returns the built-in threshold table with c's overrides applied.
func (c *Config) Registry() (*threshold.Registry, error) {
	reg, err := threshold.Default().With(c.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("server config: thresholds: %w", err)
	}
	return reg, nil
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			LogLevel: "info",
			Workers:  DefaultWorkers,
			Storage: StorageConfig{
				Backend: DefaultStorageBackend,
				Path:    DefaultStoragePath,
			},
			Schedule:          ScheduleConfig{Timezone: DefaultTimezone},
			BroadcastInterval: DefaultBroadcastInterval,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if !logging.ValidLevel(s.LogLevel) {
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", s.LogLevel)
	}
	if s.Workers <= 0 {
		return fmt.Errorf("server.workers must be positive")
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Report.TTL < 0 {
		return fmt.Errorf("server.report.ttl must not be negative")
	}
	if s.Storage.Retention < 0 {
		return fmt.Errorf("server.storage.retention must not be negative")
	}
	switch s.Storage.Backend {
	case "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want sqlite|memory", s.Storage.Backend)
	}
	if s.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	if s.Schedule.Enabled() {
		if _, err := cron.ParseStandard(s.Schedule.Cron); err != nil {
			return fmt.Errorf("server.schedule.cron %q: %w", s.Schedule.Cron, err)
		}
		if _, err := time.LoadLocation(s.Schedule.Timezone); err != nil {
			return fmt.Errorf("server.schedule.timezone: %w", err)
		}
		if len(s.Schedule.Rosters) == 0 {
			return fmt.Errorf("server.schedule.rosters: at least one roster is required when cron is set")
		}
		for i, r := range s.Schedule.Rosters {
			if r.ID == "" || r.Path == "" {
				return fmt.Errorf("server.schedule.rosters[%d]: id and path are required", i)
			}
		}
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" || strings.TrimSpace(r.Condition) == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name and condition are required", i)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	for code, e := range cfg.Thresholds {
		if e.OneMonth < 0 || e.ThreeMonth < 0 {
			return fmt.Errorf("thresholds.%s: minimums must not be negative", code)
		}
	}
	return nil
}
