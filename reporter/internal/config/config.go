package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raptrack/raptrack/pkg/logging"
	"github.com/raptrack/raptrack/pkg/threshold"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultWorkers      = 4
	DefaultFormat       = "text"
	DefaultSourceType   = "file"
	DefaultSourceID     = "roster"
	DefaultFetchTimeout = 30 * time.Second
	DefaultShipTimeout  = 10 * time.Second
	DefaultShipAttempts = 5
	DefaultAPIKeyHeader = "x-api-key"
	DefaultLogLevel     = "info"
)

// Config is the top-level reporter configuration.
type Config struct {
	Reporter   ReporterConfig             `yaml:"reporter"`
	Thresholds map[string]threshold.Entry `yaml:"thresholds"`
}

// ReporterConfig holds all reporter settings.
type ReporterConfig struct {
	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// TargetMonth pins the fiscal month to report for (1 = October).
	// Zero derives it from the clock at run time.
	TargetMonth int `yaml:"target_month"`

	// Workers bounds the number of goroutines evaluating the roster.
	Workers int `yaml:"workers"`

	// Source describes where the roster export is read from.
	Source Source `yaml:"source"`

	// Output controls rendering and the optional metrics textfile.
	Output OutputConfig `yaml:"output"`

	// Ship optionally forwards the finished report to raptrack-server.
	Ship ShipConfig `yaml:"ship"`
}

// Source describes one roster export location.
type Source struct {
	// ID names the roster (squadron, unit); it becomes the report's roster_id.
	ID string `yaml:"id"`

	// Type is file or http.
	Type string `yaml:"type"`

	// Path is the local CSV path, used when Type == "file".
	Path string `yaml:"path"`

	// Endpoint is the URL to GET the CSV from, used when Type == "http".
	Endpoint string `yaml:"endpoint"`

	// HeaderRows is the number of title rows before member data (default 2).
	HeaderRows int `yaml:"header_rows"`

	// Timeout bounds an HTTP fetch.
	Timeout time.Duration `yaml:"timeout"`

	// Auth configures how the reporter authenticates to an HTTP source.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig specifies the authentication mode for an HTTP source.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name the API key is sent in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username.
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// OutputConfig controls how the report is written.
type OutputConfig struct {
	// Format is text | json | yaml | csv.
	Format string `yaml:"format"`

	// MetricsFile, when set, receives a Prometheus textfile export.
	MetricsFile string `yaml:"metrics_file"`
}

// ShipConfig controls forwarding reports to raptrack-server.
type ShipConfig struct {
	// Endpoint is the server's report intake URL. Empty disables shipping.
	Endpoint string `yaml:"endpoint"`

	// Header is the HTTP header the API key is sent in.
	Header string `yaml:"header"`

	// APIKeyEnv names the environment variable holding the server API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// MaxAttempts bounds delivery retries for transient failures.
	MaxAttempts int `yaml:"max_attempts"`

	// Timeout bounds a single delivery attempt.
	Timeout time.Duration `yaml:"timeout"`
}

// APIKey returns the server API key resolved from the environment.
func (s ShipConfig) APIKey() string {
	if s.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(s.APIKeyEnv)
}

// Enabled reports whether an endpoint is configured.
func (s ShipConfig) Enabled() bool { return s.Endpoint != "" }

// Registry returns the built-in threshold table with c's overrides applied.
func (c *Config) Registry() (*threshold.Registry, error) {
	reg, err := threshold.Default().With(c.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("config: thresholds: %w", err)
	}
	return reg, nil
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config usable without a config file.
func Defaults() *Config { return defaults() }

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Reporter: ReporterConfig{
			LogLevel: DefaultLogLevel,
			Workers:  DefaultWorkers,
			Source: Source{
				ID:      DefaultSourceID,
				Type:    DefaultSourceType,
				Timeout: DefaultFetchTimeout,
			},
			Output: OutputConfig{Format: DefaultFormat},
			Ship: ShipConfig{
				Header:      DefaultAPIKeyHeader,
				MaxAttempts: DefaultShipAttempts,
				Timeout:     DefaultShipTimeout,
			},
		},
	}
}

// Validate checks c after flags have been applied on top of the file.
func (c *Config) Validate() error { return validate(c) }

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	r := cfg.Reporter
	if !logging.ValidLevel(r.LogLevel) {
		return fmt.Errorf("reporter.log_level %q unknown: want debug|info|warn|error", r.LogLevel)
	}
	if r.TargetMonth < 0 || r.TargetMonth > 12 {
		return fmt.Errorf("reporter.target_month %d is out of range [0, 12]", r.TargetMonth)
	}
	if r.Workers <= 0 {
		return fmt.Errorf("reporter.workers must be positive")
	}
	if r.Source.ID == "" {
		return fmt.Errorf("reporter.source.id is required")
	}
	switch r.Source.Type {
	case "file":
	case "http":
		if r.Source.Endpoint == "" {
			return fmt.Errorf("reporter.source %q: endpoint is required for http sources", r.Source.ID)
		}
	default:
		return fmt.Errorf("reporter.source %q: unknown type %q", r.Source.ID, r.Source.Type)
	}
	switch r.Source.Auth.Mode {
	case "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("reporter.source %q: unknown auth mode %q", r.Source.ID, r.Source.Auth.Mode)
	}
	switch r.Output.Format {
	case "text", "json", "yaml", "csv":
	default:
		return fmt.Errorf("reporter.output.format %q unknown: want text|json|yaml|csv", r.Output.Format)
	}
	if r.Ship.Enabled() && r.Ship.MaxAttempts <= 0 {
		return fmt.Errorf("reporter.ship.max_attempts must be positive")
	}
	for code, e := range cfg.Thresholds {
		if e.OneMonth < 0 || e.ThreeMonth < 0 {
			return fmt.Errorf("thresholds.%s: minimums must not be negative", code)
		}
	}
	return nil
}
