package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxAlerts    = 50
	DefaultHTTPPort     = 8080
	DefaultBroadcast    = 5 * time.Second
	DefaultLayout       = LayoutSimulator
	DefaultAPIKeyHeader = "x-api-key"
)

// Path layouts understood by the data source.
const (
	// LayoutSimulator serves collections under /api/<name> (local simulator).
	LayoutSimulator = "simulator"
	// LayoutGateway serves collections under /<name> (API Gateway stage URL).
	LayoutGateway = "gateway"
)

// Config is the top-level configuration of prism-monitor.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Monitor    MonitorConfig    `yaml:"monitor"`
	DataSource DataSourceConfig `yaml:"data_source"`
	Inbox      InboxConfig      `yaml:"inbox"`
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Webhooks   []WebhookConfig  `yaml:"webhooks"`
	Log        LogConfig        `yaml:"log"`
}

// MonitorConfig controls the alert polling loop.
type MonitorConfig struct {
	// PollInterval is how often all collections are fetched and diffed.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Collections restricts which collections are monitored.
	// Empty means all of clients, licenses and leads.
	Collections []string `yaml:"collections"`
}

// DataSourceConfig describes the REST endpoint serving the collections.
type DataSourceConfig struct {
	// BaseURL is the scheme+host (and optional stage prefix) of the data API.
	BaseURL string `yaml:"base_url"`

	// Layout is one of: simulator | gateway.
	Layout string `yaml:"layout"`

	// Timeout bounds each collection request. Zero disables the timeout.
	Timeout time.Duration `yaml:"timeout"`

	// Auth configures how the monitor authenticates to the data API.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for the data API.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header name the API key is sent in.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`
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

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAPIKeyHeader
}

// TLSConfig holds TLS dial options for the data API.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// InboxConfig controls alert retention.
type InboxConfig struct {
	// MaxAlerts is the number of alerts kept; the oldest are evicted first.
	MaxAlerts int `yaml:"max_alerts"`
}

// HTTPConfig controls the REST API, WebSocket hub and /metrics listener.
type HTTPConfig struct {
	Port int `yaml:"port"`

	// Auth protects /api/ with an API key when Mode == "apikey".
	Auth AuthConfig `yaml:"auth"`

	// BroadcastInterval is how often the WebSocket hub re-sends the inbox.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// GRPCConfig controls the gRPC health service used by orchestrators.
type GRPCConfig struct {
	// Port is the listen port. Zero disables the gRPC listener.
	Port int `yaml:"port"`

	// Auth protects the health service with an API key when Mode == "apikey".
	Auth AuthConfig `yaml:"auth"`
}

// WebhookConfig defines one push delivery target for new alerts.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`

	// MinSeverity drops alerts below this severity. Empty delivers everything.
	MinSeverity string `yaml:"min_severity"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
}

// SlogLevel converts Level to a slog.Level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Monitor: MonitorConfig{
			PollInterval: DefaultPollInterval,
		},
		DataSource: DataSourceConfig{
			Layout:  DefaultLayout,
			Timeout: DefaultFetchTimeout,
		},
		Inbox: InboxConfig{
			MaxAlerts: DefaultMaxAlerts,
		},
		HTTP: HTTPConfig{
			Port:              DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcast,
		},
		Log: LogConfig{Level: "info"},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	for i, c := range cfg.Monitor.Collections {
		switch c {
		case "clients", "licenses", "leads":
		default:
			return fmt.Errorf("monitor.collections[%d]: unknown collection %q", i, c)
		}
	}

	if cfg.DataSource.BaseURL == "" {
		return fmt.Errorf("data_source.base_url is required")
	}
	if !strings.HasPrefix(cfg.DataSource.BaseURL, "http://") && !strings.HasPrefix(cfg.DataSource.BaseURL, "https://") {
		return fmt.Errorf("data_source.base_url %q must be an http(s) URL", cfg.DataSource.BaseURL)
	}
	switch cfg.DataSource.Layout {
	case LayoutSimulator, LayoutGateway:
	default:
		return fmt.Errorf("data_source.layout %q unknown: want simulator|gateway", cfg.DataSource.Layout)
	}
	if cfg.DataSource.Timeout < 0 {
		return fmt.Errorf("data_source.timeout must not be negative")
	}
	switch cfg.DataSource.Auth.Mode {
	case "apikey", "bearer", "none", "":
	default:
		return fmt.Errorf("data_source.auth.mode %q unknown: want apikey|bearer|none", cfg.DataSource.Auth.Mode)
	}

	if cfg.Inbox.MaxAlerts < 1 {
		return fmt.Errorf("inbox.max_alerts must be at least 1")
	}

	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range [1, 65535]", cfg.HTTP.Port)
	}
	if cfg.HTTP.BroadcastInterval <= 0 {
		return fmt.Errorf("http.broadcast_interval must be positive")
	}
	switch cfg.HTTP.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("http.auth.mode %q unknown: want apikey|none", cfg.HTTP.Auth.Mode)
	}

	if cfg.GRPC.Port < 0 || cfg.GRPC.Port > 65535 {
		return fmt.Errorf("grpc.port %d is out of range [0, 65535]", cfg.GRPC.Port)
	}
	if cfg.GRPC.Port != 0 && cfg.GRPC.Port == cfg.HTTP.Port {
		return fmt.Errorf("grpc.port and http.port must differ")
	}
	switch cfg.GRPC.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("grpc.auth.mode %q unknown: want apikey|none", cfg.GRPC.Auth.Mode)
	}

	for i, wh := range cfg.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("webhooks[%d]: unknown type %q", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("webhooks[%d]: url_env is required", i)
		}
		switch wh.MinSeverity {
		case "", "info", "warning", "critical":
		default:
			return fmt.Errorf("webhooks[%d]: unknown min_severity %q", i, wh.MinSeverity)
		}
	}
	return nil
}
