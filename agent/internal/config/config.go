package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/logshipper/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultURL               = "http://loki:3100"
	DefaultConnectTimeout    = 2 * time.Second
	DefaultRequestTimeout    = 5 * time.Second
	DefaultMaxDiagnosticBody = 512
	DefaultWorkers           = 4
	DefaultChannel           = "app"
)

// Compression modes for the push body.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
)

// Timestamp precision modes for the entry timestamp.
const (
	PrecisionSecond     = "second"
	PrecisionNanosecond = "nanosecond"
)

// labelName is the Loki/Prometheus label name grammar.
var labelName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config is the top-level configuration for the agent binary.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Shipper ShipperConfig `yaml:"shipper"`
	Agent   AgentConfig   `yaml:"agent"`
}

// ShipperConfig holds everything needed to push records to a Loki-compatible
// aggregator. It is copied into the shipper at construction and never
// mutated afterwards.
type ShipperConfig struct {
	// URL is the aggregator base URL; the push path is appended to it.
	URL string `yaml:"url"`

	// Labels are static stream labels merged into every record's label set.
	Labels map[string]string `yaml:"labels"`

	// MinLevel drops records below this severity before any work is done.
	MinLevel types.Level `yaml:"min_level"`

	// ConnectTimeout bounds TCP connect plus TLS handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// RequestTimeout bounds the request once connected.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// TenantID is sent as X-Scope-OrgID for multi-tenant Loki. Empty disables it.
	TenantID string `yaml:"tenant_id"`

	// Auth configures how the shipper authenticates to the aggregator.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`

	// Compression is one of: none | gzip.
	Compression string `yaml:"compression"`

	// TimestampPrecision is one of: second | nanosecond.
	// "second" truncates the entry timestamp to whole seconds.
	TimestampPrecision string `yaml:"timestamp_precision"`

	// MaxDiagnosticBody caps how much of a rejected response body is
	// copied into the failure diagnostic.
	MaxDiagnosticBody int `yaml:"max_diagnostic_body"`
}

// PushURL returns the full push endpoint URL.
func (c ShipperConfig) PushURL() string {
	return strings.TrimRight(c.URL, "/") + types.PushPath
}

// AgentConfig holds settings for the agent binary itself.
type AgentConfig struct {
	// Workers is the number of goroutines shipping records concurrently.
	Workers int `yaml:"workers"`

	// MetricsAddr is the listen address for /metrics. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// Channel is used for input lines that carry no channel of their own.
	Channel string `yaml:"channel"`

	// SelfChannel, when set, also ships the agent's own warnings and
	// lifecycle logs under this channel.
	SelfChannel string `yaml:"self_channel"`
}

// AuthConfig specifies the authentication mode towards the aggregator.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields: used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields: used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// Bearer token fields: used when Mode == "bearer".
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields: used when Mode == "basic".
	Username    string `yaml:"username"`
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

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
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

// Parse decodes YAML bytes, applies defaults and validates the result.
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

// DefaultShipperConfig returns a ShipperConfig with every default applied.
// Library users that do not load a file start from this.
func DefaultShipperConfig() ShipperConfig {
	return ShipperConfig{
		URL:                DefaultURL,
		MinLevel:           types.LevelDebug,
		ConnectTimeout:     DefaultConnectTimeout,
		RequestTimeout:     DefaultRequestTimeout,
		Compression:        CompressionNone,
		TimestampPrecision: PrecisionSecond,
		MaxDiagnosticBody:  DefaultMaxDiagnosticBody,
	}
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Shipper: DefaultShipperConfig(),
		Agent: AgentConfig{
			Workers: DefaultWorkers,
			Channel: DefaultChannel,
		},
	}
}

// Validate checks a ShipperConfig built in code rather than loaded from YAML.
func (c ShipperConfig) Validate() error {
	return validateShipper(c)
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if err := validateShipper(cfg.Shipper); err != nil {
		return err
	}
	if cfg.Agent.Workers <= 0 {
		return fmt.Errorf("agent.workers must be positive")
	}
	if cfg.Agent.Channel == "" {
		return fmt.Errorf("agent.channel must not be empty")
	}
	return nil
}

func validateShipper(s ShipperConfig) error {
	if s.URL == "" {
		return fmt.Errorf("shipper.url is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("shipper.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("shipper.url %q: scheme must be http or https", s.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("shipper.url %q: host is required", s.URL)
	}
	for name := range s.Labels {
		if !labelName.MatchString(name) {
			return fmt.Errorf("shipper.labels: invalid label name %q", name)
		}
	}
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("shipper.connect_timeout must be positive")
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("shipper.request_timeout must be positive")
	}
	if s.MaxDiagnosticBody < 0 {
		return fmt.Errorf("shipper.max_diagnostic_body must not be negative")
	}
	switch s.Compression {
	case CompressionNone, CompressionGzip, "":
	default:
		return fmt.Errorf("shipper.compression %q unknown: want none|gzip", s.Compression)
	}
	switch s.TimestampPrecision {
	case PrecisionSecond, PrecisionNanosecond, "":
	default:
		return fmt.Errorf("shipper.timestamp_precision %q unknown: want second|nanosecond", s.TimestampPrecision)
	}
	switch s.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("shipper.auth.mode %q unknown", s.Auth.Mode)
	}
	if s.Auth.Mode == "apikey" && s.Auth.Header == "" {
		return fmt.Errorf("shipper.auth.header is required for apikey mode")
	}
	if s.Auth.Mode == "mtls" && (s.Auth.CertFile == "" || s.Auth.KeyFile == "") {
		return fmt.Errorf("shipper.auth: cert_file and key_file are required for mtls mode")
	}
	return nil
}
