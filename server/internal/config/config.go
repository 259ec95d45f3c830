package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the sink configuration.
const (
	DefaultHTTPPort      = 3100
	DefaultStreamTTL     = 15 * time.Minute
	DefaultMaxEntries    = 1000
	DefaultMaxBodyBytes  = 4 << 20
	DefaultAuthHeader    = "x-api-key"
	DefaultShutdownGrace = 5 * time.Second
)

// Config holds the sink configuration parsed from the `sink:` section of
// config.yaml. The `shipper:` and `agent:` keys in the same file are ignored.
type Config struct {
	Sink SinkConfig `yaml:"sink"`
}

// SinkConfig holds all sink settings.
type SinkConfig struct {
	// HTTPPort is the port the push receiver and query API listen on (default 3100).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the sink authenticates pushing clients.
	Auth AuthConfig `yaml:"auth"`

	// Streams controls in-memory stream retention.
	Streams StreamsConfig `yaml:"streams"`

	// MaxBodyBytes caps the decompressed size of one push request.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// AuthConfig controls client authentication on the sink.
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
	return DefaultAuthHeader
}

// StreamsConfig controls in-memory stream retention.
type StreamsConfig struct {
	// TTL is how long a stream remains in the store after its last push.
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries caps the entries kept per stream; the oldest are dropped first.
	MaxEntries int `yaml:"max_entries"`
}

// Load reads and parses the config file at path, returning the sink configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sink config: read %q: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("sink config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("sink config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config pre-populated with default values. The sink
// binary runs on these when no config file is given.
func Defaults() *Config {
	return &Config{
		Sink: SinkConfig{
			HTTPPort: DefaultHTTPPort,
			Streams: StreamsConfig{
				TTL:        DefaultStreamTTL,
				MaxEntries: DefaultMaxEntries,
			},
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Sink.HTTPPort <= 0 || cfg.Sink.HTTPPort > 65535 {
		return fmt.Errorf("sink.http_port %d is out of range [1, 65535]", cfg.Sink.HTTPPort)
	}
	switch cfg.Sink.Auth.Mode {
	case "apikey":
		if cfg.Sink.Auth.KeyEnv == "" {
			return fmt.Errorf("sink.auth.key_env is required when mode is apikey")
		}
		if cfg.Sink.Auth.Key() == "" {
			return fmt.Errorf("sink.auth: $%s is empty, refusing to run apikey mode without a key", cfg.Sink.Auth.KeyEnv)
		}
	case "none", "":
	default:
		return fmt.Errorf("sink.auth.mode %q unknown: want apikey|none", cfg.Sink.Auth.Mode)
	}
	if cfg.Sink.Streams.TTL <= 0 {
		return fmt.Errorf("sink.streams.ttl must be positive")
	}
	if cfg.Sink.Streams.MaxEntries <= 0 {
		return fmt.Errorf("sink.streams.max_entries must be positive")
	}
	if cfg.Sink.MaxBodyBytes <= 0 {
		return fmt.Errorf("sink.max_body_bytes must be positive")
	}
	return nil
}
