// ABOUTME: Configuration loading and parsing for trace-assist
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete trace-assist configuration
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Stream  StreamConfig  `yaml:"stream"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig holds the analysis backend endpoints
type BackendConfig struct {
	BaseURL     string `yaml:"base_url"`
	StreamPath  string `yaml:"stream_path"`
	ResumePath  string `yaml:"resume_path"`
	ResolvePath string `yaml:"resolve_path"`

	RequestTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// StreamConfig holds reconnect/backoff tuning
type StreamConfig struct {
	MaxRetries int     `yaml:"max_retries"`
	Jitter     float64 `yaml:"jitter"`

	BaseDelay time.Duration `yaml:"-"`
	MaxDelay  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	BaseDelayRaw string `yaml:"base_delay"`
	MaxDelayRaw  string `yaml:"max_delay"`
}

// SessionConfig holds session persistence configuration
type SessionConfig struct {
	DBPath string `yaml:"db_path"`

	Retention time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RetentionRaw string `yaml:"retention"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}

	if c.Session.DBPath == "" {
		return fmt.Errorf("session.db_path is required")
	}

	if c.Stream.MaxRetries < 0 {
		return fmt.Errorf("stream.max_retries must not be negative")
	}

	if c.Stream.Jitter < 0 || c.Stream.Jitter >= 1 {
		return fmt.Errorf("stream.jitter must be in [0, 1)")
	}

	return nil
}

// StreamURL returns the full streaming endpoint for a session turn.
func (c *Config) StreamURL() string {
	path := c.Backend.StreamPath
	if path == "" {
		path = "/v1/analysis/stream"
	}
	return c.Backend.BaseURL + path
}

// ResumeURL returns the full continuity endpoint.
func (c *Config) ResumeURL() string {
	path := c.Backend.ResumePath
	if path == "" {
		path = "/v1/analysis/resume"
	}
	return c.Backend.BaseURL + path
}

// ResolveURL returns the full intervention resolution endpoint.
func (c *Config) ResolveURL() string {
	path := c.Backend.ResolvePath
	if path == "" {
		path = "/v1/analysis/intervention"
	}
	return c.Backend.BaseURL + path
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.RequestTimeoutRaw != "" {
		cfg.Backend.RequestTimeout, err = time.ParseDuration(cfg.Backend.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Backend.RequestTimeoutRaw, err)
		}
	}

	if cfg.Stream.BaseDelayRaw != "" {
		cfg.Stream.BaseDelay, err = time.ParseDuration(cfg.Stream.BaseDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing base_delay %q: %w", cfg.Stream.BaseDelayRaw, err)
		}
	}

	if cfg.Stream.MaxDelayRaw != "" {
		cfg.Stream.MaxDelay, err = time.ParseDuration(cfg.Stream.MaxDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing max_delay %q: %w", cfg.Stream.MaxDelayRaw, err)
		}
	}

	if cfg.Session.RetentionRaw != "" {
		cfg.Session.Retention, err = time.ParseDuration(cfg.Session.RetentionRaw)
		if err != nil {
			return fmt.Errorf("parsing retention %q: %w", cfg.Session.RetentionRaw, err)
		}
	}

	return nil
}
