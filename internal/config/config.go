// Package config loads the module's YAML configuration, generalized
// from the teacher's internal/infra/config: defaults first, then an
// optional file overlay, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for a server endpoint process.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Logger LoggerConfig `yaml:"logger"`
	Tracer TracerConfig `yaml:"tracer"`
}

// ServerConfig holds the listening endpoint's settings (§4.3, §4.4, §9).
type ServerConfig struct {
	Addr               string          `yaml:"addr"`
	Subprotocol        string          `yaml:"subprotocol,omitempty"` // override, tests only
	EventQueueCapacity int             `yaml:"event_queue_capacity"`
	SendQueueCapacity  int             `yaml:"send_queue_capacity"`
	RateLimit          RateLimitConfig `yaml:"rate_limit"`
	Auth               AuthConfig      `yaml:"auth"`
}

// RateLimitConfig bounds inbound Request admission per connection
// (§9 Design Notes: "misbehaving client floods Requests").
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// AuthConfig selects the connection-admission authenticator.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single static auth token and the roles it grants,
// consumed by the optional RBAC authorizer hook (§9 supplement).
type TokenConfig struct {
	Token string   `yaml:"token"`
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "noop" or "stdout"
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8765",
			EventQueueCapacity: 16,
			SendQueueCapacity:  64,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 50,
				Burst:             100,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads cfg from path, overlaying it on Defaults and then applying
// environment overrides. A missing file is not an error: it yields
// Defaults with overrides applied, matching the teacher's Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)
	return cfg, nil
}

// ApplyEnvOverrides lets a small set of environment variables override
// file/default settings, for container deployments (§9 ambient stack).
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WSIORPC_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("WSIORPC_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("WSIORPC_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("WSIORPC_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("WSIORPC_EVENT_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.EventQueueCapacity = n
		}
	}
}
