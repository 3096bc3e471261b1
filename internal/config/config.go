// Package config loads and validates application configuration from YAML
// files and environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Google        GoogleConfig        `yaml:"google"`
	Schema        SchemaConfig        `yaml:"schema"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Idempotency   IdempotencyConfig   `yaml:"idempotency"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes how the acting user is authenticated. Mode "jwt"
// verifies bearer tokens against a JWKS endpoint; mode "static" injects a
// fixed identity and exists for local development only.
type IdentityConfig struct {
	Mode         string        `yaml:"mode"`
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
	Algorithms   []string      `yaml:"algorithms"`

	StaticUserID string `yaml:"static_user_id"`
	StaticEmail  string `yaml:"static_email"`
}

// GoogleConfig describes the delegated Google Workspace access.
type GoogleConfig struct {
	// ContactsSpreadsheetID is the sheet backing the address book.
	ContactsSpreadsheetID string `yaml:"contacts_spreadsheet_id"`
	ContactsSheetName     string `yaml:"contacts_sheet_name"`

	// StaticAccessTokenEnv names the environment variable holding a fixed
	// OAuth access token. Development only; production wires a real token
	// store behind the TokenProvider interface.
	StaticAccessTokenEnv string `yaml:"static_access_token_env"`
}

// SchemaConfig describes the published action schema.
type SchemaConfig struct {
	Path string `yaml:"path"`
}

// SnapshotConfig describes the aggregate continuation token store.
type SnapshotConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RateLimitConfig describes the per-user dispatch gate and the per-IP
// transport limit.
type RateLimitConfig struct {
	PerUserRate   float64       `yaml:"per_user_rate"`
	PerUserBurst  int           `yaml:"per_user_burst"`
	AggregateCost int           `yaml:"aggregate_cost"`
	PerIPLimit    int           `yaml:"per_ip_limit"`
	PerIPWindow   time.Duration `yaml:"per_ip_window"`
}

// IdempotencyConfig describes idempotency store settings for the mutation
// action endpoints.
type IdempotencyConfig struct {
	Driver     string        `yaml:"driver"`
	AddrEnv    string        `yaml:"addr_env"`
	DB         int           `yaml:"db"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type",
					"If-None-Match", "X-Correlation-Id", "X-Idempotency-Key"},
				MaxAge: 86400,
			},
		},
		Identity: IdentityConfig{
			Mode:         "jwt",
			JWKSCacheTTL: 1 * time.Hour,
			Algorithms:   []string{"RS256"},
		},
		Google: GoogleConfig{
			ContactsSheetName:    "Contacts",
			StaticAccessTokenEnv: "GOOGLE_ACCESS_TOKEN",
		},
		Schema: SchemaConfig{
			Path: "api/openapi.yaml",
		},
		Snapshot: SnapshotConfig{
			TTL:           2 * time.Minute,
			SweepInterval: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			PerUserRate:   5,
			PerUserBurst:  20,
			AggregateCost: 5,
			PerIPLimit:    120,
			PerIPWindow:   1 * time.Minute,
		},
		Idempotency: IdempotencyConfig{
			Driver:     "memory",
			AddrEnv:    "REDIS_ADDR",
			DefaultTTL: 10 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	switch c.Identity.Mode {
	case "jwt":
		if c.Identity.Issuer == "" {
			errs = append(errs, "identity.issuer is required in jwt mode")
		}
		if c.Identity.JWKSURL == "" {
			errs = append(errs, "identity.jwks_url is required in jwt mode")
		}
		if c.Identity.Audience == "" {
			errs = append(errs, "identity.audience is required in jwt mode")
		}
	case "static":
		if c.Identity.StaticUserID == "" || c.Identity.StaticEmail == "" {
			errs = append(errs, "identity.static_user_id and identity.static_email are required in static mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("identity.mode %q is not supported (jwt, static)", c.Identity.Mode))
	}
	if c.Google.ContactsSpreadsheetID == "" {
		errs = append(errs, "google.contacts_spreadsheet_id is required")
	}
	switch c.Idempotency.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("idempotency.driver %q is not supported (memory, redis)", c.Idempotency.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads WBFF_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WBFF_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WBFF_IDENTITY_MODE"); v != "" {
		cfg.Identity.Mode = v
	}
	if v := os.Getenv("WBFF_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("WBFF_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("WBFF_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("WBFF_GOOGLE_CONTACTS_SPREADSHEET_ID"); v != "" {
		cfg.Google.ContactsSpreadsheetID = v
	}
	if v := os.Getenv("WBFF_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("WBFF_IDEMPOTENCY_DRIVER"); v != "" {
		cfg.Idempotency.Driver = v
	}
}
