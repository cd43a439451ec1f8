package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Config holds the configuration for openmem-server.
// Environment variables are parsed from the OPENMEM_ prefix,
// e.g. OPENMEM_HTTP_PORT, OPENMEM_POSTGRES_DSN.
type Config struct {
	// BuildTarget selects the deployment shape: local, cloud-dev, cloud.
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	// DBDriver is derived from BuildTarget when set to "auto".
	DBDriver string `envconfig:"DB_DRIVER" default:"auto"`

	HTTPPort int `envconfig:"HTTP_PORT" default:"8765"`

	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"openmem.db"`

	// Vector store (Weaviate) configuration. URL is host:port without scheme.
	WeaviateURL string  `envconfig:"WEAVIATE_URL" default:"localhost:8080"`
	SearchAlpha float32 `envconfig:"SEARCH_ALPHA" default:"0.6"`

	// Categorization collaborator (OpenAI-compatible chat completions).
	// When the API key is empty the keyword fallback classifier is used alone.
	CategorizerBaseURL string `envconfig:"CATEGORIZER_BASE_URL" default:"https://api.openai.com/v1"`
	CategorizerAPIKey  string `envconfig:"CATEGORIZER_API_KEY" default:""`
	CategorizerModel   string `envconfig:"CATEGORIZER_MODEL" default:"gpt-4o-mini"`

	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"5"`
}

// ResolveDefaults validates BuildTarget and derives DBDriver when "auto".
func (c *Config) ResolveDefaults() error {
	var defaultDB string
	switch c.BuildTarget {
	case "local":
		defaultDB = "sqlite"
	case "cloud-dev", "cloud":
		defaultDB = "postgres"
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.DBDriver == "" || c.DBDriver == "auto" {
		c.DBDriver = defaultDB
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("OPENMEM_POSTGRES_DSN is required for the postgres driver")
	}
	return nil
}

// New creates a Config by parsing environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("OPENMEM", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("weaviate_url", cfg.WeaviateURL).
		Str("categorizer_model", cfg.CategorizerModel).
		Bool("categorizer_llm_enabled", cfg.CategorizerAPIKey != "").
		Msg("configuration loaded")

	return &cfg, nil
}

// GetHTTPAddr returns the HTTP server listen address.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
