package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the link service
// Environment variables are automatically parsed from LINK_ prefix
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Storage drivers: postgres or sqlite
	DBDriver    string `envconfig:"DB_DRIVER" default:"postgres"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"link.db"`

	// Embedding / Search Configuration
	OllamaURL          string  `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	EmbedModel         string  `envconfig:"EMBED_MODEL" default:"mxbai-embed-large"`
	SearchIndexURL     string  `envconfig:"SEARCH_INDEX_URL" default:"weaviate:8080"`
	SearchAlphaKeyword float32 `envconfig:"SEARCH_ALPHA_KEYWORD" default:"0.25"`
	SearchAlphaVector  float32 `envconfig:"SEARCH_ALPHA_VECTOR" default:"0.75"`
	SearchTopK         int     `envconfig:"SEARCH_TOP_K" default:"5"`

	// Text generation
	GenAIAPIKey string `envconfig:"GENAI_API_KEY" default:""`
	GenAIModel  string `envconfig:"GENAI_MODEL" default:"gemini-2.0-flash"`

	// Outreach bounds
	OutreachBatchSize     int     `envconfig:"OUTREACH_BATCH_SIZE" default:"5"`
	OutreachBatchMax      int     `envconfig:"OUTREACH_BATCH_MAX" default:"10"`
	OutreachMaxExpansions int     `envconfig:"OUTREACH_MAX_EXPANSIONS" default:"2"`
	OutreachHardCap       int     `envconfig:"OUTREACH_HARD_CAP" default:"25"`
	ForumMinTargets       int     `envconfig:"FORUM_MIN_TARGETS" default:"10"`
	RecontactCooldownDays int     `envconfig:"RECONTACT_COOLDOWN_DAYS" default:"7"`
	TargetThreshold       float64 `envconfig:"TARGET_CONFIDENCE_THRESHOLD" default:"0.75"`

	// Health checking and startup
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
	BootstrapTimeoutSeconds   int `envconfig:"BOOTSTRAP_TIMEOUT_SECONDS" default:"30"`

	// Fact cache
	FactWriteThreshold      float64 `envconfig:"FACT_WRITE_THRESHOLD" default:"0.75"`
	FactTTLEventDays        int     `envconfig:"FACT_TTL_EVENT_DAYS" default:"7"`
	FactTTLEventUnknownDays int     `envconfig:"FACT_TTL_EVENT_UNKNOWN_DAYS" default:"30"`
	FactTTLProfileDays      int     `envconfig:"FACT_TTL_PROFILE_DAYS" default:"180"`
	FactTTLOutreachDays     int     `envconfig:"FACT_TTL_OUTREACH_DAYS" default:"14"`
	FactLookupLimit         int     `envconfig:"FACT_LOOKUP_LIMIT" default:"10"`
}

// Validate checks driver settings after parsing.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("LINK_POSTGRES_DSN is required when DB_DRIVER=postgres")
	}
	if c.OutreachBatchSize <= 0 || c.OutreachHardCap < c.OutreachBatchSize {
		return fmt.Errorf("invalid outreach bounds: batch=%d cap=%d", c.OutreachBatchSize, c.OutreachHardCap)
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Environment variables should be prefixed with LINK_
// Example: LINK_HTTP_PORT, LINK_POSTGRES_DSN
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("LINK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Int("port", cfg.HTTPPort).
		Str("embed_model", cfg.EmbedModel).
		Str("search_index_url", cfg.SearchIndexURL).
		Int("outreach_batch_size", cfg.OutreachBatchSize).
		Int("outreach_hard_cap", cfg.OutreachHardCap).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	cfg := &Config{
		Environment: EnvTesting,
		HTTPPort:    8080,

		DBDriver:   "sqlite",
		SQLitePath: ":memory:",

		OllamaURL:          "http://localhost:11434",
		EmbedModel:         "mxbai-embed-large",
		SearchIndexURL:     "localhost:8082",
		SearchAlphaKeyword: 0.25,
		SearchAlphaVector:  0.75,
		SearchTopK:         5,

		GenAIModel: "gemini-2.0-flash",

		OutreachBatchSize:     5,
		OutreachBatchMax:      10,
		OutreachMaxExpansions: 2,
		OutreachHardCap:       25,
		ForumMinTargets:       10,
		RecontactCooldownDays: 7,
		TargetThreshold:       0.75,

		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 2,
		BootstrapTimeoutSeconds:   5,

		FactWriteThreshold:      0.75,
		FactTTLEventDays:        7,
		FactTTLEventUnknownDays: 30,
		FactTTLProfileDays:      180,
		FactTTLOutreachDays:     14,
		FactLookupLimit:         10,
	}
	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
