package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"8"`

	// Enrichment sources. The primary source spends a durable daily quota;
	// the secondary source is only rate-limited at the transport.
	OpenLibraryBaseURL   string  `envconfig:"OPENLIBRARY_BASE_URL" default:"https://openlibrary.org"`
	GoogleBooksBaseURL   string  `envconfig:"GOOGLE_BOOKS_BASE_URL" default:"https://www.googleapis.com/books/v1"`
	GoogleBooksAPIKey    string  `envconfig:"GOOGLE_BOOKS_API_KEY" default:""`
	WikimediaBaseURL     string  `envconfig:"WIKIMEDIA_BASE_URL" default:"https://wikimedia.org/api/rest_v1"`
	EnrichmentDailyQuota int     `envconfig:"ENRICHMENT_DAILY_QUOTA" default:"500"`
	SecondaryRatePerSec  float64 `envconfig:"SECONDARY_RATE_PER_SEC" default:"1"`

	// Narrative generation.
	VibeEndpoint     string `envconfig:"VIBE_ENDPOINT" default:"https://generativelanguage.googleapis.com/v1beta"`
	VibeModel        string `envconfig:"VIBE_MODEL" default:"gemini-2.5-flash"`
	VibeAPIKey       string `envconfig:"VIBE_API_KEY" default:""`
	VibeClaimTTLMins int    `envconfig:"VIBE_CLAIM_TTL_MINS" default:"10"`

	// Reader archetype rules. Empty means the embedded default rule set.
	ArchetypeRulesPath string `envconfig:"ARCHETYPE_RULES_PATH" default:""`

	ProfileWorkers       int    `envconfig:"PROFILE_WORKERS" default:"2"`
	AnonProfileTTLHours  int    `envconfig:"ANON_PROFILE_TTL_HOURS" default:"24"`
	BracketRecomputeMins int    `envconfig:"BRACKET_RECOMPUTE_MINS" default:"60"`
	CORSAllowedOrigins   string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.EnrichmentDailyQuota < 0 {
		return fmt.Errorf("ENRICHMENT_DAILY_QUOTA must be >= 0")
	}
	if c.SecondaryRatePerSec <= 0 {
		return fmt.Errorf("SECONDARY_RATE_PER_SEC must be > 0")
	}
	if c.ProfileWorkers < 1 {
		return fmt.Errorf("PROFILE_WORKERS must be >= 1")
	}
	if c.AnonProfileTTLHours < 1 {
		return fmt.Errorf("ANON_PROFILE_TTL_HOURS must be >= 1")
	}
	if c.VibeClaimTTLMins < 1 {
		return fmt.Errorf("VIBE_CLAIM_TTL_MINS must be >= 1")
	}
	return nil
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
