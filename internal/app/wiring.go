package app

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/vanajmoorthy/bibliotype/internal/catalog"
	"github.com/vanajmoorthy/bibliotype/internal/community"
	"github.com/vanajmoorthy/bibliotype/internal/config"
	"github.com/vanajmoorthy/bibliotype/internal/db"
	"github.com/vanajmoorthy/bibliotype/internal/dna"
	"github.com/vanajmoorthy/bibliotype/internal/enrich"
	"github.com/vanajmoorthy/bibliotype/internal/profile"
	"github.com/vanajmoorthy/bibliotype/internal/vibe"
)

// services bundles the wired pipeline for commands that run it.
type services struct {
	resolver   *catalog.Resolver
	aggregator *community.Aggregator
	enricher   *enrich.Enricher
	checker    *enrich.MainstreamChecker
	vibes      *vibe.Cache
	profiles   *profile.Service
}

// buildServices wires the full pipeline the way serve and analyze need it.
func buildServices(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) (*services, error) {
	rules, err := dna.LoadArchetypeRules(cfg.ArchetypeRulesPath)
	if err != nil {
		return nil, err
	}
	logger.Info().Strs("archetypes", rules.RuleNames()).Msg("archetype rules loaded")

	registry := enrich.NewRegistry("openlibrary", "googlebooks")
	if err := registry.Register(enrich.NewOpenLibraryProvider(cfg.OpenLibraryBaseURL)); err != nil {
		return nil, err
	}
	if cfg.GoogleBooksAPIKey != "" {
		provider := enrich.NewGoogleBooksProvider(cfg.GoogleBooksBaseURL, cfg.GoogleBooksAPIKey, cfg.SecondaryRatePerSec)
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}
	enricher := enrich.NewEnricher(registry, pool, pool, cfg.EnrichmentDailyQuota, logger)
	checker := enrich.NewMainstreamChecker(cfg.OpenLibraryBaseURL, cfg.WikimediaBaseURL, pool, logger)

	aggregator := community.NewAggregator(pool, logger)

	var vibes *vibe.Cache
	if cfg.VibeAPIKey != "" {
		generator := vibe.NewHTTPGenerator(cfg.VibeEndpoint, cfg.VibeModel, cfg.VibeAPIKey)
		claimTTL := time.Duration(cfg.VibeClaimTTLMins) * time.Minute
		vibes = vibe.NewCache(pool, generator, claimTTL, logger)
	}

	resolver := catalog.NewResolver(pool, logger)

	anonTTL := time.Duration(cfg.AnonProfileTTLHours) * time.Hour
	svc := newProfileService(pool, resolver, aggregator, enricher, vibes, rules, anonTTL, logger)

	return &services{
		resolver:   resolver,
		aggregator: aggregator,
		enricher:   enricher,
		checker:    checker,
		vibes:      vibes,
		profiles:   svc,
	}, nil
}

// newProfileService exists so the nil vibe cache does not become a non-nil
// interface value inside the orchestrator.
func newProfileService(
	pool *db.Pool,
	resolver *catalog.Resolver,
	aggregator *community.Aggregator,
	enricher *enrich.Enricher,
	vibes *vibe.Cache,
	rules *dna.ArchetypeRules,
	anonTTL time.Duration,
	logger zerolog.Logger,
) *profile.Service {
	var cache profile.VibeCache
	if vibes != nil {
		cache = vibes
	}
	return profile.NewService(pool, resolver, aggregator, enricher, cache, rules, dna.NewSentimentScorer(), anonTTL, logger)
}
