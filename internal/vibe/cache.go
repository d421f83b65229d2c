package vibe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vanajmoorthy/bibliotype/internal/db"
	"github.com/vanajmoorthy/bibliotype/internal/dna"
)

// ClaimStore is the durable half of the single-flight guarantee: one pending
// row per fingerprint across all processes.
type ClaimStore interface {
	ClaimVibe(ctx context.Context, fingerprint string, staleAfter time.Duration) (bool, error)
	GetVibe(ctx context.Context, fingerprint string) (*db.VibeEntry, error)
	CompleteVibe(ctx context.Context, fingerprint string, phrases json.RawMessage) error
	ReleaseVibe(ctx context.Context, fingerprint string) error
}

// Cache serves narrative phrases by fingerprint. Within a process the
// singleflight group collapses concurrent requests; across processes the
// pending claim row does. Identical histories cost one generation, ever.
type Cache struct {
	store        ClaimStore
	generator    Generator
	claimTTL     time.Duration
	pollInterval time.Duration
	flight       singleflight.Group
	logger       zerolog.Logger
}

func NewCache(store ClaimStore, generator Generator, claimTTL time.Duration, logger zerolog.Logger) *Cache {
	if claimTTL <= 0 {
		claimTTL = 10 * time.Minute
	}
	return &Cache{
		store:        store,
		generator:    generator,
		claimTTL:     claimTTL,
		pollInterval: time.Second,
		logger:       logger.With().Str("component", "vibe_cache").Logger(),
	}
}

// Get returns the cached phrases for a fingerprint, generating them on a
// miss. Exactly one caller generates; the rest wait for its result.
func (c *Cache) Get(ctx context.Context, fingerprint string, profile dna.Profile) ([]string, error) {
	if c == nil || c.store == nil {
		return nil, fmt.Errorf("vibe cache is not initialized")
	}

	result, err, _ := c.flight.Do(fingerprint, func() (any, error) {
		return c.lookupOrGenerate(ctx, fingerprint, profile)
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (c *Cache) lookupOrGenerate(ctx context.Context, fingerprint string, profile dna.Profile) ([]string, error) {
	entry, err := c.store.GetVibe(ctx, fingerprint)
	if err != nil && !errors.Is(err, db.ErrNoRows) {
		return nil, fmt.Errorf("read vibe cache: %w", err)
	}
	if entry != nil && entry.Status == db.VibeStatusReady {
		return decodePhrases(entry.Phrases)
	}

	claimed, err := c.store.ClaimVibe(ctx, fingerprint, c.claimTTL)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return c.awaitResult(ctx, fingerprint)
	}

	phrases, err := c.generator.Generate(ctx, profile)
	if err != nil {
		// Drop the claim so the next identical history may retry; a
		// failure must never poison the cache.
		if releaseErr := c.store.ReleaseVibe(ctx, fingerprint); releaseErr != nil {
			c.logger.Warn().Err(releaseErr).Str("fingerprint", fingerprint).Msg("failed to release vibe claim")
		}
		return nil, err
	}

	encoded, err := json.Marshal(phrases)
	if err != nil {
		return nil, err
	}
	if err := c.store.CompleteVibe(ctx, fingerprint, encoded); err != nil {
		return nil, err
	}
	return phrases, nil
}

// awaitResult polls for another owner's result until it lands, the claim
// window passes, or the context ends.
func (c *Cache) awaitResult(ctx context.Context, fingerprint string) ([]string, error) {
	deadline := time.NewTimer(c.claimTTL)
	defer deadline.Stop()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("timed out waiting for narrative generation")
		case <-ticker.C:
			entry, err := c.store.GetVibe(ctx, fingerprint)
			if errors.Is(err, db.ErrNoRows) {
				// The owner failed and released its claim.
				return nil, fmt.Errorf("narrative generation failed in another process")
			}
			if err != nil {
				return nil, err
			}
			if entry.Status == db.VibeStatusReady {
				return decodePhrases(entry.Phrases)
			}
		}
	}
}

func decodePhrases(raw json.RawMessage) ([]string, error) {
	var phrases []string
	if err := json.Unmarshal(raw, &phrases); err != nil {
		return nil, fmt.Errorf("decode cached phrases: %w", err)
	}
	return phrases, nil
}
