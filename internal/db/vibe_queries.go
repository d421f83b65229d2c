package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	VibeStatusPending = "pending"
	VibeStatusReady   = "ready"
)

// ClaimVibe tries to mark a fingerprint as in-progress. The claim succeeds
// when no entry exists or a pending claim is older than staleAfter, so a
// crashed generator does not wedge the key forever. Returns whether this
// caller now owns the generation.
func (p *Pool) ClaimVibe(ctx context.Context, fingerprint string, staleAfter time.Duration) (bool, error) {
	const query = `
INSERT INTO vibe_entries (fingerprint, status, claimed_at)
VALUES ($1, $2, now())
ON CONFLICT (fingerprint) DO UPDATE SET
	status = $2,
	claimed_at = now()
WHERE vibe_entries.status = $2 AND vibe_entries.claimed_at < now() - $3::interval
RETURNING fingerprint`

	interval := fmt.Sprintf("%d seconds", int(staleAfter.Seconds()))
	var claimed string
	err := p.QueryRow(ctx, query, fingerprint, VibeStatusPending, interval).Scan(&claimed)
	if errors.Is(err, ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim vibe %s: %w", fingerprint, err)
	}
	return true, nil
}

// GetVibe returns the cache entry for a fingerprint, or ErrNoRows.
func (p *Pool) GetVibe(ctx context.Context, fingerprint string) (*VibeEntry, error) {
	const query = `
SELECT fingerprint, status, phrases, claimed_at, completed_at
FROM vibe_entries WHERE fingerprint = $1`

	var entry VibeEntry
	err := p.QueryRow(ctx, query, fingerprint).Scan(
		&entry.Fingerprint,
		&entry.Status,
		&entry.Phrases,
		&entry.ClaimedAt,
		&entry.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CompleteVibe publishes a generated result. The cache is populated before
// any caller sees the phrases.
func (p *Pool) CompleteVibe(ctx context.Context, fingerprint string, phrases json.RawMessage) error {
	const query = `
UPDATE vibe_entries SET status = $2, phrases = $3, completed_at = now()
WHERE fingerprint = $1`

	if _, err := p.Exec(ctx, query, fingerprint, VibeStatusReady, phrases); err != nil {
		return fmt.Errorf("complete vibe %s: %w", fingerprint, err)
	}
	return nil
}

// ReleaseVibe drops a pending claim after a failed generation so the next
// access may retry. Ready entries are never removed here.
func (p *Pool) ReleaseVibe(ctx context.Context, fingerprint string) error {
	const query = `DELETE FROM vibe_entries WHERE fingerprint = $1 AND status = $2`

	if _, err := p.Exec(ctx, query, fingerprint, VibeStatusPending); err != nil {
		return fmt.Errorf("release vibe claim %s: %w", fingerprint, err)
	}
	return nil
}
