package db

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SpendQuota atomically takes one call from a source's daily budget. A stale
// window resets to the full limit before spending. Returns ErrQuotaExhausted
// when the current window has nothing left. Reset and decrement happen in a
// single statement, so concurrent spenders cannot overdraw the ceiling.
func (p *Pool) SpendQuota(ctx context.Context, source string, dailyLimit int, day time.Time) (int, error) {
	if dailyLimit <= 0 {
		return 0, ErrQuotaExhausted
	}

	const query = `
INSERT INTO quota_counters (source, day, remaining, updated_at)
VALUES ($1, $2, $3 - 1, now())
ON CONFLICT (source) DO UPDATE SET
	remaining = CASE WHEN quota_counters.day <> EXCLUDED.day THEN $3 - 1 ELSE quota_counters.remaining - 1 END,
	day = EXCLUDED.day,
	updated_at = now()
WHERE quota_counters.day <> EXCLUDED.day OR quota_counters.remaining > 0
RETURNING remaining`

	var remaining int
	err := p.QueryRow(ctx, query, source, day, dailyLimit).Scan(&remaining)
	if errors.Is(err, ErrNoRows) {
		return 0, ErrQuotaExhausted
	}
	if err != nil {
		return 0, fmt.Errorf("spend quota for %s: %w", source, err)
	}
	return remaining, nil
}

// RefundQuota returns one spent unit to the current window, capped at the
// daily limit. Used when a spent call failed before reaching the source.
// Refunds against a rolled-over window are dropped silently.
func (p *Pool) RefundQuota(ctx context.Context, source string, dailyLimit int, day time.Time) error {
	if dailyLimit <= 0 {
		return nil
	}

	const query = `
UPDATE quota_counters
SET remaining = LEAST(remaining + 1, $3), updated_at = now()
WHERE source = $1 AND day = $2`

	if _, err := p.Exec(ctx, query, source, day, dailyLimit); err != nil {
		return fmt.Errorf("refund quota for %s: %w", source, err)
	}
	return nil
}

// PeekQuota reports the remaining budget without spending. A stale window
// reads as the full limit.
func (p *Pool) PeekQuota(ctx context.Context, source string, dailyLimit int, day time.Time) (int, error) {
	const query = `SELECT day, remaining FROM quota_counters WHERE source = $1`

	var (
		storedDay time.Time
		remaining int
	)
	err := p.QueryRow(ctx, query, source).Scan(&storedDay, &remaining)
	if errors.Is(err, ErrNoRows) {
		return dailyLimit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("peek quota for %s: %w", source, err)
	}
	if !storedDay.Equal(day) {
		return dailyLimit, nil
	}
	return remaining, nil
}
