package db

import (
	"context"
	"fmt"
	"time"
)

// BracketCuts holds the five percentile cut points over global_read_count
// that split the catalog into six brackets.
type BracketCuts struct {
	P90 int64
	P70 int64
	P50 int64
	P30 int64
	P10 int64
}

// RecordRead inserts the (owner, book) ledger row and bumps the book's
// global read count in the same statement. A pair that already exists
// changes nothing, so re-imports never double-count. Returns whether the
// pair was new.
func (p *Pool) RecordRead(ctx context.Context, ownerKey string, bookID int64, rating *float64, dateRead *time.Time) (bool, error) {
	const query = `
WITH ins AS (
	INSERT INTO user_books (owner_key, book_id, rating, date_read, created_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (owner_key, book_id) DO NOTHING
	RETURNING book_id
)
UPDATE books b SET
	global_read_count = global_read_count + 1,
	updated_at = now()
WHERE b.book_id IN (SELECT book_id FROM ins)`

	tag, err := p.Exec(ctx, query, ownerKey, bookID, rating, dateRead)
	if err != nil {
		return false, fmt.Errorf("record read owner=%s book=%d: %w", ownerKey, bookID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ComputeBracketCuts scans the whole catalog for the percentile cut points.
// Plain reads only; no locks held on catalog rows.
func (p *Pool) ComputeBracketCuts(ctx context.Context) (BracketCuts, int64, error) {
	const query = `
SELECT COUNT(*),
	COALESCE(percentile_disc(0.90) WITHIN GROUP (ORDER BY global_read_count), 0),
	COALESCE(percentile_disc(0.70) WITHIN GROUP (ORDER BY global_read_count), 0),
	COALESCE(percentile_disc(0.50) WITHIN GROUP (ORDER BY global_read_count), 0),
	COALESCE(percentile_disc(0.30) WITHIN GROUP (ORDER BY global_read_count), 0),
	COALESCE(percentile_disc(0.10) WITHIN GROUP (ORDER BY global_read_count), 0)
FROM books`

	var (
		cuts  BracketCuts
		total int64
	)
	err := p.QueryRow(ctx, query).Scan(&total, &cuts.P90, &cuts.P70, &cuts.P50, &cuts.P30, &cuts.P10)
	if err != nil {
		return BracketCuts{}, 0, fmt.Errorf("compute bracket cuts: %w", err)
	}
	return cuts, total, nil
}

// SaveAnalyticsSnapshot replaces the singleton snapshot row in one statement,
// so concurrent readers see either the old or the new cut set, never a mix.
func (p *Pool) SaveAnalyticsSnapshot(ctx context.Context, cuts BracketCuts, totalBooks int64, computedAt time.Time) error {
	const query = `
INSERT INTO aggregate_analytics (analytics_id, total_books, cut_p90, cut_p70, cut_p50, cut_p30, cut_p10, computed_at)
VALUES (1, $1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (analytics_id) DO UPDATE SET
	total_books = EXCLUDED.total_books,
	cut_p90 = EXCLUDED.cut_p90,
	cut_p70 = EXCLUDED.cut_p70,
	cut_p50 = EXCLUDED.cut_p50,
	cut_p30 = EXCLUDED.cut_p30,
	cut_p10 = EXCLUDED.cut_p10,
	computed_at = EXCLUDED.computed_at`

	if _, err := p.Exec(ctx, query, totalBooks, cuts.P90, cuts.P70, cuts.P50, cuts.P30, cuts.P10, computedAt); err != nil {
		return fmt.Errorf("save analytics snapshot: %w", err)
	}
	return nil
}

// LoadAnalyticsSnapshot returns the persisted snapshot, or ErrNoRows when the
// brackets have never been computed.
func (p *Pool) LoadAnalyticsSnapshot(ctx context.Context) (BracketCuts, int64, time.Time, error) {
	const query = `
SELECT total_books, cut_p90, cut_p70, cut_p50, cut_p30, cut_p10, computed_at
FROM aggregate_analytics WHERE analytics_id = 1`

	var (
		cuts       BracketCuts
		total      int64
		computedAt time.Time
	)
	err := p.QueryRow(ctx, query).Scan(&total, &cuts.P90, &cuts.P70, &cuts.P50, &cuts.P30, &cuts.P10, &computedAt)
	if err != nil {
		return BracketCuts{}, 0, time.Time{}, err
	}
	return cuts, total, computedAt, nil
}
