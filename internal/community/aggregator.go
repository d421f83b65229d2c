package community

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanajmoorthy/bibliotype/internal/db"
	"github.com/vanajmoorthy/bibliotype/internal/globaltime"
)

// Store is the slice of the database layer the aggregator needs.
type Store interface {
	RecordRead(ctx context.Context, ownerKey string, bookID int64, rating *float64, dateRead *time.Time) (bool, error)
	ComputeBracketCuts(ctx context.Context) (db.BracketCuts, int64, error)
	SaveAnalyticsSnapshot(ctx context.Context, cuts db.BracketCuts, totalBooks int64, computedAt time.Time) error
	LoadAnalyticsSnapshot(ctx context.Context) (db.BracketCuts, int64, time.Time, error)
}

// Read is one (book, reader data) pair to record in the community ledger.
type Read struct {
	BookID   int64
	Rating   *float64
	DateRead *time.Time
}

// Snapshot is an immutable bracket cut set. Readers get a pointer to one and
// never see a half-updated mix.
type Snapshot struct {
	Cuts       db.BracketCuts
	TotalBooks int64
	ComputedAt time.Time
}

// Aggregator owns the community read counts and the percentile bracket
// snapshot. Recomputation is scheduled work; profile requests only read the
// current snapshot pointer.
type Aggregator struct {
	store   Store
	logger  zerolog.Logger
	current atomic.Pointer[Snapshot]
}

func NewAggregator(store Store, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		logger: logger.With().Str("component", "community").Logger(),
	}
}

// RecordReads writes the owner's read ledger rows. Pairs already recorded
// change nothing, so a re-import of the same file leaves every count as it
// was. Returns how many pairs were newly counted.
func (a *Aggregator) RecordReads(ctx context.Context, ownerKey string, reads []Read) (int, error) {
	if a == nil || a.store == nil {
		return 0, fmt.Errorf("aggregator is not initialized")
	}

	counted := 0
	for _, read := range reads {
		isNew, err := a.store.RecordRead(ctx, ownerKey, read.BookID, read.Rating, read.DateRead)
		if err != nil {
			return counted, err
		}
		if isNew {
			counted++
		}
	}
	return counted, nil
}

// Recompute scans the catalog for fresh percentile cuts, persists them and
// swaps the in-memory snapshot in one pointer store.
func (a *Aggregator) Recompute(ctx context.Context) (*Snapshot, error) {
	if a == nil || a.store == nil {
		return nil, fmt.Errorf("aggregator is not initialized")
	}

	cuts, total, err := a.store.ComputeBracketCuts(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{Cuts: cuts, TotalBooks: total, ComputedAt: globaltime.UTC()}
	if err := a.store.SaveAnalyticsSnapshot(ctx, cuts, total, snapshot.ComputedAt); err != nil {
		return nil, err
	}
	a.current.Store(snapshot)
	a.logger.Info().
		Int64("total_books", total).
		Int64("cut_p90", cuts.P90).
		Msg("bracket snapshot recomputed")
	return snapshot, nil
}

// WarmStart loads the last persisted snapshot, if any. A catalog that never
// had its brackets computed is not an error.
func (a *Aggregator) WarmStart(ctx context.Context) error {
	cuts, total, computedAt, err := a.store.LoadAnalyticsSnapshot(ctx)
	if errors.Is(err, db.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load bracket snapshot: %w", err)
	}
	a.current.Store(&Snapshot{Cuts: cuts, TotalBooks: total, ComputedAt: computedAt})
	return nil
}

// Snapshot returns the current bracket set, or nil when none has been
// computed yet.
func (a *Aggregator) Snapshot() *Snapshot {
	if a == nil {
		return nil
	}
	return a.current.Load()
}

// Start launches the periodic recompute loop and returns immediately. One
// initial recompute runs right away so a fresh process serves brackets
// without waiting a full tick. The loop stops when ctx ends.
func (a *Aggregator) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	go func() {
		if _, err := a.Recompute(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("initial bracket recompute failed")
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.Recompute(ctx); err != nil {
					a.logger.Warn().Err(err).Msg("bracket recompute failed")
				}
			}
		}
	}()
}
