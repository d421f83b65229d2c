package community

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanajmoorthy/bibliotype/internal/db"
)

type fakeStore struct {
	ledger map[string]map[int64]struct{}
	counts map[int64]int64

	cuts  db.BracketCuts
	total int64

	saved       *db.BracketCuts
	savedTotal  int64
	loadedCuts  *db.BracketCuts
	loadedTotal int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ledger: make(map[string]map[int64]struct{}),
		counts: make(map[int64]int64),
	}
}

func (f *fakeStore) RecordRead(ctx context.Context, ownerKey string, bookID int64, rating *float64, dateRead *time.Time) (bool, error) {
	owned, ok := f.ledger[ownerKey]
	if !ok {
		owned = make(map[int64]struct{})
		f.ledger[ownerKey] = owned
	}
	if _, exists := owned[bookID]; exists {
		return false, nil
	}
	owned[bookID] = struct{}{}
	f.counts[bookID]++
	return true, nil
}

func (f *fakeStore) ComputeBracketCuts(ctx context.Context) (db.BracketCuts, int64, error) {
	return f.cuts, f.total, nil
}

func (f *fakeStore) SaveAnalyticsSnapshot(ctx context.Context, cuts db.BracketCuts, totalBooks int64, computedAt time.Time) error {
	f.saved = &cuts
	f.savedTotal = totalBooks
	return nil
}

func (f *fakeStore) LoadAnalyticsSnapshot(ctx context.Context) (db.BracketCuts, int64, time.Time, error) {
	if f.loadedCuts == nil {
		return db.BracketCuts{}, 0, time.Time{}, db.ErrNoRows
	}
	return *f.loadedCuts, f.loadedTotal, time.Now(), nil
}

func TestRecordReadsIsIdempotentPerOwner(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	agg := NewAggregator(store, zerolog.Nop())

	reads := []Read{{BookID: 1}, {BookID: 2}}
	counted, err := agg.RecordReads(context.Background(), "user:1", reads)
	if err != nil {
		t.Fatalf("record reads: %v", err)
	}
	if counted != 2 {
		t.Fatalf("expected 2 new pairs, got %d", counted)
	}

	// The same import again must not move any count.
	counted, err = agg.RecordReads(context.Background(), "user:1", reads)
	if err != nil {
		t.Fatalf("record reads again: %v", err)
	}
	if counted != 0 {
		t.Fatalf("re-import counted %d pairs, want 0", counted)
	}
	if store.counts[1] != 1 || store.counts[2] != 1 {
		t.Fatalf("unexpected global counts: %v", store.counts)
	}

	// A second reader counts once more.
	if _, err := agg.RecordReads(context.Background(), "user:2", reads[:1]); err != nil {
		t.Fatalf("record reads for second owner: %v", err)
	}
	if store.counts[1] != 2 {
		t.Fatalf("expected count 2 after second reader, got %d", store.counts[1])
	}
}

func TestRecomputeSwapsSnapshotAtomically(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.cuts = db.BracketCuts{P90: 100, P70: 50, P50: 20, P30: 10, P10: 2}
	store.total = 42
	agg := NewAggregator(store, zerolog.Nop())

	if agg.Snapshot() != nil {
		t.Fatal("expected nil snapshot before first recompute")
	}

	snap, err := agg.Recompute(context.Background())
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if snap.TotalBooks != 42 || snap.Cuts.P90 != 100 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if agg.Snapshot() != snap {
		t.Fatal("Snapshot() must return the freshly swapped pointer")
	}
	if store.saved == nil || store.saved.P90 != 100 || store.savedTotal != 42 {
		t.Fatalf("snapshot was not persisted: %+v total=%d", store.saved, store.savedTotal)
	}

	// A later recompute must fully replace, never mutate, the old snapshot.
	store.cuts = db.BracketCuts{P90: 999, P70: 1, P50: 1, P30: 1, P10: 1}
	if _, err := agg.Recompute(context.Background()); err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	if snap.Cuts.P90 != 100 {
		t.Fatalf("old snapshot mutated: %+v", snap)
	}
	if agg.Snapshot().Cuts.P90 != 999 {
		t.Fatalf("new snapshot not visible: %+v", agg.Snapshot())
	}
}

func TestStartReturnsWithoutBlocking(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.cuts = db.BracketCuts{P90: 4, P70: 3, P50: 2, P30: 1, P10: 1}
	store.total = 9
	agg := NewAggregator(store, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		agg.Start(ctx, time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start must return immediately, not run the recompute loop inline")
	}

	// The initial recompute runs in the background shortly after.
	deadline := time.Now().Add(2 * time.Second)
	for agg.Snapshot() == nil {
		if time.Now().After(deadline) {
			t.Fatal("initial recompute never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if agg.Snapshot().TotalBooks != 9 {
		t.Fatalf("unexpected snapshot: %+v", agg.Snapshot())
	}
}

func TestWarmStartToleratesEmptyTable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.cuts = db.BracketCuts{P90: 1, P70: 1, P50: 1, P30: 1, P10: 1}
	store.total = 3

	agg := NewAggregator(store, zerolog.Nop())
	if err := agg.WarmStart(context.Background()); err != nil {
		t.Fatalf("warm start on empty table: %v", err)
	}
	// A fresh store warm-starts cleanly but leaves no snapshot; callers that
	// need one must detect this via Snapshot() and recompute.
	if agg.Snapshot() != nil {
		t.Fatal("expected nil snapshot after empty warm start")
	}
	if _, err := agg.Recompute(context.Background()); err != nil {
		t.Fatalf("recompute after empty warm start: %v", err)
	}
	if snap := agg.Snapshot(); snap == nil || snap.TotalBooks != 3 {
		t.Fatalf("expected recomputed snapshot, got %+v", snap)
	}
}

func TestWarmStartLoadsPersistedSnapshot(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.loadedCuts = &db.BracketCuts{P90: 10, P70: 5, P50: 3, P30: 2, P10: 1}
	store.loadedTotal = 7

	agg := NewAggregator(store, zerolog.Nop())
	if err := agg.WarmStart(context.Background()); err != nil {
		t.Fatalf("warm start: %v", err)
	}
	snap := agg.Snapshot()
	if snap == nil || snap.TotalBooks != 7 || snap.Cuts.P90 != 10 {
		t.Fatalf("unexpected warm snapshot: %+v", snap)
	}
}
