package enrich

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanajmoorthy/bibliotype/internal/db"
)

type fakeProvider struct {
	name  string
	meta  *Metadata
	err   error
	calls int
}

func (f *fakeProvider) Lookup(ctx context.Context, req Request) (*Metadata, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.meta, nil
}

func (f *fakeProvider) Name() string { return f.name }

type fakeCatalog struct {
	genres      map[int64][]string
	updates     map[int64]db.EnrichmentUpdate
	publishers  map[string]db.Publisher
	nextPubID   int64
	missingRows []db.CatalogBook
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		genres:     make(map[int64][]string),
		updates:    make(map[int64]db.EnrichmentUpdate),
		publishers: make(map[string]db.Publisher),
	}
}

func (f *fakeCatalog) ApplyEnrichment(ctx context.Context, bookID int64, up db.EnrichmentUpdate) error {
	f.updates[bookID] = up
	return nil
}

func (f *fakeCatalog) AddBookGenres(ctx context.Context, bookID int64, genres []string) error {
	f.genres[bookID] = append(f.genres[bookID], genres...)
	return nil
}

func (f *fakeCatalog) UpsertPublisher(ctx context.Context, name, normalizedName string) (db.Publisher, bool, error) {
	if pub, ok := f.publishers[normalizedName]; ok {
		return pub, false, nil
	}
	f.nextPubID++
	pub := db.Publisher{PublisherID: f.nextPubID, Name: name, NormalizedName: normalizedName}
	f.publishers[normalizedName] = pub
	return pub, true, nil
}

func (f *fakeCatalog) ListBooksMissingMetadata(ctx context.Context, limit int) ([]db.CatalogBook, error) {
	return f.missingRows, nil
}

func (f *fakeCatalog) GetBookGenres(ctx context.Context, bookID int64) ([]string, error) {
	return f.genres[bookID], nil
}

type fakeQuota struct {
	remaining int
	spends    int
	refunds   int
}

func (f *fakeQuota) SpendQuota(ctx context.Context, source string, dailyLimit int, day time.Time) (int, error) {
	f.spends++
	if f.remaining <= 0 {
		return 0, db.ErrQuotaExhausted
	}
	f.remaining--
	return f.remaining, nil
}

func (f *fakeQuota) RefundQuota(ctx context.Context, source string, dailyLimit int, day time.Time) error {
	f.refunds++
	if f.remaining < dailyLimit {
		f.remaining++
	}
	return nil
}

func (f *fakeQuota) PeekQuota(ctx context.Context, source string, dailyLimit int, day time.Time) (int, error) {
	return f.remaining, nil
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func newTestEnricher(primary, secondary Provider, store CatalogStore, quota QuotaStore) *Enricher {
	registry := NewRegistry("primary", "secondary")
	if primary != nil {
		registry.Register(primary)
	}
	if secondary != nil {
		registry.Register(secondary)
	}
	return NewEnricher(registry, store, quota, 500, zerolog.Nop())
}

func TestEnrichBookMergesPrimaryAndSecondary(t *testing.T) {
	t.Parallel()

	publisher := "Gallic Press"
	primary := &fakeProvider{name: "primary", meta: &Metadata{
		Genres:      []string{"fantasy"},
		PageCount:   intPtr(301),
		PublishYear: intPtr(1999),
		Publisher:   &publisher,
	}}
	secondary := &fakeProvider{name: "secondary", meta: &Metadata{
		PageCount:     intPtr(999),
		RatingsCount:  intPtr(12000),
		AverageRating: floatPtr(4.2),
	}}

	store := newFakeCatalog()
	quota := &fakeQuota{remaining: 5}
	enricher := newTestEnricher(primary, secondary, store, quota)

	cb := db.CatalogBook{Book: db.Book{BookID: 7, Title: "Some Book"}, AuthorName: "Some Author"}
	result, err := enricher.EnrichBook(context.Background(), cb)
	if err != nil {
		t.Fatalf("enrich book: %v", err)
	}
	if !result.Updated || !result.UsedPrimary || !result.UsedBackup {
		t.Fatalf("unexpected result: %+v", result)
	}

	up, ok := store.updates[7]
	if !ok {
		t.Fatal("expected an enrichment update to be persisted")
	}
	if up.PageCount == nil || *up.PageCount != 301 {
		t.Fatalf("primary page count must win over secondary, got %v", up.PageCount)
	}
	if up.RatingsCount == nil || *up.RatingsCount != 12000 {
		t.Fatalf("expected ratings count from secondary, got %v", up.RatingsCount)
	}
	if up.PublisherID == nil {
		t.Fatal("expected publisher to be resolved to a row")
	}
	if got := store.genres[7]; len(got) != 1 || got[0] != "fantasy" {
		t.Fatalf("expected fantasy genre persisted, got %v", got)
	}
}

func TestEnrichBookQuotaExhaustedServesCachedFields(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "primary", meta: &Metadata{PageCount: intPtr(100)}}
	store := newFakeCatalog()
	quota := &fakeQuota{remaining: 0}
	enricher := newTestEnricher(primary, nil, store, quota)

	cb := db.CatalogBook{Book: db.Book{BookID: 3, Title: "Budgetless"}, AuthorName: "Anyone"}
	result, err := enricher.EnrichBook(context.Background(), cb)
	if err != nil {
		t.Fatalf("quota exhaustion must not surface as an error, got %v", err)
	}
	if primary.calls != 0 {
		t.Fatalf("expected no primary calls with an empty budget, got %d", primary.calls)
	}
	if result.Updated || result.UsedPrimary {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEnrichBookSkipsCompleteRows(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "primary", meta: &Metadata{}}
	store := newFakeCatalog()
	store.genres[9] = []string{"mystery"}
	quota := &fakeQuota{remaining: 5}
	enricher := newTestEnricher(primary, nil, store, quota)

	pubID := int64(2)
	cb := db.CatalogBook{
		Book: db.Book{
			BookID:       9,
			Title:        "Fully Known",
			PageCount:    intPtr(210),
			PublishYear:  intPtr(2010),
			PublisherID:  &pubID,
			RatingsCount: intPtr(400),
		},
		AuthorName: "Anyone",
	}

	result, err := enricher.EnrichBook(context.Background(), cb)
	if err != nil {
		t.Fatalf("enrich book: %v", err)
	}
	if result.Updated || primary.calls != 0 || quota.spends != 0 {
		t.Fatalf("complete rows must cost nothing: result=%+v calls=%d spends=%d", result, primary.calls, quota.spends)
	}
}

func TestEnrichBookRefundsQuotaWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "primary", err: fmt.Errorf("upstream 503")}
	store := newFakeCatalog()
	quota := &fakeQuota{remaining: 5}
	enricher := newTestEnricher(primary, nil, store, quota)

	cb := db.CatalogBook{Book: db.Book{BookID: 6, Title: "Unlucky"}, AuthorName: "Anyone"}
	result, err := enricher.EnrichBook(context.Background(), cb)
	if err != nil {
		t.Fatalf("a failed lookup must degrade, not error: %v", err)
	}
	if result.UsedPrimary || result.Updated {
		t.Fatalf("unexpected result: %+v", result)
	}
	if quota.refunds != 1 {
		t.Fatalf("expected one refund for the failed call, got %d", quota.refunds)
	}
	if quota.remaining != 5 {
		t.Fatalf("failed call must not consume budget, remaining = %d", quota.remaining)
	}

	remaining, err := enricher.QuotaRemaining(context.Background())
	if err != nil {
		t.Fatalf("quota remaining: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("QuotaRemaining = %d, want 5", remaining)
	}
}

func TestEnrichBookSecondaryOnlyCalledWhenGapsRemain(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{name: "primary", meta: &Metadata{
		Genres:       []string{"science fiction"},
		PageCount:    intPtr(250),
		RatingsCount: intPtr(800),
	}}
	secondary := &fakeProvider{name: "secondary", meta: &Metadata{}}

	store := newFakeCatalog()
	quota := &fakeQuota{remaining: 5}
	enricher := newTestEnricher(primary, secondary, store, quota)

	cb := db.CatalogBook{Book: db.Book{BookID: 4, Title: "Covered"}, AuthorName: "Anyone"}
	if _, err := enricher.EnrichBook(context.Background(), cb); err != nil {
		t.Fatalf("enrich book: %v", err)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary should stay idle when primary covers the gaps, got %d calls", secondary.calls)
	}
}
