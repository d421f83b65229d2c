package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vanajmoorthy/bibliotype/internal/db"
	"github.com/vanajmoorthy/bibliotype/internal/globaltime"
	"github.com/vanajmoorthy/bibliotype/internal/importer"
)

// QuotaSourcePrimary keys the durable daily budget shared by every process
// talking to the primary source.
const QuotaSourcePrimary = "openlibrary"

// CatalogStore is the slice of the database layer enrichment writes through.
type CatalogStore interface {
	ApplyEnrichment(ctx context.Context, bookID int64, up db.EnrichmentUpdate) error
	AddBookGenres(ctx context.Context, bookID int64, genres []string) error
	UpsertPublisher(ctx context.Context, name, normalizedName string) (db.Publisher, bool, error)
	ListBooksMissingMetadata(ctx context.Context, limit int) ([]db.CatalogBook, error)
	GetBookGenres(ctx context.Context, bookID int64) ([]string, error)
}

// QuotaStore meters calls to the primary source.
type QuotaStore interface {
	SpendQuota(ctx context.Context, source string, dailyLimit int, day time.Time) (int, error)
	RefundQuota(ctx context.Context, source string, dailyLimit int, day time.Time) error
	PeekQuota(ctx context.Context, source string, dailyLimit int, day time.Time) (int, error)
}

// Enricher fills catalog gaps from external sources. The catalog is always
// consulted first; a book with no missing fields costs no external calls. The
// primary source spends durable quota per call, the secondary source is
// best-effort and only used for fields the primary could not supply.
type Enricher struct {
	registry   *Registry
	store      CatalogStore
	quota      QuotaStore
	dailyQuota int
	logger     zerolog.Logger
}

func NewEnricher(registry *Registry, store CatalogStore, quota QuotaStore, dailyQuota int, logger zerolog.Logger) *Enricher {
	return &Enricher{
		registry:   registry,
		store:      store,
		quota:      quota,
		dailyQuota: dailyQuota,
		logger:     logger.With().Str("component", "enricher").Logger(),
	}
}

// Result reports what one enrichment pass did for a book.
type Result struct {
	Updated     bool
	UsedPrimary bool
	UsedBackup  bool
}

// EnrichBook fills whatever metadata the catalog is missing for one book.
// Quota exhaustion is not an error: the book keeps its cached fields and the
// pass completes quietly.
func (e *Enricher) EnrichBook(ctx context.Context, cb db.CatalogBook) (Result, error) {
	if e == nil || e.store == nil {
		return Result{}, fmt.Errorf("enricher is not initialized")
	}

	genres, err := e.store.GetBookGenres(ctx, cb.Book.BookID)
	if err != nil {
		return Result{}, err
	}
	if !needsEnrichment(cb.Book, genres) {
		return Result{}, nil
	}

	req := Request{
		Title:  cb.Book.Title,
		Author: cb.AuthorName,
		ISBN13: cb.Book.ISBN13,
	}

	var (
		result Result
		merged Metadata
	)

	if primary := e.registry.Primary(); primary != nil {
		switch _, err := e.quota.SpendQuota(ctx, QuotaSourcePrimary, e.dailyQuota, globaltime.Day()); {
		case errors.Is(err, db.ErrQuotaExhausted):
			e.logger.Debug().
				Int64("book_id", cb.Book.BookID).
				Msg("primary source quota exhausted, serving cached fields")
		case err != nil:
			return Result{}, err
		default:
			meta, err := primary.Lookup(ctx, req)
			if err != nil {
				e.logger.Warn().Err(err).
					Int64("book_id", cb.Book.BookID).
					Str("provider", primary.Name()).
					Msg("primary lookup failed")
				// The call never reached the source usefully, so the unit
				// goes back. Best effort: a lost refund only under-spends.
				if refundErr := e.quota.RefundQuota(ctx, QuotaSourcePrimary, e.dailyQuota, globaltime.Day()); refundErr != nil {
					e.logger.Warn().Err(refundErr).Msg("quota refund failed")
				}
			} else {
				result.UsedPrimary = true
				mergeMetadata(&merged, meta)
			}
		}
	}

	// The secondary source only covers what is still missing, most often
	// ratings volume.
	if secondary := e.registry.Secondary(); secondary != nil && stillMissing(cb.Book, genres, merged) {
		meta, err := secondary.Lookup(ctx, req)
		if err != nil {
			e.logger.Debug().Err(err).
				Int64("book_id", cb.Book.BookID).
				Str("provider", secondary.Name()).
				Msg("secondary lookup failed")
		} else {
			result.UsedBackup = true
			mergeMetadata(&merged, meta)
		}
	}

	if merged.Empty() {
		return result, nil
	}

	update := db.EnrichmentUpdate{
		PageCount:     merged.PageCount,
		PublishYear:   merged.PublishYear,
		ISBN13:        merged.ISBN13,
		AverageRating: merged.AverageRating,
		RatingsCount:  merged.RatingsCount,
	}
	if merged.Publisher != nil {
		normalized := importer.NormalizeName(*merged.Publisher)
		if normalized != "" {
			pub, _, err := e.store.UpsertPublisher(ctx, *merged.Publisher, normalized)
			if err != nil {
				return result, err
			}
			update.PublisherID = &pub.PublisherID
		}
	}
	if err := e.store.ApplyEnrichment(ctx, cb.Book.BookID, update); err != nil {
		return result, err
	}
	if len(merged.Genres) > 0 {
		if err := e.store.AddBookGenres(ctx, cb.Book.BookID, merged.Genres); err != nil {
			return result, err
		}
	}
	result.Updated = true
	return result, nil
}

// QuotaRemaining reports what is left of today's primary-source budget.
func (e *Enricher) QuotaRemaining(ctx context.Context) (int, error) {
	if e == nil || e.quota == nil {
		return 0, fmt.Errorf("enricher is not initialized")
	}
	return e.quota.PeekQuota(ctx, QuotaSourcePrimary, e.dailyQuota, globaltime.Day())
}

// EnrichMissing runs one enrichment sweep over catalog rows that still lack
// metadata. Returns how many books were updated.
func (e *Enricher) EnrichMissing(ctx context.Context, limit int) (int, error) {
	books, err := e.store.ListBooksMissingMetadata(ctx, limit)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, cb := range books {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		result, err := e.EnrichBook(ctx, cb)
		if err != nil {
			e.logger.Warn().Err(err).Int64("book_id", cb.Book.BookID).Msg("enrichment failed")
			continue
		}
		if result.Updated {
			updated++
		}
	}
	e.logger.Info().Int("scanned", len(books)).Int("updated", updated).Msg("enrichment sweep finished")
	return updated, nil
}

func needsEnrichment(book db.Book, genres []string) bool {
	return book.PageCount == nil ||
		book.PublishYear == nil ||
		book.PublisherID == nil ||
		book.RatingsCount == nil ||
		len(genres) == 0
}

// stillMissing reports whether the merged primary result leaves gaps worth a
// secondary call.
func stillMissing(book db.Book, genres []string, merged Metadata) bool {
	if book.RatingsCount == nil && merged.RatingsCount == nil {
		return true
	}
	if book.PageCount == nil && merged.PageCount == nil {
		return true
	}
	if len(genres) == 0 && len(merged.Genres) == 0 {
		return true
	}
	return false
}

func mergeMetadata(dst *Metadata, src *Metadata) {
	if src == nil {
		return
	}
	if len(dst.Genres) == 0 {
		dst.Genres = src.Genres
	}
	if dst.PageCount == nil {
		dst.PageCount = src.PageCount
	}
	if dst.PublishYear == nil {
		dst.PublishYear = src.PublishYear
	}
	if dst.Publisher == nil && src.Publisher != nil && strings.TrimSpace(*src.Publisher) != "" {
		dst.Publisher = src.Publisher
	}
	if dst.ISBN13 == nil {
		dst.ISBN13 = src.ISBN13
	}
	if dst.RatingsCount == nil {
		dst.RatingsCount = src.RatingsCount
	}
	if dst.AverageRating == nil {
		dst.AverageRating = src.AverageRating
	}
}
