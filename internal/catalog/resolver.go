package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vanajmoorthy/bibliotype/internal/db"
	"github.com/vanajmoorthy/bibliotype/internal/importer"
)

// Store is the catalog write surface the resolver needs. *db.Pool satisfies
// it; tests use a fake.
type Store interface {
	UpsertAuthor(ctx context.Context, name, normalizedName string) (db.Author, bool, error)
	UpsertBook(ctx context.Context, up db.BookUpsert) (db.Book, bool, error)
}

// Resolution is the catalog identity one read event resolved to.
type Resolution struct {
	Book          db.Book
	Author        db.Author
	CreatedBook   bool
	CreatedAuthor bool
}

// Resolver matches read events against the shared catalog, creating rows
// only when no equivalent entry exists. Resolution is deterministic: the
// same (title, author) pair always lands on the same Book row.
type Resolver struct {
	store       Store
	logger      zerolog.Logger
	onNewAuthor func(db.Author)
}

func NewResolver(store Store, logger zerolog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger}
}

// OnNewAuthor registers a hook invoked for authors the resolver created.
// Used to queue background mainstream-status checks.
func (r *Resolver) OnNewAuthor(hook func(db.Author)) {
	if r == nil {
		return
	}
	r.onNewAuthor = hook
}

// Resolve upserts the author and book for one event. Variant spellings of
// the same name converge on one key; the display name keeps the most
// complete variant seen so far.
func (r *Resolver) Resolve(ctx context.Context, ev *importer.ReadEvent) (*Resolution, error) {
	if r == nil || r.store == nil {
		return nil, fmt.Errorf("resolver is not initialized")
	}
	if ev == nil {
		return nil, fmt.Errorf("read event is nil")
	}

	authorKey := importer.NormalizeName(ev.Author)
	titleKey := importer.NormalizeTitle(ev.Title)
	if authorKey == "" || titleKey == "" {
		return nil, fmt.Errorf("event normalizes to an empty key (title=%q author=%q)", ev.Title, ev.Author)
	}

	author, createdAuthor, err := r.store.UpsertAuthor(ctx, ev.Author, authorKey)
	if err != nil {
		return nil, fmt.Errorf("resolve author: %w", err)
	}
	if createdAuthor {
		r.logger.Debug().Str("author", author.Name).Msg("created catalog author")
		if r.onNewAuthor != nil {
			r.onNewAuthor(author)
		}
	}

	book, createdBook, err := r.store.UpsertBook(ctx, db.BookUpsert{
		Title:           ev.Title,
		NormalizedTitle: titleKey,
		AuthorID:        author.AuthorID,
		PageCount:       ev.PageCount,
		PublishYear:     ev.PublishYear,
		AverageRating:   ev.AverageRating,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve book: %w", err)
	}
	if createdBook {
		r.logger.Debug().Str("title", book.Title).Str("author", author.Name).Msg("created catalog book")
	}

	return &Resolution{
		Book:          book,
		Author:        author,
		CreatedBook:   createdBook,
		CreatedAuthor: createdAuthor,
	}, nil
}
