package catalog

import (
	"context"
	"strconv"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vanajmoorthy/bibliotype/internal/db"
	"github.com/vanajmoorthy/bibliotype/internal/importer"
)

// fakeStore mimics the catalog upsert semantics in memory: one row per
// normalized key, display names replaced only by longer variants.
type fakeStore struct {
	authors map[string]*db.Author
	books   map[string]*db.Book
	nextID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		authors: make(map[string]*db.Author),
		books:   make(map[string]*db.Book),
	}
}

func (f *fakeStore) UpsertAuthor(_ context.Context, name, normalized string) (db.Author, bool, error) {
	if existing, ok := f.authors[normalized]; ok {
		if len(name) > len(existing.Name) {
			existing.Name = name
		}
		return *existing, false, nil
	}
	f.nextID++
	author := &db.Author{AuthorID: f.nextID, Name: name, NormalizedName: normalized}
	f.authors[normalized] = author
	return *author, true, nil
}

func (f *fakeStore) UpsertBook(_ context.Context, up db.BookUpsert) (db.Book, bool, error) {
	key := up.NormalizedTitle + "|" + itoa(up.AuthorID)
	if existing, ok := f.books[key]; ok {
		if len(up.Title) > len(existing.Title) {
			existing.Title = up.Title
		}
		if existing.PageCount == nil {
			existing.PageCount = up.PageCount
		}
		return *existing, false, nil
	}
	f.nextID++
	book := &db.Book{
		BookID:          f.nextID,
		Title:           up.Title,
		NormalizedTitle: up.NormalizedTitle,
		AuthorID:        up.AuthorID,
		PageCount:       up.PageCount,
	}
	f.books[key] = book
	return *book, true, nil
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestResolveIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	resolver := NewResolver(store, zerolog.Nop())

	ev := &importer.ReadEvent{Title: "The Catcher in the Rye", Author: "J.D. Salinger"}

	first, err := resolver.Resolve(context.Background(), ev)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := resolver.Resolve(context.Background(), ev)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if first.Book.BookID != second.Book.BookID {
		t.Fatalf("resolution not idempotent: %d vs %d", first.Book.BookID, second.Book.BookID)
	}
	if !first.CreatedBook || second.CreatedBook {
		t.Fatalf("expected created-then-reused, got %v/%v", first.CreatedBook, second.CreatedBook)
	}
}

func TestResolveCollapsesAuthorVariants(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	resolver := NewResolver(store, zerolog.Nop())

	var newAuthors []string
	resolver.OnNewAuthor(func(a db.Author) { newAuthors = append(newAuthors, a.Name) })

	variants := []string{"J.D. Salinger", "J. D. Salinger"}
	var bookIDs []int64
	for _, author := range variants {
		res, err := resolver.Resolve(context.Background(), &importer.ReadEvent{
			Title:  "The Catcher in the Rye",
			Author: author,
		})
		if err != nil {
			t.Fatalf("resolve %q: %v", author, err)
		}
		bookIDs = append(bookIDs, res.Book.BookID)
	}

	if len(store.authors) != 1 {
		t.Fatalf("expected 1 author row, got %d", len(store.authors))
	}
	if len(store.books) != 1 {
		t.Fatalf("expected 1 book row, got %d", len(store.books))
	}
	if bookIDs[0] != bookIDs[1] {
		t.Fatalf("variant spellings resolved to different books: %v", bookIDs)
	}
	if len(newAuthors) != 1 {
		t.Fatalf("expected one new-author callback, got %v", newAuthors)
	}

	// The longer variant becomes the display name, the key is unchanged.
	for _, author := range store.authors {
		if author.Name != "J. D. Salinger" {
			t.Fatalf("expected longest variant as display name, got %q", author.Name)
		}
	}
}

func TestResolveRejectsEmptyKeys(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(newFakeStore(), zerolog.Nop())
	if _, err := resolver.Resolve(context.Background(), &importer.ReadEvent{Title: "!!!", Author: "..."}); err == nil {
		t.Fatal("expected error for event that normalizes to empty keys")
	}
}
