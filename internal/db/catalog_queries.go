package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BookUpsert carries the import-row fields written during resolution.
type BookUpsert struct {
	Title           string
	NormalizedTitle string
	AuthorID        int64
	PageCount       *int
	PublishYear     *int
	AverageRating   *float64
}

// BookFact is the denormalized read model the scoring engine consumes.
type BookFact struct {
	BookID              int64
	Title               string
	AuthorName          string
	PageCount           *int
	PublishYear         *int
	AverageRating       *float64
	GlobalReadCount     int64
	MainstreamScore     *float64
	AuthorMainstream    bool
	AuthorChecked       bool
	PublisherMainstream *bool
	PublisherCurated    bool
	Genres              []string
}

// UpsertAuthor inserts or reuses the author row for a normalized key. The
// display name is replaced only by a longer (more complete) variant; the key
// never changes. Returns the row and whether it was newly inserted.
func (p *Pool) UpsertAuthor(ctx context.Context, name, normalizedName string) (Author, bool, error) {
	const query = `
INSERT INTO authors (name, normalized_name, created_at, updated_at)
VALUES ($1, $2, now(), now())
ON CONFLICT (normalized_name) DO UPDATE SET
	name = CASE WHEN length(EXCLUDED.name) > length(authors.name) THEN EXCLUDED.name ELSE authors.name END,
	updated_at = now()
RETURNING author_id, name, normalized_name, is_mainstream, work_count, monthly_pageviews, (xmax = 0)`

	var (
		author   Author
		inserted bool
	)
	err := p.QueryRow(ctx, query, strings.TrimSpace(name), normalizedName).Scan(
		&author.AuthorID,
		&author.Name,
		&author.NormalizedName,
		&author.IsMainstream,
		&author.WorkCount,
		&author.MonthlyPageviews,
		&inserted,
	)
	if err != nil {
		return Author{}, false, fmt.Errorf("upsert author %q: %w", normalizedName, err)
	}
	return author, inserted, nil
}

// UpsertPublisher inserts or reuses a publisher row. The mainstream flag is
// never written here: curated data owns it.
func (p *Pool) UpsertPublisher(ctx context.Context, name, normalizedName string) (Publisher, bool, error) {
	const query = `
INSERT INTO publishers (name, normalized_name, created_at, updated_at)
VALUES ($1, $2, now(), now())
ON CONFLICT (normalized_name) DO UPDATE SET
	name = CASE WHEN length(EXCLUDED.name) > length(publishers.name) THEN EXCLUDED.name ELSE publishers.name END,
	updated_at = now()
RETURNING publisher_id, name, normalized_name, is_mainstream, curated, parent_id, (xmax = 0)`

	var (
		pub      Publisher
		inserted bool
	)
	err := p.QueryRow(ctx, query, strings.TrimSpace(name), normalizedName).Scan(
		&pub.PublisherID,
		&pub.Name,
		&pub.NormalizedName,
		&pub.IsMainstream,
		&pub.Curated,
		&pub.ParentID,
		&inserted,
	)
	if err != nil {
		return Publisher{}, false, fmt.Errorf("upsert publisher %q: %w", normalizedName, err)
	}
	return pub, inserted, nil
}

// SeedCuratedPublisher writes an authoritative publisher row. Unlike
// UpsertPublisher this sets the mainstream flag and marks the row curated.
func (p *Pool) SeedCuratedPublisher(ctx context.Context, name, normalizedName string, mainstream bool, parentID *int64) (Publisher, error) {
	const query = `
INSERT INTO publishers (name, normalized_name, is_mainstream, curated, parent_id, created_at, updated_at)
VALUES ($1, $2, $3, TRUE, $4, now(), now())
ON CONFLICT (normalized_name) DO UPDATE SET
	is_mainstream = EXCLUDED.is_mainstream,
	curated = TRUE,
	parent_id = COALESCE(EXCLUDED.parent_id, publishers.parent_id),
	updated_at = now()
RETURNING publisher_id, name, normalized_name, is_mainstream, curated, parent_id`

	var pub Publisher
	err := p.QueryRow(ctx, query, strings.TrimSpace(name), normalizedName, mainstream, parentID).Scan(
		&pub.PublisherID,
		&pub.Name,
		&pub.NormalizedName,
		&pub.IsMainstream,
		&pub.Curated,
		&pub.ParentID,
	)
	if err != nil {
		return Publisher{}, fmt.Errorf("seed curated publisher %q: %w", normalizedName, err)
	}
	return pub, nil
}

// UpsertBook inserts or reuses the book row for a (normalized title, author)
// pair. Concurrent duplicate inserts converge on the winning row; import-row
// fields only fill gaps, never overwrite known catalog data.
func (p *Pool) UpsertBook(ctx context.Context, up BookUpsert) (Book, bool, error) {
	const query = `
INSERT INTO books (title, normalized_title, author_id, page_count, publish_year, average_rating, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now(), now())
ON CONFLICT (normalized_title, author_id) DO UPDATE SET
	title = CASE WHEN length(EXCLUDED.title) > length(books.title) THEN EXCLUDED.title ELSE books.title END,
	page_count = COALESCE(books.page_count, EXCLUDED.page_count),
	publish_year = COALESCE(books.publish_year, EXCLUDED.publish_year),
	average_rating = COALESCE(books.average_rating, EXCLUDED.average_rating),
	updated_at = now()
RETURNING book_id, title, normalized_title, author_id, publisher_id, page_count, publish_year, isbn13,
	average_rating, ratings_count, global_read_count, mainstream_score, enriched_at, (xmax = 0)`

	var (
		book     Book
		inserted bool
	)
	err := p.QueryRow(ctx, query,
		strings.TrimSpace(up.Title),
		up.NormalizedTitle,
		up.AuthorID,
		up.PageCount,
		up.PublishYear,
		up.AverageRating,
	).Scan(
		&book.BookID,
		&book.Title,
		&book.NormalizedTitle,
		&book.AuthorID,
		&book.PublisherID,
		&book.PageCount,
		&book.PublishYear,
		&book.ISBN13,
		&book.AverageRating,
		&book.RatingsCount,
		&book.GlobalReadCount,
		&book.MainstreamScore,
		&book.EnrichedAt,
		&inserted,
	)
	if err != nil {
		return Book{}, false, fmt.Errorf("upsert book %q: %w", up.NormalizedTitle, err)
	}
	return book, inserted, nil
}

// EnrichmentUpdate fills catalog gaps discovered by an external source.
// Existing values always win over incoming ones.
type EnrichmentUpdate struct {
	PageCount     *int
	PublishYear   *int
	ISBN13        *string
	AverageRating *float64
	RatingsCount  *int
	PublisherID   *int64
}

func (p *Pool) ApplyEnrichment(ctx context.Context, bookID int64, up EnrichmentUpdate) error {
	const query = `
UPDATE books SET
	page_count = COALESCE(page_count, $2),
	publish_year = COALESCE(publish_year, $3),
	isbn13 = COALESCE(isbn13, $4),
	average_rating = COALESCE(average_rating, $5),
	ratings_count = COALESCE(ratings_count, $6),
	publisher_id = COALESCE(publisher_id, $7),
	enriched_at = now(),
	updated_at = now()
WHERE book_id = $1`

	if _, err := p.Exec(ctx, query, bookID, up.PageCount, up.PublishYear, up.ISBN13, up.AverageRating, up.RatingsCount, up.PublisherID); err != nil {
		return fmt.Errorf("apply enrichment to book %d: %w", bookID, err)
	}
	return nil
}

func (p *Pool) AddBookGenres(ctx context.Context, bookID int64, genres []string) error {
	for _, genre := range genres {
		genre = strings.TrimSpace(genre)
		if genre == "" {
			continue
		}
		const query = `
INSERT INTO book_genres (book_id, genre) VALUES ($1, $2)
ON CONFLICT (book_id, genre) DO NOTHING`
		if _, err := p.Exec(ctx, query, bookID, genre); err != nil {
			return fmt.Errorf("add genre %q to book %d: %w", genre, bookID, err)
		}
	}
	return nil
}

func (p *Pool) GetBookGenres(ctx context.Context, bookID int64) ([]string, error) {
	rows, err := p.Query(ctx, `SELECT genre FROM book_genres WHERE book_id = $1 ORDER BY genre`, bookID)
	if err != nil {
		return nil, fmt.Errorf("query genres for book %d: %w", bookID, err)
	}
	defer rows.Close()

	var genres []string
	for rows.Next() {
		var genre string
		if err := rows.Scan(&genre); err != nil {
			return nil, err
		}
		genres = append(genres, genre)
	}
	return genres, rows.Err()
}

// ListBookFacts loads the scoring read model for a set of books, genres
// included. The order of the result is unspecified.
func (p *Pool) ListBookFacts(ctx context.Context, bookIDs []int64) ([]BookFact, error) {
	if len(bookIDs) == 0 {
		return nil, nil
	}

	const query = `
SELECT b.book_id, b.title, a.name, b.page_count, b.publish_year, b.average_rating,
	b.global_read_count, b.mainstream_score, a.is_mainstream, a.mainstream_checked_at IS NOT NULL,
	p.is_mainstream, COALESCE(p.curated, FALSE)
FROM books b
JOIN authors a ON a.author_id = b.author_id
LEFT JOIN publishers p ON p.publisher_id = b.publisher_id
WHERE b.book_id IN ?`

	rows, err := p.Query(ctx, query, bookIDs)
	if err != nil {
		return nil, fmt.Errorf("query book facts: %w", err)
	}
	defer rows.Close()

	facts := make([]BookFact, 0, len(bookIDs))
	index := make(map[int64]int, len(bookIDs))
	for rows.Next() {
		var fact BookFact
		if err := rows.Scan(
			&fact.BookID,
			&fact.Title,
			&fact.AuthorName,
			&fact.PageCount,
			&fact.PublishYear,
			&fact.AverageRating,
			&fact.GlobalReadCount,
			&fact.MainstreamScore,
			&fact.AuthorMainstream,
			&fact.AuthorChecked,
			&fact.PublisherMainstream,
			&fact.PublisherCurated,
		); err != nil {
			return nil, err
		}
		index[fact.BookID] = len(facts)
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	genreRows, err := p.Query(ctx, `SELECT book_id, genre FROM book_genres WHERE book_id IN ?`, bookIDs)
	if err != nil {
		return nil, fmt.Errorf("query book genres: %w", err)
	}
	defer genreRows.Close()

	for genreRows.Next() {
		var (
			bookID int64
			genre  string
		)
		if err := genreRows.Scan(&bookID, &genre); err != nil {
			return nil, err
		}
		if idx, ok := index[bookID]; ok {
			facts[idx].Genres = append(facts[idx].Genres, genre)
		}
	}
	return facts, genreRows.Err()
}

// CatalogBook pairs a book row with its author names for re-enrichment runs.
type CatalogBook struct {
	Book       Book
	AuthorName string
}

// ListBooksMissingMetadata returns catalog rows that still lack a publisher,
// page count, publish year, or genres.
func (p *Pool) ListBooksMissingMetadata(ctx context.Context, limit int) ([]CatalogBook, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
SELECT b.book_id, b.title, b.normalized_title, b.author_id, b.publisher_id, b.page_count,
	b.publish_year, b.isbn13, b.average_rating, b.ratings_count, b.global_read_count,
	b.mainstream_score, b.enriched_at, a.name
FROM books b
JOIN authors a ON a.author_id = b.author_id
WHERE b.publisher_id IS NULL
	OR b.page_count IS NULL
	OR b.publish_year IS NULL
	OR NOT EXISTS (SELECT 1 FROM book_genres g WHERE g.book_id = b.book_id)
ORDER BY b.book_id
LIMIT $1`

	rows, err := p.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query books missing metadata: %w", err)
	}
	defer rows.Close()

	var out []CatalogBook
	for rows.Next() {
		var cb CatalogBook
		if err := rows.Scan(
			&cb.Book.BookID,
			&cb.Book.Title,
			&cb.Book.NormalizedTitle,
			&cb.Book.AuthorID,
			&cb.Book.PublisherID,
			&cb.Book.PageCount,
			&cb.Book.PublishYear,
			&cb.Book.ISBN13,
			&cb.Book.AverageRating,
			&cb.Book.RatingsCount,
			&cb.Book.GlobalReadCount,
			&cb.Book.MainstreamScore,
			&cb.Book.EnrichedAt,
			&cb.AuthorName,
		); err != nil {
			return nil, err
		}
		out = append(out, cb)
	}
	return out, rows.Err()
}

// UpdateAuthorMainstream records the result of an author mainstream check.
func (p *Pool) UpdateAuthorMainstream(ctx context.Context, authorID int64, mainstream bool, workCount, monthlyViews int, checkedAt time.Time) error {
	const query = `
UPDATE authors SET
	is_mainstream = $2,
	work_count = $3,
	monthly_pageviews = $4,
	mainstream_checked_at = $5,
	updated_at = now()
WHERE author_id = $1`

	if _, err := p.Exec(ctx, query, authorID, mainstream, workCount, monthlyViews, checkedAt); err != nil {
		return fmt.Errorf("update author %d mainstream status: %w", authorID, err)
	}
	return nil
}

// RecomputeMainstreamScores rebuilds every book's derived mainstream score
// from ratings data and author/publisher flags. Runs on a schedule, never per
// request.
func (p *Pool) RecomputeMainstreamScores(ctx context.Context) (int64, error) {
	const query = `
UPDATE books b SET
	mainstream_score = sub.score,
	updated_at = now()
FROM (
	SELECT b2.book_id,
		LEAST(COALESCE(b2.ratings_count, 0) / 1000, 50)
		+ CASE WHEN COALESCE(b2.average_rating, 0) >= 4.1 THEN 10 ELSE 0 END
		+ CASE WHEN a.is_mainstream THEN 25 ELSE 0 END
		+ CASE WHEN COALESCE(pub.is_mainstream, FALSE) THEN 15 ELSE 0 END AS score
	FROM books b2
	JOIN authors a ON a.author_id = b2.author_id
	LEFT JOIN publishers pub ON pub.publisher_id = b2.publisher_id
) sub
WHERE sub.book_id = b.book_id`

	tag, err := p.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("recompute mainstream scores: %w", err)
	}
	return tag.RowsAffected(), nil
}
