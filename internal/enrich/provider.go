package enrich

import "context"

// Request identifies a book for an external metadata lookup. ISBN wins when
// known; otherwise the title/author pair is used.
type Request struct {
	Title  string
	Author string
	ISBN13 *string
}

// Metadata is whatever subset of fields a source returned. Absence of a
// field is not an error.
type Metadata struct {
	Genres        []string
	PageCount     *int
	PublishYear   *int
	Publisher     *string
	ISBN13        *string
	RatingsCount  *int
	AverageRating *float64
}

// Empty reports whether the lookup produced nothing usable.
func (m *Metadata) Empty() bool {
	if m == nil {
		return true
	}
	return len(m.Genres) == 0 &&
		m.PageCount == nil &&
		m.PublishYear == nil &&
		m.Publisher == nil &&
		m.ISBN13 == nil &&
		m.RatingsCount == nil &&
		m.AverageRating == nil
}

// Provider fetches book metadata from one external source.
type Provider interface {
	Lookup(ctx context.Context, req Request) (*Metadata, error)
	Name() string
}
