package dna

import (
	"math"
	"sort"
)

// CountEntry is one (label, count) pair in a ranked list.
type CountEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats are the descriptive numbers of one reading history. Averages are
// computed over the books where the input is known, never over the whole set.
type Stats struct {
	TotalBooks          int             `json:"total_books"`
	TotalPages          int             `json:"total_pages"`
	AverageLength       float64         `json:"average_length"`
	AverageRating       float64         `json:"average_rating"`
	AveragePublishYear  float64         `json:"average_publish_year"`
	RatingsDistribution map[int]int     `json:"ratings_distribution"`
	BooksPerYear        map[int]int     `json:"books_per_year"`
	TopAuthors          []CountEntry    `json:"top_authors"`
	TopGenres           []CountEntry    `json:"top_genres"`
}

// ControversialBook is a read whose own rating diverges hardest from the
// community average.
type ControversialBook struct {
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	UserRating      float64 `json:"user_rating"`
	CommunityRating float64 `json:"community_rating"`
	Delta           float64 `json:"delta"`
}

// NicheBook is the least-read book in the set by community read count.
type NicheBook struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	GlobalReadCount int64  `json:"global_read_count"`
}

const topListSize = 10

// ComputeStats builds the descriptive statistics for one reading history.
func ComputeStats(books []ReadBook) Stats {
	stats := Stats{
		TotalBooks:          len(books),
		RatingsDistribution: make(map[int]int),
		BooksPerYear:        make(map[int]int),
	}

	var (
		pagesKnown  int
		ratingSum   float64
		ratingCount int
		yearSum     int
		yearCount   int
	)
	authorCounts := make(map[string]int)
	genreCounts := make(map[string]int)

	for _, book := range books {
		if book.Fact.PageCount != nil {
			stats.TotalPages += *book.Fact.PageCount
			pagesKnown++
		}
		if book.Rating != nil && *book.Rating > 0 {
			ratingSum += *book.Rating
			ratingCount++
			bucket := int(math.Round(*book.Rating))
			stats.RatingsDistribution[bucket]++
		}
		if book.Fact.PublishYear != nil {
			yearSum += *book.Fact.PublishYear
			yearCount++
		}
		if book.DateRead != nil {
			stats.BooksPerYear[book.DateRead.Year()]++
		}
		if book.Fact.AuthorName != "" {
			authorCounts[book.Fact.AuthorName]++
		}
		for _, genre := range book.Fact.Genres {
			genreCounts[genre]++
		}
	}

	if pagesKnown > 0 {
		stats.AverageLength = roundTo(float64(stats.TotalPages)/float64(pagesKnown), 1)
	}
	if ratingCount > 0 {
		stats.AverageRating = roundTo(ratingSum/float64(ratingCount), 2)
	}
	if yearCount > 0 {
		stats.AveragePublishYear = roundTo(float64(yearSum)/float64(yearCount), 0)
	}
	stats.TopAuthors = rankCounts(authorCounts, topListSize)
	stats.TopGenres = rankCounts(genreCounts, topListSize)
	return stats
}

// MostControversial returns up to limit books ordered by the absolute gap
// between the reader's rating and the community average.
func MostControversial(books []ReadBook, limit int) []ControversialBook {
	if limit <= 0 {
		limit = 3
	}

	var out []ControversialBook
	for _, book := range books {
		if book.Rating == nil || *book.Rating <= 0 || book.Fact.AverageRating == nil {
			continue
		}
		delta := math.Abs(*book.Rating - *book.Fact.AverageRating)
		out = append(out, ControversialBook{
			Title:           book.Fact.Title,
			Author:          book.Fact.AuthorName,
			UserRating:      *book.Rating,
			CommunityRating: *book.Fact.AverageRating,
			Delta:           roundTo(delta, 2),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Delta != out[j].Delta {
			return out[i].Delta > out[j].Delta
		}
		return out[i].Title < out[j].Title
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MostNiche returns the least-read book, or nil when no book carries a
// community read count yet.
func MostNiche(books []ReadBook) *NicheBook {
	var niche *NicheBook
	for _, book := range books {
		if book.Fact.GlobalReadCount <= 0 {
			continue
		}
		if niche == nil ||
			book.Fact.GlobalReadCount < niche.GlobalReadCount ||
			(book.Fact.GlobalReadCount == niche.GlobalReadCount && book.Fact.Title < niche.Title) {
			niche = &NicheBook{
				Title:           book.Fact.Title,
				Author:          book.Fact.AuthorName,
				GlobalReadCount: book.Fact.GlobalReadCount,
			}
		}
	}
	return niche
}

// rankCounts orders labels by count descending, ties alphabetically so equal
// inputs always produce equal output.
func rankCounts(counts map[string]int, limit int) []CountEntry {
	entries := make([]CountEntry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, CountEntry{Name: name, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}
