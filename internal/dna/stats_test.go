package dna

import (
	"testing"
	"time"

	"github.com/vanajmoorthy/bibliotype/internal/db"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func TestComputeStatsAveragesOverKnownValuesOnly(t *testing.T) {
	t.Parallel()

	read2023 := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	books := []ReadBook{
		{Fact: db.BookFact{BookID: 1, Title: "A", AuthorName: "X", PageCount: intPtr(200)}, Rating: floatPtr(5), DateRead: timePtr(read2023)},
		{Fact: db.BookFact{BookID: 2, Title: "B", AuthorName: "X", PageCount: intPtr(300)}, Rating: floatPtr(3), DateRead: timePtr(read2023)},
		{Fact: db.BookFact{BookID: 3, Title: "C", AuthorName: "Y"}},
	}

	stats := ComputeStats(books)
	if stats.TotalBooks != 3 {
		t.Fatalf("expected 3 books, got %d", stats.TotalBooks)
	}
	if stats.TotalPages != 500 {
		t.Fatalf("unknown page counts must not contribute, got total %d", stats.TotalPages)
	}
	if stats.AverageLength != 250 {
		t.Fatalf("average length must divide by known counts only, got %v", stats.AverageLength)
	}
	if stats.AverageRating != 4 {
		t.Fatalf("expected average rating 4 over rated books, got %v", stats.AverageRating)
	}
	if stats.RatingsDistribution[5] != 1 || stats.RatingsDistribution[3] != 1 {
		t.Fatalf("unexpected ratings distribution: %v", stats.RatingsDistribution)
	}
	if stats.BooksPerYear[2023] != 2 {
		t.Fatalf("expected 2 books in 2023, got %v", stats.BooksPerYear)
	}
	if len(stats.TopAuthors) == 0 || stats.TopAuthors[0].Name != "X" || stats.TopAuthors[0].Count != 2 {
		t.Fatalf("unexpected top authors: %v", stats.TopAuthors)
	}
}

func TestMostControversialOrdersByDelta(t *testing.T) {
	t.Parallel()

	books := []ReadBook{
		{Fact: db.BookFact{Title: "Agreeable", AverageRating: floatPtr(4)}, Rating: floatPtr(4)},
		{Fact: db.BookFact{Title: "Contrarian", AverageRating: floatPtr(4.5)}, Rating: floatPtr(1)},
		{Fact: db.BookFact{Title: "Mild", AverageRating: floatPtr(3)}, Rating: floatPtr(4)},
		{Fact: db.BookFact{Title: "Unrated"}, Rating: floatPtr(5)},
	}

	got := MostControversial(books, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Title != "Contrarian" || got[0].Delta != 3.5 {
		t.Fatalf("unexpected leader: %+v", got[0])
	}
	if got[1].Title != "Mild" {
		t.Fatalf("unexpected runner-up: %+v", got[1])
	}
}

func TestMostNichePicksLowestReadCount(t *testing.T) {
	t.Parallel()

	books := []ReadBook{
		{Fact: db.BookFact{Title: "Popular", GlobalReadCount: 900}},
		{Fact: db.BookFact{Title: "Obscure", GlobalReadCount: 2}},
		{Fact: db.BookFact{Title: "Uncounted", GlobalReadCount: 0}},
	}

	niche := MostNiche(books)
	if niche == nil || niche.Title != "Obscure" {
		t.Fatalf("unexpected niche book: %+v", niche)
	}

	if got := MostNiche(nil); got != nil {
		t.Fatalf("expected nil for empty history, got %+v", got)
	}
}
