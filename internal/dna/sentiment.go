package dna

import (
	"strings"

	"github.com/jonreiter/govader"

	"github.com/vanajmoorthy/bibliotype/internal/langdetect"
)

// minReviewLength filters out one-liner reviews that carry no usable signal.
const minReviewLength = 15

// ReviewHighlight is one scored review surfaced on the profile.
type ReviewHighlight struct {
	Title    string   `json:"title"`
	Author   string   `json:"author"`
	Review   string   `json:"review"`
	Rating   *float64 `json:"rating,omitempty"`
	Compound float64  `json:"compound"`
}

// SentimentHighlights carries the most positive and most negative review of
// the set. Either side may be nil when no candidate qualifies.
type SentimentHighlights struct {
	MostPositive *ReviewHighlight `json:"most_positive,omitempty"`
	MostNegative *ReviewHighlight `json:"most_negative,omitempty"`
}

// SentimentScorer scores English review text into a bounded compound value.
type SentimentScorer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewSentimentScorer() *SentimentScorer {
	return &SentimentScorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Highlights picks the most positive and most negative reviews. The positive
// side prefers the five-star pool when one exists, the negative side the
// one-star pool; ties go to the most recently read book. Non-English and
// too-short reviews never become candidates.
func (s *SentimentScorer) Highlights(books []ReadBook) SentimentHighlights {
	if s == nil || s.analyzer == nil {
		return SentimentHighlights{}
	}

	type scored struct {
		book     ReadBook
		compound float64
	}

	var (
		all      []scored
		fiveStar []scored
		oneStar  []scored
	)
	for _, book := range books {
		review := strings.TrimSpace(book.Review)
		if len(review) <= minReviewLength {
			continue
		}
		if !langdetect.IsEnglish(review) {
			continue
		}
		entry := scored{book: book, compound: s.analyzer.PolarityScores(review).Compound}
		all = append(all, entry)
		if book.Rating != nil {
			switch {
			case *book.Rating >= 5:
				fiveStar = append(fiveStar, entry)
			case *book.Rating > 0 && *book.Rating <= 1:
				oneStar = append(oneStar, entry)
			}
		}
	}
	if len(all) == 0 {
		return SentimentHighlights{}
	}

	newerRead := func(a, b ReadBook) bool {
		switch {
		case a.DateRead == nil:
			return false
		case b.DateRead == nil:
			return true
		default:
			return a.DateRead.After(*b.DateRead)
		}
	}

	pickExtreme := func(pool []scored, positive bool) *ReviewHighlight {
		if len(pool) == 0 {
			pool = all
		}
		best := pool[0]
		for _, candidate := range pool[1:] {
			better := candidate.compound > best.compound
			if !positive {
				better = candidate.compound < best.compound
			}
			if better || (candidate.compound == best.compound && newerRead(candidate.book, best.book)) {
				best = candidate
			}
		}
		return &ReviewHighlight{
			Title:    best.book.Fact.Title,
			Author:   best.book.Fact.AuthorName,
			Review:   strings.TrimSpace(best.book.Review),
			Rating:   best.book.Rating,
			Compound: roundTo(best.compound, 4),
		}
	}

	return SentimentHighlights{
		MostPositive: pickExtreme(fiveStar, true),
		MostNegative: pickExtreme(oneStar, false),
	}
}
