package dna

import "github.com/vanajmoorthy/bibliotype/internal/db"

// Bracket labels, most-read first. Order is part of the payload contract.
var BracketLabels = []string{
	"top 10%",
	"10-30%",
	"30-50%",
	"50-70%",
	"70-90%",
	"bottom 10%",
}

// BracketShare is the portion of the reading history that falls into one
// community read-count bracket.
type BracketShare struct {
	Bracket string  `json:"bracket"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// BracketOf places one read count into a bracket index against the cut
// points. Returns -1 for counts that are not known yet.
func BracketOf(cuts db.BracketCuts, readCount int64) int {
	if readCount <= 0 {
		return -1
	}
	switch {
	case readCount >= cuts.P90:
		return 0
	case readCount >= cuts.P70:
		return 1
	case readCount >= cuts.P50:
		return 2
	case readCount >= cuts.P30:
		return 3
	case readCount >= cuts.P10:
		return 4
	default:
		return 5
	}
}

// ComputeBrackets distributes the history over the six community brackets.
// Books without a known read count stay out of the denominator, so the
// percentages sum to 100 up to rounding whenever any book is counted.
func ComputeBrackets(cuts db.BracketCuts, books []ReadBook) []BracketShare {
	counts := make([]int, len(BracketLabels))
	total := 0
	for _, book := range books {
		idx := BracketOf(cuts, book.Fact.GlobalReadCount)
		if idx < 0 {
			continue
		}
		counts[idx]++
		total++
	}

	shares := make([]BracketShare, len(BracketLabels))
	for i, label := range BracketLabels {
		shares[i] = BracketShare{Bracket: label, Count: counts[i]}
		if total > 0 {
			shares[i].Percent = roundTo(float64(counts[i])/float64(total)*100, 1)
		}
	}
	return shares
}
