package dna

import (
	"time"

	"github.com/vanajmoorthy/bibliotype/internal/db"
)

// ReadBook joins one catalog book with the importing reader's own data for
// it. The scoring engine works exclusively over a slice of these.
type ReadBook struct {
	Fact     db.BookFact
	Rating   *float64
	DateRead *time.Time
	Review   string
	Tags     []string
}
