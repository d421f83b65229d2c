package dna

// MainstreamResult summarizes how mainstream a reading history is. Percent is
// over books where at least one flag is actually known; a history of fully
// unknown books reports zero known and a nil percent contribution.
type MainstreamResult struct {
	Percent       float64  `json:"percent"`
	KnownBooks    int      `json:"known_books"`
	WeightedScore *float64 `json:"weighted_score,omitempty"`
}

// ComputeMainstream counts each distinct book once: mainstream when its
// author or publisher carries the flag, not-mainstream when a flag is known
// and negative, excluded entirely when nothing is known about either.
func ComputeMainstream(books []ReadBook) MainstreamResult {
	var (
		known      int
		mainstream int
		scoreSum   float64
		scoreCount int
	)

	seen := make(map[int64]struct{}, len(books))
	for _, book := range books {
		if _, dup := seen[book.Fact.BookID]; dup {
			continue
		}
		seen[book.Fact.BookID] = struct{}{}

		flagKnown := book.Fact.AuthorChecked || book.Fact.PublisherMainstream != nil
		if flagKnown {
			known++
			if book.Fact.AuthorMainstream ||
				(book.Fact.PublisherMainstream != nil && *book.Fact.PublisherMainstream) {
				mainstream++
			}
		}
		if book.Fact.MainstreamScore != nil {
			scoreSum += *book.Fact.MainstreamScore
			scoreCount++
		}
	}

	result := MainstreamResult{KnownBooks: known}
	if known > 0 {
		result.Percent = roundTo(float64(mainstream)/float64(known)*100, 1)
	}
	if scoreCount > 0 {
		avg := roundTo(scoreSum/float64(scoreCount), 1)
		result.WeightedScore = &avg
	}
	return result
}
