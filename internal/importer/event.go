package importer

import "time"

// ReadEvent is one normalized record of a finished book. Created by a format
// reader, consumed once by the resolver, never persisted verbatim.
type ReadEvent struct {
	Title         string
	Author        string
	Rating        *float64
	AverageRating *float64
	PageCount     *int
	PublishYear   *int
	DateRead      *time.Time
	Review        string
	Tags          []string
}

// Events is a finite, single-pass sequence of ReadEvent. Unparseable rows are
// skipped and counted rather than failing the import.
type Events struct {
	next    func() (*ReadEvent, error)
	skipped int
}

// Next returns the next finished-read event, or nil when the input is
// exhausted. Errors are I/O level; malformed rows never surface here.
func (e *Events) Next() (*ReadEvent, error) {
	if e == nil || e.next == nil {
		return nil, nil
	}
	return e.next()
}

// Skipped reports how many rows were dropped so far as unparseable.
// Rows filtered out for not being finished reads are not counted.
func (e *Events) Skipped() int {
	if e == nil {
		return 0
	}
	return e.skipped
}
