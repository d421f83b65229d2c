package importer

import "strings"

// openGoodreadsCSV decodes a Goodreads library export. Only rows shelved
// "read" produce events; rows without a title or author are counted as
// skipped.
func openGoodreadsCSV(payload []byte) (*Events, error) {
	return newCSVEvents(payload, func(row csvRow, events *Events) *ReadEvent {
		if !strings.EqualFold(row.get("Exclusive Shelf"), "read") {
			return nil
		}

		title := row.get("Title")
		author := row.get("Author")
		if title == "" || author == "" {
			events.skipped++
			return nil
		}

		rating := parseOptionalFloat(row.get("My Rating"))
		if rating != nil && *rating <= 0 {
			rating = nil
		}

		return &ReadEvent{
			Title:         title,
			Author:        author,
			Rating:        rating,
			AverageRating: parseOptionalFloat(row.get("Average Rating")),
			PageCount:     parseOptionalInt(row.get("Number of Pages")),
			PublishYear:   parseOptionalInt(row.get("Original Publication Year")),
			DateRead:      parseOptionalDate(row.get("Date Read")),
			Review:        row.get("My Review"),
		}
	})
}
