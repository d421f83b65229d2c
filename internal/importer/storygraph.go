package importer

import "strings"

// openStoryGraphCSV decodes a StoryGraph library export. Mood and pace tags
// carry through on the event.
func openStoryGraphCSV(payload []byte) (*Events, error) {
	return newCSVEvents(payload, func(row csvRow, events *Events) *ReadEvent {
		if !strings.EqualFold(row.get("Read Status"), "read") {
			return nil
		}

		title := row.get("Title")
		author := row.get("Authors")
		if author == "" {
			author = row.get("Author")
		}
		// StoryGraph joins multiple authors with commas; the first is the
		// primary credit.
		if idx := strings.IndexByte(author, ','); idx >= 0 {
			author = strings.TrimSpace(author[:idx])
		}
		if title == "" || author == "" {
			events.skipped++
			return nil
		}

		rating := parseOptionalFloat(row.get("Star Rating"))
		if rating != nil && *rating <= 0 {
			rating = nil
		}

		var tags []string
		for _, mood := range strings.Split(row.get("Moods"), ",") {
			if mood = strings.TrimSpace(mood); mood != "" {
				tags = append(tags, mood)
			}
		}
		if pace := row.get("Pace"); pace != "" {
			tags = append(tags, strings.ToLower(pace))
		}

		dateRead := parseOptionalDate(row.get("Last Date Read"))
		if dateRead == nil {
			dateRead = parseOptionalDate(row.get("Date Read"))
		}

		return &ReadEvent{
			Title:    title,
			Author:   author,
			Rating:   rating,
			DateRead: dateRead,
			Review:   row.get("Review"),
			Tags:     tags,
		}
	})
}
