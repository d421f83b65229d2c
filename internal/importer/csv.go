package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// csvRow gives header-keyed access to one CSV record, tolerant of extra or
// missing columns.
type csvRow struct {
	header map[string]int
	record []string
}

func (r csvRow) get(column string) string {
	idx, ok := r.header[strings.ToLower(column)]
	if !ok || idx >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[idx])
}

func newCSVEvents(payload []byte, decode func(csvRow, *Events) *ReadEvent) (*Events, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1

	headerRecord, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	header := make(map[string]int, len(headerRecord))
	for idx, name := range headerRecord {
		header[strings.ToLower(strings.TrimSpace(name))] = idx
	}

	events := &Events{}
	events.next = func() (*ReadEvent, error) {
		for {
			record, err := reader.Read()
			if err == io.EOF {
				return nil, nil
			}
			if err != nil {
				// A mangled record is one bad row, not a failed import.
				if _, ok := err.(*csv.ParseError); ok {
					events.skipped++
					continue
				}
				return nil, fmt.Errorf("read CSV record: %w", err)
			}
			if ev := decode(csvRow{header: header, record: record}, events); ev != nil {
				return ev, nil
			}
		}
	}
	return events, nil
}

func parseOptionalFloat(value string) *float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseOptionalInt(value string) *int {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		// Some exports render numerics as floats ("320.0").
		asFloat, ferr := strconv.ParseFloat(value, 64)
		if ferr != nil {
			return nil
		}
		rounded := int(asFloat)
		return &rounded
	}
	return &parsed
}

func parseOptionalDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := dateparse.ParseAny(value)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}
