package importer

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed import_rows.schema.json
var importRowsSchemaJSON string

type jsonImportRow struct {
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Status      string   `json:"status"`
	Rating      *float64 `json:"rating,omitempty"`
	Pages       *int     `json:"pages,omitempty"`
	PublishYear *int     `json:"publish_year,omitempty"`
	DateRead    *string  `json:"date_read,omitempty"`
	Review      *string  `json:"review,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type jsonImportPayload struct {
	SchemaVersion string          `json:"schema_version"`
	Rows          []jsonImportRow `json:"rows"`
}

var (
	jsonSchemaOnce sync.Once
	jsonSchema     *jsonschema.Schema
	jsonSchemaErr  error
)

// openJSONRows decodes the native JSON export format. The payload is
// validated against the embedded schema before any row is produced.
func openJSONRows(payload []byte) (*Events, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode import JSON: %w", err)
	}

	schema, err := loadImportRowsSchema()
	if err != nil {
		return nil, fmt.Errorf("load import schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("import schema validation failed: %w", err)
	}

	var decoded jsonImportPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal import JSON: %w", err)
	}

	events := &Events{}
	cursor := 0
	events.next = func() (*ReadEvent, error) {
		for cursor < len(decoded.Rows) {
			row := decoded.Rows[cursor]
			cursor++

			if !strings.EqualFold(strings.TrimSpace(row.Status), "read") {
				continue
			}
			title := strings.TrimSpace(row.Title)
			author := strings.TrimSpace(row.Author)
			if title == "" || author == "" {
				events.skipped++
				continue
			}

			rating := row.Rating
			if rating != nil && *rating <= 0 {
				rating = nil
			}

			ev := &ReadEvent{
				Title:       title,
				Author:      author,
				Rating:      rating,
				PageCount:   row.Pages,
				PublishYear: row.PublishYear,
				Tags:        row.Tags,
			}
			if row.DateRead != nil {
				ev.DateRead = parseOptionalDate(*row.DateRead)
			}
			if row.Review != nil {
				ev.Review = strings.TrimSpace(*row.Review)
			}
			return ev, nil
		}
		return nil, nil
	}
	return events, nil
}

func loadImportRowsSchema() (*jsonschema.Schema, error) {
	jsonSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("import_rows.schema.json", strings.NewReader(importRowsSchemaJSON)); err != nil {
			jsonSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("import_rows.schema.json")
		if err != nil {
			jsonSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		jsonSchema = schema
	})

	if jsonSchemaErr != nil {
		return nil, jsonSchemaErr
	}
	if jsonSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return jsonSchema, nil
}

func decodeStrictJSON(payload []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(new(any)); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON document")
	}
	return value, nil
}
