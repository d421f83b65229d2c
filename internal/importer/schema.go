package importer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	SchemaGoodreadsCSV  = "goodreads-csv"
	SchemaStoryGraphCSV = "storygraph-csv"
	SchemaJSONRows      = "bibliotype-json"
)

// ErrUnsupportedSchema reports an import with an unrecognized schema tag.
// Surfaced to the caller before any catalog write happens.
var ErrUnsupportedSchema = errors.New("unsupported import schema")

type formatOpener func(payload []byte) (*Events, error)

var formats = map[string]formatOpener{
	SchemaGoodreadsCSV:  openGoodreadsCSV,
	SchemaStoryGraphCSV: openStoryGraphCSV,
	SchemaJSONRows:      openJSONRows,
}

// Open decodes a raw export into a finished-read event sequence. The schema
// tag selects the format; unknown tags fail with ErrUnsupportedSchema.
func Open(schemaTag string, payload []byte) (*Events, error) {
	tag := strings.ToLower(strings.TrimSpace(schemaTag))
	opener, ok := formats[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedSchema, schemaTag, strings.Join(SupportedSchemas(), ", "))
	}
	return opener(payload)
}

// ValidateSchemaTag checks a tag without decoding anything. Used to fail a
// request fast, before the payload is queued.
func ValidateSchemaTag(schemaTag string) error {
	tag := strings.ToLower(strings.TrimSpace(schemaTag))
	if _, ok := formats[tag]; !ok {
		return fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedSchema, schemaTag, strings.Join(SupportedSchemas(), ", "))
	}
	return nil
}

func SupportedSchemas() []string {
	tags := make([]string, 0, len(formats))
	for tag := range formats {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
