package app

import (
	"testing"

	"github.com/vanajmoorthy/bibliotype/internal/importer"
)

func TestAnalyzeDefaultSchemaIsRegistered(t *testing.T) {
	t.Parallel()

	if err := importer.ValidateSchemaTag(defaultImportSchema); err != nil {
		t.Fatalf("default schema tag %q is not registered: %v", defaultImportSchema, err)
	}
}
