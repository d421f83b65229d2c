package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/vanajmoorthy/bibliotype/internal/cli"
	"github.com/vanajmoorthy/bibliotype/internal/importer"
	"github.com/vanajmoorthy/bibliotype/internal/profile"
)

// defaultImportSchema must be a tag the importer registry knows.
const defaultImportSchema = "goodreads-csv"

// runAnalyze builds a profile from a local export file and prints it as JSON.
// It uses the same pipeline as the server but skips persistence of the result.
func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	file := fs.String("file", "", "Path to the reading history export")
	schema := fs.String("schema", defaultImportSchema, "Import schema tag (see the /schemas endpoint)")
	owner := fs.String("owner", "", "Owner key to attribute community reads to (default: anonymous)")
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		return 2
	}
	if err := importer.ValidateSchemaTag(*schema); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	payload, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read export: %v\n", err)
		return 1
	}

	cfg, logger, pool, err := bootstrap(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer pool.Close()

	svcs, err := buildServices(cfg, pool, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := svcs.aggregator.WarmStart(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: load bracket snapshot: %v\n", err)
		return 1
	}
	// A fresh database has no persisted snapshot; WarmStart reports that as
	// success with nothing loaded, so check the snapshot itself.
	if svcs.aggregator.Snapshot() == nil {
		logger.Info().Msg("no community snapshot yet, recomputing")
		if _, err := svcs.aggregator.Recompute(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: compute brackets: %v\n", err)
			return 1
		}
	}

	ownerKey := *owner
	if ownerKey == "" {
		ownerKey = profile.AnonOwnerKey("cli")
	}

	result, skipped, err := svcs.profiles.BuildProfile(ctx, ownerKey, *schema, payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if skipped > 0 {
		logger.Warn().Int("rows_skipped", skipped).Msg("some rows could not be used")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode profile: %v\n", err)
		return 1
	}
	return 0
}
