package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/vanajmoorthy/bibliotype/internal/cli"
)

func runEnrich(args []string) int {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 100, "Maximum number of books to enrich in this run")
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "Error: -limit must be >= 1")
		return 2
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

	updated, err := svcs.enricher.EnrichMissing(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: enrich sweep: %v\n", err)
		return 1
	}

	rescored, err := pool.RecomputeMainstreamScores(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: recompute mainstream scores: %v\n", err)
		return 1
	}

	remaining, err := svcs.enricher.QuotaRemaining(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read quota: %v\n", err)
		return 1
	}

	logger.Info().Int("updated", updated).Int64("rescored", rescored).Int("quota_remaining", remaining).Msg("enrichment sweep finished")
	fmt.Printf("enriched %d books, rescored %d, %d primary calls left today\n", updated, rescored, remaining)
	return 0
}
