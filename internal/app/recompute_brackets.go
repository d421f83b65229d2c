package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/vanajmoorthy/bibliotype/internal/cli"
	"github.com/vanajmoorthy/bibliotype/internal/community"
)

func runRecomputeBrackets(args []string) int {
	fs := flag.NewFlagSet("recompute-brackets", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	_, logger, pool, err := bootstrap(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer pool.Close()

	ctx, cancel := signalContext()
	defer cancel()

	aggregator := community.NewAggregator(pool, logger)
	snapshot, err := aggregator.Recompute(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: recompute brackets: %v\n", err)
		return 1
	}

	rescored, err := pool.RecomputeMainstreamScores(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: recompute mainstream scores: %v\n", err)
		return 1
	}

	logger.Info().
		Int64("total_books", snapshot.TotalBooks).
		Int64("rescored", rescored).
		Time("computed_at", snapshot.ComputedAt).
		Msg("bracket snapshot recomputed")
	fmt.Printf("brackets recomputed over %d books, rescored %d\n", snapshot.TotalBooks, rescored)
	return 0
}
