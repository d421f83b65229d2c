package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/vanajmoorthy/bibliotype/internal/cli"
	"github.com/vanajmoorthy/bibliotype/internal/importer"
)

// curatedPublishers is the seed list of major trade publishers and their
// best-known imprints. Imprints inherit the mainstream flag from the parent.
var curatedPublishers = []struct {
	name     string
	imprints []string
}{
	{"Penguin Random House", []string{
		"Penguin Books", "Random House", "Knopf", "Vintage", "Crown",
		"Ballantine Books", "Bantam Books", "Del Rey", "Viking", "Riverhead Books",
	}},
	{"HarperCollins", []string{
		"Harper", "William Morrow", "Avon", "Harper Voyager", "Ecco",
	}},
	{"Simon & Schuster", []string{
		"Scribner", "Atria Books", "Gallery Books", "Pocket Books",
	}},
	{"Hachette Book Group", []string{
		"Little, Brown and Company", "Grand Central Publishing", "Orbit", "Mulholland Books",
	}},
	{"Macmillan Publishers", []string{
		"Tor Books", "St. Martin's Press", "Farrar, Straus and Giroux", "Picador", "Henry Holt",
	}},
}

func runSeedPublishers(args []string) int {
	fs := flag.NewFlagSet("seed-publishers", flag.ContinueOnError)
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

	seeded := 0
	for _, parent := range curatedPublishers {
		parentRow, err := pool.SeedCuratedPublisher(ctx, parent.name, importer.NormalizeName(parent.name), true, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: seed %q: %v\n", parent.name, err)
			return 1
		}
		seeded++

		for _, imprint := range parent.imprints {
			parentID := parentRow.PublisherID
			if _, err := pool.SeedCuratedPublisher(ctx, imprint, importer.NormalizeName(imprint), true, &parentID); err != nil {
				fmt.Fprintf(os.Stderr, "Error: seed %q: %v\n", imprint, err)
				return 1
			}
			seeded++
		}
	}

	logger.Info().Int("publishers", seeded).Msg("curated publisher list seeded")
	fmt.Printf("seeded %d publishers\n", seeded)
	return 0
}
