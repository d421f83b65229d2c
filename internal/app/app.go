package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "analyze":
		return runAnalyze(args[1:])
	case "serve":
		return runServe(args[1:])
	case "enrich":
		return runEnrich(args[1:])
	case "recompute-brackets":
		return runRecomputeBrackets(args[1:])
	case "seed-publishers":
		return runSeedPublishers(args[1:])
	case "create-user":
		return runCreateUser(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "bibliotype CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  bibliotype <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health              Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  analyze             Build a reading profile from an export file")
	fmt.Fprintln(os.Stderr, "  serve               Start the API server and background workers")
	fmt.Fprintln(os.Stderr, "  enrich              Fill catalog metadata gaps from external sources")
	fmt.Fprintln(os.Stderr, "  recompute-brackets  Rebuild community percentile brackets")
	fmt.Fprintln(os.Stderr, "  seed-publishers     Load the curated mainstream publisher list")
	fmt.Fprintln(os.Stderr, "  create-user         Create an account for authenticated imports")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"bibliotype <command> -h\" for command-specific flags.")
}
