package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vanajmoorthy/bibliotype/internal/cli"
	"github.com/vanajmoorthy/bibliotype/internal/db"
	"github.com/vanajmoorthy/bibliotype/internal/httpapi"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "Port to listen on")
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *port < 1 || *port > 65535 {
		fmt.Fprintf(os.Stderr, "Error: invalid port %d\n", *port)
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

	// First sighting of an author kicks off the mainstream check in the
	// background so imports never wait on Wikipedia.
	svcs.resolver.OnNewAuthor(func(author db.Author) {
		go func() {
			checkCtx, checkCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer checkCancel()
			if _, err := svcs.checker.Check(checkCtx, author); err != nil {
				logger.Warn().Err(err).Str("author", author.Name).Msg("mainstream check failed")
			}
		}()
	})

	if err := svcs.aggregator.WarmStart(ctx); err != nil {
		logger.Warn().Err(err).Msg("no persisted bracket snapshot, starting cold")
	}
	svcs.aggregator.Start(ctx, time.Duration(cfg.BracketRecomputeMins)*time.Minute)

	svcs.profiles.StartWorkers(ctx, cfg.ProfileWorkers)

	server := httpapi.NewServer(svcs.profiles, pool, logger, httpapi.Options{
		Host:           *host,
		Port:           *port,
		AllowedOrigins: cfg.CORSAllowedOriginsList(),
	})

	logger.Info().
		Str("host", *host).
		Int("port", *port).
		Int("workers", cfg.ProfileWorkers).
		Bool("vibes_enabled", svcs.vibes != nil).
		Msg("starting bibliotype server")

	if err := server.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Let in-flight profile jobs finish before the process exits.
	svcs.profiles.Wait()
	logger.Info().Msg("shutdown complete")
	return 0
}
