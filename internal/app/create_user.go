package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vanajmoorthy/bibliotype/internal/auth"
	"github.com/vanajmoorthy/bibliotype/internal/cli"
)

func runCreateUser(args []string) int {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	username := fs.String("username", "", "Username for the new account")
	password := fs.String("password", "", "Password for the new account")
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	normalized := auth.NormalizeUsername(*username)
	if err := auth.ValidateUsername(normalized); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if *password == "" {
		fmt.Fprintln(os.Stderr, "Error: -password is required")
		return 2
	}

	_, logger, pool, err := bootstrap(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer pool.Close()

	hash, err := auth.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: hash password: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := pool.CreateUser(ctx, normalized, hash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: create user: %v\n", err)
		return 1
	}

	logger.Info().Int64("user_id", user.UserID).Str("username", user.Username).Msg("user created")
	fmt.Printf("created user %q (id %d)\n", user.Username, user.UserID)
	return 0
}
