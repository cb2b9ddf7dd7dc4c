package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"sentinel-brain/internal/config"
	"sentinel-brain/internal/db"
	"sentinel-brain/internal/migrate"
	"sentinel-brain/internal/modules/advice/repository"
)

const usage = `usage: sentinelctl <command> [flags]
  migrate                         apply pending schema migrations
  advice [-plant NAME] [-limit N] print recent advice log entries as JSON
  count  [-plant NAME]            print the number of logged decisions
`

var errUsage = errors.New("usage")

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx, cfg, logger, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}

	conn, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			logger.Error("db close", "err", closeErr)
		}
	}()

	switch args[0] {
	case "migrate":
		n, err := migrate.Run(ctx, conn, logger)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		_, err = fmt.Fprintf(out, "%d migrations applied\n", n)
		return err

	case "advice":
		fs := flag.NewFlagSet("advice", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		plant := fs.String("plant", "", "plant name filter")
		limit := fs.Int("limit", 20, "max entries")
		if err := fs.Parse(args[1:]); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		if *limit <= 0 {
			return fmt.Errorf("limit must be > 0, got %d", *limit)
		}
		recs, err := repository.NewRepository(conn).ListRecent(ctx, *plant, *limit)
		if err != nil {
			return fmt.Errorf("list advice: %w", err)
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)

	case "count":
		fs := flag.NewFlagSet("count", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		plant := fs.String("plant", "", "plant name filter")
		if err := fs.Parse(args[1:]); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		n, err := repository.NewRepository(conn).Count(ctx, *plant)
		if err != nil {
			return fmt.Errorf("count advice: %w", err)
		}
		_, err = fmt.Fprintln(out, n)
		return err

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}
