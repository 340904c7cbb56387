package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/grubdash/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "GRUBDASH_POSTGRES_DSN"
)

var errMissingDSN = errors.New(envPostgresDSN + " (or -dsn) is required")

type options struct {
	direction string
	steps     int
	dsn       string
}

// parseOptions разбирает флаги; пустой -dsn берётся из окружения.
func parseOptions(args []string, lookup func(string) (string, bool)) (options, error) {
	var opts options

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	switch opts.direction {
	case "up", "down", "status":
	default:
		return options{}, fmt.Errorf("unsupported direction: %s (use up|down|status)", opts.direction)
	}

	opts.dsn = strings.TrimSpace(opts.dsn)
	if opts.dsn == "" {
		if v, ok := lookup(envPostgresDSN); ok {
			opts.dsn = strings.TrimSpace(v)
		}
	}
	if opts.dsn == "" {
		return options{}, errMissingDSN
	}
	return opts, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch opts.direction {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		if err := store.MigrateDown(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
	}

	return printStatus(ctx, store, opts.direction, out)
}

func printStatus(ctx context.Context, store *postgres.Store, direction string, out io.Writer) error {
	plan, err := store.MigrationPlan(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}

	var (
		version int64
		applied int
	)
	for _, m := range plan {
		mark := " "
		if m.Applied {
			mark = "x"
			applied++
			version = max(version, m.Version)
		}
		_, _ = fmt.Fprintf(out, "[%s] %04d %s\n", mark, m.Version, m.Name)
	}
	_, _ = fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d\n", direction, version, applied)
	return nil
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		cancel()
		fail("%v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
