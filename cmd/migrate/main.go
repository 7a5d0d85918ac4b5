package main

import (
	"context"
	"fmt"
	"os"

	"MemoLedger/internal/config"
	"MemoLedger/internal/observability"
	"MemoLedger/internal/persistence"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down|status|version>")
		fmt.Println("  up      - apply all pending migrations")
		fmt.Println("  down    - roll back the last migration")
		fmt.Println("  status  - list migrations and whether they are applied")
		fmt.Println("  version - print the current schema version")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  MEMO_DB_DRIVER    - postgres or sqlite (default: postgres)")
		fmt.Println("  MEMO_POSTGRES_DSN - Postgres connection string")
		fmt.Println("  MEMO_SQLITE_PATH  - SQLite database file")
		os.Exit(1)
	}

	logger := observability.NewLogger("migrate")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	dialect, err := persistence.ParseDialect(cfg.DBDriver)
	if err != nil {
		logger.Fatal().Err(err).Msg("db driver")
	}

	ctx := context.Background()
	db, err := persistence.Open(ctx, dialect, cfg.DSN())
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	migrator := persistence.NewMigrator(db, dialect)

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
		logger.Info().Msg("all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		logger.Info().Msg("last migration rolled back")

	case "status":
		if err := migrator.Status(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate status")
		}

	case "version":
		v, err := migrator.Version(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate version")
		}
		fmt.Println(v)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use up, down, status or version)\n", os.Args[1])
		os.Exit(1)
	}
}
