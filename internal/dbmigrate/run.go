package dbmigrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/fdg312/fitdiary/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Run applies a goose command (up|status|down) using the embedded migrations.
func Run(ctx context.Context, command string, dbURL string) error {
	if dbURL == "" {
		return fmt.Errorf("database URL is empty")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.RunContext(ctx, command, db, "."); err != nil {
		return fmt.Errorf("goose %s failed: %w", command, err)
	}

	return nil
}
