// Package migrate applies the SQL files in migrations/ to a database.
package migrate

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type migration struct {
	Name string
	SQL  string
}

// Up applies every *.up.sql file in dir that hasn't been applied yet,
// in filename order, each in its own transaction.
func Up(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	migrations, err := readMigrations(dir)
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				INSERT INTO schema_migrations (name) VALUES ($1)
				ON CONFLICT (name) DO NOTHING
			`, m.Name)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}

			log.Printf("Applying migration %s", m.Name)
			_, err = tx.Exec(ctx, m.SQL)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", m.Name, err)
		}
	}

	return nil
}

// FindDir looks for the migrations directory from the working directory upwards.
func FindDir() (string, error) {
	possiblePaths := []string{
		"migrations",          // From the repository root
		"../migrations",       // From cmd/*
		"../../migrations",    // From internal/*
		"../../../migrations", // From deeper packages
	}

	for _, path := range possiblePaths {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path, nil
		}
	}

	return "", fmt.Errorf("migrations directory not found. Tried: %v", possiblePaths)
}

func readMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", path, err)
		}

		migrations = append(migrations, migration{Name: entry.Name(), SQL: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})

	return migrations, nil
}
