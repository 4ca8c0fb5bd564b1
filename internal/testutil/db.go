package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vdavid/bbs2ch/internal/migrate"
)

// NewTestDB creates a new Postgres test container, runs migrations, and returns a connection pool.
// The container is automatically cleaned up when the test finishes.
func NewTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool, _ := startPostgres(t)
	return pool
}

// NewTestDBURL is NewTestDB that also returns the connection string, for code under
// test that opens its own pool.
func NewTestDBURL(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	return startPostgres(t)
}

func startPostgres(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("bbs2ch_test"),
		postgres.WithUsername("bbs2ch"),
		postgres.WithPassword("bbs2ch"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("Failed to parse connection string: %v", err)
	}
	poolConfig.MaxConns = 16
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("Failed to create connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	dir, err := migrate.FindDir()
	if err != nil {
		t.Fatalf("Failed to find migrations: %v", err)
	}
	if err := migrate.Up(ctx, pool, dir); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return pool, connStr
}
