package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vdavid/bbs2ch/internal/api"
	"github.com/vdavid/bbs2ch/internal/app"
	"github.com/vdavid/bbs2ch/internal/bbs"
	"github.com/vdavid/bbs2ch/internal/config"
	"github.com/vdavid/bbs2ch/internal/db"
	"github.com/vdavid/bbs2ch/internal/migrate"
	"github.com/vdavid/bbs2ch/internal/models"
	"github.com/vdavid/bbs2ch/internal/testutil"
	"github.com/vdavid/bbs2ch/internal/watch"
	ws "github.com/vdavid/bbs2ch/internal/websocket"
)

func main() {
	ctx := context.Background()

	// Start the fake forum first so its URL can go into the environment
	fake := testutil.NewFakeBBSForE2E()
	defer fake.Close()
	seedTestData(fake)
	log.Printf("Fake forum started on %s", fake.URL())

	if err := setupTestEnvironment(fake); err != nil {
		log.Fatalf("Failed to setup test environment: %v", err)
	}

	postgresContainer, connStr, err := startPostgres(ctx)
	if err != nil {
		log.Fatalf("Failed to start Postgres: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate Postgres container: %v", err)
		}
	}()

	cfg, pool, err := setupDatabase(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to setup database: %v", err)
	}
	defer pool.Close()

	handler, service, watcher, err := NewServer(cfg, pool)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := initialSync(ctx, pool, service); err != nil {
		log.Fatalf("Failed to sync test data: %v", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watcher.Run(watchCtx)

	if err := startHTTPServer(cfg, handler, fake); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// setupTestEnvironment sets up required environment variables for the test server.
func setupTestEnvironment(fake *testutil.FakeBBS) error {
	cookieDir, err := os.MkdirTemp("", "bbs2ch-test-server")
	if err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	env := map[string]string{
		"BBS2CH_ENV":           "test",
		"BBS2CH_DB_PASSWORD":   "bbs2ch",
		"BBS2CH_MENU_URL":      fake.MenuURL(),
		"BBS2CH_COOKIE_FILE":   filepath.Join(cookieDir, "cookie.json"),
		"BBS2CH_POLL_INTERVAL": "30s",
	}
	for key, value := range env {
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return nil
}

// startPostgres starts a test Postgres database using testcontainers.
func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	log.Println("Starting test Postgres database...")
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
		return nil, "", fmt.Errorf("failed to start Postgres container: %w", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get connection string: %w", err)
	}

	log.Println("Test Postgres database started")
	return postgresContainer, connStr, nil
}

// setupDatabase creates a database connection pool and runs migrations.
func setupDatabase(ctx context.Context, connStr string) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := db.NewPoolFromURL(ctx, connStr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	dir, err := migrate.FindDir()
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := migrate.Up(ctx, pool, dir); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Successfully connected to database and ran migrations")
	return cfg, pool, nil
}

// NewServer wires the bbs service, websocket hub and API against the fake forum.
func NewServer(cfg *config.Config, dbPool *pgxpool.Pool) (http.Handler, *bbs.Service, *watch.Watcher, error) {
	store := db.NewStore(dbPool)
	hub := ws.NewHub(10)

	service, _, err := app.NewService(cfg, store, hub)
	if err != nil {
		return nil, nil, nil, err
	}

	mux := api.NewRouter(api.RouterOptions{
		Store:   store,
		Service: service,
		Hub:     hub,
		Token:   cfg.APIToken,
		Banner:  "bbs2ch Test Server is running",
	})

	return mux, service, watch.New(store, service, cfg.PollInterval), nil
}

// initialSync loads the board directory, every board's index and the first thread
// of each board, and marks that thread as open so the watcher follows it.
func initialSync(ctx context.Context, pool *pgxpool.Pool, service *bbs.Service) error {
	if _, err := service.RefreshMenu(ctx); err != nil {
		return fmt.Errorf("failed to refresh menu: %w", err)
	}

	boards, err := db.GetBoards(ctx, pool)
	if err != nil {
		return err
	}

	open := true
	for _, b := range boards {
		result, err := service.RefreshBoard(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("failed to refresh board %s: %w", b.URL, err)
		}
		if result.Status != bbs.StatusUpdated {
			continue
		}

		threads, err := db.GetThreads(ctx, pool, b.ID)
		if err != nil {
			return err
		}
		if len(threads) == 0 {
			continue
		}
		if _, err := service.SyncThread(ctx, threads[0].ID); err != nil {
			log.Printf("Warning: Failed to sync thread %s: %v", threads[0].Dat, err)
			continue
		}
		if err := db.SetThreadFields(ctx, pool, threads[0].ID, models.ThreadFields{IsOpen: &open}); err != nil {
			return err
		}
	}

	log.Printf("Synced %d boards from the fake forum", len(boards))
	return nil
}

// startHTTPServer starts the HTTP server and waits for shutdown signals.
func startHTTPServer(cfg *config.Config, handler http.Handler, fake *testutil.FakeBBS) error {
	address := ":" + cfg.Port

	log.Printf("bbs2ch test server starting on %s", address)
	log.Printf("Fake forum: %s (menu: %s)", fake.URL(), fake.MenuURL())
	log.Println("Server ready for E2E tests. Press Ctrl+C to stop.")

	server := &http.Server{Addr: address, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		return server.Close()
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}
}

// seedTestData fills the fake forum with two categories, three boards and a few threads.
func seedTestData(fake *testutil.FakeBBS) {
	fake.SetMenu("<HTML><BODY>\n" +
		"<BR><BR><B>PC等</B><BR>\n" +
		"<A HREF=" + fake.BoardURL("prog") + ">プログラム</A><br>\n" +
		"<A HREF=" + fake.BoardURL("linux") + ">Linux</A><br>\n" +
		"<BR><BR><B>ニュース</B><BR>\n" +
		"<A HREF=" + fake.BoardURL("newsplus") + ">ニュース速報+</A><br>\n" +
		"</BODY></HTML>\n")

	fake.SetSubject("prog",
		"1136214245.dat<>Goについて語るスレ (3)\n"+
			"1136214300.dat<>初心者質問スレ (1)\n")
	fake.SetDat("prog", "1136214245",
		"名無しさん<>sage<>2006/01/02 15:04:05 ID:abcd1234<>Goについて語りましょう<>Goについて語るスレ\n"+
			"名無しさん<>sage<>2006/01/02 15:10:00 ID:efgh5678<>goroutine便利<>\n"+
			"名無しさん<><>2006/01/02 15:20:00 ID:abcd1234<>&gt;&gt;2 だよね<br>チャネルも<>\n")
	fake.SetDat("prog", "1136214300",
		"名無しさん<>sage<>2006/01/02 15:05:00 ID:ijkl9012<>質問はこちらへ<>初心者質問スレ\n")

	fake.SetSubject("linux", "1136214400.dat<>カーネル雑談 (1)\n")
	fake.SetDat("linux", "1136214400",
		"名無しさん<>sage<>2006/01/02 15:06:00 ID:mnop3456<>6.x 系の話<>カーネル雑談\n")

	fake.SetSubject("newsplus", "")
}
