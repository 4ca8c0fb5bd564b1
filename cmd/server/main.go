package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vdavid/bbs2ch/internal/api"
	"github.com/vdavid/bbs2ch/internal/app"
	"github.com/vdavid/bbs2ch/internal/config"
	"github.com/vdavid/bbs2ch/internal/db"
	"github.com/vdavid/bbs2ch/internal/migrate"
	"github.com/vdavid/bbs2ch/internal/watch"
	ws "github.com/vdavid/bbs2ch/internal/websocket"
)

const banner = "bbs2ch API is running"

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	log.Printf("Successfully connected to database")

	dir, err := migrate.FindDir()
	if err != nil {
		log.Fatalf("Failed to find migrations: %v", err)
	}
	if err := migrate.Up(ctx, pool, dir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	handler, watcher, err := NewServer(cfg, pool)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	go watcher.Run(ctx)

	address := ":" + cfg.Port
	log.Printf("bbs2ch server starting on %s (environment: %s)", address, cfg.Environment)

	if err := serve(ctx, address, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// NewServer wires the bbs service, websocket hub and API together. It returns
// the HTTP handler and the watcher that keeps followed threads fresh.
func NewServer(cfg *config.Config, dbPool *pgxpool.Pool) (http.Handler, *watch.Watcher, error) {
	store := db.NewStore(dbPool)
	hub := ws.NewHub(10)

	service, _, err := app.NewService(cfg, store, hub)
	if err != nil {
		return nil, nil, err
	}

	mux := api.NewRouter(api.RouterOptions{
		Store:   store,
		Service: service,
		Hub:     hub,
		Token:   cfg.APIToken,
		Banner:  banner,
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux, watch.New(store, service, cfg.PollInterval), nil
}

// serve runs the HTTP server until ctx is canceled, then shuts it down gracefully.
func serve(ctx context.Context, address string, handler http.Handler) error {
	server := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}
}
