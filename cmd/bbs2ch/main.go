// Command bbs2ch reads and posts to 2ch-style forums from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vdavid/bbs2ch/internal/app"
	"github.com/vdavid/bbs2ch/internal/config"
	"github.com/vdavid/bbs2ch/internal/db"
	"github.com/vdavid/bbs2ch/internal/migrate"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

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

	dir, err := migrate.FindDir()
	if err != nil {
		log.Fatalf("Failed to find migrations: %v", err)
	}
	if err := migrate.Up(ctx, pool, dir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store := db.NewStore(pool)
	service, _, err := app.NewService(cfg, store, nil)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	c := &cli{store: store, service: service, out: os.Stdout}
	if err := c.run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
