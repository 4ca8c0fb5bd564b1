// Package watch keeps followed boards and threads up to date by polling them
// on an interval. It only calls the bbs service; the service itself never polls.
package watch

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/vdavid/bbs2ch/internal/bbs"
	"github.com/vdavid/bbs2ch/internal/models"
	"golang.org/x/sync/errgroup"
)

// defaultWorkers is how many threads are synchronized at once.
const defaultWorkers = 2

// Store lists what the watcher follows.
type Store interface {
	GetBoards(ctx context.Context) ([]models.Board, error)
	GetFollowedThreads(ctx context.Context) ([]models.Thread, error)
}

// Report summarizes one polling round.
type Report struct {
	Boards  int
	Threads int
	// Updated counts threads that got new messages.
	Updated int
	Failed  int
}

// Watcher periodically refreshes favorite boards and syncs open or favorite threads.
type Watcher struct {
	store    Store
	service  bbs.BBSService
	interval time.Duration
	workers  int
}

// New creates a Watcher polling every interval.
func New(store Store, service bbs.BBSService, interval time.Duration) *Watcher {
	return &Watcher{
		store:    store,
		service:  service,
		interval: interval,
		workers:  defaultWorkers,
	}
}

// Run polls once right away and then on every tick until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	log.Printf("Watcher: polling every %s", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Watcher: poll failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one round. Failures of single boards or threads are logged and
// counted; only a failure to list what to follow is returned.
func (w *Watcher) Poll(ctx context.Context) (*Report, error) {
	boards, err := w.store.GetBoards(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, b := range boards {
		if !b.Favorite {
			continue
		}
		report.Boards++
		if _, err := w.service.RefreshBoard(ctx, b.ID); err != nil {
			log.Printf("Warning: Watcher failed to refresh board %s: %v", b.URL, err)
			report.Failed++
		}
	}

	// Threads are listed after the boards are refreshed so ranks are current.
	threads, err := w.store.GetFollowedThreads(ctx)
	if err != nil {
		return nil, err
	}

	var updated, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for _, th := range threads {
		if th.IsMissing() {
			continue
		}
		report.Threads++
		g.Go(func() error {
			result, err := w.service.SyncThread(gctx, th.ID)
			if err != nil {
				log.Printf("Warning: Watcher failed to sync thread %s: %v", th.ID, err)
				failed.Add(1)
				return nil
			}
			if result.Status == bbs.StatusUpdated {
				updated.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Updated = int(updated.Load())
	report.Failed += int(failed.Load())

	if report.Updated > 0 || report.Failed > 0 {
		log.Printf("Watcher: %d boards, %d threads polled, %d updated, %d failed",
			report.Boards, report.Threads, report.Updated, report.Failed)
	}
	return report, nil
}
