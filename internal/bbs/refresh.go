package bbs

import (
	"context"
	"log"
	"net/http"
	"slices"

	"github.com/vdavid/bbs2ch/internal/decode"
	"github.com/vdavid/bbs2ch/internal/metrics"
	"github.com/vdavid/bbs2ch/internal/models"
	"github.com/vdavid/bbs2ch/internal/transport"
)

// Status is the outcome of a refresh or synchronization that did not fail.
type Status string

const (
	StatusUpdated       Status = "updated"
	StatusNotModified   Status = "not_modified"
	StatusNotFound      Status = "not_found"
	StatusBusy          Status = "busy"
	StatusNotApplicable Status = "not_applicable"
)

// RefreshResult is the outcome of a menu or board refresh.
type RefreshResult struct {
	Status Status `json:"status"`
	// StatusCode is the HTTP status of the last response, zero if nothing was sent.
	StatusCode int `json:"status_code,omitempty"`
	// Entries is the number of boards or threads applied.
	Entries int `json:"entries"`
}

// RefreshMenu fetches the board directory and reconciles the stored boards with it.
// Concurrent calls share a single fetch. The shared fetch is not tied to any one
// caller's context: a caller that gives up gets its context error while the others
// still receive the result.
func (s *Service) RefreshMenu(ctx context.Context) (*RefreshResult, error) {
	ch := s.menuGroup.DoChan(s.menuURL, func() (any, error) {
		return s.refreshMenu(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*RefreshResult), nil
	}
}

func (s *Service) refreshMenu(ctx context.Context) (*RefreshResult, error) {
	host, path, err := splitURL(s.menuURL)
	if err != nil {
		return nil, err
	}

	state, err := s.store.GetMenuState(ctx, s.menuURL)
	if err != nil {
		return nil, storageError("get menu state", err)
	}

	header := http.Header{}
	header.Set("Accept-Encoding", "gzip")
	if state.LastModified != "" {
		header.Set("If-Modified-Since", state.LastModified)
	}

	resp, err := s.transport.Do(ctx, &transport.Request{Method: http.MethodGet, Host: host, Path: path, Header: header})
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{StatusCode: resp.StatusCode}
	switch resp.StatusCode {
	case http.StatusNotModified:
		result.Status = StatusNotModified
		now := s.now()
		state.LastAcquired = &now
		if err := s.store.SetMenuState(ctx, *state); err != nil {
			return nil, storageError("set menu state", err)
		}

	case http.StatusOK:
		entries := slices.Collect(decode.Menu(resp.Body))
		if len(entries) == 0 {
			log.Printf("Warning: board directory %s listed no boards", s.menuURL)
			result.Status = StatusNotFound
			break
		}

		if err := s.store.UpsertBoards(ctx, entries); err != nil {
			return nil, storageError("upsert boards", err)
		}

		now := s.now()
		if err := s.store.SetMenuState(ctx, models.MenuState{
			URL:          s.menuURL,
			LastModified: resp.LastModified(),
			LastAcquired: &now,
		}); err != nil {
			return nil, storageError("set menu state", err)
		}

		result.Status = StatusUpdated
		result.Entries = len(entries)
		s.notify(Event{Type: EventMenuRefreshed})

	default:
		result.Status = StatusNotFound
	}

	log.Printf("MenuRefresh: %s -> %d, %s (%d boards)", s.menuURL, resp.StatusCode, result.Status, result.Entries)
	metrics.Refreshes.WithLabelValues("menu", string(result.Status)).Inc()
	return result, nil
}

// RefreshBoard fetches a board's thread index and applies it to the stored threads:
// listed threads get their position as rank and everything else drops to MissingRank.
// A board that answers with a redirect is looked up at its new location once.
func (s *Service) RefreshBoard(ctx context.Context, boardID string) (*RefreshResult, error) {
	key := boardKey(boardID)
	if !s.guard.tryAcquire(key) {
		metrics.Refreshes.WithLabelValues("board", string(StatusBusy)).Inc()
		return &RefreshResult{Status: StatusBusy}, nil
	}
	defer s.guard.release(key)

	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, storageError("get board", err)
	}

	result, err := s.refreshBoard(ctx, board)
	if err != nil {
		return nil, err
	}

	log.Printf("BoardRefresh: %s -> %d, %s (%d threads)", board.URL, result.StatusCode, result.Status, result.Entries)
	metrics.Refreshes.WithLabelValues("board", string(result.Status)).Inc()
	return result, nil
}

func (s *Service) refreshBoard(ctx context.Context, board *models.Board) (*RefreshResult, error) {
	moved := false
	for {
		loc, err := parseBoardURL(board.URL)
		if err != nil {
			return nil, err
		}

		header := http.Header{}
		header.Set("Accept-Encoding", "gzip")
		if board.LastModified != "" {
			header.Set("If-Modified-Since", board.LastModified)
		}

		resp, err := s.transport.Do(ctx, &transport.Request{
			Method: http.MethodGet,
			Host:   loc.Host,
			Path:   loc.subjectPath(),
			Header: header,
		})
		if err != nil {
			return nil, err
		}

		result := &RefreshResult{StatusCode: resp.StatusCode}
		switch resp.StatusCode {
		case http.StatusFound:
			if moved {
				result.Status = StatusNotFound
				return result, nil
			}
			moved = true

			found, err := s.followBoardMove(ctx, board)
			if err != nil {
				return nil, err
			}
			if !found {
				result.Status = StatusNotFound
				return result, nil
			}

		case http.StatusNotModified:
			now := s.now()
			if err := s.store.SetBoardFields(ctx, board.ID, models.BoardFields{LastAcquired: &now}); err != nil {
				return nil, storageError("set board fields", err)
			}
			result.Status = StatusNotModified
			return result, nil

		case http.StatusOK:
			entries := slices.Collect(decode.Subject(resp.Body))
			if len(entries) == 0 {
				log.Printf("Warning: thread index of %s listed no threads", board.URL)
				result.Status = StatusNotFound
				return result, nil
			}

			if err := s.store.UpsertThreads(ctx, board.ID, entries); err != nil {
				return nil, storageError("upsert threads", err)
			}

			token := resp.LastModified()
			now := s.now()
			if err := s.store.SetBoardFields(ctx, board.ID, models.BoardFields{
				LastModified: &token,
				LastAcquired: &now,
			}); err != nil {
				return nil, storageError("set board fields", err)
			}

			result.Status = StatusUpdated
			result.Entries = len(entries)
			s.notify(Event{Type: EventBoardRefreshed, BoardID: board.ID})
			return result, nil

		default:
			result.Status = StatusNotFound
			return result, nil
		}
	}
}

// followBoardMove reads the page the old board URL serves and, if it points to a new
// location, stores that URL on the board. It reports whether the board moved.
func (s *Service) followBoardMove(ctx context.Context, board *models.Board) (bool, error) {
	loc, err := parseBoardURL(board.URL)
	if err != nil {
		return false, err
	}

	resp, err := s.transport.Do(ctx, &transport.Request{Method: http.MethodGet, Host: loc.Host, Path: loc.Path})
	if err != nil {
		return false, err
	}

	m := movedBoard.FindStringSubmatch(resp.Body)
	if m == nil || m[1] == board.URL {
		log.Printf("Warning: %s redirected but no new location was found", board.URL)
		return false, nil
	}

	newURL := m[1]
	if err := s.store.SetBoardFields(ctx, board.ID, models.BoardFields{URL: &newURL}); err != nil {
		return false, storageError("change board URL", err)
	}

	log.Printf("BoardRefresh: board %s moved to %s", board.URL, newURL)
	board.URL = newURL
	return true, nil
}

// PruneBoard deletes threads that left the board index and were never opened,
// starred or fetched.
func (s *Service) PruneBoard(ctx context.Context, boardID string) (int64, error) {
	removed, err := s.store.RemoveOldThreads(ctx, boardID)
	if err != nil {
		return 0, storageError("remove old threads", err)
	}

	if removed > 0 {
		log.Printf("BoardRefresh: pruned %d threads from board %s", removed, boardID)
	}
	return removed, nil
}
