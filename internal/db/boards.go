package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/bbs2ch/internal/models"
)

// ErrBoardNotFound is returned when a requested board cannot be found.
var ErrBoardNotFound = errors.New("board not found")

const boardColumns = `id, url, category, title, is_open, favorite, last_modified, last_acquired`

func scanBoard(row pgx.Row) (*models.Board, error) {
	var board models.Board
	err := row.Scan(
		&board.ID,
		&board.URL,
		&board.Category,
		&board.Title,
		&board.IsOpen,
		&board.Favorite,
		&board.LastModified,
		&board.LastAcquired,
	)
	if err != nil {
		return nil, err
	}
	return &board, nil
}

// GetBoard returns a board by its database ID.
func GetBoard(ctx context.Context, pool *pgxpool.Pool, boardID string) (*models.Board, error) {
	board, err := scanBoard(pool.QueryRow(ctx, `
		SELECT `+boardColumns+`
		FROM boards
		WHERE id = $1
	`, boardID))

	if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
		return nil, ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board: %w", err)
	}

	return board, nil
}

// GetBoardByURL returns a board by its URL.
func GetBoardByURL(ctx context.Context, pool *pgxpool.Pool, url string) (*models.Board, error) {
	board, err := scanBoard(pool.QueryRow(ctx, `
		SELECT `+boardColumns+`
		FROM boards
		WHERE url = $1
	`, url))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board by URL: %w", err)
	}

	return board, nil
}

// GetBoards returns all boards in directory order.
func GetBoards(ctx context.Context, pool *pgxpool.Pool) ([]models.Board, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+boardColumns+`
		FROM boards
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get boards: %w", err)
	}
	defer rows.Close()

	var boards []models.Board
	for rows.Next() {
		board, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}
		boards = append(boards, *board)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate boards: %w", err)
	}

	return boards, nil
}

type boardKey struct {
	category string
	title    string
}

// UpsertBoards reconciles the board directory with the stored boards in one transaction.
// An entry matches an existing board by URL first, then by (category, title), in which case
// the board moved and its URL is rewritten. Unmatched entries are inserted. Stored boards
// absent from the directory are kept, since they may still hold threads.
func UpsertBoards(ctx context.Context, pool *pgxpool.Pool, entries []models.BoardEntry) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, url, category, title FROM boards FOR UPDATE`)
		if err != nil {
			return fmt.Errorf("failed to load boards: %w", err)
		}

		byURL := make(map[string]string)
		byKey := make(map[boardKey]string)
		for rows.Next() {
			var id, url, category, title string
			if err := rows.Scan(&id, &url, &category, &title); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan board: %w", err)
			}
			byURL[url] = id
			key := boardKey{category, title}
			if _, ok := byKey[key]; !ok {
				byKey[key] = id
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to iterate boards: %w", err)
		}

		batch := &pgx.Batch{}
		matched := make(map[string]bool)
		for _, entry := range entries {
			if id, ok := byURL[entry.URL]; ok && !matched[id] {
				matched[id] = true
				batch.Queue(`UPDATE boards SET category = $2, title = $3 WHERE id = $1`,
					id, entry.Category, entry.Title)
				continue
			}

			if id, ok := byKey[boardKey{entry.Category, entry.Title}]; ok && !matched[id] {
				matched[id] = true
				log.Printf("BoardRefresh: board %q moved to %s", entry.Title, entry.URL)
				batch.Queue(`UPDATE boards SET url = $2 WHERE id = $1`, id, entry.URL)
				continue
			}

			batch.Queue(`
				INSERT INTO boards (url, category, title) VALUES ($1, $2, $3)
				ON CONFLICT (url) DO UPDATE SET category = EXCLUDED.category, title = EXCLUDED.title
			`, entry.URL, entry.Category, entry.Title)
		}

		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert boards: %w", err)
		}
		return nil
	})
}

// SetBoardFields applies a partial update to a board.
func SetBoardFields(ctx context.Context, pool *pgxpool.Pool, boardID string, fields models.BoardFields) error {
	tag, err := pool.Exec(ctx, `
		UPDATE boards SET
			url = COALESCE($2, url),
			is_open = COALESCE($3, is_open),
			favorite = COALESCE($4, favorite),
			last_modified = COALESCE($5, last_modified),
			last_acquired = COALESCE($6, last_acquired)
		WHERE id = $1
	`, boardID, fields.URL, fields.IsOpen, fields.Favorite, fields.LastModified, fields.LastAcquired)
	if isInvalidID(err) {
		return ErrBoardNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to set board fields: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrBoardNotFound
	}

	return nil
}

// GetMenuState returns the conditional-fetch state of the board directory at url.
// A directory that was never fetched has an empty state.
func GetMenuState(ctx context.Context, pool *pgxpool.Pool, url string) (*models.MenuState, error) {
	state := models.MenuState{URL: url}
	err := pool.QueryRow(ctx, `
		SELECT last_modified, last_acquired
		FROM menus
		WHERE url = $1
	`, url).Scan(&state.LastModified, &state.LastAcquired)

	if errors.Is(err, pgx.ErrNoRows) {
		return &state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get menu state: %w", err)
	}

	return &state, nil
}

// SetMenuState stores the conditional-fetch state of the board directory.
func SetMenuState(ctx context.Context, pool *pgxpool.Pool, state models.MenuState) error {
	acquired := state.LastAcquired
	if acquired == nil {
		now := time.Now()
		acquired = &now
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO menus (url, last_modified, last_acquired) VALUES ($1, $2, $3)
		ON CONFLICT (url) DO UPDATE SET
			last_modified = EXCLUDED.last_modified,
			last_acquired = EXCLUDED.last_acquired
	`, state.URL, state.LastModified, acquired)
	if err != nil {
		return fmt.Errorf("failed to set menu state: %w", err)
	}

	return nil
}
