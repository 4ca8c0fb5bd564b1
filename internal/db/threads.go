package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/bbs2ch/internal/models"
)

// ErrThreadNotFound is returned when a requested thread cannot be found.
var ErrThreadNotFound = errors.New("thread not found")

const threadColumns = `t.id, t.board_id, t.dat, t.title, t.rank, t.total, t.acquired, t.last_read,
	t.is_open, t.favorite, t.last_modified, t.range_bytes, t.last_acquired, t.scroll_position`

func threadDest(thread *models.Thread) []any {
	return []any{
		&thread.ID,
		&thread.BoardID,
		&thread.Dat,
		&thread.Title,
		&thread.Rank,
		&thread.Total,
		&thread.Acquired,
		&thread.LastRead,
		&thread.IsOpen,
		&thread.Favorite,
		&thread.Cursor.LastModified,
		&thread.Cursor.FetchedLength,
		&thread.LastAcquired,
		&thread.ScrollPosition,
	}
}

// GetThreadInfo returns a thread joined with its board's URL and title.
func GetThreadInfo(ctx context.Context, pool *pgxpool.Pool, threadID string) (*models.ThreadInfo, error) {
	var info models.ThreadInfo
	dest := append(threadDest(&info.Thread), &info.BoardURL, &info.BoardTitle)

	err := pool.QueryRow(ctx, `
		SELECT `+threadColumns+`, b.url, b.title
		FROM threads t
		JOIN boards b ON b.id = t.board_id
		WHERE t.id = $1
	`, threadID).Scan(dest...)

	if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread info: %w", err)
	}

	return &info, nil
}

// GetThreadByDat returns the thread with the given dat ID on a board.
func GetThreadByDat(ctx context.Context, pool *pgxpool.Pool, boardID, dat string) (*models.Thread, error) {
	var thread models.Thread

	err := pool.QueryRow(ctx, `
		SELECT `+threadColumns+`
		FROM threads t
		WHERE t.board_id = $1 AND t.dat = $2
	`, boardID, dat).Scan(threadDest(&thread)...)

	if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread by dat: %w", err)
	}

	return &thread, nil
}

// GetThreads returns the threads of a board worth showing: those still listed in
// the board index, plus open and favorite ones. Results are ordered by rank.
func GetThreads(ctx context.Context, pool *pgxpool.Pool, boardID string) ([]models.Thread, error) {
	return queryThreads(ctx, pool, `
		SELECT `+threadColumns+`
		FROM threads t
		WHERE t.board_id = $1 AND (t.rank < $2 OR t.is_open OR t.favorite)
		ORDER BY t.rank, t.dat
	`, boardID, models.MissingRank)
}

// GetThreadsFull returns every stored thread of a board, ordered by rank.
func GetThreadsFull(ctx context.Context, pool *pgxpool.Pool, boardID string) ([]models.Thread, error) {
	return queryThreads(ctx, pool, `
		SELECT `+threadColumns+`
		FROM threads t
		WHERE t.board_id = $1
		ORDER BY t.rank, t.dat
	`, boardID)
}

// GetFollowedThreads returns every open or favorite thread across all boards.
func GetFollowedThreads(ctx context.Context, pool *pgxpool.Pool) ([]models.Thread, error) {
	return queryThreads(ctx, pool, `
		SELECT `+threadColumns+`
		FROM threads t
		WHERE t.is_open OR t.favorite
		ORDER BY t.last_acquired NULLS FIRST, t.dat
	`)
}

func queryThreads(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]models.Thread, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		if isInvalidID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get threads: %w", err)
	}
	defer rows.Close()

	var threads []models.Thread
	for rows.Next() {
		var thread models.Thread
		if err := rows.Scan(threadDest(&thread)...); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, thread)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate threads: %w", err)
	}

	return threads, nil
}

// UpsertThreads applies a fresh board index in one transaction. Every thread of the
// board first drops to MissingRank; listed threads then get their 1-based position as
// rank, plus the listed title and total. Unknown threads are inserted.
func UpsertThreads(ctx context.Context, pool *pgxpool.Pool, boardID string, entries []models.ThreadEntry) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE threads SET rank = $2 WHERE board_id = $1
		`, boardID, models.MissingRank); err != nil {
			return fmt.Errorf("failed to reset thread ranks: %w", err)
		}

		if len(entries) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, entry := range entries {
			batch.Queue(`
				INSERT INTO threads (board_id, dat, title, rank, total)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (board_id, dat) DO UPDATE SET
					title = EXCLUDED.title,
					rank = EXCLUDED.rank,
					total = EXCLUDED.total
			`, boardID, entry.Dat, entry.Title, i+1, entry.Total)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert threads: %w", err)
		}
		return nil
	})
}

// execer is what a partial thread update runs on: the pool or an open transaction.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// SetThreadFields applies a partial update to a thread.
func SetThreadFields(ctx context.Context, pool *pgxpool.Pool, threadID string, fields models.ThreadFields) error {
	return setThreadFields(ctx, pool, threadID, fields)
}

func setThreadFields(ctx context.Context, q execer, threadID string, fields models.ThreadFields) error {
	tag, err := q.Exec(ctx, `
		UPDATE threads SET
			title = COALESCE($2, title),
			rank = COALESCE($3, rank),
			is_open = COALESCE($4, is_open),
			favorite = COALESCE($5, favorite),
			last_read = COALESCE($6, last_read),
			scroll_position = COALESCE($7, scroll_position),
			last_acquired = COALESCE($8, last_acquired)
		WHERE id = $1
	`, threadID, fields.Title, fields.Rank, fields.IsOpen, fields.Favorite,
		fields.LastRead, fields.ScrollPosition, fields.LastAcquired)
	if isInvalidID(err) {
		return ErrThreadNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to set thread fields: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrThreadNotFound
	}

	return nil
}

// RemoveOldThreads deletes the threads of a board that dropped out of the index and
// that the user never opened, starred or fetched. It returns the number of deleted threads.
func RemoveOldThreads(ctx context.Context, pool *pgxpool.Pool, boardID string) (int64, error) {
	tag, err := pool.Exec(ctx, `
		DELETE FROM threads
		WHERE board_id = $1
			AND NOT is_open
			AND NOT favorite
			AND rank >= $2
			AND acquired = 0
	`, boardID, models.MissingRank)
	if err != nil {
		return 0, fmt.Errorf("failed to remove old threads: %w", err)
	}

	return tag.RowsAffected(), nil
}
