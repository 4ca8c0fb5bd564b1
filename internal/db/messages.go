package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/bbs2ch/internal/models"
)

var messageColumns = []string{"thread_id", "number", "name", "mail", "date_id", "body"}

// lockThread takes a row lock on the thread so concurrent writers to it serialize.
func lockThread(ctx context.Context, tx pgx.Tx, threadID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM threads WHERE id = $1 FOR UPDATE`, threadID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
		return ErrThreadNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock thread: %w", err)
	}
	return nil
}

func copyMessages(ctx context.Context, tx pgx.Tx, threadID string, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	_, err := tx.CopyFrom(ctx, pgx.Identifier{"messages"}, messageColumns,
		pgx.CopyFromSlice(len(messages), func(i int) ([]any, error) {
			m := messages[i]
			return []any{threadID, m.Number, m.Name, m.Mail, m.DateID, m.Body}, nil
		}))
	if err != nil {
		return fmt.Errorf("failed to copy messages: %w", err)
	}
	return nil
}

// ReplaceMessages discards the stored messages of a thread and stores the given ones
// with the new cursor. Total and acquired both become the number of messages.
// Fields are applied in the same transaction.
func ReplaceMessages(ctx context.Context, pool *pgxpool.Pool, threadID string, cursor models.Cursor, messages []models.Message, fields models.ThreadFields) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := lockThread(ctx, tx, threadID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE thread_id = $1`, threadID); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}

		if err := copyMessages(ctx, tx, threadID, messages); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			UPDATE threads SET
				total = $2,
				acquired = $2,
				last_modified = $3,
				range_bytes = $4
			WHERE id = $1
		`, threadID, len(messages), cursor.LastModified, cursor.FetchedLength)
		if err != nil {
			return fmt.Errorf("failed to update thread cursor: %w", err)
		}
		return setThreadFields(ctx, tx, threadID, fields)
	})
}

// AppendMessages stores messages that follow the already acquired ones and advances
// the cursor. Acquired becomes the highest stored number; total never shrinks below it.
// Fields are applied in the same transaction.
func AppendMessages(ctx context.Context, pool *pgxpool.Pool, threadID string, cursor models.Cursor, messages []models.Message, fields models.ThreadFields) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := lockThread(ctx, tx, threadID); err != nil {
			return err
		}

		if err := copyMessages(ctx, tx, threadID, messages); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			UPDATE threads SET
				acquired = sub.acquired,
				total = GREATEST(total, sub.acquired),
				last_modified = $2,
				range_bytes = $3
			FROM (
				SELECT COALESCE(MAX(number), 0) AS acquired FROM messages WHERE thread_id = $1
			) AS sub
			WHERE id = $1
		`, threadID, cursor.LastModified, cursor.FetchedLength)
		if err != nil {
			return fmt.Errorf("failed to update thread cursor: %w", err)
		}
		return setThreadFields(ctx, tx, threadID, fields)
	})
}

// GetMessages returns the stored messages of a thread in number order.
// A positive number restricts the result to that message.
func GetMessages(ctx context.Context, pool *pgxpool.Pool, threadID string, number int) ([]models.Message, error) {
	rows, err := pool.Query(ctx, `
		SELECT number, name, mail, date_id, body
		FROM messages
		WHERE thread_id = $1 AND ($2 <= 0 OR number = $2)
		ORDER BY number
	`, threadID, number)
	if err != nil {
		if isInvalidID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.Number, &m.Name, &m.Mail, &m.DateID, &m.Body); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}
