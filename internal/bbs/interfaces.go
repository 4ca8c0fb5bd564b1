package bbs

import (
	"context"

	"github.com/vdavid/bbs2ch/internal/models"
	"github.com/vdavid/bbs2ch/internal/transport"
)

// Store is the persistence the service reads prior state from and merges results into.
// Every write is a single commit. db.Store is the PostgreSQL implementation.
type Store interface {
	GetBoard(ctx context.Context, boardID string) (*models.Board, error)
	GetBoardByURL(ctx context.Context, url string) (*models.Board, error)
	GetBoards(ctx context.Context) ([]models.Board, error)
	UpsertBoards(ctx context.Context, entries []models.BoardEntry) error
	SetBoardFields(ctx context.Context, boardID string, fields models.BoardFields) error

	GetMenuState(ctx context.Context, url string) (*models.MenuState, error)
	SetMenuState(ctx context.Context, state models.MenuState) error

	GetThreadInfo(ctx context.Context, threadID string) (*models.ThreadInfo, error)
	GetThreadByDat(ctx context.Context, boardID, dat string) (*models.Thread, error)
	GetThreads(ctx context.Context, boardID string) ([]models.Thread, error)
	GetThreadsFull(ctx context.Context, boardID string) ([]models.Thread, error)
	UpsertThreads(ctx context.Context, boardID string, entries []models.ThreadEntry) error
	SetThreadFields(ctx context.Context, threadID string, fields models.ThreadFields) error
	RemoveOldThreads(ctx context.Context, boardID string) (int64, error)

	// ReplaceMessages and AppendMessages store a merge together with the thread
	// fields that go with it, in one commit.
	ReplaceMessages(ctx context.Context, threadID string, cursor models.Cursor, messages []models.Message, fields models.ThreadFields) error
	AppendMessages(ctx context.Context, threadID string, cursor models.Cursor, messages []models.Message, fields models.ThreadFields) error
	GetMessages(ctx context.Context, threadID string, number int) ([]models.Message, error)
}

// Transport sends one request and returns whatever the server answered.
// *transport.Client is the production implementation.
type Transport interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// CookieStore supplies and records session cookies. *cookie.Jar is the production implementation.
type CookieStore interface {
	CookieHeader(host, path string) string
	ApplySetCookie(raw, host, path string)
	Persist() error
}

// Notifier receives an event after a refresh or synchronization changed stored data.
type Notifier interface {
	Notify(event Event)
}

// EventType names what changed.
type EventType string

const (
	EventMenuRefreshed  EventType = "menu_refreshed"
	EventBoardRefreshed EventType = "board_refreshed"
	EventThreadUpdated  EventType = "thread_updated"
)

// Event describes a change to stored data.
type Event struct {
	Type        EventType `json:"type"`
	BoardID     string    `json:"board_id,omitempty"`
	ThreadID    string    `json:"thread_id,omitempty"`
	NewMessages int       `json:"new_messages,omitempty"`
}
