package models

import "time"

// MissingRank marks a thread that no longer appears in its board's live index.
const MissingRank = 10000

// Cursor is the incremental fetch state of a thread.
type Cursor struct {
	LastModified  string `json:"last_modified"`
	FetchedLength int64  `json:"fetched_length"`
}

// IsZero reports whether a range request can't be built from the cursor.
func (c Cursor) IsZero() bool {
	return c.LastModified == "" || c.FetchedLength <= 0
}

type Thread struct {
	ID             string     `json:"id"`
	BoardID        string     `json:"board_id"`
	Dat            string     `json:"dat"`
	Title          string     `json:"title"`
	Rank           int        `json:"rank"`
	Total          int        `json:"total"`
	Acquired       int        `json:"acquired"`
	LastRead       int        `json:"last_read"`
	IsOpen         bool       `json:"is_open"`
	Favorite       bool       `json:"favorite"`
	Cursor         Cursor     `json:"cursor"`
	LastAcquired   *time.Time `json:"last_acquired"`
	ScrollPosition int        `json:"scroll_position"`
}

// IsMissing reports whether the thread dropped out of the board index.
func (t *Thread) IsMissing() bool {
	return t.Rank >= MissingRank
}

// ThreadInfo is a thread joined with the board it belongs to.
type ThreadInfo struct {
	Thread
	BoardURL   string `json:"board_url"`
	BoardTitle string `json:"board_title"`
}

// ThreadEntry is one line of a board's thread index.
type ThreadEntry struct {
	Dat   string
	Title string
	Total int
}

// ThreadFields is a partial update of a thread row. Nil fields are left unchanged.
type ThreadFields struct {
	Title          *string
	Rank           *int
	IsOpen         *bool
	Favorite       *bool
	LastRead       *int
	ScrollPosition *int
	LastAcquired   *time.Time
}
