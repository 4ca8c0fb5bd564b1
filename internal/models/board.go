package models

import "time"

// Board is a sub-forum listed in the board directory.
type Board struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Category     string     `json:"category"`
	Title        string     `json:"title"`
	IsOpen       bool       `json:"is_open"`
	Favorite     bool       `json:"favorite"`
	LastModified string     `json:"-"`
	LastAcquired *time.Time `json:"last_acquired"`
}

// BoardEntry is one board link parsed from the board directory.
type BoardEntry struct {
	URL      string
	Category string
	Title    string
}

// BoardFields is a partial update of a board row. Nil fields are left unchanged.
type BoardFields struct {
	URL          *string
	IsOpen       *bool
	Favorite     *bool
	LastModified *string
	LastAcquired *time.Time
}

// MenuState is the conditional-fetch state of a board directory.
type MenuState struct {
	URL          string
	LastModified string
	LastAcquired *time.Time
}
