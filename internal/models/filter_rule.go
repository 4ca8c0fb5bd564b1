package models

import "time"

// FilterRule is a persisted NG rule.
type FilterRule struct {
	ID        string    `json:"id"`
	Field     string    `json:"field" validate:"required,oneof=name mail id message"`
	Pattern   string    `json:"pattern" validate:"required"`
	Reason    string    `json:"reason"`
	ChainID   bool      `json:"chain_id"`
	BoardURL  string    `json:"board_url"`
	Dat       string    `json:"dat"`
	CreatedAt time.Time `json:"created_at"`
}
