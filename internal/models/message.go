package models

// Message is one post of a thread. Messages are never edited once stored.
type Message struct {
	Number int    `json:"number"`
	Name   string `json:"name"`
	Mail   string `json:"mail"`
	DateID string `json:"date_id"`
	Body   string `json:"message"`
}
