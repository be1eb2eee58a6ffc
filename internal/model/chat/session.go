package chat

import "time"

// Session captures a backend conversation context.
type Session struct {
	ID        string    `json:"id"`
	Category  string    `json:"category,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionSummary is the list entry served by the session history endpoint.
type SessionSummary struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}
