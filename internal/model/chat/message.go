package chat

import (
	"strings"
	"time"
)

// Role identifies who authored a log entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole maps a wire role onto the closed Role set.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, true
	case RoleAssistant:
		return RoleAssistant, true
	case RoleSystem:
		return RoleSystem, true
	}
	return "", false
}

// Message is one entry of a session's conversation log.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamChunk is one incremental piece of assistant output pushed by the backend.
// Chunks sharing an ID belong to the same assistant message.
type StreamChunk struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// StreamError is the payload of an `error` push event.
type StreamError struct {
	Error   bool   `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ContentBlock is one typed part of a persisted message.
type ContentBlock struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// HistoryRecord is a persisted message as returned by the history endpoint.
type HistoryRecord struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content,omitempty"`
}

// Text returns the first text-typed block, treating an untyped block as text.
func (r HistoryRecord) Text() string {
	for _, block := range r.Content {
		if block.Type == "" || block.Type == "text" {
			return block.Text
		}
	}
	return ""
}
