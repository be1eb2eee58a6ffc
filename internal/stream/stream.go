// Package stream opens push-stream subscriptions for a backend chat session.
//
// Two transports are provided: Server-Sent Events (SSEDialer), which is what the
// backend serves by default, and a websocket rendition (WSDialer) carrying the
// same events as JSON frames. Both yield Events through the Stream interface.
package stream

import (
	"context"
	"encoding/json"
)

// Event names emitted by the backend.
const (
	EventNewMessage = "new-message"
	EventError      = "error"
	EventMessage    = "message"
)

// Event is one framed push event.
type Event struct {
	Name string
	Data []byte
}

// Stream is a live subscription. Recv blocks until the next event arrives and
// returns io.EOF once the server ends the stream. Close is idempotent and
// unblocks a pending Recv.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Dialer opens a Stream for a session. ctx bounds the lifetime of the stream,
// not only the dial.
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (Stream, error)
}

// Frame is the websocket envelope for one Event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
