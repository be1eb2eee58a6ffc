// Package chatclient keeps one live conversation with the chat backend.
//
// A Client owns at most one push-stream connection. Assistant output arrives
// as chunks on that stream and is assembled into the message log; user
// messages are posted over REST and logged optimistically. The send
// acknowledgement and the streamed reply are independent flows.
//
// All state sits behind a single mutex and every stream event, send
// completion and history completion is applied as one critical section,
// which gives the same ordering guarantees as a single task queue.
package chatclient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/fsy-chat/internal/backend"
	"github.com/zhouzirui/fsy-chat/internal/model/chat"
	"github.com/zhouzirui/fsy-chat/internal/stream"
)

// Backend is the REST surface the client needs. *backend.Client implements it.
type Backend interface {
	SendMessage(ctx context.Context, sessionID, text string) (backend.SendResult, error)
	MessageHistory(ctx context.Context, sessionID string) ([]chat.HistoryRecord, error)
	Succeeded(status int) bool
}

// UpdateKind classifies an Update.
type UpdateKind int

const (
	// UpdateReset means the log was cleared by Connect.
	UpdateReset UpdateKind = iota
	// UpdateAppended carries a new log entry.
	UpdateAppended
	// UpdateDelta carries a chunk appended to an existing assistant entry.
	UpdateDelta
	// UpdateDisconnected means the active connection ended; Error holds the
	// stream error text, empty for a local Close.
	UpdateDisconnected
)

// Update describes one change to the client state.
type Update struct {
	Kind      UpdateKind
	SessionID string
	Message   chat.Message
	Delta     string
	Error     string
}

// Option customises a Client.
type Option func(*Client)

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithIDGenerator replaces uuid.NewString for locally created message ids.
func WithIDGenerator(newID func() string) Option {
	return func(c *Client) { c.newID = newID }
}

// WithObserver registers fn to receive every Update in the order the changes
// were applied. fn runs without the state lock held, so it may read the
// client; it must not call Connect, Close, SendMessage or LoadMessageHistory.
func WithObserver(fn func(Update)) Option {
	return func(c *Client) { c.observer = fn }
}

// Client is the streaming chat session client.
type Client struct {
	dialer   stream.Dialer
	backend  Backend
	now      func() time.Time
	newID    func() string
	observer func(Update)

	// notifyMu serialises observer calls; pending is guarded by mu.
	notifyMu sync.Mutex

	mu         sync.Mutex
	sessionID  string
	activation uint64
	conn       *connection
	log        *Assembler
	waiting    bool
	lastError  string
	pending    []Update
}

// New builds a Client that opens streams with dialer and posts through be.
func New(dialer stream.Dialer, be Backend, opts ...Option) *Client {
	c := &Client{
		dialer:  dialer,
		backend: be,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     NewAssembler(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the active session id, empty before the first Connect.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Messages returns a copy of the message log.
func (c *Client) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.Messages()
}

// Waiting reports whether a sent message is still waiting for a reply to start.
func (c *Client) Waiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

// LastError returns the last stream-level error text. Connect clears it.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// Connected reports whether a stream is currently live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.stream != nil
}

// commit queues updates, releases mu and delivers everything queued in the
// order it was produced. The observer runs without mu held.
func (c *Client) commit(updates ...Update) {
	if c.observer == nil || len(updates) == 0 {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, updates...)
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		u := c.pending[0]
		c.pending[0] = Update{}
		c.pending = c.pending[1:]
		c.mu.Unlock()
		c.observer(u)
	}
}

func (c *Client) appendLocked(role chat.Role, content string) (chat.Message, bool) {
	msg := chat.Message{
		ID:        c.newID(),
		Role:      role,
		Content:   content,
		Timestamp: c.now(),
	}
	return msg, c.log.Append(msg)
}
