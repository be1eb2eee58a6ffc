package chatclient

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fsy-chat/internal/model/chat"
	"github.com/zhouzirui/fsy-chat/internal/stream"
)

// connection is the handle of one push-stream subscription. Events read by
// its goroutine are applied only while it is the client's active handle.
type connection struct {
	sessionID string
	cancel    context.CancelFunc
	stream    stream.Stream
}

// Connect makes sessionID the active session. Any previous connection is
// closed before the new stream is dialed and the client state is reset.
// ctx bounds the dial only; the stream lives until it is closed or fails.
func (c *Client) Connect(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &connection{sessionID: sessionID, cancel: cancel}

	c.mu.Lock()
	release := c.detachLocked()
	c.activation++
	c.sessionID = sessionID
	c.conn = h
	c.log.Reset()
	c.waiting = false
	c.lastError = ""
	c.commit(Update{Kind: UpdateReset, SessionID: sessionID})
	release()

	stopDialWatch := context.AfterFunc(ctx, cancel)
	s, err := c.dialer.Dial(connCtx, sessionID)
	if !stopDialWatch() && err == nil {
		// ctx ended while the dial was completing and connCtx is already cancelled.
		if s != nil {
			_ = s.Close()
		}
		s, err = nil, context.Cause(ctx)
	}

	c.mu.Lock()
	if c.conn != h {
		c.mu.Unlock()
		cancel()
		if s != nil {
			_ = s.Close()
		}
		return errors.Wrapf(ErrSessionNotActive, "connect %s superseded", sessionID)
	}
	if err != nil {
		c.conn = nil
		c.lastError = err.Error()
		c.commit(Update{Kind: UpdateDisconnected, SessionID: sessionID, Error: c.lastError})
		cancel()
		log.Warn().Err(err).Str("component", "chatclient").Str("session_id", sessionID).Msg("stream dial failed")
		return &TransportError{SessionID: sessionID, Err: err}
	}
	h.stream = s
	c.mu.Unlock()

	log.Debug().Str("component", "chatclient").Str("session_id", sessionID).Msg("stream connected")
	go c.consume(h, s)
	return nil
}

// Close ends the active connection, if any. It is idempotent. The session id
// and the log are kept so the conversation stays readable.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.conn.sessionID
	release := c.detachLocked()
	c.commit(Update{Kind: UpdateDisconnected, SessionID: sessionID})
	release()
	log.Debug().Str("component", "chatclient").Str("session_id", sessionID).Msg("stream closed")
	return nil
}

// detachLocked clears the active handle and returns the function that
// releases its resources; call it after mu is released.
func (c *Client) detachLocked() func() {
	h := c.conn
	if h == nil {
		return func() {}
	}
	c.conn = nil
	c.waiting = false
	cancel, s := h.cancel, h.stream
	return func() {
		cancel()
		if s != nil {
			_ = s.Close()
		}
	}
}

func (c *Client) consume(h *connection, s stream.Stream) {
	for {
		ev, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("stream closed by server")
			}
			c.fail(h, err.Error())
			return
		}

		switch ev.Name {
		case stream.EventNewMessage:
			c.applyChunk(h, ev.Data)
		case stream.EventError:
			c.fail(h, streamErrorText(ev.Data))
			return
		default:
			log.Debug().Str("component", "chatclient").Str("session_id", h.sessionID).Str("event", ev.Name).Msg("ignoring stream event")
		}
	}
}

func (c *Client) applyChunk(h *connection, data []byte) {
	var chunk chat.StreamChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		log.Debug().Err(err).Str("component", "chatclient").Str("session_id", h.sessionID).Msg("dropping undecodable chunk")
		return
	}

	c.mu.Lock()
	if c.conn != h {
		c.mu.Unlock()
		return
	}
	msg, started, ok := c.log.Apply(chunk, c.now())
	if !ok {
		c.mu.Unlock()
		log.Debug().Str("component", "chatclient").Str("session_id", h.sessionID).Str("chunk_id", chunk.ID).Msg("dropping chunk without a routable id")
		return
	}
	if started {
		c.waiting = false
		c.commit(Update{Kind: UpdateAppended, SessionID: h.sessionID, Message: msg})
		return
	}
	c.commit(Update{Kind: UpdateDelta, SessionID: h.sessionID, Message: msg, Delta: chunk.Content})
}

// fail records a stream-level error and force-closes h if it is still active.
func (c *Client) fail(h *connection, reason string) {
	c.mu.Lock()
	if c.conn != h {
		c.mu.Unlock()
		return
	}
	c.lastError = reason
	release := c.detachLocked()
	c.commit(Update{Kind: UpdateDisconnected, SessionID: h.sessionID, Error: reason})
	release()
	log.Warn().Str("component", "chatclient").Str("session_id", h.sessionID).Str("reason", reason).Msg("stream failed")
}

func streamErrorText(data []byte) string {
	var payload chat.StreamError
	if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	if len(data) > 0 && !json.Valid(data) {
		return string(data)
	}
	return "stream error"
}
