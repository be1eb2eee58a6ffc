package chatclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fsy-chat/internal/model/chat"
)

// SendMessage posts text to the active session.
//
// Blank text is ignored. Without an active session a system entry is logged,
// no request is made and ErrNoActiveSession is returned. Otherwise the user
// entry is logged and the waiting flag set before the request is issued; the
// entry is never rolled back. If the generated id is already in the log the
// send is refused with ErrDuplicateMessageID before any request. A rejected or
// failed request logs a system entry, clears the waiting flag and returns a
// *SendError. On success the waiting flag stays set until the reply starts
// streaming.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	sessionID := c.sessionID
	if sessionID == "" {
		notice, ok := c.appendLocked(chat.RoleSystem, "No active session: start or select a conversation before sending.")
		if !ok {
			c.mu.Unlock()
			return ErrNoActiveSession
		}
		c.commit(Update{Kind: UpdateAppended, Message: notice})
		return ErrNoActiveSession
	}
	activation := c.activation
	userMsg, ok := c.appendLocked(chat.RoleUser, text)
	if !ok {
		c.mu.Unlock()
		return errors.Wrapf(ErrDuplicateMessageID, "send to session %s: id %s", sessionID, userMsg.ID)
	}
	c.waiting = true
	c.commit(Update{Kind: UpdateAppended, SessionID: sessionID, Message: userMsg})

	res, err := c.backend.SendMessage(ctx, sessionID, text)
	if err == nil && c.backend.Succeeded(res.Status) {
		log.Debug().Str("component", "chatclient").Str("session_id", sessionID).Str("message_id", userMsg.ID).Msg("message accepted")
		return nil
	}

	sendErr := &SendError{SessionID: sessionID, Status: res.Status, Message: res.Message, Err: err}
	log.Warn().Err(sendErr).Str("component", "chatclient").Str("session_id", sessionID).Msg("send failed")

	c.mu.Lock()
	if c.activation != activation {
		// The conversation this send belonged to is gone.
		c.mu.Unlock()
		return sendErr
	}
	c.waiting = false
	notice, ok := c.appendLocked(chat.RoleSystem, failureNotice(sendErr))
	if !ok {
		c.mu.Unlock()
		return sendErr
	}
	c.commit(Update{Kind: UpdateAppended, SessionID: sessionID, Message: notice})
	return sendErr
}

func failureNotice(err *SendError) string {
	return fmt.Sprintf("Message delivery failed (%s). Check the network connection and try again.", err.reason())
}
