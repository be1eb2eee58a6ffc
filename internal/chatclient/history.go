package chatclient

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fsy-chat/internal/model/chat"
)

// LoadMessageHistory appends the persisted records of sessionID to the log,
// oldest first. It is not idempotent: calling it twice logs every record
// twice, so call it once per Connect. Records fetched after the client moved
// to another session, or reconnected to the same one, are discarded and
// ErrSessionNotActive is returned.
func (c *Client) LoadMessageHistory(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	activation := c.activation
	c.mu.Unlock()

	records, err := c.backend.MessageHistory(ctx, sessionID)
	if err != nil {
		return errors.Wrapf(err, "load history for session %s", sessionID)
	}

	c.mu.Lock()
	// A Connect during the fetch reset the log, even one to the same session.
	if c.sessionID != sessionID || c.activation != activation {
		c.mu.Unlock()
		return errors.Wrapf(ErrSessionNotActive, "load history for session %s", sessionID)
	}
	updates := make([]Update, 0, len(records))
	for _, record := range records {
		role, ok := chat.ParseRole(record.Role)
		if !ok {
			role = chat.RoleAssistant
		}
		msg, ok := c.appendLocked(role, record.Text())
		if !ok {
			continue
		}
		updates = append(updates, Update{Kind: UpdateAppended, SessionID: sessionID, Message: msg})
	}
	c.commit(updates...)

	log.Debug().Str("component", "chatclient").Str("session_id", sessionID).Int("records", len(records)).Msg("history loaded")
	return nil
}
