package chatclient

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoActiveSession is returned by SendMessage before any Connect.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionNotActive is returned when work for one session completes
	// after the client moved to another, or targets a session that was never connected.
	ErrSessionNotActive = errors.New("session is not the active session")
	// ErrEmptySessionID is returned by Connect for a blank id.
	ErrEmptySessionID = errors.New("session id is required")
	// ErrDuplicateMessageID is returned by SendMessage when the id generator
	// yields an id already present in the log.
	ErrDuplicateMessageID = errors.New("duplicate message id")
)

// TransportError reports a push stream that could not be opened or that failed.
// The connection is closed when one is recorded.
type TransportError struct {
	SessionID string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream for session %s: %v", e.SessionID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SendError reports a send that was rejected or never reached the backend.
// Exactly one of Err and a non-success Status is set.
type SendError struct {
	SessionID string
	Status    int
	Message   string
	Err       error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("send to session %s: %v", e.SessionID, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("send to session %s: status %d: %s", e.SessionID, e.Status, e.Message)
	}
	return fmt.Sprintf("send to session %s: status %d", e.SessionID, e.Status)
}

func (e *SendError) Unwrap() error { return e.Err }

// reason is the human readable cause used in the conversation log.
func (e *SendError) reason() string {
	switch {
	case e.Err != nil:
		return errors.Cause(e.Err).Error()
	case e.Message != "":
		return e.Message
	default:
		return fmt.Sprintf("backend status %d", e.Status)
	}
}
