package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// WSDialer subscribes to `GET {BaseURL}/chat/ws/{sessionID}` over websocket.
// http(s) base URLs are rewritten to ws(s).
type WSDialer struct {
	BaseURL string
	Dialer  *websocket.Dialer
	Header  http.Header
}

// NewWSDialer returns a dialer with a ten second handshake timeout.
func NewWSDialer(baseURL string) *WSDialer {
	return &WSDialer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Dial performs the websocket handshake.
func (d *WSDialer) Dial(ctx context.Context, sessionID string) (Stream, error) {
	endpoint, err := wsEndpoint(d.BaseURL, sessionID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := d.Dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "websocket dial for session %s: status %d", sessionID, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "websocket dial for session %s", sessionID)
	}

	s := &wsStream{conn: conn, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

func wsEndpoint(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse websocket base url")
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.Errorf("unsupported websocket scheme %q", u.Scheme)
	}
	return fmt.Sprintf("%s/chat/ws/%s", strings.TrimRight(u.String(), "/"), url.PathEscape(sessionID)), nil
}

type wsStream struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (s *wsStream) Recv() (Event, error) {
	for {
		kind, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil || frame.Event == "" {
			// Undecodable frames surface as generic messages; consumers drop them.
			return Event{Name: EventMessage, Data: payload}, nil
		}
		return Event{Name: frame.Event, Data: frame.Data}, nil
	}
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
