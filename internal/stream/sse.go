package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// SSEDialer subscribes to `GET {BaseURL}/chat/sse/{sessionID}`.
type SSEDialer struct {
	BaseURL string
	// Client must not carry a Timeout; it would cut the stream.
	Client *http.Client
}

// NewSSEDialer returns a dialer using http.DefaultClient when client is nil.
func NewSSEDialer(baseURL string, client *http.Client) *SSEDialer {
	if client == nil {
		client = http.DefaultClient
	}
	return &SSEDialer{BaseURL: strings.TrimRight(baseURL, "/"), Client: client}
}

// Dial opens the event stream and returns once response headers arrive.
func (d *SSEDialer) Dial(ctx context.Context, sessionID string) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	endpoint := fmt.Sprintf("%s/chat/sse/%s", d.BaseURL, url.PathEscape(sessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "build sse request")
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := d.Client.Do(req)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "open sse stream for session %s", sessionID)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, errors.Errorf("open sse stream for session %s: unexpected status %d", sessionID, resp.StatusCode)
	}

	return &sseStream{body: resp.Body, dec: NewDecoder(resp.Body), cancel: cancel}, nil
}

type sseStream struct {
	body   io.ReadCloser
	dec    *Decoder
	cancel context.CancelFunc
	once   sync.Once
}

func (s *sseStream) Recv() (Event, error) {
	return s.dec.Decode()
}

func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}
