package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/fsy-chat/internal/backend"
	"github.com/zhouzirui/fsy-chat/internal/model/chat"
	"github.com/zhouzirui/fsy-chat/internal/stream"
)

const waitFor = 2 * time.Second

// fakeStream hands events to the client one at a time. Every Recv call
// signals on recvs, so a test can tell when the previous event was applied.
type fakeStream struct {
	events     chan stream.Event
	recvs      chan struct{}
	closed     chan struct{}
	kill       chan struct{}
	honorClose bool
	closeOnce  sync.Once
	killOnce   sync.Once
}

func newFakeStream(honorClose bool) *fakeStream {
	return &fakeStream{
		events:     make(chan stream.Event),
		recvs:      make(chan struct{}, 16),
		closed:     make(chan struct{}),
		kill:       make(chan struct{}),
		honorClose: honorClose,
	}
}

func (s *fakeStream) Recv() (stream.Event, error) {
	s.recvs <- struct{}{}
	closed := s.closed
	if !s.honorClose {
		closed = nil
	}
	select {
	case ev, ok := <-s.events:
		if !ok {
			return stream.Event{}, io.EOF
		}
		return ev, nil
	case <-closed:
		return stream.Event{}, errors.New("stream closed")
	case <-s.kill:
		return stream.Event{}, errors.New("stream killed")
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) terminate() {
	s.killOnce.Do(func() { close(s.kill) })
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// ready waits for the reader goroutine to enter its first Recv.
func (s *fakeStream) ready(t *testing.T) {
	t.Helper()
	select {
	case <-s.recvs:
	case <-time.After(waitFor):
		t.Fatal("stream reader never started")
	}
}

// push delivers ev and waits until the client has applied it.
func (s *fakeStream) push(t *testing.T, ev stream.Event) {
	t.Helper()
	select {
	case s.events <- ev:
	case <-time.After(waitFor):
		t.Fatal("stream reader is not receiving")
	}
	select {
	case <-s.recvs:
	case <-time.After(waitFor):
		t.Fatal("event was not applied")
	}
}

// pushFinal delivers an event that ends the stream and waits for the client to close it.
func (s *fakeStream) pushFinal(t *testing.T, ev stream.Event) {
	t.Helper()
	select {
	case s.events <- ev:
	case <-time.After(waitFor):
		t.Fatal("stream reader is not receiving")
	}
	s.awaitClosed(t)
}

func (s *fakeStream) awaitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-s.closed:
	case <-time.After(waitFor):
		t.Fatal("stream was not closed")
	}
}

func (s *fakeStream) chunk(t *testing.T, id, content string) {
	t.Helper()
	data, _ := json.Marshal(chat.StreamChunk{ID: id, Content: content})
	s.push(t, stream.Event{Name: stream.EventNewMessage, Data: data})
}

type fakeDialer struct {
	mu         sync.Mutex
	streams    []*fakeStream
	dialed     []string
	err        error
	honorClose bool
	gate       chan struct{}
	// onDial runs after a stream is created, before Dial returns it.
	onDial func(*fakeStream)
}

func newFakeDialer(t *testing.T) *fakeDialer {
	d := &fakeDialer{honorClose: true}
	t.Cleanup(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for _, s := range d.streams {
			s.terminate()
		}
	})
	return d
}

func (d *fakeDialer) Dial(ctx context.Context, sessionID string) (stream.Stream, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	d.dialed = append(d.dialed, sessionID)
	if d.err != nil {
		d.mu.Unlock()
		return nil, d.err
	}
	s := newFakeStream(d.honorClose)
	d.streams = append(d.streams, s)
	hook := d.onDial
	d.mu.Unlock()
	if hook != nil {
		hook(s)
	}
	return s, nil
}

func (d *fakeDialer) stream(i int) *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[i]
}

type sentMessage struct {
	SessionID string
	Text      string
}

type fakeBackend struct {
	mu         sync.Mutex
	sends      []sentMessage
	result     backend.SendResult
	err        error
	beforeAck  func()
	history    []chat.HistoryRecord
	historyErr error
	// beforeHistory runs while MessageHistory is in flight.
	beforeHistory func()
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{result: backend.SendResult{Status: backend.StatusSuccess}}
}

func (b *fakeBackend) SendMessage(_ context.Context, sessionID, text string) (backend.SendResult, error) {
	b.mu.Lock()
	b.sends = append(b.sends, sentMessage{SessionID: sessionID, Text: text})
	hook, res, err := b.beforeAck, b.result, b.err
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return res, err
}

func (b *fakeBackend) MessageHistory(_ context.Context, _ string) ([]chat.HistoryRecord, error) {
	b.mu.Lock()
	hook := b.beforeHistory
	records, err := append([]chat.HistoryRecord(nil), b.history...), b.historyErr
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return records, err
}

func (b *fakeBackend) Succeeded(status int) bool { return status == backend.StatusSuccess }

func (b *fakeBackend) sent() []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentMessage(nil), b.sends...)
}

var fixedTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeDialer, *fakeBackend) {
	t.Helper()
	dialer := newFakeDialer(t)
	be := newFakeBackend()
	seq := 0
	base := []Option{
		WithClock(func() time.Time { return fixedTime }),
		WithIDGenerator(func() string {
			seq++
			return "local-" + string(rune('a'+seq-1))
		}),
	}
	c := New(dialer, be, append(base, opts...)...)
	t.Cleanup(func() { _ = c.Close() })
	return c, dialer, be
}

// connect connects c and waits for its reader to start.
func connect(t *testing.T, c *Client, d *fakeDialer, sessionID string) *fakeStream {
	t.Helper()
	if err := c.Connect(context.Background(), sessionID); err != nil {
		t.Fatalf("Connect(%s) err: %v", sessionID, err)
	}
	d.mu.Lock()
	s := d.streams[len(d.streams)-1]
	d.mu.Unlock()
	s.ready(t)
	return s
}
