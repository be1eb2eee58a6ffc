package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fsy-chat/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message is empty")
)

// DefaultTitle names a session until its first user message arrives.
const DefaultTitle = "新会话"

const (
	titleLimit       = 30
	subscriberBuffer = 64
)

type session struct {
	chat.Session
	lastActive  time.Time
	history     []*schema.Message
	subscribers map[uint64]chan chat.StreamChunk
}

// Service keeps sessions, their transcripts and their live subscribers in memory.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*session
	nextSub  uint64
	now      func() time.Time
}

// NewService bootstraps the in-memory chat service.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]*session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession provisions a session, optionally scoped to a document category.
func (s *Service) CreateSession(_ context.Context, category string) (chat.Session, error) {
	now := s.now()
	sess := &session{
		Session: chat.Session{
			ID:        uuid.NewString(),
			Category:  strings.TrimSpace(category),
			Title:     DefaultTitle,
			CreatedAt: now,
		},
		lastActive:  now,
		history:     make([]*schema.Message, 0, 16),
		subscribers: make(map[uint64]chan chat.StreamChunk),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	log.Debug().Str("component", "chat-service").Str("session_id", sess.ID).Str("category", sess.Category).Msg("session created")
	return sess.Session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return sess.Session, nil
}

// ListSessions returns every session, most recently active first.
func (s *Service) ListSessions(_ context.Context) []chat.SessionSummary {
	s.mu.RLock()
	items := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		items = append(items, sess)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].lastActive.Equal(items[j].lastActive) {
			return items[i].ID < items[j].ID
		}
		return items[i].lastActive.After(items[j].lastActive)
	})
	summaries := make([]chat.SessionSummary, 0, len(items))
	for _, sess := range items {
		summaries = append(summaries, chat.SessionSummary{SessionID: sess.ID, Title: sess.Title})
	}
	s.mu.RUnlock()
	return summaries
}

// DeleteSession drops a session and disconnects its subscribers.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	for id, ch := range sess.subscribers {
		delete(sess.subscribers, id)
		close(ch)
	}
	s.mu.Unlock()

	log.Debug().Str("component", "chat-service").Str("session_id", sessionID).Msg("session deleted")
	return nil
}

// AppendMessage records msg in the session transcript. The first user
// message also becomes the session title.
func (s *Service) AppendMessage(_ context.Context, sessionID string, msg *schema.Message) error {
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if msg.Role == schema.User && sess.Title == DefaultTitle {
		sess.Title = summarize(msg.Content)
	}
	sess.history = append(sess.history, msg)
	sess.lastActive = s.now()
	return nil
}

// History returns the stored transcript for the session, oldest first.
func (s *Service) History(_ context.Context, sessionID string) ([]*schema.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := make([]*schema.Message, len(sess.history))
	copy(copied, sess.history)
	return copied, nil
}

// Subscribe registers a listener for the session's reply chunks. The channel
// is closed when the session is deleted; cancel detaches it earlier.
func (s *Service) Subscribe(sessionID string) (<-chan chat.StreamChunk, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	s.nextSub++
	id := s.nextSub
	ch := make(chan chat.StreamChunk, subscriberBuffer)
	sess.subscribers[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if current, ok := s.sessions[sessionID]; ok {
			if sub, ok := current.subscribers[id]; ok {
				delete(current.subscribers, id)
				close(sub)
			}
		}
	}
	return ch, cancel, nil
}

// Publish fans a chunk out to every subscriber of the session. Slow
// subscribers lose chunks rather than stall the reply.
func (s *Service) Publish(sessionID string, chunk chat.StreamChunk) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	for id, ch := range sess.subscribers {
		select {
		case ch <- chunk:
		default:
			log.Warn().Str("component", "chat-service").Str("session_id", sessionID).Uint64("subscriber", id).Msg("subscriber buffer full, dropping chunk")
		}
	}
}

// Subscribers reports how many listeners the session has.
func (s *Service) Subscribers(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return len(sess.subscribers)
	}
	return 0
}

func summarize(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= titleLimit {
		return content
	}
	runes := []rune(content)
	return string(runes[:titleLimit]) + "..."
}
