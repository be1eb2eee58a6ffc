package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/fsy-chat/internal/model/category"
	"github.com/zhouzirui/fsy-chat/internal/model/chat"
	"github.com/zhouzirui/fsy-chat/internal/service/ai"
	chatservice "github.com/zhouzirui/fsy-chat/internal/service/chat"
	"github.com/zhouzirui/fsy-chat/internal/stream"
)

type envelope struct {
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func setupRouter(opts ...Option) (*chi.Mux, *chatservice.Service) {
	chatSvc := chatservice.NewService()
	store := category.NewMemoryStore(category.Seed())
	handler := New(chatSvc, store, ai.NewEchoResponder(0), opts...)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func doRequest(t *testing.T, r http.Handler, method, path string, body []byte) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	return resp.Code, env
}

func createSession(t *testing.T, r http.Handler, query string) string {
	t.Helper()
	code, env := doRequest(t, r, http.MethodGet, "/chat/create"+query, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 200, env.Status)

	var data struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.SessionID)
	return data.SessionID
}

func TestCreateSession(t *testing.T) {
	r, svc := setupRouter()

	id := createSession(t, r, "")
	withCategory := createSession(t, r, "?category=go")

	session, err := svc.GetSession(context.Background(), withCategory)
	require.NoError(t, err)
	assert.Equal(t, "go", session.Category)
	assert.NotEqual(t, id, withCategory)
}

func TestCreateSessionUnknownCategory(t *testing.T) {
	r, _ := setupRouter()

	code, env := doRequest(t, r, http.MethodGet, "/chat/create?category=astrology", nil)

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, http.StatusBadRequest, env.Status)
	assert.Contains(t, env.Message, "astrology")
}

func TestPostMessageValidation(t *testing.T) {
	r, _ := setupRouter()
	id := createSession(t, r, "")

	code, env := doRequest(t, r, http.MethodPost, "/chat/message/missing", []byte(`{"message":"hi"}`))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, http.StatusNotFound, env.Status)

	code, _ = doRequest(t, r, http.MethodPost, "/chat/message/"+id, []byte(`{"message":"   "}`))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doRequest(t, r, http.MethodPost, "/chat/message/"+id, []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPostMessagePublishesReplyAndRecordsHistory(t *testing.T) {
	r, svc := setupRouter(WithReplyIDGenerator(func() string { return "reply-1" }))
	id := createSession(t, r, "")

	chunks, cancel, err := svc.Subscribe(id)
	require.NoError(t, err)
	defer cancel()

	code, env := doRequest(t, r, http.MethodPost, "/chat/message/"+id, []byte(`{"message":"how are you"}`))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 200, env.Status)

	var reply strings.Builder
	for len(chunks) > 0 {
		chunk := <-chunks
		assert.Equal(t, "reply-1", chunk.ID)
		reply.WriteString(chunk.Content)
	}
	assert.Equal(t, "收到：how are you", reply.String())

	code, env = doRequest(t, r, http.MethodGet, "/message/history/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	var records []chat.HistoryRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "user", records[0].Role)
	assert.Equal(t, "how are you", records[0].Text())
	assert.Equal(t, "assistant", records[1].Role)
	assert.Equal(t, []chat.ContentBlock{{Type: "text", Text: "收到：how are you"}}, records[1].Content)

	_, env = doRequest(t, r, http.MethodGet, "/session/history", nil)
	var sessions []chat.SessionSummary
	require.NoError(t, json.Unmarshal(env.Data, &sessions))
	assert.Equal(t, []chat.SessionSummary{{SessionID: id, Title: "how are you"}}, sessions)
}

func TestDeleteSession(t *testing.T) {
	r, _ := setupRouter()
	id := createSession(t, r, "")

	code, env := doRequest(t, r, http.MethodDelete, "/session/"+id, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 200, env.Status)

	code, _ = doRequest(t, r, http.MethodGet, "/message/history/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = doRequest(t, r, http.MethodDelete, "/session/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCategories(t *testing.T) {
	r, _ := setupRouter()

	_, env := doRequest(t, r, http.MethodGet, "/all/document/category", nil)

	var names []string
	require.NoError(t, json.Unmarshal(env.Data, &names))
	assert.Equal(t, []string{"rust", "go", "recipes"}, names)
}

func TestSSEUnknownSessionSendsErrorEvent(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/chat/sse/missing", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	ev, err := stream.NewDecoder(resp.Body).Decode()
	require.NoError(t, err)
	assert.Equal(t, stream.EventError, ev.Name)

	var payload chat.StreamError
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, chat.StreamError{Error: true, Message: "会话不存在", Code: "SESSION_NOT_FOUND"}, payload)
}

func TestSSEStreamsPublishedChunks(t *testing.T) {
	r, svc := setupRouter(WithKeepAlive(10 * time.Millisecond))
	srv := httptest.NewServer(r)
	defer srv.Close()
	id := createSession(t, r, "")

	s, err := stream.NewSSEDialer(srv.URL, nil).Dial(context.Background(), id)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, 1, svc.Subscribers(id))

	svc.Publish(id, chat.StreamChunk{ID: "m1", Content: "Hel"})
	time.Sleep(30 * time.Millisecond)
	svc.Publish(id, chat.StreamChunk{ID: "m1", Content: "lo"})

	for _, want := range []string{"Hel", "lo"} {
		ev, err := s.Recv()
		require.NoError(t, err)
		assert.Equal(t, stream.EventNewMessage, ev.Name)
		var chunk chat.StreamChunk
		require.NoError(t, json.Unmarshal(ev.Data, &chunk))
		assert.Equal(t, chat.StreamChunk{ID: "m1", Content: want}, chunk)
	}
}

func TestWebSocketUnknownSessionSendsErrorFrame(t *testing.T) {
	r, _ := setupRouter()
	srv := httptest.NewServer(r)
	defer srv.Close()

	s, err := stream.NewWSDialer(srv.URL).Dial(context.Background(), "missing")
	require.NoError(t, err)
	defer s.Close()

	ev, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, stream.EventError, ev.Name)
	assert.Contains(t, string(ev.Data), "SESSION_NOT_FOUND")
}
