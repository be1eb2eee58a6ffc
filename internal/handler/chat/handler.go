package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fsy-chat/internal/model/category"
	"github.com/zhouzirui/fsy-chat/internal/model/chat"
	"github.com/zhouzirui/fsy-chat/internal/service/ai"
	chatService "github.com/zhouzirui/fsy-chat/internal/service/chat"
	"github.com/zhouzirui/fsy-chat/pkg/utils"
)

const defaultKeepAlive = time.Second

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc    *chatService.Service
	categories category.Store
	responder  ai.Responder
	keepAlive  time.Duration
	newReplyID func() string
	upgrader   websocket.Upgrader
}

// Option 定制处理器行为
type Option func(*Handler)

// WithKeepAlive 设置推送流保活间隔
func WithKeepAlive(d time.Duration) Option {
	return func(h *Handler) { h.keepAlive = d }
}

// WithReplyIDGenerator 替换回复消息 id 的生成方式
func WithReplyIDGenerator(fn func() string) Option {
	return func(h *Handler) { h.newReplyID = fn }
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, categories category.Store, responder ai.Responder, opts ...Option) *Handler {
	h := &Handler{
		chatSvc:    chatSvc,
		categories: categories,
		responder:  responder,
		keepAlive:  defaultKeepAlive,
		newReplyID: uuid.NewString,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/create", h.handleCreateSession)
	r.Post("/chat/message/{sessionID}", h.handlePostMessage)
	r.Get("/chat/sse/{sessionID}", h.handleSSE)
	r.Get("/chat/ws/{sessionID}", h.handleWebSocket)
	r.Get("/session/history", h.handleSessionHistory)
	r.Delete("/session/{sessionID}", h.handleDeleteSession)
	r.Get("/message/history/{sessionID}", h.handleMessageHistory)
	r.Get("/all/document/category", h.handleCategories)
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// handleCreateSession 创建会话，可选文档类别
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("category"))
	if name != "" {
		if _, ok := h.categories.Find(name); !ok {
			utils.RespondError(w, http.StatusBadRequest, "unknown category: "+name)
			return
		}
	}

	session, err := h.chatSvc.CreateSession(r.Context(), name)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondOK(w, createSessionResponse{SessionID: session.ID})
}

type postMessageRequest struct {
	Message string `json:"message"`
}

// handlePostMessage 接收用户消息，回复通过推送流分块下发，全部下发后才返回
func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	// The reply outlives a client that stops waiting for the acknowledgement.
	ctx := context.WithoutCancel(r.Context())
	if err := h.reply(ctx, session, payload.Message); err != nil {
		log.Error().Err(err).Str("component", "chat-handler").Str("session_id", sessionID).Msg("reply failed")
		status := http.StatusInternalServerError
		if errors.Is(err, chatService.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondOK(w, nil)
}

// reply records the user turn, streams the responder output to the session
// subscribers under one fresh id and records the assistant turn.
func (h *Handler) reply(ctx context.Context, session chat.Session, text string) error {
	history, err := h.chatSvc.History(ctx, session.ID)
	if err != nil {
		return err
	}
	if err := h.chatSvc.AppendMessage(ctx, session.ID, schema.UserMessage(text)); err != nil {
		return err
	}

	sr, err := h.responder.Respond(ctx, category.PreambleFor(h.categories, session.Category), history, text)
	if err != nil {
		return errors.Wrap(err, "start reply")
	}
	defer sr.Close()

	replyID := h.newReplyID()
	chunks := make([]*schema.Message, 0, 16)
	for {
		chunk, recvErr := sr.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return errors.Wrap(recvErr, "stream reply")
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			h.chatSvc.Publish(session.ID, chat.StreamChunk{ID: replyID, Content: chunk.Content})
		}
	}

	if len(chunks) == 0 {
		return nil
	}
	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		return errors.Wrap(err, "concat reply")
	}
	if strings.TrimSpace(response.Content) == "" {
		return nil
	}
	log.Debug().Str("component", "chat-handler").Str("session_id", session.ID).Str("reply_id", replyID).Int("length", len(response.Content)).Msg("reply streamed")
	return h.chatSvc.AppendMessage(ctx, session.ID, schema.AssistantMessage(response.Content, nil))
}

// handleSSE 以 Server-Sent Events 推送会话的回复分块
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	chunks, cancel, err := h.chatSvc.Subscribe(sessionID)
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err != nil {
		_ = utils.SendSSEEvent(w, flusher, "error", sessionNotFound())
		return
	}
	defer cancel()
	flusher.Flush()

	log.Debug().Str("component", "sse").Str("session_id", sessionID).Msg("stream opened")
	defer log.Debug().Str("component", "sse").Str("session_id", sessionID).Msg("stream closed")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "new-message", chunk); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		}
	}
}

func sessionNotFound() chat.StreamError {
	return chat.StreamError{Error: true, Message: "会话不存在", Code: "SESSION_NOT_FOUND"}
}

// handleSessionHistory 返回会话列表
func (h *Handler) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	utils.RespondOK(w, h.chatSvc.ListSessions(r.Context()))
}

// handleDeleteSession 删除会话
func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.chatSvc.DeleteSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondOK(w, nil)
}

// handleMessageHistory 返回会话的历史消息
func (h *Handler) handleMessageHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messages, err := h.chatSvc.History(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	records := make([]chat.HistoryRecord, 0, len(messages))
	for _, msg := range messages {
		records = append(records, chat.HistoryRecord{
			Role:    string(msg.Role),
			Content: []chat.ContentBlock{{Type: "text", Text: msg.Content}},
		})
	}
	utils.RespondOK(w, records)
}

// handleCategories 返回所有文档类别
func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	items := h.categories.List()
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	utils.RespondOK(w, names)
}
