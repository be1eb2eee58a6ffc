package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fsy-chat/internal/stream"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// handleWebSocket 通过 WebSocket 推送会话的回复分块，帧格式为 {event, data}
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "websocket").Str("session_id", sessionID).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	chunks, cancel, err := h.chatSvc.Subscribe(sessionID)
	if err != nil {
		_ = writeFrame(conn, stream.EventError, sessionNotFound())
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session not found"),
			time.Now().Add(wsWriteWait))
		return
	}
	defer cancel()

	log.Debug().Str("component", "websocket").Str("session_id", sessionID).Msg("stream opened")

	ctx, stop := context.WithCancel(r.Context())
	defer stop()
	go readPump(ctx, stop, conn)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session deleted"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := writeFrame(conn, stream.EventNewMessage, chunk); err != nil {
				log.Debug().Err(err).Str("component", "websocket").Str("session_id", sessionID).Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so control messages are processed, and
// cancels the stream once the peer goes away.
func readPump(ctx context.Context, stop context.CancelFunc, conn *websocket.Conn) {
	defer stop()
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for ctx.Err() == nil {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("component", "websocket").Msg("read error")
			}
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(stream.Frame{Event: event, Data: data})
}
