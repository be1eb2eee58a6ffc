package utils

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// StatusOK is the envelope status of a successful call.
const StatusOK = 200

// Envelope is the body shape of every JSON endpoint.
type Envelope struct {
	Status  int    `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// RespondOK 发送成功响应
func RespondOK(w http.ResponseWriter, data any) {
	RespondJSON(w, http.StatusOK, Envelope{Status: StatusOK, Data: data})
}

// RespondError 发送错误响应，业务状态码与 HTTP 状态码一致
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, Envelope{Status: status, Message: message})
}
