package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/fsy-chat/internal/handler/chat"
	middlewarePkg "github.com/zhouzirui/fsy-chat/internal/middleware"
	"github.com/zhouzirui/fsy-chat/internal/model/category"
	"github.com/zhouzirui/fsy-chat/internal/service/ai"
	chatService "github.com/zhouzirui/fsy-chat/internal/service/chat"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(categories category.Store, chatSvc *chatService.Service, responder ai.Responder, opts ...chat.Option) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(chatSvc, categories, responder, opts...)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
	})

	return r
}
