package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/handler/chat"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/handler/document"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/handler/session"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/handler/stream"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/pdf-chatbot/backend/internal/middleware"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/qa"
	"github.com/zhouzirui/pdf-chatbot/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(qaSvc *qa.Service, maxUploadBytes int64) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	// Create handlers
	sessionHandler := session.New(qaSvc.Sessions())
	documentHandler := document.New(qaSvc, maxUploadBytes)
	chatHandler := chat.New(qaSvc)
	streamHandler := stream.New(qaSvc)
	wsHandler := ws.New(qaSvc)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":      "ok",
				"aiAvailable": qaSvc.AIAvailable(),
			})
		})

		sessionHandler.RegisterRoutes(api)
		documentHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
