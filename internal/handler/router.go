package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	chatHandler "github.com/meetai-labs/meetai/backend/internal/handler/chat"
	streamHandler "github.com/meetai-labs/meetai/backend/internal/handler/stream"
	chatservice "github.com/meetai-labs/meetai/backend/internal/service/chat"
)

// NewRouter wires HTTP routes to the workspace.
func NewRouter(workspace *chatservice.Workspace) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	sessions := chatHandler.New(workspace)
	streams := streamHandler.New(workspace)
	ws := streamHandler.NewWebSocketHandler(workspace)

	r.Route("/api", func(api chi.Router) {
		sessions.RegisterRoutes(api)
		streams.RegisterRoutes(api)
		ws.RegisterRoutes(api)
	})

	return r
}
