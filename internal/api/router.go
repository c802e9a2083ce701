package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mystindex/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(ws *workspace.Workspace, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(ws)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Editor notifications.
	r.Put("/documents", h.PutDocument)
	r.Delete("/documents", h.CloseDocument)
	r.Put("/notebooks", h.PutNotebook)
	r.Delete("/notebooks", h.CloseNotebook)

	// Queries.
	r.Get("/documents", h.GetDocument)
	r.Get("/documents/line", h.TokensAt)
	r.Get("/definitions", h.Definitions)
	r.Get("/targets", h.Targets)
	r.Get("/folding", h.Folding)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
