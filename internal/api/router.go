package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veddartha/cairn/internal/backend"
	"github.com/veddartha/cairn/internal/cache"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(engine *cache.Engine, client *backend.Client, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(engine, client)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Cache snapshot reads.
	r.Get("/artifacts", h.ListArtifacts)
	r.Get("/artifacts/pending", h.PendingMoves)
	r.Get("/artifacts/content", h.GetContent)

	// Imperative cache mutations.
	r.Post("/artifacts/move", h.Move)
	r.Post("/artifacts/title", h.TitleChange)
	r.Post("/artifacts/flush", h.Flush)
	r.Post("/reload", h.Reload)

	// Search.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
