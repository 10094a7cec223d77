package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/veddartha/cairn/internal/apperr"
	"github.com/veddartha/cairn/internal/backend"
	"github.com/veddartha/cairn/internal/cache"
	"github.com/veddartha/cairn/internal/models"
)

// Handler holds API route handlers.
type Handler struct {
	engine  *cache.Engine
	backend *backend.Client
}

// NewHandler creates a new Handler.
func NewHandler(engine *cache.Engine, client *backend.Client) *Handler {
	return &Handler{engine: engine, backend: client}
}

// ListArtifacts handles GET /api/artifacts. The response is the latest
// committed cache snapshot, optionally filtered by resource type.
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()

	if typ := r.URL.Query().Get("type"); typ != "" {
		filtered := make([]models.Artifact, 0, len(snap))
		for _, a := range snap {
			if a.Type == models.ResourceType(typ) {
				filtered = append(filtered, a)
			}
		}
		snap = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"artifacts": snap,
		"total":     len(snap),
	})
}

// PendingMoves handles GET /api/artifacts/pending. The listed paths are
// predictions awaiting backend confirmation; UIs use them for in-flight
// affordances like row spinners.
func (h *Handler) PendingMoves(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": h.engine.PendingMoves(),
	})
}

// GetContent handles GET /api/artifacts/content?path=...
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	data, err := h.backend.ReadFile(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("read content failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":    path,
		"content": string(data),
	})
}

// Move handles POST /api/artifacts/move.
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path         string `json:"path"`
		TargetFolder string `json:"target_folder"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.TargetFolder == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and target_folder are required"))
		return
	}

	actual, err := h.engine.Move(r.Context(), req.Path, req.TargetFolder)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrMovePending):
			writeJSON(w, http.StatusConflict, errorBody("a move is already pending for this artifact"))
		default:
			slog.Error("move failed", slog.String("path", req.Path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("move failed"))
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": actual})
}

// TitleChange handles POST /api/artifacts/title. Edits are debounced; the
// rename reaches disk only after the quiet window elapses or a flush.
func (h *Handler) TitleChange(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req struct {
		Path    string `json:"path"`
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}

	h.engine.Renames().OnTitleChange(req.Path, req.Title, []byte(req.Content))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"path": h.engine.Renames().EditPath(),
	})
}

// Flush handles POST /api/artifacts/flush, committing any pending
// debounced rename synchronously (navigation away, explicit save).
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Renames().Finalize(); err != nil {
		slog.Error("flush failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("flush failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"path": h.engine.Renames().EditPath(),
	})
}

// Reload handles POST /api/reload, forcing a full cache reload.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.FullReload(r.Context()); err != nil {
		slog.Error("reload failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("reload failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(h.engine.Snapshot()),
	})
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.backend.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}
