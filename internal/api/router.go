// Package api exposes the HTTP surface: auth, task CRUD, labels,
// recommendations, similar-task search, and the MCP tool server. Every
// task-facing route is scoped to the authenticated user.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/whatnow/internal/recommend"
	"github.com/kalambet/whatnow/internal/storage"
	"github.com/kalambet/whatnow/internal/vector"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Recommender produces the recommendation response for a user message.
type Recommender interface {
	Recommend(ctx context.Context, userID, message string, topK int) (recommend.Response, error)
}

// QueryEmbedder embeds free text for similar-task search.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Deps holds the collaborators of the HTTP layer.
type Deps struct {
	Store       *storage.Store
	JWTSecret   []byte
	Recommender Recommender
	Vectors     vector.Store  // optional; nil disables vector cleanup and similar search
	Embedder    QueryEmbedder // optional; nil disables similar search
	Namespace   string
}

// NewHandler builds the full API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/auth/register", handleRegister(deps))
	r.Post("/auth/login", handleLogin(deps))

	r.Group(func(r chi.Router) {
		r.Use(JWTAuth(deps.JWTSecret))

		r.Post("/tasks", handleCreateTask(deps))
		r.Get("/tasks", handleListTasks(deps))
		r.Get("/tasks/stats", handleTaskStats(deps))
		r.Get("/tasks/search/by-label", handleSearchByLabel(deps))
		r.Get("/tasks/{id}", handleGetTask(deps))
		r.Put("/tasks/{id}", handleUpdateTask(deps))
		r.Delete("/tasks/{id}", handleDeleteTask(deps))

		r.Get("/tasks/{id}/labels", handleListLabels(deps))
		r.Get("/tasks/{id}/labels/status", handleLabelingStatus(deps))
		r.Post("/tasks/{id}/labels/regenerate", handleRegenerateLabels(deps))
		r.Get("/tasks/{id}/similar", handleSimilarTasks(deps))

		r.Get("/labels/statistics", handleLabelStats(deps))
		r.Put("/labels/{id}", handleEditLabel(deps))
		r.Delete("/labels/{id}", handleDeleteLabel(deps))

		r.Post("/recommendations", handleRecommend(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
