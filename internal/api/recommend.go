package api

import (
	"encoding/json"
	"net/http"
)

type recommendRequest struct {
	Message string `json:"message"`
	TopK    int    `json:"top_k"`
}

func handleRecommend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req recommendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		resp, err := deps.Recommender.Recommend(r.Context(), requestUserID(r), req.Message, req.TopK)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build recommendations: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type similarTaskView struct {
	VectorID string         `json:"vector_id"`
	TaskID   string         `json:"task_id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// handleSimilarTasks embeds the source task's title and description and
// searches the vector store for the nearest neighbours of the same user,
// excluding the task itself.
func handleSimilarTasks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Vectors == nil || deps.Embedder == nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "similar-task search is not configured")
			return
		}

		task, ok := requireTask(deps, w, r)
		if !ok {
			return
		}

		limit := parseIntParam(r, "limit", 5, 20)

		text := task.Title
		if task.Description != "" {
			text += " | " + task.Description
		}
		vec, err := deps.Embedder.Embed(r.Context(), text)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to embed task: %v", err)
			return
		}

		// Fetch one extra so the task's own vector can be dropped.
		matches, err := deps.Vectors.Query(vec, limit+1, map[string]string{"user_id": task.UserID}, deps.Namespace)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to search vectors: %v", err)
			return
		}

		views := make([]similarTaskView, 0, len(matches))
		for _, m := range matches {
			if m.ID == task.VectorID {
				continue
			}
			if len(views) == limit {
				break
			}
			taskID, _ := m.Metadata["task_id"].(string)
			views = append(views, similarTaskView{
				VectorID: m.ID,
				TaskID:   taskID,
				Score:    m.Score,
				Metadata: m.Metadata,
			})
		}
		writeJSON(w, http.StatusOK, views)
	}
}
