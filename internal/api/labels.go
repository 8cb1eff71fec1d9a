package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/whatnow/internal/storage"
	"github.com/kalambet/whatnow/internal/taxonomy"
	"github.com/kalambet/whatnow/internal/worker"
)

type labelView struct {
	ID           string  `json:"id"`
	TaskID       string  `json:"task_id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Confidence   float64 `json:"confidence"`
	IsPrimary    bool    `json:"is_primary"`
	IsUserEdited bool    `json:"is_user_edited"`
	OriginalName string  `json:"original_name,omitempty"`
	Reasoning    string  `json:"reasoning,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func viewLabel(l storage.Label) labelView {
	return labelView{
		ID:           l.ID,
		TaskID:       l.TaskID,
		Name:         l.Name,
		Category:     string(l.Category),
		Confidence:   l.Confidence,
		IsPrimary:    l.IsPrimary,
		IsUserEdited: l.IsUserEdited,
		OriginalName: l.OriginalName,
		Reasoning:    l.Reasoning,
		CreatedAt:    l.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    l.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// requireTask loads the task under the user scope, writing the error response
// itself when the task is missing or the lookup fails.
func requireTask(deps Deps, w http.ResponseWriter, r *http.Request) (storage.Task, bool) {
	task, err := deps.Store.GetTask(chi.URLParam(r, "id"), requestUserID(r))
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "task not found")
		return storage.Task{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get task: %v", err)
		return storage.Task{}, false
	}
	return task, true
}

func handleListLabels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := requireTask(deps, w, r)
		if !ok {
			return
		}

		var labels []storage.Label
		var err error
		if r.URL.Query().Get("primary") == "true" {
			labels, err = deps.Store.GetPrimaryLabels(task.ID)
		} else {
			labels, err = deps.Store.GetTaskLabels(task.ID)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list labels: %v", err)
			return
		}

		views := make([]labelView, len(labels))
		for i, l := range labels {
			views[i] = viewLabel(l)
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func handleLabelingStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := requireTask(deps, w, r)
		if !ok {
			return
		}

		labels, err := deps.Store.GetTaskLabels(task.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count labels: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"task_id":               task.ID,
			"labeling_status":       string(task.LabelingStatus),
			"labeling_attempted_at": fmtTimeView(task.LabelingAttemptedAt),
			"labeling_completed_at": fmtTimeView(task.LabelingCompletedAt),
			"labeling_error":        task.LabelingError,
			"label_count":           len(labels),
		})
	}
}

func handleRegenerateLabels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := requireTask(deps, w, r)
		if !ok {
			return
		}

		if err := worker.EnqueueLabeling(deps.Store, task.ID, task.UserID, nil); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue labeling: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"task_id": task.ID,
			"status":  "queued",
		})
	}
}

type labelEditRequest struct {
	Name       *string  `json:"name"`
	Category   *string  `json:"category"`
	Confidence *float64 `json:"confidence"`
}

func handleEditLabel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req labelEditRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == nil && req.Category == nil && req.Confidence == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of name, category, confidence is required")
			return
		}

		edit := storage.LabelEdit{Name: req.Name, Confidence: req.Confidence}
		if req.Category != nil {
			cat := taxonomy.Category(*req.Category)
			if !cat.Valid() {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown category %q", *req.Category)
				return
			}
			edit.Category = &cat
		}

		label, err := deps.Store.EditLabel(chi.URLParam(r, "id"), requestUserID(r), edit)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "label not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to edit label: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, viewLabel(label))
	}
}

func handleDeleteLabel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteLabelForUser(chi.URLParam(r, "id"), requestUserID(r))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "label not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete label: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleSearchByLabel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var search storage.LabelSearch
		if names := q.Get("name"); names != "" {
			search.Names = strings.Split(names, ",")
		}
		if cats := q.Get("category"); cats != "" {
			for _, c := range strings.Split(cats, ",") {
				cat := taxonomy.Category(c)
				if !cat.Valid() {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown category %q", c)
					return
				}
				search.Categories = append(search.Categories, cat)
			}
		}
		if v := q.Get("min_confidence"); v != "" {
			min, err := strconv.ParseFloat(v, 64)
			if err != nil || min < 0 || min > 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "min_confidence must be a number in [0,1]")
				return
			}
			search.MinConfidence = &min
		}
		search.PrimaryOnly = q.Get("primary") == "true"

		if len(search.Names) == 0 && len(search.Categories) == 0 && search.MinConfidence == nil && !search.PrimaryOnly {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one search criterion is required")
			return
		}

		tasks, err := deps.Store.SearchTasksByLabel(requestUserID(r), search)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to search tasks: %v", err)
			return
		}

		views := make([]taskView, len(tasks))
		for i, t := range tasks {
			views[i] = viewTask(t)
		}
		writeJSON(w, http.StatusOK, views)
	}
}
