package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/whatnow/internal/labeling"
	"github.com/kalambet/whatnow/internal/storage"
	"github.com/kalambet/whatnow/internal/worker"
)

type taskRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Status      string                `json:"status"`
	Priority    string                `json:"priority"`
	DueDate     *string               `json:"due_date"`
	UserContext *labeling.UserContext `json:"user_context"`
}

type taskView struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	IsActive    bool    `json:"is_active"`
	DueDate     *string `json:"due_date,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`

	LabelingStatus      string  `json:"labeling_status"`
	LabelingAttemptedAt *string `json:"labeling_attempted_at,omitempty"`
	LabelingCompletedAt *string `json:"labeling_completed_at,omitempty"`
	LabelingError       string  `json:"labeling_error,omitempty"`
}

func viewTask(t storage.Task) taskView {
	return taskView{
		ID:                  t.ID,
		Title:               t.Title,
		Description:         t.Description,
		Status:              string(t.Status),
		Priority:            string(t.Priority),
		IsActive:            t.IsActive,
		DueDate:             fmtTimeView(t.DueDate),
		CompletedAt:         fmtTimeView(t.CompletedAt),
		CreatedAt:           t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:           t.UpdatedAt.UTC().Format(time.RFC3339),
		LabelingStatus:      string(t.LabelingStatus),
		LabelingAttemptedAt: fmtTimeView(t.LabelingAttemptedAt),
		LabelingCompletedAt: fmtTimeView(t.LabelingCompletedAt),
		LabelingError:       t.LabelingError,
	}
}

func fmtTimeView(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func parseDueDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func handleCreateTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		userID := requestUserID(r)

		var req taskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		if req.Status == "" {
			req.Status = string(storage.StatusTodo)
		}
		if req.Priority == "" {
			req.Priority = string(storage.PriorityMedium)
		}
		if !storage.TaskStatus(req.Status).Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", req.Status)
			return
		}
		if !storage.TaskPriority(req.Priority).Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown priority %q", req.Priority)
			return
		}

		dueDate, err := parseDueDate(req.DueDate)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid due_date: %v", err)
			return
		}

		now := time.Now().UTC()
		task := storage.Task{
			ID:             uuid.New().String(),
			UserID:         userID,
			Title:          req.Title,
			Description:    req.Description,
			Status:         storage.TaskStatus(req.Status),
			Priority:       storage.TaskPriority(req.Priority),
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
			DueDate:        dueDate,
			LabelingStatus: storage.LabelingPending,
		}
		if task.Status == storage.StatusCompleted {
			task.CompletedAt = &now
		}

		if err := deps.Store.CreateTask(task); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create task: %v", err)
			return
		}

		if err := worker.EnqueueLabeling(deps.Store, task.ID, userID, req.UserContext); err != nil {
			// The task exists; labeling can be retriggered manually.
			slog.Warn("failed to enqueue labeling for new task", "task_id", task.ID, "error", err)
		}

		writeJSON(w, http.StatusCreated, viewTask(task))
	}
}

func handleGetTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, err := deps.Store.GetTask(chi.URLParam(r, "id"), requestUserID(r))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get task: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, viewTask(task))
	}
}

func handleListTasks(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := storage.TaskFilter{
			Status:   storage.TaskStatus(q.Get("status")),
			Priority: storage.TaskPriority(q.Get("priority")),
			Search:   q.Get("search"),
			Page:     parseIntParam(r, "page", 1, 0),
			PageSize: parseIntParam(r, "page_size", 10, 100),
		}
		if filter.Status != "" && !filter.Status.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", filter.Status)
			return
		}
		if filter.Priority != "" && !filter.Priority.Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown priority %q", filter.Priority)
			return
		}

		// Active-only unless is_active is supplied explicitly.
		active := true
		filter.IsActive = &active
		if v := q.Get("is_active"); v != "" {
			active = v == "true" || v == "1"
		}

		tasks, total, err := deps.Store.ListTasks(requestUserID(r), filter)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list tasks: %v", err)
			return
		}

		views := make([]taskView, len(tasks))
		for i, t := range tasks {
			views[i] = viewTask(t)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tasks":     views,
			"total":     total,
			"page":      filter.Page,
			"page_size": filter.PageSize,
		})
	}
}

func handleUpdateTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		userID := requestUserID(r)

		task, err := deps.Store.GetTask(chi.URLParam(r, "id"), userID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get task: %v", err)
			return
		}

		var req taskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		if req.Status != "" && !storage.TaskStatus(req.Status).Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown status %q", req.Status)
			return
		}
		if req.Priority != "" && !storage.TaskPriority(req.Priority).Valid() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown priority %q", req.Priority)
			return
		}

		dueDate, err := parseDueDate(req.DueDate)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid due_date: %v", err)
			return
		}

		relabel := task.Title != req.Title ||
			task.Description != req.Description ||
			(req.Priority != "" && task.Priority != storage.TaskPriority(req.Priority)) ||
			!timePtrEqual(task.DueDate, dueDate)

		now := time.Now().UTC()
		task.Title = req.Title
		task.Description = req.Description
		task.DueDate = dueDate
		task.UpdatedAt = now
		if req.Priority != "" {
			task.Priority = storage.TaskPriority(req.Priority)
		}
		if req.Status != "" {
			newStatus := storage.TaskStatus(req.Status)
			if newStatus == storage.StatusCompleted && task.Status != storage.StatusCompleted {
				task.CompletedAt = &now
			}
			if newStatus != storage.StatusCompleted {
				task.CompletedAt = nil
			}
			task.Status = newStatus
		}

		if err := deps.Store.UpdateTask(task); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update task: %v", err)
			return
		}

		if relabel {
			if err := worker.EnqueueLabeling(deps.Store, task.ID, userID, req.UserContext); err != nil {
				slog.Warn("failed to enqueue relabeling", "task_id", task.ID, "error", err)
			}
		}

		writeJSON(w, http.StatusOK, viewTask(task))
	}
}

func handleDeleteTask(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := requestUserID(r)
		id := chi.URLParam(r, "id")

		if r.URL.Query().Get("hard") != "true" {
			err := deps.Store.SoftDeleteTask(id, userID)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "task not found")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to delete task: %v", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
			return
		}

		// Fetch first so the vector can be cleaned up after the row is gone.
		task, err := deps.Store.GetTask(id, userID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get task: %v", err)
			return
		}

		if err := deps.Store.HardDeleteTask(id, userID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete task: %v", err)
			return
		}

		if deps.Vectors != nil && task.VectorID != "" {
			if err := deps.Vectors.Delete([]string{task.VectorID}, deps.Namespace); err != nil {
				slog.Warn("failed to delete task vector", "task_id", id, "vector_id", task.VectorID, "error", err)
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
