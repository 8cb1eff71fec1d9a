package storage

import (
	"errors"
	"testing"
	"time"
)

func TestTasks_CreateGetScopedByUser(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store)
	other := createTestUser(t, store)
	task := createTestTask(t, store, owner.ID)

	got, err := store.GetTask(task.ID, owner.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != task.Title || got.LabelingStatus != LabelingPending {
		t.Errorf("got %+v, want title %q and pending labeling", got, task.Title)
	}

	if _, err := store.GetTask(task.ID, other.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask as other user error = %v, want ErrNotFound", err)
	}
}

func TestTasks_ListFiltersAndPagination(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)

	for i := 0; i < 5; i++ {
		task := createTestTask(t, store, user.ID)
		if i < 2 {
			task.Status = StatusCompleted
			task.UpdatedAt = time.Now().UTC()
			if err := store.UpdateTask(task); err != nil {
				t.Fatalf("UpdateTask failed: %v", err)
			}
		}
	}

	tasks, total, err := store.ListTasks(user.ID, TaskFilter{Status: StatusCompleted})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if total != 2 || len(tasks) != 2 {
		t.Errorf("completed filter: total = %d, len = %d, want 2/2", total, len(tasks))
	}

	tasks, total, err = store.ListTasks(user.ID, TaskFilter{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("ListTasks paginated failed: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(tasks) != 2 {
		t.Errorf("page 2 size = %d, want 2", len(tasks))
	}
}

func TestTasks_ListSearch(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)

	task := createTestTask(t, store, user.ID)
	task.Title = "water the plants"
	task.UpdatedAt = time.Now().UTC()
	if err := store.UpdateTask(task); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	createTestTask(t, store, user.ID)

	tasks, _, err := store.ListTasks(user.ID, TaskFilter{Search: "plants"})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Errorf("search returned %d tasks, want exactly the matching one", len(tasks))
	}
}

func TestTasks_SoftDeleteKeepsRow(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	task := createTestTask(t, store, user.ID)

	if err := store.SoftDeleteTask(task.ID, user.ID); err != nil {
		t.Fatalf("SoftDeleteTask failed: %v", err)
	}

	got, err := store.GetTask(task.ID, user.ID)
	if err != nil {
		t.Fatalf("GetTask after soft delete failed: %v", err)
	}
	if got.IsActive {
		t.Error("task still active after soft delete")
	}
}

func TestTasks_HardDeleteCascadesLabels(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	task := createTestTask(t, store, user.ID)

	now := time.Now().UTC()
	if err := store.ReplaceLabels(task.ID, testLabels(3, now), now); err != nil {
		t.Fatalf("ReplaceLabels failed: %v", err)
	}

	if err := store.HardDeleteTask(task.ID, user.ID); err != nil {
		t.Fatalf("HardDeleteTask failed: %v", err)
	}
	if _, err := store.GetTask(task.ID, user.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask after hard delete error = %v, want ErrNotFound", err)
	}

	labels, err := store.GetTaskLabels(task.ID)
	if err != nil {
		t.Fatalf("GetTaskLabels failed: %v", err)
	}
	if len(labels) != 0 {
		t.Errorf("labels remain after cascade delete: %d", len(labels))
	}
}

func TestLabelingStateMachine(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	task := createTestTask(t, store, user.ID)

	at := time.Now().UTC().Truncate(time.Second)
	if err := store.MarkLabelingInProgress(task.ID, user.ID, at); err != nil {
		t.Fatalf("MarkLabelingInProgress failed: %v", err)
	}
	got, _ := store.GetTask(task.ID, user.ID)
	if got.LabelingStatus != LabelingInProgress {
		t.Errorf("status = %q, want in_progress", got.LabelingStatus)
	}
	if got.LabelingAttemptedAt == nil || !got.LabelingAttemptedAt.Equal(at) {
		t.Errorf("attempted_at = %v, want %v", got.LabelingAttemptedAt, at)
	}

	if err := store.MarkLabelingFailed(task.ID, "model timeout"); err != nil {
		t.Fatalf("MarkLabelingFailed failed: %v", err)
	}
	got, _ = store.GetTask(task.ID, user.ID)
	if got.LabelingStatus != LabelingFailed || got.LabelingError != "model timeout" {
		t.Errorf("after failure: status = %q, error = %q", got.LabelingStatus, got.LabelingError)
	}

	// Re-label: completion clears the previous error.
	completedAt := at.Add(time.Minute)
	if err := store.ReplaceLabels(task.ID, testLabels(2, completedAt), completedAt); err != nil {
		t.Fatalf("ReplaceLabels failed: %v", err)
	}
	got, _ = store.GetTask(task.ID, user.ID)
	if got.LabelingStatus != LabelingCompleted {
		t.Errorf("status = %q, want completed", got.LabelingStatus)
	}
	if got.LabelingError != "" {
		t.Errorf("labeling_error = %q, want cleared", got.LabelingError)
	}
	if got.LabelingCompletedAt == nil || !got.LabelingCompletedAt.Equal(completedAt) {
		t.Errorf("completed_at = %v, want %v", got.LabelingCompletedAt, completedAt)
	}
}

func TestReplaceLabels_ReplacesPreviousBatch(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	task := createTestTask(t, store, user.ID)

	now := time.Now().UTC()
	if err := store.ReplaceLabels(task.ID, testLabels(6, now), now); err != nil {
		t.Fatalf("first ReplaceLabels failed: %v", err)
	}
	if err := store.ReplaceLabels(task.ID, testLabels(2, now), now); err != nil {
		t.Fatalf("second ReplaceLabels failed: %v", err)
	}

	labels, err := store.GetTaskLabels(task.ID)
	if err != nil {
		t.Fatalf("GetTaskLabels failed: %v", err)
	}
	if len(labels) != 2 {
		t.Errorf("labels = %d, want the replacement batch of 2", len(labels))
	}
}

func TestSetLabelingWarning_KeepsStatus(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	task := createTestTask(t, store, user.ID)

	now := time.Now().UTC()
	if err := store.ReplaceLabels(task.ID, testLabels(1, now), now); err != nil {
		t.Fatalf("ReplaceLabels failed: %v", err)
	}
	if err := store.SetLabelingWarning(task.ID, "sync degraded"); err != nil {
		t.Fatalf("SetLabelingWarning failed: %v", err)
	}

	got, _ := store.GetTask(task.ID, user.ID)
	if got.LabelingStatus != LabelingCompleted {
		t.Errorf("status = %q, want completed unchanged", got.LabelingStatus)
	}
	if got.LabelingError != "sync degraded" {
		t.Errorf("labeling_error = %q, want warning", got.LabelingError)
	}
}

func TestSetTaskEmbedding(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	task := createTestTask(t, store, user.ID)

	if err := store.SetTaskEmbedding(task.ID, "task_x_abcd1234", "text-embedding-3-small", "v1"); err != nil {
		t.Fatalf("SetTaskEmbedding failed: %v", err)
	}
	got, _ := store.GetTask(task.ID, user.ID)
	if got.VectorID != "task_x_abcd1234" || got.EmbeddingModel != "text-embedding-3-small" || got.EmbeddingVersion != "v1" {
		t.Errorf("embedding reference = %q/%q/%q", got.VectorID, got.EmbeddingModel, got.EmbeddingVersion)
	}
}

func TestListActiveLabeledTasks(t *testing.T) {
	store := newTestStore(t)
	user := createTestUser(t, store)
	now := time.Now().UTC()

	labeled := createTestTask(t, store, user.ID)
	if err := store.ReplaceLabels(labeled.ID, testLabels(2, now), now); err != nil {
		t.Fatalf("ReplaceLabels failed: %v", err)
	}

	// Unlabeled task: excluded.
	createTestTask(t, store, user.ID)

	// Completed task with labels: excluded.
	done := createTestTask(t, store, user.ID)
	if err := store.ReplaceLabels(done.ID, testLabels(2, now), now); err != nil {
		t.Fatalf("ReplaceLabels failed: %v", err)
	}
	done.Status = StatusCompleted
	done.UpdatedAt = now
	if err := store.UpdateTask(done); err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	// Soft-deleted task with labels: excluded.
	inactive := createTestTask(t, store, user.ID)
	if err := store.ReplaceLabels(inactive.ID, testLabels(2, now), now); err != nil {
		t.Fatalf("ReplaceLabels failed: %v", err)
	}
	if err := store.SoftDeleteTask(inactive.ID, user.ID); err != nil {
		t.Fatalf("SoftDeleteTask failed: %v", err)
	}

	candidates, err := store.ListActiveLabeledTasks(user.ID)
	if err != nil {
		t.Fatalf("ListActiveLabeledTasks failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	if candidates[0].Task.ID != labeled.ID {
		t.Errorf("candidate = %q, want %q", candidates[0].Task.ID, labeled.ID)
	}
	if len(candidates[0].Labels) != 2 {
		t.Errorf("candidate labels = %d, want 2", len(candidates[0].Labels))
	}
}
