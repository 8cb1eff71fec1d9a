// Package labeling implements the labeling lifecycle state machine: it drives
// a task from in_progress to a terminal completed/failed state, persists the
// generated label batch atomically, and forwards completed tasks to the
// embedding sync as a best-effort side effect.
package labeling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kalambet/whatnow/internal/llm"
	"github.com/kalambet/whatnow/internal/storage"
	"github.com/kalambet/whatnow/internal/taxonomy"
)

const (
	// PrimaryLabelCount is how many top-confidence labels are flagged primary.
	PrimaryLabelCount = 5

	maxErrorLen   = 500
	maxWarningLen = 200

	completionTemperature = 0.7
	completionMaxTokens   = 2000
)

// TaskStore is the storage surface the state machine needs.
type TaskStore interface {
	GetTask(id, userID string) (storage.Task, error)
	MarkLabelingInProgress(taskID, userID string, at time.Time) error
	ReplaceLabels(taskID string, labels []storage.Label, completedAt time.Time) error
	MarkLabelingFailed(taskID, message string) error
	SetLabelingWarning(taskID, warning string) error
}

// TaskSyncer projects a labeled task into the vector store.
type TaskSyncer interface {
	Sync(ctx context.Context, task storage.Task, batch taxonomy.Batch) (string, error)
}

// Runner executes labeling runs. Safe for concurrent use across tasks;
// concurrent runs for the same task are last-writer-wins on the atomic
// replace step, by design.
type Runner struct {
	store  TaskStore
	client llm.Client
	syncer TaskSyncer // optional; nil disables embedding sync
	now    func() time.Time
}

// NewRunner creates a Runner. syncer may be nil.
func NewRunner(store TaskStore, client llm.Client, syncer TaskSyncer) *Runner {
	return &Runner{store: store, client: client, syncer: syncer, now: time.Now}
}

// Run executes one labeling run for the task. A missing task is a logged
// no-op. Generation, validation, and persistence failures transition the task
// to failed and are not returned to the caller; only storage-level failures
// while recording state surface as errors.
func (r *Runner) Run(ctx context.Context, taskID, userID string, userCtx *UserContext) error {
	task, err := r.store.GetTask(taskID, userID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Info("task vanished before labeling, skipping", "task_id", taskID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading task %s: %w", taskID, err)
	}

	// Persist in_progress before the slow model call so the state is
	// externally observable. The task may have been hard-deleted since the
	// load above; that is the same vanished-task no-op.
	if err := r.store.MarkLabelingInProgress(taskID, userID, r.now()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.Info("task vanished before labeling, skipping", "task_id", taskID)
			return nil
		}
		return fmt.Errorf("marking task %s in progress: %w", taskID, err)
	}

	batch, err := r.generate(ctx, task, userCtx)
	if err != nil {
		return r.fail(taskID, err)
	}

	if err := taxonomy.Validate(batch); err != nil {
		return r.fail(taskID, err)
	}

	labels := BuildLabels(batch, r.now())
	if err := r.store.ReplaceLabels(taskID, labels, r.now()); err != nil {
		return r.fail(taskID, fmt.Errorf("persisting labels: %w", err))
	}
	slog.Info("task labeled", "task_id", taskID, "labels", len(labels))

	// Embedding sync is best-effort: failure is recorded as a warning and
	// never reverts the completed state.
	if r.syncer != nil {
		if _, err := r.syncer.Sync(ctx, task, batch); err != nil {
			slog.Warn("embedding sync failed after labeling", "task_id", taskID, "error", err)
			warning := truncate("labels created but embedding sync failed: "+err.Error(), maxWarningLen)
			if werr := r.store.SetLabelingWarning(taskID, warning); werr != nil {
				return fmt.Errorf("recording sync warning for task %s: %w", taskID, werr)
			}
		}
	}

	return nil
}

// generate asks the model for a structured label batch and decodes it
// strictly: malformed JSON fails the run.
func (r *Runner) generate(ctx context.Context, task storage.Task, userCtx *UserContext) (taxonomy.Batch, error) {
	raw, err := r.client.Complete(ctx, llm.CompletionRequest{
		System:      labelingSystemPrompt,
		User:        buildUserPrompt(task, userCtx, r.now()),
		Temperature: completionTemperature,
		MaxTokens:   completionMaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return taxonomy.Batch{}, fmt.Errorf("generating labels: %w", err)
	}

	var batch taxonomy.Batch
	if err := json.Unmarshal([]byte(raw), &batch); err != nil {
		return taxonomy.Batch{}, fmt.Errorf("decoding label batch: %w", err)
	}
	return batch, nil
}

// fail transitions the task to failed with a truncated message. Prior labels
// from an earlier successful run are left untouched.
func (r *Runner) fail(taskID string, cause error) error {
	slog.Error("labeling run failed", "task_id", taskID, "error", cause)
	if err := r.store.MarkLabelingFailed(taskID, truncate(cause.Error(), maxErrorLen)); err != nil {
		return fmt.Errorf("marking task %s failed: %w", taskID, err)
	}
	return nil
}

// BuildLabels converts a validated batch into persistable labels: stable sort
// by confidence descending (ties keep batch order), top PrimaryLabelCount
// flagged primary, run metadata attached to every label.
func BuildLabels(batch taxonomy.Batch, now time.Time) []storage.Label {
	sorted := make([]taxonomy.GeneratedLabel, len(batch.Labels))
	copy(sorted, batch.Labels)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	meta, _ := json.Marshal(map[string]any{
		"external_factors": batch.ExternalFactors,
		"summary":          batch.Summary,
	})

	labels := make([]storage.Label, len(sorted))
	for i, gl := range sorted {
		labels[i] = storage.Label{
			ID:         uuid.New().String(),
			Name:       gl.Name,
			Category:   gl.Category,
			Confidence: gl.Confidence,
			IsPrimary:  i < PrimaryLabelCount,
			Reasoning:  gl.Reasoning,
			Metadata:   string(meta),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	return labels
}

// truncate cuts s to at most n bytes on a rune boundary, so multibyte model
// output never leaves invalid UTF-8 in the stored message.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
