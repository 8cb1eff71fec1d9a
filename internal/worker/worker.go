// Package worker processes background labeling jobs from the SQLite job
// queue. Each task mutation enqueues one job; jobs for different tasks run
// with no ordering guarantee, and jobs for the same task are last-writer-wins
// at the persistence step.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/whatnow/internal/labeling"
	"github.com/kalambet/whatnow/internal/storage"
)

// JobTypeLabelTask identifies labeling jobs in the queue.
const JobTypeLabelTask = "label_task"

// labelPayload is the JSON body of a labeling job.
type labelPayload struct {
	TaskID      string                `json:"task_id"`
	UserID      string                `json:"user_id"`
	UserContext *labeling.UserContext `json:"user_context,omitempty"`
}

// JobQueue abstracts the job queue operations.
type JobQueue interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// LabelRunner executes a labeling run for a task.
type LabelRunner interface {
	Run(ctx context.Context, taskID, userID string, userCtx *labeling.UserContext) error
}

// EnqueueLabeling adds a labeling job for the task to the queue.
func EnqueueLabeling(q JobQueue, taskID, userID string, userCtx *labeling.UserContext) error {
	payload, err := json.Marshal(labelPayload{TaskID: taskID, UserID: userID, UserContext: userCtx})
	if err != nil {
		return fmt.Errorf("marshaling labeling payload: %w", err)
	}
	return q.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeLabelTask,
		PayloadJSON: string(payload),
	})
}

// Worker polls the queue and runs labeling jobs.
type Worker struct {
	jobs   JobQueue
	runner LabelRunner
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(jobs JobQueue, runner LabelRunner, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{jobs: jobs, runner: runner, poll: pollInterval, logger: slog.Default()}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single labeling job. Returns true if a job
// was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.jobs.ClaimNextJob([]string{JobTypeLabelTask})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("labeling job failed", "job_id", job.ID, "error", err)
		if failErr := w.jobs.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.jobs.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload labelPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.TaskID == "" || payload.UserID == "" {
		return fmt.Errorf("payload missing task_id or user_id")
	}
	return w.runner.Run(ctx, payload.TaskID, payload.UserID, payload.UserContext)
}
