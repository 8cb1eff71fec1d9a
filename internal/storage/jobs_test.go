package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func enqueueTestJob(t *testing.T, s *Store, jobType string) Job {
	t.Helper()
	job := Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		PayloadJSON: `{"task_id":"t1","user_id":"u1"}`,
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	return job
}

func TestJobQueue_ClaimAndComplete(t *testing.T) {
	store := newTestStore(t)
	job := enqueueTestJob(t, store, "label_task")

	claimed, err := store.ClaimNextJob([]string{"label_task"})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if claimed == nil {
		t.Fatal("ClaimNextJob returned nil, want the enqueued job")
	}
	if claimed.ID != job.ID || claimed.Status != "running" {
		t.Errorf("claimed = %+v, want id %s running", claimed, job.ID)
	}

	// No second claim while the job is running.
	again, err := store.ClaimNextJob([]string{"label_task"})
	if err != nil {
		t.Fatalf("second ClaimNextJob failed: %v", err)
	}
	if again != nil {
		t.Errorf("second claim = %+v, want nil", again)
	}

	if err := store.CompleteJob(job.ID); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
}

func TestJobQueue_TypeFilter(t *testing.T) {
	store := newTestStore(t)
	enqueueTestJob(t, store, "other_type")

	claimed, err := store.ClaimNextJob([]string{"label_task"})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if claimed != nil {
		t.Errorf("claimed job of wrong type: %+v", claimed)
	}
}

func TestJobQueue_FailReschedulesWithBackoff(t *testing.T) {
	store := newTestStore(t)
	job := enqueueTestJob(t, store, "label_task")

	claimed, err := store.ClaimNextJob([]string{"label_task"})
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNextJob = %v, %v", claimed, err)
	}

	before := time.Now().UTC()
	if err := store.FailJob(job.ID, "transient error"); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}

	// Rescheduled into the future: not claimable right away.
	again, err := store.ClaimNextJob([]string{"label_task"})
	if err != nil {
		t.Fatalf("ClaimNextJob after fail failed: %v", err)
	}
	if again != nil {
		t.Errorf("claimed backed-off job immediately: %+v", again)
	}

	var status, runAfterStr, lastError string
	var attempts int
	err = store.db.QueryRow(`SELECT status, attempts, run_after, last_error FROM jobs WHERE id = ?`, job.ID).
		Scan(&status, &attempts, &runAfterStr, &lastError)
	if err != nil {
		t.Fatalf("querying job row failed: %v", err)
	}
	if status != "pending" || attempts != 1 || lastError != "transient error" {
		t.Errorf("job after first failure = %s/%d/%q, want pending/1/transient error", status, attempts, lastError)
	}
	runAfter, err := time.Parse(time.RFC3339, runAfterStr)
	if err != nil {
		t.Fatalf("parsing run_after failed: %v", err)
	}
	// 2^1 seconds backoff.
	if runAfter.Before(before.Add(time.Second)) {
		t.Errorf("run_after = %v, want at least ~2s after %v", runAfter, before)
	}
}

func TestJobQueue_FailTerminalAfterMaxAttempts(t *testing.T) {
	store := newTestStore(t)
	job := Job{
		ID:          uuid.New().String(),
		Type:        "label_task",
		PayloadJSON: "{}",
		MaxAttempts: 2,
	}
	if err := store.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	if err := store.FailJob(job.ID, "first"); err != nil {
		t.Fatalf("first FailJob failed: %v", err)
	}
	if err := store.FailJob(job.ID, "second"); err != nil {
		t.Fatalf("second FailJob failed: %v", err)
	}

	var status string
	var attempts int
	if err := store.db.QueryRow(`SELECT status, attempts FROM jobs WHERE id = ?`, job.ID).Scan(&status, &attempts); err != nil {
		t.Fatalf("querying job row failed: %v", err)
	}
	if status != "failed" || attempts != 2 {
		t.Errorf("job = %s/%d, want failed/2", status, attempts)
	}
}

func TestJobQueue_ClaimOrderIsFIFO(t *testing.T) {
	store := newTestStore(t)

	first := Job{ID: uuid.New().String(), Type: "label_task", PayloadJSON: "{}", RunAfter: time.Now().UTC().Add(-2 * time.Minute)}
	second := Job{ID: uuid.New().String(), Type: "label_task", PayloadJSON: "{}", RunAfter: time.Now().UTC().Add(-time.Minute)}
	if err := store.EnqueueJob(first); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	if err := store.EnqueueJob(second); err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	claimed, err := store.ClaimNextJob([]string{"label_task"})
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNextJob = %v, %v", claimed, err)
	}
	if claimed.ID != first.ID {
		t.Errorf("claimed %s, want oldest run_after %s first", claimed.ID, first.ID)
	}
}
