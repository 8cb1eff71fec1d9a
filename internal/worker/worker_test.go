package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kalambet/whatnow/internal/labeling"
	"github.com/kalambet/whatnow/internal/storage"
)

type fakeQueue struct {
	jobs      []storage.Job
	enqueued  []storage.Job
	completed []string
	failed    map[string]string
}

func newFakeQueue(jobs ...storage.Job) *fakeQueue {
	return &fakeQueue{jobs: jobs, failed: make(map[string]string)}
}

func (q *fakeQueue) EnqueueJob(job storage.Job) error {
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *fakeQueue) ClaimNextJob(types []string) (*storage.Job, error) {
	if len(q.jobs) == 0 {
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return &job, nil
}

func (q *fakeQueue) CompleteJob(id string) error {
	q.completed = append(q.completed, id)
	return nil
}

func (q *fakeQueue) FailJob(id string, errMsg string) error {
	q.failed[id] = errMsg
	return nil
}

type fakeRunner struct {
	runs []string
	err  error
}

func (r *fakeRunner) Run(ctx context.Context, taskID, userID string, userCtx *labeling.UserContext) error {
	r.runs = append(r.runs, taskID+"/"+userID)
	return r.err
}

func TestEnqueueLabeling_BuildsPayload(t *testing.T) {
	q := newFakeQueue()
	userCtx := &labeling.UserContext{Timezone: "Europe/Kyiv"}

	if err := EnqueueLabeling(q, "t1", "u1", userCtx); err != nil {
		t.Fatalf("EnqueueLabeling failed: %v", err)
	}

	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.enqueued))
	}
	job := q.enqueued[0]
	if job.Type != JobTypeLabelTask {
		t.Errorf("job type = %q, want %q", job.Type, JobTypeLabelTask)
	}
	if job.ID == "" {
		t.Error("job missing ID")
	}

	var payload labelPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if payload.TaskID != "t1" || payload.UserID != "u1" {
		t.Errorf("payload = %+v, want t1/u1", payload)
	}
	if payload.UserContext == nil || payload.UserContext.Timezone != "Europe/Kyiv" {
		t.Errorf("payload user context = %+v, want timezone carried through", payload.UserContext)
	}
}

func TestRunOnce_ProcessesJob(t *testing.T) {
	q := newFakeQueue(storage.Job{ID: "j1", Type: JobTypeLabelTask, PayloadJSON: `{"task_id":"t1","user_id":"u1"}`})
	runner := &fakeRunner{}
	w := NewWorker(q, runner, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if !done {
		t.Fatal("RunOnce = false, want a processed job")
	}
	if len(runner.runs) != 1 || runner.runs[0] != "t1/u1" {
		t.Errorf("runs = %v, want [t1/u1]", runner.runs)
	}
	if len(q.completed) != 1 || q.completed[0] != "j1" {
		t.Errorf("completed = %v, want [j1]", q.completed)
	}
}

func TestRunOnce_EmptyQueue(t *testing.T) {
	w := NewWorker(newFakeQueue(), &fakeRunner{}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if done {
		t.Error("RunOnce = true with empty queue, want false")
	}
}

func TestRunOnce_RunnerErrorFailsJob(t *testing.T) {
	q := newFakeQueue(storage.Job{ID: "j1", Type: JobTypeLabelTask, PayloadJSON: `{"task_id":"t1","user_id":"u1"}`})
	w := NewWorker(q, &fakeRunner{err: errors.New("boom")}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if !done {
		t.Fatal("RunOnce = false, want job processed (as failure)")
	}
	if q.failed["j1"] == "" {
		t.Error("job not marked failed")
	}
	if len(q.completed) != 0 {
		t.Errorf("completed = %v, want none", q.completed)
	}
}

func TestRunOnce_MalformedPayloadFailsJob(t *testing.T) {
	q := newFakeQueue(storage.Job{ID: "j1", Type: JobTypeLabelTask, PayloadJSON: `not json`})
	runner := &fakeRunner{}
	w := NewWorker(q, runner, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if !done {
		t.Fatal("RunOnce = false, want job processed")
	}
	if len(runner.runs) != 0 {
		t.Errorf("runner invoked for malformed payload: %v", runner.runs)
	}
	if q.failed["j1"] == "" {
		t.Error("malformed job not marked failed")
	}
}

func TestRunOnce_MissingIdentifiersFailsJob(t *testing.T) {
	q := newFakeQueue(storage.Job{ID: "j1", Type: JobTypeLabelTask, PayloadJSON: `{"task_id":"t1"}`})
	w := NewWorker(q, &fakeRunner{}, 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if q.failed["j1"] == "" {
		t.Error("job without user_id not marked failed")
	}
}
