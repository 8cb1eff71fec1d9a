package storage

import (
	"errors"
	"time"

	"github.com/kalambet/whatnow/internal/taxonomy"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// TaskStatus is the user-facing lifecycle state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// TaskPriority orders tasks by importance.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// LabelingStatus tracks the labeling lifecycle of a task.
//
// Transitions: pending -> in_progress -> {completed, failed};
// completed/failed -> in_progress on re-labeling. A crash mid-run leaves the
// task in_progress; that is retryable by operators, never auto-recovered.
type LabelingStatus string

const (
	LabelingPending    LabelingStatus = "pending"
	LabelingInProgress LabelingStatus = "in_progress"
	LabelingCompleted  LabelingStatus = "completed"
	LabelingFailed     LabelingStatus = "failed"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Status      TaskStatus
	Priority    TaskPriority
	IsActive    bool

	CreatedAt   time.Time
	UpdatedAt   time.Time
	DueDate     *time.Time
	CompletedAt *time.Time

	LabelingStatus      LabelingStatus
	LabelingAttemptedAt *time.Time
	LabelingCompletedAt *time.Time
	LabelingError       string

	// Vector store reference, generated once and reused on re-sync.
	VectorID         string
	EmbeddingModel   string
	EmbeddingVersion string
}

// Label is the persisted projection of a generated label.
type Label struct {
	ID         string
	TaskID     string
	Name       string
	Category   taxonomy.Category
	Confidence float64

	IsPrimary    bool
	IsUserEdited bool
	// OriginalName preserves the machine-generated name on first user edit.
	// Write-once: never overwritten after it is set.
	OriginalName string

	Reasoning string
	Metadata  string // JSON object stored as text

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LabeledTask pairs a task with its stored labels for scoring.
type LabeledTask struct {
	Task   Task
	Labels []Label
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
