package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const taskColumns = `id, user_id, title, description, status, priority, is_active,
	created_at, updated_at, due_date, completed_at,
	labeling_status, labeling_attempted_at, labeling_completed_at, labeling_error,
	vector_id, embedding_model, embedding_version`

// CreateTask inserts a new task. The labeling status starts as pending.
func (s *Store) CreateTask(t Task) error {
	_, err := s.db.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Description, string(t.Status), string(t.Priority), boolToInt(t.IsActive),
		fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt), fmtTimePtr(t.DueDate), fmtTimePtr(t.CompletedAt),
		string(t.LabelingStatus), fmtTimePtr(t.LabelingAttemptedAt), fmtTimePtr(t.LabelingCompletedAt), t.LabelingError,
		t.VectorID, t.EmbeddingModel, t.EmbeddingVersion,
	)
	return err
}

// GetTask returns the task with the given ID owned by userID.
func (s *Store) GetTask(id, userID string) (Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	return scanTask(row)
}

// TaskFilter narrows ListTasks results. Zero values mean "no filter" except
// IsActive, which defaults to active-only when nil is not supplied by callers.
type TaskFilter struct {
	Status   TaskStatus
	Priority TaskPriority
	IsActive *bool
	Search   string
	Page     int
	PageSize int
}

// ListTasks returns a page of tasks owned by userID plus the total match count.
func (s *Store) ListTasks(userID string, f TaskFilter) ([]Task, int, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}

	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if f.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, boolToInt(*f.IsActive))
	}
	if f.Search != "" {
		where = append(where, "(title LIKE ? OR description LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}

	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM tasks WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting tasks: %w", err)
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize < 1 {
		pageSize = 10
	}

	query := "SELECT " + taskColumns + " FROM tasks WHERE " + cond +
		" ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

// UpdateTask persists content and lifecycle fields of a task owned by userID.
// Labeling fields are owned by the state machine and not touched here.
func (s *Store) UpdateTask(t Task) error {
	res, err := s.db.Exec(`
		UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?,
			is_active = ?, updated_at = ?, due_date = ?, completed_at = ?
		WHERE id = ? AND user_id = ?`,
		t.Title, t.Description, string(t.Status), string(t.Priority),
		boolToInt(t.IsActive), fmtTime(t.UpdatedAt), fmtTimePtr(t.DueDate), fmtTimePtr(t.CompletedAt),
		t.ID, t.UserID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SoftDeleteTask clears the active flag; the task and its labels remain stored.
func (s *Store) SoftDeleteTask(id, userID string) error {
	res, err := s.db.Exec(`UPDATE tasks SET is_active = 0, updated_at = ? WHERE id = ? AND user_id = ?`,
		fmtTime(time.Now()), id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// HardDeleteTask removes the task; labels cascade via foreign key.
func (s *Store) HardDeleteTask(id, userID string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListActiveLabeledTasks returns every active, non-completed task owned by
// userID that has at least one label, with labels attached. This is the
// candidate set for recommendation scoring.
func (s *Store) ListActiveLabeledTasks(userID string) ([]LabeledTask, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks
		WHERE user_id = ? AND is_active = 1 AND status != ?
		ORDER BY created_at ASC`, userID, string(StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("querying candidate tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var result []LabeledTask
	for _, t := range tasks {
		labels, err := s.GetTaskLabels(t.ID)
		if err != nil {
			return nil, err
		}
		if len(labels) == 0 {
			continue
		}
		result = append(result, LabeledTask{Task: t, Labels: labels})
	}
	return result, nil
}

// --- labeling state machine operations ---

// MarkLabelingInProgress transitions the task to in_progress and records the
// attempt time. Persisted before the model call so the state is observable.
func (s *Store) MarkLabelingInProgress(taskID, userID string, at time.Time) error {
	res, err := s.db.Exec(`
		UPDATE tasks SET labeling_status = ?, labeling_attempted_at = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		string(LabelingInProgress), fmtTime(at), fmtTime(at), taskID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ReplaceLabels atomically deletes all existing labels of the task, inserts
// the new batch, and transitions the task to completed with a cleared error.
// This is the single transaction boundary of a labeling run.
func (s *Store) ReplaceLabels(taskID string, labels []Label, completedAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM task_labels WHERE task_id = ?`, taskID); err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting existing labels: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO task_labels (id, task_id, label_name, label_category, confidence_score,
			is_primary, is_user_edited, original_name, reasoning, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing label insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range labels {
		if _, err := stmt.Exec(
			l.ID, taskID, l.Name, string(l.Category), l.Confidence,
			boolToInt(l.IsPrimary), boolToInt(l.IsUserEdited), l.OriginalName,
			l.Reasoning, l.Metadata, fmtTime(l.CreatedAt), fmtTime(l.UpdatedAt),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting label %q: %w", l.Name, err)
		}
	}

	if _, err := tx.Exec(`
		UPDATE tasks SET labeling_status = ?, labeling_completed_at = ?, labeling_error = '', updated_at = ?
		WHERE id = ?`,
		string(LabelingCompleted), fmtTime(completedAt), fmtTime(completedAt), taskID,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("updating labeling status: %w", err)
	}

	return tx.Commit()
}

// MarkLabelingFailed transitions the task to failed, recording the message.
// Existing labels from a prior successful run are left untouched.
func (s *Store) MarkLabelingFailed(taskID, message string) error {
	now := fmtTime(time.Now())
	_, err := s.db.Exec(`
		UPDATE tasks SET labeling_status = ?, labeling_error = ?, updated_at = ?
		WHERE id = ?`,
		string(LabelingFailed), message, now, taskID)
	return err
}

// SetLabelingWarning records a warning annotation (best-effort sub-step
// failure) without changing the labeling status.
func (s *Store) SetLabelingWarning(taskID, warning string) error {
	_, err := s.db.Exec(`UPDATE tasks SET labeling_error = ? WHERE id = ?`, warning, taskID)
	return err
}

// SetTaskEmbedding records the vector reference and embedding model tags
// after a successful sync.
func (s *Store) SetTaskEmbedding(taskID, vectorID, model, version string) error {
	_, err := s.db.Exec(`
		UPDATE tasks SET vector_id = ?, embedding_model = ?, embedding_version = ?
		WHERE id = ?`,
		vectorID, model, version, taskID)
	return err
}

// --- scan helpers ---

func scanTask(row *sql.Row) (Task, error) {
	var t Task
	var createdAt, updatedAt, status, priority, labelingStatus string
	var isActive int
	var dueDate, completedAt, labelingAttemptedAt, labelingCompletedAt sql.NullString

	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &status, &priority, &isActive,
		&createdAt, &updatedAt, &dueDate, &completedAt,
		&labelingStatus, &labelingAttemptedAt, &labelingCompletedAt, &t.LabelingError,
		&t.VectorID, &t.EmbeddingModel, &t.EmbeddingVersion)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	return finishTask(t, status, priority, labelingStatus, isActive, createdAt, updatedAt, dueDate, completedAt, labelingAttemptedAt, labelingCompletedAt)
}

func scanTaskRows(rows *sql.Rows) (Task, error) {
	var t Task
	var createdAt, updatedAt, status, priority, labelingStatus string
	var isActive int
	var dueDate, completedAt, labelingAttemptedAt, labelingCompletedAt sql.NullString

	err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &status, &priority, &isActive,
		&createdAt, &updatedAt, &dueDate, &completedAt,
		&labelingStatus, &labelingAttemptedAt, &labelingCompletedAt, &t.LabelingError,
		&t.VectorID, &t.EmbeddingModel, &t.EmbeddingVersion)
	if err != nil {
		return Task{}, err
	}
	return finishTask(t, status, priority, labelingStatus, isActive, createdAt, updatedAt, dueDate, completedAt, labelingAttemptedAt, labelingCompletedAt)
}

func finishTask(t Task, status, priority, labelingStatus string, isActive int,
	createdAt, updatedAt string, dueDate, completedAt, labelingAttemptedAt, labelingCompletedAt sql.NullString) (Task, error) {

	t.Status = TaskStatus(status)
	t.Priority = TaskPriority(priority)
	t.LabelingStatus = LabelingStatus(labelingStatus)
	t.IsActive = isActive != 0

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return Task{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Task{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	if t.DueDate, err = parseTimePtr(dueDate); err != nil {
		return Task{}, fmt.Errorf("parsing due_date: %w", err)
	}
	if t.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return Task{}, fmt.Errorf("parsing completed_at: %w", err)
	}
	if t.LabelingAttemptedAt, err = parseTimePtr(labelingAttemptedAt); err != nil {
		return Task{}, fmt.Errorf("parsing labeling_attempted_at: %w", err)
	}
	if t.LabelingCompletedAt, err = parseTimePtr(labelingCompletedAt); err != nil {
		return Task{}, fmt.Errorf("parsing labeling_completed_at: %w", err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
