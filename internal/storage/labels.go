package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/whatnow/internal/taxonomy"
)

const labelColumns = `id, task_id, label_name, label_category, confidence_score,
	is_primary, is_user_edited, original_name, reasoning, metadata, created_at, updated_at`

// GetTaskLabels returns all labels of a task, highest confidence first.
func (s *Store) GetTaskLabels(taskID string) ([]Label, error) {
	return s.queryLabels(`SELECT `+labelColumns+` FROM task_labels
		WHERE task_id = ? ORDER BY confidence_score DESC, created_at ASC`, taskID)
}

// GetPrimaryLabels returns only the primary labels of a task.
func (s *Store) GetPrimaryLabels(taskID string) ([]Label, error) {
	return s.queryLabels(`SELECT `+labelColumns+` FROM task_labels
		WHERE task_id = ? AND is_primary = 1 ORDER BY confidence_score DESC, created_at ASC`, taskID)
}

// GetLabelForUser returns a label only if its task is owned by userID.
func (s *Store) GetLabelForUser(labelID, userID string) (Label, error) {
	row := s.db.QueryRow(`
		SELECT l.id, l.task_id, l.label_name, l.label_category, l.confidence_score,
			l.is_primary, l.is_user_edited, l.original_name, l.reasoning, l.metadata,
			l.created_at, l.updated_at
		FROM task_labels l JOIN tasks t ON t.id = l.task_id
		WHERE l.id = ? AND t.user_id = ?`, labelID, userID)

	l, err := scanLabelRow(row.Scan)
	if err == sql.ErrNoRows {
		return Label{}, ErrNotFound
	}
	return l, err
}

// LabelEdit carries user-initiated changes to a single label. Nil fields are
// left unchanged.
type LabelEdit struct {
	Name       *string
	Category   *taxonomy.Category
	Confidence *float64
}

// EditLabel applies a user edit to a label owned (via its task) by userID.
// On the first edit the machine-generated name is preserved in original_name
// and the user-edited flag is set; original_name is never overwritten after.
func (s *Store) EditLabel(labelID, userID string, edit LabelEdit) (Label, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Label{}, fmt.Errorf("beginning edit transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT l.id, l.task_id, l.label_name, l.label_category, l.confidence_score,
			l.is_primary, l.is_user_edited, l.original_name, l.reasoning, l.metadata,
			l.created_at, l.updated_at
		FROM task_labels l JOIN tasks t ON t.id = l.task_id
		WHERE l.id = ? AND t.user_id = ?`, labelID, userID)

	l, err := scanLabelRow(row.Scan)
	if err == sql.ErrNoRows {
		return Label{}, ErrNotFound
	}
	if err != nil {
		return Label{}, err
	}

	if !l.IsUserEdited {
		l.OriginalName = l.Name
		l.IsUserEdited = true
	}
	if edit.Name != nil {
		l.Name = *edit.Name
	}
	if edit.Category != nil {
		if !edit.Category.Valid() {
			return Label{}, fmt.Errorf("unknown category %q", *edit.Category)
		}
		l.Category = *edit.Category
	}
	if edit.Confidence != nil {
		if *edit.Confidence < 0 || *edit.Confidence > 1 {
			return Label{}, fmt.Errorf("confidence %.3f out of range", *edit.Confidence)
		}
		l.Confidence = *edit.Confidence
	}
	l.UpdatedAt = time.Now().UTC()

	if _, err := tx.Exec(`
		UPDATE task_labels SET label_name = ?, label_category = ?, confidence_score = ?,
			is_user_edited = ?, original_name = ?, updated_at = ?
		WHERE id = ?`,
		l.Name, string(l.Category), l.Confidence,
		boolToInt(l.IsUserEdited), l.OriginalName, fmtTime(l.UpdatedAt), l.ID,
	); err != nil {
		return Label{}, fmt.Errorf("updating label: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Label{}, err
	}
	return l, nil
}

// DeleteLabelForUser removes a label if its task is owned by userID.
func (s *Store) DeleteLabelForUser(labelID, userID string) error {
	res, err := s.db.Exec(`
		DELETE FROM task_labels WHERE id = ? AND task_id IN
			(SELECT id FROM tasks WHERE user_id = ?)`, labelID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// LabelSearch filters tasks by their labels.
type LabelSearch struct {
	Names         []string
	Categories    []taxonomy.Category
	MinConfidence *float64
	PrimaryOnly   bool
}

// SearchTasksByLabel returns distinct tasks owned by userID that carry at
// least one label matching all supplied criteria.
func (s *Store) SearchTasksByLabel(userID string, f LabelSearch) ([]Task, error) {
	where := []string{"t.user_id = ?"}
	args := []any{userID}

	if len(f.Names) > 0 {
		where = append(where, "l.label_name IN (?"+strings.Repeat(",?", len(f.Names)-1)+")")
		for _, n := range f.Names {
			args = append(args, n)
		}
	}
	if len(f.Categories) > 0 {
		where = append(where, "l.label_category IN (?"+strings.Repeat(",?", len(f.Categories)-1)+")")
		for _, c := range f.Categories {
			args = append(args, string(c))
		}
	}
	if f.MinConfidence != nil {
		where = append(where, "l.confidence_score >= ?")
		args = append(args, *f.MinConfidence)
	}
	if f.PrimaryOnly {
		where = append(where, "l.is_primary = 1")
	}

	query := `SELECT DISTINCT t.id, t.user_id, t.title, t.description, t.status, t.priority, t.is_active,
			t.created_at, t.updated_at, t.due_date, t.completed_at,
			t.labeling_status, t.labeling_attempted_at, t.labeling_completed_at, t.labeling_error,
			t.vector_id, t.embedding_model, t.embedding_version
		FROM tasks t JOIN task_labels l ON l.task_id = t.id
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY t.created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching tasks by label: %w", err)
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
	return tasks, rows.Err()
}

func (s *Store) queryLabels(query string, args ...any) ([]Label, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying labels: %w", err)
	}
	defer rows.Close()

	var labels []Label
	for rows.Next() {
		l, err := scanLabelRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

func scanLabelRow(scan func(...any) error) (Label, error) {
	var l Label
	var category, createdAt, updatedAt string
	var isPrimary, isUserEdited int

	err := scan(&l.ID, &l.TaskID, &l.Name, &category, &l.Confidence,
		&isPrimary, &isUserEdited, &l.OriginalName, &l.Reasoning, &l.Metadata,
		&createdAt, &updatedAt)
	if err != nil {
		return Label{}, err
	}

	l.Category = taxonomy.Category(category)
	l.IsPrimary = isPrimary != 0
	l.IsUserEdited = isUserEdited != 0
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return Label{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Label{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return l, nil
}
