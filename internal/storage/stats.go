package storage

import (
	"fmt"
)

// TaskStats aggregates a user's tasks. ByStatus and ByPriority cover active
// tasks only; Total counts soft-deleted rows too.
type TaskStats struct {
	Total      int
	Active     int
	ByStatus   map[string]int
	ByPriority map[string]int
}

// GetTaskStats returns task counts for the user.
func (s *Store) GetTaskStats(userID string) (TaskStats, error) {
	stats := TaskStats{
		ByStatus:   make(map[string]int),
		ByPriority: make(map[string]int),
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE user_id = ?`, userID).
		Scan(&stats.Total); err != nil {
		return TaskStats{}, fmt.Errorf("counting tasks: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE user_id = ? AND is_active = 1`, userID).
		Scan(&stats.Active); err != nil {
		return TaskStats{}, fmt.Errorf("counting active tasks: %w", err)
	}

	if err := s.countGrouped(`SELECT status, COUNT(*) FROM tasks
		WHERE user_id = ? AND is_active = 1 GROUP BY status`, userID, stats.ByStatus); err != nil {
		return TaskStats{}, fmt.Errorf("grouping by status: %w", err)
	}
	if err := s.countGrouped(`SELECT priority, COUNT(*) FROM tasks
		WHERE user_id = ? AND is_active = 1 GROUP BY priority`, userID, stats.ByPriority); err != nil {
		return TaskStats{}, fmt.Errorf("grouping by priority: %w", err)
	}

	return stats, nil
}

func (s *Store) countGrouped(query, userID string, dest map[string]int) error {
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		dest[key] = count
	}
	return rows.Err()
}

// LabelCount is one entry of the most-common-labels ranking.
type LabelCount struct {
	Name          string
	Category      string
	Count         int
	AvgConfidence float64
}

// LabelStats aggregates the labels across a user's tasks.
type LabelStats struct {
	TotalLabels int
	ByCategory  map[string]int
	MostCommon  []LabelCount
}

// mostCommonLimit caps the most-common-labels ranking.
const mostCommonLimit = 20

// GetLabelStats returns label counts for the user: total, per category, and
// the most common name/category pairs with their average confidence.
func (s *Store) GetLabelStats(userID string) (LabelStats, error) {
	stats := LabelStats{ByCategory: make(map[string]int)}

	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM task_labels l JOIN tasks t ON t.id = l.task_id
		WHERE t.user_id = ?`, userID).Scan(&stats.TotalLabels); err != nil {
		return LabelStats{}, fmt.Errorf("counting labels: %w", err)
	}

	if err := s.countGrouped(`
		SELECT l.label_category, COUNT(*) FROM task_labels l JOIN tasks t ON t.id = l.task_id
		WHERE t.user_id = ? GROUP BY l.label_category`, userID, stats.ByCategory); err != nil {
		return LabelStats{}, fmt.Errorf("grouping by category: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT l.label_name, l.label_category, COUNT(*) AS n, AVG(l.confidence_score)
		FROM task_labels l JOIN tasks t ON t.id = l.task_id
		WHERE t.user_id = ?
		GROUP BY l.label_name, l.label_category
		ORDER BY n DESC, l.label_name ASC
		LIMIT ?`, userID, mostCommonLimit)
	if err != nil {
		return LabelStats{}, fmt.Errorf("ranking labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Name, &lc.Category, &lc.Count, &lc.AvgConfidence); err != nil {
			return LabelStats{}, err
		}
		stats.MostCommon = append(stats.MostCommon, lc)
	}
	if err := rows.Err(); err != nil {
		return LabelStats{}, err
	}

	return stats, nil
}
