package store

import (
	"fmt"
	"time"
)

type Feedback struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	TaskID    string    `json:"task_id"`
	Iteration int       `json:"iteration"`
	Text      string    `json:"feedback"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) SaveFeedback(runID, taskID string, iteration int, text string) error {
	_, err := s.db.Exec(`
		INSERT INTO training_feedback (run_id, task_id, iteration, feedback)
		VALUES (?, ?, ?, ?)`, runID, taskID, iteration, text)
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the feedback given for a task, oldest first.
func (s *Store) ListFeedback(taskID string) ([]Feedback, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, task_id, iteration, feedback, created_at
		FROM training_feedback WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []Feedback
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.RunID, &f.TaskID, &f.Iteration, &f.Text, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) ClearFeedback() error {
	if _, err := s.db.Exec(`DELETE FROM training_feedback`); err != nil {
		return fmt.Errorf("clear feedback: %w", err)
	}
	return nil
}
