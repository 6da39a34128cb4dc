package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Run struct {
	ID          string            `json:"id"`
	Pipeline    string            `json:"pipeline"`
	Mode        string            `json:"mode"`
	Status      string            `json:"status"`
	Inputs      map[string]string `json:"inputs,omitempty"`
	Summary     string            `json:"summary,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// TaskRecord is one finished task of a run. Structured holds the validated
// JSON output when the task declared a schema.
type TaskRecord struct {
	RunID        string          `json:"run_id"`
	Seq          int             `json:"seq"`
	TaskID       string          `json:"task_id"`
	AgentID      string          `json:"agent_id"`
	Status       string          `json:"status"`
	Kind         string          `json:"kind,omitempty"`
	Attempts     int             `json:"attempts"`
	Backend      string          `json:"backend,omitempty"`
	BackendIndex int             `json:"backend_index"`
	Raw          string          `json:"raw,omitempty"`
	Structured   json.RawMessage `json:"structured,omitempty"`
	Error        string          `json:"error,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}

const runColumns = `id, pipeline, mode, status, inputs, summary, started_at, completed_at`

func scanRun(scanner interface {
	Scan(dest ...any) error
}) (*Run, error) {
	r := &Run{}
	var inputs, summary sql.NullString
	err := scanner.Scan(&r.ID, &r.Pipeline, &r.Mode, &r.Status, &inputs, &summary, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if inputs.Valid && inputs.String != "" {
		if err := json.Unmarshal([]byte(inputs.String), &r.Inputs); err != nil {
			return nil, fmt.Errorf("decode inputs of run %s: %w", r.ID, err)
		}
	}
	r.Summary = summary.String
	return r, nil
}

func (s *Store) SaveRun(r *Run) error {
	inputs, err := json.Marshal(r.Inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err = s.db.Exec(`
		INSERT INTO runs (id, pipeline, mode, status, inputs, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			inputs = excluded.inputs`,
		r.ID, r.Pipeline, r.Mode, r.Status, string(inputs), r.StartedAt)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// FinishRun sets the final status and summary of a run.
func (s *Store) FinishRun(id, status, summary string) error {
	res, err := s.db.Exec(`
		UPDATE runs
		SET status = ?, summary = ?, completed_at = ?
		WHERE id = ?`, status, summary, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: run %s not found", id)
	}
	return nil
}

func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns all of them.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *Store) DeleteRun(id string) error {
	_, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

// SaveTaskResult appends a task record to its run, numbering it after the
// run's existing records.
func (s *Store) SaveTaskResult(rec *TaskRecord) error {
	var structured any
	if len(rec.Structured) > 0 {
		structured = string(rec.Structured)
	}
	err := s.db.QueryRow(`
		INSERT INTO task_results (run_id, seq, task_id, agent_id, status, kind, attempts,
			backend, backend_index, raw, structured, error, started_at, finished_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM task_results WHERE run_id = ?),
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq`,
		rec.RunID, rec.RunID, rec.TaskID, rec.AgentID, rec.Status, rec.Kind, rec.Attempts,
		rec.Backend, rec.BackendIndex, rec.Raw, structured, rec.Error, rec.StartedAt, rec.FinishedAt,
	).Scan(&rec.Seq)
	if err != nil {
		return fmt.Errorf("save task result: %w", err)
	}
	return nil
}

func (s *Store) ListTaskResults(runID string) ([]TaskRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_id, seq, task_id, agent_id, status, kind, attempts, backend, backend_index,
		       raw, structured, error, started_at, finished_at
		FROM task_results WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list task results: %w", err)
	}
	defer rows.Close()

	var records []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var kind, backend, raw, structured, errText sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.TaskID, &rec.AgentID, &rec.Status, &kind,
			&rec.Attempts, &backend, &rec.BackendIndex, &raw, &structured, &errText,
			&rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		rec.Kind = kind.String
		rec.Backend = backend.String
		rec.Raw = raw.String
		rec.Error = errText.String
		if structured.Valid && structured.String != "" {
			rec.Structured = json.RawMessage(structured.String)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
