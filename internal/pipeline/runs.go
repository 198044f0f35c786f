package pipeline

import (
	"database/sql"
	"time"
)

// RunResult summarizes one discovery run.
type RunResult struct {
	Object      string    `json:"object"`
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  int64     `json:"duration_ms"`
	DevicesSeen int       `json:"devices_seen"`
	Matched     int       `json:"matched"`
	Added       int       `json:"added"`
	Pruned      int       `json:"pruned"`
	Error       string    `json:"error,omitempty"`
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// RunRepository persists discovery run history.
type RunRepository struct {
	reader *sql.DB
	writer *sql.DB
}

func NewRunRepository(dbPair DBPair) *RunRepository {
	return &RunRepository{reader: dbPair.Reader(), writer: dbPair.Writer()}
}

const runTimestampLayout = "2006-01-02T15:04:05.000Z"

// Insert records a finished run.
func (r *RunRepository) Insert(run RunResult) error {
	var runErr any
	if run.Error != "" {
		runErr = run.Error
	}
	_, err := r.writer.Exec(`
		INSERT INTO discovery_runs (run_id, started_at, duration_ms, devices_seen, matched, added, pruned, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.StartedAt.UTC().Format(runTimestampLayout), run.DurationMs, run.DevicesSeen, run.Matched, run.Added, run.Pruned, runErr)
	return err
}

// Latest returns up to limit runs, newest first.
func (r *RunRepository) Latest(limit int) ([]RunResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.reader.Query(`
		SELECT run_id, started_at, duration_ms, devices_seen, matched, added, pruned, error
		FROM discovery_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]RunResult, 0)
	for rows.Next() {
		var run RunResult
		var startedAt string
		var runErr sql.NullString
		if err := rows.Scan(&run.RunID, &startedAt, &run.DurationMs, &run.DevicesSeen, &run.Matched, &run.Added, &run.Pruned, &runErr); err != nil {
			return nil, err
		}
		run.Object = "discovery_run"
		run.StartedAt, _ = time.Parse(runTimestampLayout, startedAt)
		run.Error = runErr.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
