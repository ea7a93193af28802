package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps checkpoint state in an embedded SQLite database, one row
// per work item. The web backend uses it instead of the JSON file because
// read-modify-write-whole-file persistence loses updates when more than one
// process touches the same job.
type SQLiteStore struct {
	db     *sql.DB
	jobKey string
}

// OpenSQLite opens (creating if needed) the checkpoint database under dir.
// All jobs share one database file; rows are scoped by job key.
func OpenSQLite(dir, jobKey string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}

	path := filepath.Join(dir, "checkpoints.db")
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, jobKey: jobKey}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	ddl := `
CREATE TABLE IF NOT EXISTS jobs (
    job_key TEXT PRIMARY KEY,
    total_items INTEGER NOT NULL,
    done INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS work_items (
    job_key TEXT NOT NULL,
    item_id TEXT NOT NULL,
    status TEXT NOT NULL,
    output TEXT,
    chars INTEGER NOT NULL DEFAULT 0,
    reason TEXT,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (job_key, item_id)
);
CREATE INDEX IF NOT EXISTS idx_items_job ON work_items(job_key);
`
	_, err := s.db.Exec(ddl)
	return err
}

func (s *SQLiteStore) Initialize(expectedItems int) (JobState, error) {
	var total int
	var done bool
	var started, updated time.Time

	row := s.db.QueryRow(
		`SELECT total_items, done, started_at, updated_at FROM jobs WHERE job_key = ?`, s.jobKey)
	err := row.Scan(&total, &done, &started, &updated)

	switch {
	case err == nil && total == expectedItems && !done:
		// Resumable: collect completed items whose output still exists.
		return s.snapshot(expectedItems, started, updated)
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		// Unreadable state degrades to a fresh start, not a fatal error.
		fallthrough
	default:
		return s.reset(expectedItems)
	}
}

func (s *SQLiteStore) reset(expectedItems int) (JobState, error) {
	now := time.Now()
	tx, err := s.db.Begin()
	if err != nil {
		return JobState{}, fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM work_items WHERE job_key = ?`, s.jobKey); err != nil {
		return JobState{}, fmt.Errorf("clear items: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO jobs (job_key, total_items, done, started_at, updated_at)
		 VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT(job_key) DO UPDATE SET total_items = ?, done = 0, started_at = ?, updated_at = ?`,
		s.jobKey, expectedItems, now, now, expectedItems, now, now); err != nil {
		return JobState{}, fmt.Errorf("reset job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return JobState{}, fmt.Errorf("commit reset: %w", err)
	}

	return JobState{
		JobKey:     s.jobKey,
		TotalItems: expectedItems,
		StartedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *SQLiteStore) snapshot(total int, started, updated time.Time) (JobState, error) {
	rows, err := s.db.Query(
		`SELECT item_id, output FROM work_items WHERE job_key = ? AND status = ? ORDER BY item_id`,
		s.jobKey, string(StatusDone))
	if err != nil {
		return JobState{}, fmt.Errorf("list done items: %w", err)
	}
	defer rows.Close()

	st := JobState{
		JobKey:     s.jobKey,
		TotalItems: total,
		StartedAt:  started,
		UpdatedAt:  updated,
	}
	for rows.Next() {
		var id string
		var output sql.NullString
		if err := rows.Scan(&id, &output); err != nil {
			return JobState{}, fmt.Errorf("scan item: %w", err)
		}
		if outputExists(output.String) {
			st.Completed = append(st.Completed, id)
		}
	}
	return st, rows.Err()
}

func (s *SQLiteStore) IsDone(id string) bool {
	_, ok := s.Output(id)
	return ok
}

func (s *SQLiteStore) Output(id string) (string, bool) {
	var output sql.NullString
	row := s.db.QueryRow(
		`SELECT output FROM work_items WHERE job_key = ? AND item_id = ? AND status = ?`,
		s.jobKey, id, string(StatusDone))
	if err := row.Scan(&output); err != nil {
		return "", false
	}
	if !outputExists(output.String) {
		return "", false
	}
	return output.String, true
}

func (s *SQLiteStore) MarkDone(id, outputPath string, chars int) error {
	return s.upsert(Record{ID: id, Status: StatusDone, Output: outputPath, Chars: chars})
}

func (s *SQLiteStore) MarkFailed(id, reason string) error {
	return s.upsert(Record{ID: id, Status: StatusFailed, Reason: reason})
}

func (s *SQLiteStore) upsert(rec Record) error {
	now := time.Now()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin mark: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO work_items (job_key, item_id, status, output, chars, reason, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_key, item_id) DO UPDATE SET status = ?, output = ?, chars = ?, reason = ?, updated_at = ?`,
		s.jobKey, rec.ID, string(rec.Status), rec.Output, rec.Chars, rec.Reason, now,
		string(rec.Status), rec.Output, rec.Chars, rec.Reason, now); err != nil {
		return fmt.Errorf("mark item: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE jobs SET updated_at = ? WHERE job_key = ?`, now, s.jobKey); err != nil {
		return fmt.Errorf("touch job: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) MarkJobComplete() error {
	_, err := s.db.Exec(
		`UPDATE jobs SET done = 1, updated_at = ? WHERE job_key = ?`, time.Now(), s.jobKey)
	return err
}

func (s *SQLiteStore) Cleanup() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin cleanup: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM work_items WHERE job_key = ?`, s.jobKey); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM jobs WHERE job_key = ?`, s.jobKey); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
