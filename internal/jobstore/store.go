// Package jobstore persists finished analysis jobs in SQLite so their
// status survives restarts and in-memory history eviction.
package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HendryAvila/vibe-check/internal/analysis"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Config configures a Store.
type Config struct {
	// DataDir holds jobs.db. Empty disables persistence.
	DataDir string `yaml:"data_dir"`
}

// DefaultConfig returns ~/.vibe-check as the data directory, or an empty
// config when the home directory cannot be resolved.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}
	}
	return Config{DataDir: filepath.Join(home, ".vibe-check")}
}

// Store implements analysis.HistoryStore.
type Store struct {
	db *sql.DB
}

var _ analysis.HistoryStore = (*Store)(nil)

// New opens (creating if needed) the job database under cfg.DataDir.
func New(cfg Config) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("jobstore: data dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("jobstore: create data dir: %w", err)
	}

	db, err := openDB("sqlite", filepath.Join(cfg.DataDir, "jobs.db"))
	if err != nil {
		return nil, fmt.Errorf("jobstore: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("jobstore: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			repository   TEXT NOT NULL,
			pr_number    INTEGER NOT NULL,
			status       TEXT NOT NULL,
			queued_at    INTEGER NOT NULL,
			completed_at INTEGER NOT NULL DEFAULT 0,
			data         TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_completed ON jobs(completed_at);
		CREATE INDEX IF NOT EXISTS idx_jobs_repo_pr ON jobs(repository, pr_number);
	`)
	return err
}

// SaveJob inserts or replaces a job.
func (s *Store) SaveJob(ctx context.Context, job analysis.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobstore: encode job %s: %w", job.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, repository, pr_number, status, queued_at, completed_at, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			data = excluded.data`,
		job.ID, job.Repository, job.PRNumber, string(job.Status),
		unixMilli(job.QueuedAt), unixMilli(job.CompletedAt), string(data),
	)
	if err != nil {
		return fmt.Errorf("jobstore: save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads a job. The bool is false when no job has that id.
func (s *Store) GetJob(ctx context.Context, jobID string) (analysis.Job, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM jobs WHERE id = ?`, jobID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return analysis.Job{}, false, nil
	}
	if err != nil {
		return analysis.Job{}, false, fmt.Errorf("jobstore: get job %s: %w", jobID, err)
	}
	var job analysis.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return analysis.Job{}, false, fmt.Errorf("jobstore: decode job %s: %w", jobID, err)
	}
	return job, true, nil
}

// PurgeBefore deletes finished jobs completed before cutoff. Jobs that
// never completed are kept.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE completed_at > 0 AND completed_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("jobstore: purge: %w", err)
	}
	return res.RowsAffected()
}

// RecentJobs returns up to limit jobs for a repository, newest first.
func (s *Store) RecentJobs(ctx context.Context, repository string, limit int) ([]analysis.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM jobs WHERE repository = ? ORDER BY queued_at DESC LIMIT ?`, repository, limit)
	if err != nil {
		return nil, fmt.Errorf("jobstore: recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []analysis.Job
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("jobstore: scan: %w", err)
		}
		var job analysis.Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			return nil, fmt.Errorf("jobstore: decode: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
