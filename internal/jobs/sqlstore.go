package jobs

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	meeting_id TEXT NOT NULL,
	stage      TEXT NOT NULL DEFAULT '',
	refresh    INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	started_at TEXT,
	ended_at   TEXT,
	seq        INTEGER
);
CREATE TABLE IF NOT EXISTS job_log (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL REFERENCES jobs(id),
	at     TEXT NOT NULL,
	line   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS job_log_job ON job_log(job_id);
`

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and applies the schema.
// Creates the parent directory (e.g. .plenum) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("jobs: create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("jobs: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("jobs: ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("jobs: create schema: %w", err)
	}
	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("jobs: set schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("jobs: read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("jobs: unknown schema version %d", v)
	}
	return nil
}

// Close closes the database connection.
func (s *SqlStore) Close() error { return s.db.Close() }

func (s *SqlStore) Create(job *Job) (string, error) {
	if job == nil {
		return "", errors.New("jobs: job is nil")
	}
	id := job.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := job.Status
	if status == "" {
		status = StatusPending
	}
	refresh := 0
	if job.Refresh {
		refresh = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO jobs(id, meeting_id, stage, refresh, status, created_at, seq)
		 VALUES(?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM jobs))`,
		id, job.MeetingID, job.Stage, refresh, string(status), nowUTC(),
	)
	if err != nil {
		return "", fmt.Errorf("jobs: insert job: %w", err)
	}
	return id, nil
}

func (s *SqlStore) Get(id string) (*Job, error) {
	row := s.db.QueryRow(
		`SELECT id, meeting_id, stage, refresh, status, error, created_at, started_at, ended_at
		 FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: get job: %w", err)
	}
	return j, nil
}

func (s *SqlStore) List() ([]*Job, error) {
	rows, err := s.db.Query(
		`SELECT id, meeting_id, stage, refresh, status, error, created_at, started_at, ended_at
		 FROM jobs ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("jobs: list jobs: %w", err)
	}
	defer rows.Close()
	var list []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("jobs: scan job: %w", err)
		}
		list = append(list, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: list jobs: %w", err)
	}
	return list, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var refresh int
	var status string
	var startedAt, endedAt sql.NullString
	err := row.Scan(&j.ID, &j.MeetingID, &j.Stage, &refresh, &status,
		&j.Error, &j.CreatedAt, &startedAt, &endedAt)
	if err != nil {
		return nil, err
	}
	j.Refresh = refresh == 1
	j.Status = Status(status)
	j.StartedAt = startedAt.String
	j.EndedAt = endedAt.String
	return &j, nil
}

func (s *SqlStore) SetStatus(id string, st Status, errMsg string) error {
	var res sql.Result
	var err error
	switch {
	case st == StatusRunning:
		res, err = s.db.Exec(
			"UPDATE jobs SET status=?, error='', started_at=? WHERE id=?",
			string(st), nowUTC(), id)
	case st == StatusFailed:
		res, err = s.db.Exec(
			"UPDATE jobs SET status=?, error=?, ended_at=? WHERE id=?",
			string(st), errMsg, nowUTC(), id)
	case st.Terminal():
		res, err = s.db.Exec(
			"UPDATE jobs SET status=?, error='', ended_at=? WHERE id=?",
			string(st), nowUTC(), id)
	default:
		res, err = s.db.Exec(
			"UPDATE jobs SET status=?, error='' WHERE id=?", string(st), id)
	}
	if err != nil {
		return fmt.Errorf("jobs: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobs: rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *SqlStore) AppendLog(id, line string) error {
	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM jobs WHERE id = ?", id).Scan(&exists); err != nil {
		return fmt.Errorf("jobs: check job: %w", err)
	}
	if exists == 0 {
		return ErrJobNotFound
	}
	if _, err := s.db.Exec(
		"INSERT INTO job_log(job_id, at, line) VALUES(?, ?, ?)",
		id, nowUTC(), line,
	); err != nil {
		return fmt.Errorf("jobs: append log: %w", err)
	}
	return nil
}

func (s *SqlStore) Log(id string) ([]LogEntry, error) {
	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM jobs WHERE id = ?", id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("jobs: check job: %w", err)
	}
	if exists == 0 {
		return nil, ErrJobNotFound
	}
	rows, err := s.db.Query(
		"SELECT at, line FROM job_log WHERE job_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("jobs: read log: %w", err)
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.At, &e.Line); err != nil {
			return nil, fmt.Errorf("jobs: scan log: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: read log: %w", err)
	}
	return out, nil
}
