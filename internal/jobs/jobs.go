// Package jobs tracks background meeting runs. A job records which meeting
// (and optionally which single stage) a run covers, its lifecycle status,
// and an append-only log that clients poll while the run is in flight.
package jobs

import "time"

// DefaultDBPath is the default relative path for the SQLite job DB.
// Open() creates the parent dir (e.g. .plenum).
const DefaultDBPath = ".plenum/jobs.db"

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is one background run. Stage is empty for a full pipeline run.
type Job struct {
	ID        string `json:"id"` // uuid
	MeetingID string `json:"meeting_id"`
	Stage     string `json:"stage,omitempty"`
	Refresh   bool   `json:"refresh,omitempty"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	StartedAt string `json:"started_at,omitempty"`
	EndedAt   string `json:"ended_at,omitempty"`
}

// LogEntry is one appended log line.
type LogEntry struct {
	At   string `json:"at"`
	Line string `json:"line"`
}

// Store is the job persistence facade. Implementations are in-memory or
// SQLite; callers use only this interface.
type Store interface {
	// Create inserts the job, assigning CreatedAt and, when empty, a
	// fresh uuid ID and StatusPending. Returns the job ID.
	Create(job *Job) (string, error)
	// Get returns the job, or nil when no such job exists.
	Get(id string) (*Job, error)
	// List returns all jobs, newest first.
	List() ([]*Job, error)
	// SetStatus transitions the job, stamping StartedAt on running and
	// EndedAt on a terminal status. errMsg is kept only for failed.
	SetStatus(id string, st Status, errMsg string) error
	// AppendLog appends one timestamped line to the job's log.
	AppendLog(id, line string) error
	// Log returns the job's log lines in append order.
	Log(id string) ([]LogEntry, error)
	Close() error
}

func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
