package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"plenum/internal/logging"
)

// RunFunc performs the work of one job. It runs on a background goroutine;
// the job's status and log are managed by the Runner around it.
type RunFunc func(ctx context.Context, job *Job) error

// Runner starts jobs in the background and records their lifecycle in a
// Store. Clients poll the store for status and log output.
type Runner struct {
	store Store
	run   RunFunc
	log   *slog.Logger
	wg    sync.WaitGroup
}

// NewRunner creates a runner that executes jobs with run and tracks them
// in store.
func NewRunner(store Store, run RunFunc) *Runner {
	return &Runner{store: store, run: run, log: logging.New("jobs")}
}

// Start registers the job and launches it in the background, returning the
// job ID immediately. Errors from Start are registration errors only; the
// run's own outcome lands in the store.
func (r *Runner) Start(ctx context.Context, job *Job) (string, error) {
	id, err := r.store.Create(job)
	if err != nil {
		return "", err
	}
	job.ID = id

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.execute(ctx, job)
	}()
	return id, nil
}

func (r *Runner) execute(ctx context.Context, job *Job) {
	if err := r.store.SetStatus(job.ID, StatusRunning, ""); err != nil {
		r.log.Error("mark job running", "job", job.ID, "error", err)
		return
	}
	what := "full run"
	if job.Stage != "" {
		what = "stage " + job.Stage
	}
	_ = r.store.AppendLog(job.ID, fmt.Sprintf("meeting %s: %s started", job.MeetingID, what))

	if err := r.run(ctx, job); err != nil {
		_ = r.store.AppendLog(job.ID, "failed: "+err.Error())
		if serr := r.store.SetStatus(job.ID, StatusFailed, err.Error()); serr != nil {
			r.log.Error("mark job failed", "job", job.ID, "error", serr)
		}
		r.log.Warn("job failed", "job", job.ID, "meeting", job.MeetingID, "error", err)
		return
	}
	_ = r.store.AppendLog(job.ID, "completed")
	if err := r.store.SetStatus(job.ID, StatusSucceeded, ""); err != nil {
		r.log.Error("mark job succeeded", "job", job.ID, "error", err)
	}
}

// Wait blocks until every started job has finished. Intended for shutdown
// and tests.
func (r *Runner) Wait() { r.wg.Wait() }
