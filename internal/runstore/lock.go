package runstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrLocked means another writer holds this meeting's run directory.
var ErrLocked = errors.New("runstore: run is locked by another writer")

// Lock is an exclusive single-writer lock on one run directory. Concurrent
// reads of finalized artifacts never need it; anything that writes does.
type Lock struct {
	path  string
	owner string
}

// AcquireLock takes the run's writer lock. Returns ErrLocked when a lock
// file already exists.
func AcquireLock(r *Run) (*Lock, error) {
	path := filepath.Join(r.Dir, ".lock")
	owner := fmt.Sprintf("%s pid=%d", uuid.NewString(), os.Getpid())

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			holder, _ := os.ReadFile(path)
			return nil, fmt.Errorf("%w (held by %s)", ErrLocked, string(holder))
		}
		return nil, fmt.Errorf("runstore: acquire lock: %w", err)
	}
	_, werr := f.WriteString(owner)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("runstore: write lock: %w", errors.Join(werr, cerr))
	}
	return &Lock{path: path, owner: owner}, nil
}

// Release removes the lock file. Safe to call once per acquired lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("runstore: release lock: %w", err)
	}
	return nil
}
