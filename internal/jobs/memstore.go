package jobs

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrJobNotFound means the id matches no stored job.
var ErrJobNotFound = errors.New("jobs: job not found")

// MemStore is an in-memory Store for tests and single-process runs.
type MemStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	logs map[string][]LogEntry
	seq  map[string]int // creation order, for List
	next int
}

// NewMemStore creates an empty in-memory job store.
func NewMemStore() *MemStore {
	return &MemStore{
		jobs: make(map[string]*Job),
		logs: make(map[string][]LogEntry),
		seq:  make(map[string]int),
	}
}

func (s *MemStore) Create(job *Job) (string, error) {
	if job == nil {
		return "", errors.New("jobs: job is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if _, ok := s.jobs[cp.ID]; ok {
		return "", errors.New("jobs: duplicate job id")
	}
	if cp.Status == "" {
		cp.Status = StatusPending
	}
	cp.CreatedAt = nowUTC()
	s.next++
	s.seq[cp.ID] = s.next
	s.jobs[cp.ID] = &cp
	return cp.ID, nil
}

func (s *MemStore) Get(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *MemStore) List() ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool {
		return s.seq[out[i].ID] > s.seq[out[k].ID]
	})
	return out, nil
}

func (s *MemStore) SetStatus(id string, st Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Status = st
	j.Error = ""
	switch {
	case st == StatusRunning:
		j.StartedAt = nowUTC()
	case st.Terminal():
		j.EndedAt = nowUTC()
		if st == StatusFailed {
			j.Error = errMsg
		}
	}
	return nil
}

func (s *MemStore) AppendLog(id, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	s.logs[id] = append(s.logs[id], LogEntry{At: nowUTC(), Line: line})
	return nil
}

func (s *MemStore) Log(id string) ([]LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return nil, ErrJobNotFound
	}
	out := make([]LogEntry, len(s.logs[id]))
	copy(out, s.logs[id])
	return out, nil
}

func (s *MemStore) Close() error { return nil }
