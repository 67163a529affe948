package gateway

import (
	"context"
	"fmt"
	"sync"
)

// StubGateway returns pre-authored responses keyed by "phase" or
// "phase:role". Deterministic: the same script and the same call sequence
// produce the same outputs, which makes full pipeline runs reproducible in
// tests. Thread-safe for parallel per-role stages.
type StubGateway struct {
	mu        sync.Mutex
	responses map[string][]string // consumed front-to-back; last entry repeats
	cursor    map[string]int
	calls     int
	log       []Request
}

// NewStubGateway creates an empty stub. Use Script to add responses.
func NewStubGateway() *StubGateway {
	return &StubGateway{
		responses: make(map[string][]string),
		cursor:    make(map[string]int),
	}
}

func (s *StubGateway) Name() string { return "stub" }

// Script registers the response sequence for a key ("phase" or
// "phase:role"). Calls beyond the sequence repeat the last entry.
func (s *StubGateway) Script(key string, responses ...string) *StubGateway {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[key] = append(s.responses[key], responses...)
	return s
}

// Generate looks up "phase:role" first, then "phase".
func (s *StubGateway) Generate(_ context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.log = append(s.log, req)

	for _, key := range []string{req.Phase + ":" + req.Role, req.Phase} {
		seq, ok := s.responses[key]
		if !ok {
			continue
		}
		i := s.cursor[key]
		if i >= len(seq) {
			i = len(seq) - 1
		} else {
			s.cursor[key] = i + 1
		}
		return seq[i], nil
	}
	return "", fmt.Errorf("stub: no response scripted for phase %q role %q", req.Phase, req.Role)
}

// Calls returns how many Generate calls the stub served.
func (s *StubGateway) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Requests returns a copy of every request seen, in call order.
func (s *StubGateway) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.log))
	copy(out, s.log)
	return out
}

// Reset clears cursors and counters but keeps the script.
func (s *StubGateway) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = make(map[string]int)
	s.calls = 0
	s.log = nil
}
