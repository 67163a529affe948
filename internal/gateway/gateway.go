// Package gateway abstracts the generation backend the meeting pipeline
// dictates prompts to. The backend is an unreliable black box: it can be
// slow, drop connections, or return text that only approximately contains
// the requested structure. Callers distinguish transport failures (retried
// here with backoff) from malformed-output failures (repaired upstream via
// re-prompting).
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Request is one generation call. Role and Phase tag the call for audit
// logging and stub routing; they carry no semantics for real backends.
type Request struct {
	Meeting       string
	Role          string // role id or "chair", "secretary", "blackboard"
	Phase         string // pipeline stage key
	PromptID      string // template identity, for the audit log
	PromptVersion string
	System        string
	Prompt        string
	SchemaHint    string // appended structural guidance, optional
	Temperature   float64
	MaxTokens     int
}

// Gateway produces raw text for a prompt. Implementations own their
// timeout and transport-retry policy; they never parse or validate output.
type Gateway interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// TransportError marks a failure in reaching or reading the backend, as
// opposed to the backend answering with unusable content. Transport
// failures are retryable; content failures need a repair re-prompt.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("gateway transport: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
