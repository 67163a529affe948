package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditRecord is one line of the prompt-run JSONL log: enough to replay or
// review every generation call a meeting made.
type AuditRecord struct {
	Timestamp     string `json:"ts"`
	Meeting       string `json:"meeting_id"`
	Phase         string `json:"phase"`
	Role          string `json:"role"`
	PromptID      string `json:"prompt_id,omitempty"`
	PromptVersion string `json:"prompt_version,omitempty"`
	Gateway       string `json:"gateway"`
	PromptChars   int    `json:"prompt_chars"`
	OutputChars   int    `json:"output_chars"`
	Error         string `json:"error,omitempty"`
	System        string `json:"system_prompt"`
	Prompt        string `json:"user_prompt"`
	Output        string `json:"output_text"`
}

// Audited wraps a Gateway and appends one JSONL record per call to a file.
// Failing to write the log never fails the generation call.
type Audited struct {
	Inner Gateway
	Path  string

	mu sync.Mutex
}

// NewAudited wraps gw, logging to path.
func NewAudited(gw Gateway, path string) *Audited {
	return &Audited{Inner: gw, Path: path}
}

func (a *Audited) Name() string { return a.Inner.Name() }

func (a *Audited) Generate(ctx context.Context, req Request) (string, error) {
	out, err := a.Inner.Generate(ctx, req)

	rec := AuditRecord{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Meeting:       req.Meeting,
		Phase:         req.Phase,
		Role:          req.Role,
		PromptID:      req.PromptID,
		PromptVersion: req.PromptVersion,
		Gateway:       a.Inner.Name(),
		PromptChars:   len(req.Prompt),
		OutputChars:   len(out),
		System:        req.System,
		Prompt:        req.Prompt,
		Output:        out,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	a.append(rec)

	return out, err
}

func (a *Audited) append(rec AuditRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, ferr := os.OpenFile(a.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if ferr != nil {
		return
	}
	defer f.Close()

	line, merr := json.Marshal(rec)
	if merr != nil {
		return
	}
	fmt.Fprintf(f, "%s\n", line)
}
