package meeting

import (
	"context"
	"errors"
	"fmt"

	"plenum/internal/blackboard"
	"plenum/internal/extract"
	"plenum/internal/gateway"
)

// ErrSchemaValidation means the generated output never satisfied the
// stage's schema within the repair budget.
var ErrSchemaValidation = errors.New("meeting: generated output failed schema validation")

// repairInstruction is appended to the prompt on every retry after a
// failed attempt, asking the backend to correct its own output.
const repairInstruction = "\n\nYour previous output could not be used: %s. " +
	"Respond again with exactly one JSON object, no markdown fences, no " +
	"prose, matching the requested schema."

// generateJSON runs the generate → extract → validate loop with bounded
// repair retries. validate may be nil. It returns the accepted value and
// the number of retries spent (0 when the first attempt was accepted).
//
// Transport errors are terminal here: the gateway already retries them
// with backoff. A repairable failure (unparseable output, schema or
// citation violation) re-prompts with the failure appended; once the
// budget is spent, citation failures surface as *blackboard.CitationError
// and everything else as ErrSchemaValidation.
func generateJSON[T any](ctx context.Context, gw gateway.Gateway, req gateway.Request, maxRepairs int, validate func(*T) error) (*T, int, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRepairs; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt, err
		}
		raw, err := gw.Generate(ctx, req)
		if err != nil {
			if gateway.IsTransport(err) {
				return nil, attempt, fmt.Errorf("meeting: %s/%s: %w", req.Phase, req.Role, err)
			}
			return nil, attempt, fmt.Errorf("meeting: %s/%s: generate: %w", req.Phase, req.Role, err)
		}

		v, err := extract.Into[T](raw)
		if err == nil && validate != nil {
			err = validate(v)
		}
		if err == nil {
			return v, attempt, nil
		}
		lastErr = err
		req.Prompt += fmt.Sprintf(repairInstruction, err)
	}

	var cerr *blackboard.CitationError
	if errors.As(lastErr, &cerr) {
		return nil, maxRepairs, fmt.Errorf("meeting: %s/%s after %d repairs: %w", req.Phase, req.Role, maxRepairs, lastErr)
	}
	return nil, maxRepairs, fmt.Errorf("meeting: %s/%s after %d repairs: %w: %v", req.Phase, req.Role, maxRepairs, ErrSchemaValidation, lastErr)
}
