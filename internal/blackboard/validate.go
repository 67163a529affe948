package blackboard

import (
	"fmt"
	"strings"
)

// CitationError reports citation ids that do not resolve inside the run's
// blackboard. It is never swallowed: an utterance carrying one is invalid.
type CitationError struct {
	BadFacts         []string
	BadUncertainties []string
}

func (e *CitationError) Error() string {
	var parts []string
	if len(e.BadFacts) > 0 {
		parts = append(parts, fmt.Sprintf("facts %s", strings.Join(e.BadFacts, ",")))
	}
	if len(e.BadUncertainties) > 0 {
		parts = append(parts, fmt.Sprintf("uncertainties %s", strings.Join(e.BadUncertainties, ",")))
	}
	return "invalid citations: " + strings.Join(parts, "; ")
}

// ValidateCitations checks every cited id against this blackboard. A nil
// return means all ids resolve.
func (b *Blackboard) ValidateCitations(factIDs, uncertaintyIDs []string) error {
	facts := make(map[string]bool, len(b.Facts))
	for _, f := range b.Facts {
		facts[f.ID] = true
	}
	uncs := make(map[string]bool, len(b.Uncertainties))
	for _, u := range b.Uncertainties {
		uncs[u.ID] = true
	}

	var cerr CitationError
	for _, id := range factIDs {
		if !facts[id] {
			cerr.BadFacts = append(cerr.BadFacts, id)
		}
	}
	for _, id := range uncertaintyIDs {
		if !uncs[id] {
			cerr.BadUncertainties = append(cerr.BadUncertainties, id)
		}
	}
	if len(cerr.BadFacts) > 0 || len(cerr.BadUncertainties) > 0 {
		return &cerr
	}
	return nil
}

// InferCrisisMode scans blackboard facts for crisis keywords. Conservative:
// stays off unless the facts strongly signal it. When on, emergency-sized
// deltas are added to every role's allowed vote set.
func (b *Blackboard) InferCrisisMode(keywords []string) bool {
	for _, f := range b.Facts {
		text := strings.ToLower(f.Text)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}
