package meeting

import (
	"context"
	"fmt"
	"strings"

	"plenum/internal/blackboard"
)

// WriteDrafts has the chair produce the decision statement and the
// minutes summary. The vote split embedded in the generated text is
// validated against the computed tally after generation: a draft stating
// any other split is rejected, re-prompted and finally failed, never
// accepted.
func (e *Engine) WriteDrafts(ctx context.Context, meetingID string, bb *blackboard.Blackboard, tally *Tally, votes []*Vote, summaries []*RoundSummary) (*CommuniqueDraft, int, error) {
	p, err := loadPrompt("statement_minutes")
	if err != nil {
		return nil, 0, err
	}
	roles := make([]string, 0, len(votes))
	for _, v := range votes {
		roles = append(roles, v.Role)
	}
	split := tally.VoteSplit()
	prompt, err := p.Render(map[string]any{
		"roles_in_vote":        jsonString(roles),
		"roles_count":          len(roles),
		"tally_json":           jsonString(tally),
		"vote_split":           split,
		"blackboard_json":      jsonString(bb),
		"votes_json":           jsonString(votes),
		"round_summaries_json": jsonString(summaries),
	})
	if err != nil {
		return nil, 0, err
	}

	req := e.request(meetingID, "drafts", "chair", p, prompt, 0.25, 2000)
	d, retries, err := generateJSON(ctx, e.gw, req, e.cfg.MaxRepairs, func(d *CommuniqueDraft) error {
		if strings.TrimSpace(d.StatementMD) == "" || strings.TrimSpace(d.MinutesSummaryMD) == "" {
			return fmt.Errorf("statement or minutes summary is empty")
		}
		if d.VoteSplit != split {
			return fmt.Errorf("vote_split %q does not match the tabulated split %q", d.VoteSplit, split)
		}
		if !strings.Contains(d.StatementMD, split) {
			return fmt.Errorf("statement does not state the tabulated split %q", split)
		}
		return nil
	})
	if err != nil {
		return nil, retries, err
	}

	d.StatementMD = ensureHeading(d.StatementMD, "# Committee Statement")
	d.MinutesSummaryMD = ensureHeading(d.MinutesSummaryMD, "# Minutes Summary")
	return d, retries, nil
}

// ensureHeading prepends a title when the model omitted the leading
// markdown heading, and normalizes trailing whitespace.
func ensureHeading(md, title string) string {
	md = strings.TrimSpace(md)
	if !strings.HasPrefix(md, "#") {
		md = title + "\n\n" + md
	}
	return md + "\n"
}
