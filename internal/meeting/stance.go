package meeting

import (
	"context"
	"fmt"

	"plenum/internal/blackboard"
	"plenum/internal/committee"
)

// StanceCard generates one role's private stance card. The preferred
// delta must land inside the role's allowed set and every reason and
// risk must cite an id that exists on the blackboard; violations are
// re-prompted within the repair budget and then fail the call.
func (e *Engine) StanceCard(ctx context.Context, meetingID string, role committee.Role, bb *blackboard.Blackboard, crisis bool) (*StanceCard, int, error) {
	p, err := loadPrompt("stance_card")
	if err != nil {
		return nil, 0, err
	}
	allowed := role.AllowedSet(e.crisisExtra(crisis))
	prompt, err := p.Render(map[string]any{
		"role_display_name":       role.DisplayName,
		"role_bias":               role.Bias,
		"role_style":              role.Style,
		"allowed_vote_deltas_bps": jsonString(allowed),
		"blackboard_json":         jsonString(bb),
	})
	if err != nil {
		return nil, 0, err
	}

	req := e.request(meetingID, "stance_cards", role.ID, p, prompt, 0.25, 1200)
	card, retries, err := generateJSON(ctx, e.gw, req, e.cfg.MaxRepairs, func(c *StanceCard) error {
		if !role.AllowsDelta(c.PreferredDeltaBps, e.crisisExtra(crisis)) {
			return fmt.Errorf("preferred_delta_bps %d not in allowed set %v", c.PreferredDeltaBps, allowed)
		}
		if len(c.TopReasons) == 0 {
			return fmt.Errorf("top_reasons is empty")
		}
		var facts, uncs []string
		for _, r := range c.TopReasons {
			facts = append(facts, r.FactID)
		}
		for _, k := range c.KeyRisks {
			uncs = append(uncs, k.UncertaintyID)
		}
		return bb.ValidateCitations(facts, uncs)
	})
	if err != nil {
		return nil, retries, err
	}
	card.Role = role.ID
	return card, retries, nil
}

// crisisExtra returns the configured crisis deltas when crisis mode is
// on, nil otherwise.
func (e *Engine) crisisExtra(crisis bool) []int {
	if !crisis {
		return nil
	}
	return e.cfg.CrisisDeltas
}

// QuestionPool gathers the members' proposed questions in role order,
// de-duplicated on whitespace-normalized text and capped.
func QuestionPool(cards []*StanceCard, limit int) []string {
	seen := map[string]bool{}
	var pool []string
	for _, c := range cards {
		for _, q := range c.ProposedQuestions {
			q = blackboard.NormalizeWS(q)
			if q == "" || seen[q] {
				continue
			}
			seen[q] = true
			pool = append(pool, q)
			if len(pool) == limit {
				return pool
			}
		}
	}
	return pool
}
