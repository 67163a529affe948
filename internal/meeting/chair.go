package meeting

import (
	"context"
	"fmt"
	"strings"

	"plenum/internal/blackboard"
)

// SelectQuestions has the chair pick directed questions out of the
// members' proposed pool. Generated questions addressed to unknown roles
// are dropped; if fewer than the configured minimum survive, the pool is
// dealt out round-robin across the roles instead, so the interrogation
// round always happens.
func (e *Engine) SelectQuestions(ctx context.Context, meetingID string, bb *blackboard.Blackboard, cards []*StanceCard, pool []string) (*ChairQuestions, int, error) {
	p, err := loadPrompt("chair_questions")
	if err != nil {
		return nil, 0, err
	}
	roleIDs := e.cfg.RoleIDs()
	prompt, err := p.Render(map[string]any{
		"min_questions":      e.cfg.MinQuestions,
		"max_questions":      e.cfg.MaxQuestions,
		"role_ids":           strings.Join(roleIDs, ", "),
		"blackboard_json":    jsonString(bb),
		"stance_cards_json":  jsonString(cards),
		"open_questions_json": jsonString(pool),
	})
	if err != nil {
		return nil, 0, err
	}

	known := map[string]bool{}
	for _, id := range roleIDs {
		known[id] = true
	}

	req := e.request(meetingID, "chair_questions", "chair", p, prompt, 0.25, 900)
	out, retries, err := generateJSON(ctx, e.gw, req, e.cfg.MaxRepairs, func(q *ChairQuestions) error {
		return bb.ValidateCitations(q.CitedFacts, nil)
	})
	if err != nil {
		return nil, retries, err
	}

	var dq []DirectedQuestion
	for _, it := range out.DirectedQuestions {
		if len(dq) == e.cfg.MaxQuestions {
			break
		}
		to := strings.ToLower(strings.TrimSpace(it.ToRole))
		q := blackboard.NormalizeWS(it.Question)
		if known[to] && q != "" {
			dq = append(dq, DirectedQuestion{ToRole: to, Question: q})
		}
	}
	if len(dq) < e.cfg.MinQuestions {
		dq = roundRobin(pool, roleIDs, e.cfg.MinQuestions, e.cfg.MaxQuestions)
	}
	if len(dq) == 0 {
		return nil, retries, fmt.Errorf("meeting: chair_questions: no usable questions (pool %d)", len(pool))
	}
	out.DirectedQuestions = dq
	out.ChairPrefaceMD = strings.TrimSpace(out.ChairPrefaceMD)
	return out, retries, nil
}

// roundRobin deals pool questions across the roles in order.
func roundRobin(pool, roleIDs []string, minQ, maxQ int) []DirectedQuestion {
	n := len(pool)
	if n > maxQ {
		n = maxQ
	}
	if n < minQ {
		// Short pool: use everything there is.
		n = len(pool)
	}
	var dq []DirectedQuestion
	for i := 0; i < n; i++ {
		dq = append(dq, DirectedQuestion{
			ToRole:   roleIDs[i%len(roleIDs)],
			Question: blackboard.NormalizeWS(pool[i]),
		})
	}
	return dq
}

// ProposePackages has the chair put 2-3 policy packages on the table.
// Every package delta must be a member of the blackboard's policy menu
// and package keys must be unique; anything else is re-prompted within
// the repair budget and then fails the stage.
func (e *Engine) ProposePackages(ctx context.Context, meetingID string, bb *blackboard.Blackboard, cards []*StanceCard) (*ChairPackages, int, error) {
	p, err := loadPrompt("chair_packages")
	if err != nil {
		return nil, 0, err
	}
	prompt, err := p.Render(map[string]any{
		"blackboard_json":   jsonString(bb),
		"stance_cards_json": jsonString(cards),
	})
	if err != nil {
		return nil, 0, err
	}

	menu := bb.MenuDeltas()
	req := e.request(meetingID, "packages", "chair", p, prompt, 0.2, 900)
	out, retries, err := generateJSON(ctx, e.gw, req, e.cfg.MaxRepairs, func(cp *ChairPackages) error {
		if len(cp.Packages) < 2 || len(cp.Packages) > 3 {
			return fmt.Errorf("need 2-3 packages, got %d", len(cp.Packages))
		}
		keys := map[string]bool{}
		for i := range cp.Packages {
			pkg := &cp.Packages[i]
			pkg.Key = strings.TrimSpace(pkg.Key)
			if pkg.Key == "" || keys[pkg.Key] {
				return fmt.Errorf("package keys must be unique and non-empty")
			}
			keys[pkg.Key] = true
			if !menu[pkg.DeltaBps] {
				return fmt.Errorf("package %s delta %d not on the policy menu", pkg.Key, pkg.DeltaBps)
			}
			switch pkg.Stance {
			case "hawkish", "neutral", "dovish":
			default:
				pkg.Stance = "neutral"
			}
		}
		return nil
	})
	if err != nil {
		return nil, retries, err
	}
	out.ChairTransitionMD = strings.TrimSpace(out.ChairTransitionMD)
	return out, retries, nil
}
