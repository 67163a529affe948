package meeting

import (
	"context"
	"fmt"
	"strings"

	"plenum/internal/blackboard"
	"plenum/internal/committee"
)

// PackageViews generates one role's on-the-record verdicts on the
// proposed packages. Every view must reference a proposed package key,
// carry a known verdict, and cite only blackboard fact ids; an invalid
// view re-prompts and then fails the call rather than being dropped.
func (e *Engine) PackageViews(ctx context.Context, meetingID string, role committee.Role, bb *blackboard.Blackboard, card *StanceCard, packages []PolicyPackage) (*RoleViews, int, error) {
	p, err := loadPrompt("package_views")
	if err != nil {
		return nil, 0, err
	}
	prompt, err := p.Render(map[string]any{
		"role_display_name": role.DisplayName,
		"role_id":           role.ID,
		"packages_json":     jsonString(packages),
		"blackboard_json":   jsonString(bb),
		"stance_card_json":  jsonString(card),
	})
	if err != nil {
		return nil, 0, err
	}

	known := map[string]bool{}
	for _, pkg := range packages {
		known[pkg.Key] = true
	}

	req := e.request(meetingID, "package_views", role.ID, p, prompt, 0.25, 900)
	out, retries, err := generateJSON(ctx, e.gw, req, e.cfg.MaxRepairs, func(rv *RoleViews) error {
		if len(rv.Views) == 0 {
			return fmt.Errorf("package_views is empty")
		}
		for i := range rv.Views {
			v := &rv.Views[i]
			v.PackageKey = strings.TrimSpace(v.PackageKey)
			if !known[v.PackageKey] {
				return fmt.Errorf("view %d references unknown package %q", i, v.PackageKey)
			}
			switch v.View {
			case "support", "acceptable", "oppose":
			default:
				return fmt.Errorf("view %d has unknown verdict %q", i, v.View)
			}
			v.Because = blackboard.NormalizeWS(v.Because)
			if err := bb.ValidateCitations(v.CitedFacts, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, retries, err
	}
	out.Role = role.ID
	return out, retries, nil
}

// CastVote generates one role's formal vote. The delta must sit in the
// role's allowed set (widened by crisis deltas when crisis mode is on)
// and the citations must resolve on the blackboard.
func (e *Engine) CastVote(ctx context.Context, meetingID string, role committee.Role, bb *blackboard.Blackboard, card *StanceCard, packages []PolicyPackage, crisis bool) (*Vote, int, error) {
	p, err := loadPrompt("vote")
	if err != nil {
		return nil, 0, err
	}
	allowed := role.AllowedSet(e.crisisExtra(crisis))
	prompt, err := p.Render(map[string]any{
		"role_display_name":       role.DisplayName,
		"role_id":                 role.ID,
		"allowed_vote_deltas_bps": jsonString(allowed),
		"packages_json":           jsonString(packages),
		"blackboard_json":         jsonString(bb),
		"stance_card_json":        jsonString(card),
	})
	if err != nil {
		return nil, 0, err
	}

	req := e.request(meetingID, "votes", role.ID, p, prompt, 0.25, 700)
	v, retries, err := generateJSON(ctx, e.gw, req, e.cfg.MaxRepairs, func(v *Vote) error {
		if !role.AllowsDelta(v.VoteDeltaBps, e.crisisExtra(crisis)) {
			return fmt.Errorf("vote_delta_bps %d not in allowed set %v", v.VoteDeltaBps, allowed)
		}
		if blackboard.NormalizeWS(v.Reason) == "" {
			return fmt.Errorf("reason is empty")
		}
		return bb.ValidateCitations(v.CitedFacts, v.CitedUncertainties)
	})
	if err != nil {
		return nil, retries, err
	}
	v.Role = role.ID
	if !v.Dissent {
		v.DissentSentence = ""
	}
	return v, retries, nil
}
