package meeting

import (
	"context"
	"fmt"
	"log/slog"

	"plenum/internal/blackboard"
	"plenum/internal/committee"
	"plenum/internal/gateway"
	"plenum/internal/logging"
)

// Materials holds the four briefing texts a meeting is grounded in. An
// empty field is a valid degenerate case: the blackboard records it as a
// missing source instead of fabricating content for it.
type Materials struct {
	Macro      string
	Employment string
	Inflation  string
	PolicyRule string
}

// Missing returns the source tags of absent briefing texts.
func (m Materials) Missing() []string {
	var out []string
	for _, s := range []struct{ tag, text string }{
		{blackboard.SourceMacro, m.Macro},
		{blackboard.SourceEmployment, m.Employment},
		{blackboard.SourceInflation, m.Inflation},
		{blackboard.SourcePolicyRule, m.PolicyRule},
	} {
		if blackboard.NormalizeWS(s.text) == "" {
			out = append(out, s.tag)
		}
	}
	return out
}

// Engine runs every generative phase of a meeting against one gateway
// and one committee configuration.
type Engine struct {
	gw  gateway.Gateway
	cfg *committee.Config
	log *slog.Logger
}

func NewEngine(gw gateway.Gateway, cfg *committee.Config) *Engine {
	return &Engine{gw: gw, cfg: cfg, log: logging.New("meeting")}
}

// request assembles the common gateway request fields for one phase call.
func (e *Engine) request(meetingID, phase, role string, p *promptTemplate, prompt string, temperature float64, maxTokens int) gateway.Request {
	return gateway.Request{
		Meeting:       meetingID,
		Role:          role,
		Phase:         phase,
		PromptID:      p.ID,
		PromptVersion: p.Version,
		System:        p.System,
		Prompt:        prompt,
		Temperature:   temperature,
		MaxTokens:     maxTokens,
	}
}

// BuildBlackboard generates and normalizes the shared blackboard from
// the briefing materials. The blackboard is always rebuilt whole; there
// is no incremental patching.
func (e *Engine) BuildBlackboard(ctx context.Context, meetingID string, mat Materials) (*blackboard.Blackboard, int, error) {
	p, err := loadPrompt("blackboard")
	if err != nil {
		return nil, 0, err
	}
	missing := mat.Missing()
	prompt, err := p.Render(map[string]any{
		"meeting_id":        meetingID,
		"max_facts":         e.cfg.MaxFacts,
		"max_uncertainties": e.cfg.MaxUncertainties,
		"macro":             orMissing(clip(mat.Macro, 12000)),
		"employment":        orMissing(clip(mat.Employment, 12000)),
		"inflation":         orMissing(clip(mat.Inflation, 12000)),
		"policy_rule":       orMissing(clip(mat.PolicyRule, 6000)),
	})
	if err != nil {
		return nil, 0, err
	}

	req := e.request(meetingID, "blackboard", "secretariat", p, prompt, 0.2, 1800)
	raw, retries, err := generateJSON(ctx, e.gw, req, e.cfg.MaxRepairs, func(r *blackboard.RawPayload) error {
		if len(r.Facts) == 0 {
			return fmt.Errorf("no facts extracted")
		}
		return nil
	})
	if err != nil {
		return nil, retries, err
	}

	bb := blackboard.Normalize(meetingID, raw, e.cfg.MaxFacts, e.cfg.MaxUncertainties, missing)
	e.log.Info("blackboard built",
		"meeting", meetingID,
		"facts", len(bb.Facts),
		"uncertainties", len(bb.Uncertainties),
		"missing_sources", missing,
		"retries", retries)
	return bb, retries, nil
}

// CrisisMode reports whether the blackboard signals a crisis, widening
// every role's allowed delta set by the configured crisis deltas.
func (e *Engine) CrisisMode(bb *blackboard.Blackboard) bool {
	return bb.InferCrisisMode(e.cfg.CrisisKeywords)
}

func orMissing(s string) string {
	if s == "" {
		return "(missing)"
	}
	return s
}
