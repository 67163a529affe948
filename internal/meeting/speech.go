package meeting

import (
	"context"
	"fmt"

	"plenum/internal/blackboard"
	"plenum/internal/committee"
)

// Opening generates one role's opening statement. The statement must
// cite only blackboard ids and must propose exactly one follow-up
// question.
func (e *Engine) Opening(ctx context.Context, meetingID string, role committee.Role, bb *blackboard.Blackboard, card *StanceCard) (*Utterance, int, error) {
	u, retries, err := e.speech(ctx, meetingID, role, bb, card, "opening", "")
	if err != nil {
		return nil, retries, err
	}
	return u, retries, nil
}

// Answer generates one role's on-the-record answer to a directed chair
// question. The answer may not introduce uncited claims.
func (e *Engine) Answer(ctx context.Context, meetingID string, role committee.Role, bb *blackboard.Blackboard, card *StanceCard, question string) (*Utterance, int, error) {
	if blackboard.NormalizeWS(question) == "" {
		return nil, 0, fmt.Errorf("meeting: answers/%s: empty chair question", role.ID)
	}
	return e.speech(ctx, meetingID, role, bb, card, "answers", question)
}

func (e *Engine) speech(ctx context.Context, meetingID string, role committee.Role, bb *blackboard.Blackboard, card *StanceCard, phase, chairQuestion string) (*Utterance, int, error) {
	p, err := loadPrompt("public_speech")
	if err != nil {
		return nil, 0, err
	}
	prompt, err := p.Render(map[string]any{
		"role_display_name": role.DisplayName,
		"role_id":           role.ID,
		"phase_name":        phase,
		"chair_question":    chairQuestion,
		"blackboard_json":   jsonString(bb),
		"stance_card_json":  jsonString(card),
	})
	if err != nil {
		return nil, 0, err
	}

	req := e.request(meetingID, phase, role.ID, p, prompt, 0.35, 900)
	u, retries, err := generateJSON(ctx, e.gw, req, e.cfg.MaxRepairs, func(u *Utterance) error {
		if blackboard.NormalizeWS(u.SpeechMD) == "" {
			return fmt.Errorf("speech_md is empty")
		}
		if phase == "opening" && blackboard.NormalizeWS(u.AskOneQuestion) == "" {
			return fmt.Errorf("ask_one_question is required in the opening round")
		}
		if len(u.CitedFacts)+len(u.CitedUncertainties) == 0 {
			return fmt.Errorf("speech cites nothing")
		}
		return bb.ValidateCitations(u.CitedFacts, u.CitedUncertainties)
	})
	if err != nil {
		return nil, retries, err
	}
	u.Phase = phase
	u.Role = role.ID
	if phase != "opening" {
		u.AskOneQuestion = ""
	}
	return u, retries, nil
}
