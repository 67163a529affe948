package meeting

import (
	"context"
	"fmt"

	"plenum/internal/blackboard"
)

const (
	maxSummaryPoints = 10
	maxSlotNotes     = 16
)

// SummarizeRound has the secretary produce the neutral synthesis of one
// round from its transcript. List lengths are capped; slot notes with an
// unknown slot key are dropped.
func (e *Engine) SummarizeRound(ctx context.Context, meetingID, roundName string, bb *blackboard.Blackboard, transcript []*Utterance) (*RoundSummary, int, error) {
	p, err := loadPrompt("round_summary")
	if err != nil {
		return nil, 0, err
	}
	prompt, err := p.Render(map[string]any{
		"round_name":      roundName,
		"blackboard_json": jsonString(bb),
		"transcript_json": jsonString(transcript),
	})
	if err != nil {
		return nil, 0, err
	}

	req := e.request(meetingID, "round_summary", "secretary", p, prompt, 0.2, 900)
	out, retries, err := generateJSON(ctx, e.gw, req, e.cfg.MaxRepairs, func(s *RoundSummary) error {
		if len(s.Consensus)+len(s.Disagreements) == 0 {
			return fmt.Errorf("summary is empty")
		}
		return nil
	})
	if err != nil {
		return nil, retries, err
	}

	out.Round = roundName
	out.Consensus = capStrings(out.Consensus, maxSummaryPoints)
	out.Disagreements = capStrings(out.Disagreements, maxSummaryPoints)
	out.OpenQuestionsNext = capStrings(out.OpenQuestionsNext, maxSummaryPoints)

	var notes []SlotNote
	for _, n := range out.StatementSlotNotes {
		key := blackboard.NormalizeWS(n.SlotKey)
		note := blackboard.NormalizeWS(n.Note)
		if key == "" || note == "" {
			continue
		}
		notes = append(notes, SlotNote{SlotKey: key, Note: note})
		if len(notes) == maxSlotNotes {
			break
		}
	}
	out.StatementSlotNotes = notes
	return out, retries, nil
}

func capStrings(in []string, limit int) []string {
	var out []string
	for _, s := range in {
		s = blackboard.NormalizeWS(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
