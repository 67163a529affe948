package meeting

import (
	"fmt"
	"strings"

	"plenum/internal/blackboard"
)

// TranscriptInput collects every public phase of a completed run for
// rendering. Stance cards appear only as their preferred deltas; their
// bodies stay private.
type TranscriptInput struct {
	MeetingID  string
	Blackboard *blackboard.Blackboard
	CrisisMode bool
	Stances    []*StanceCard
	Openings   []*Utterance
	ChairQ     *ChairQuestions
	Answers    []*Utterance
	Packages   *ChairPackages
	Views      []*RoleViews
	Votes      []*Vote
	Tally      *Tally
}

// RenderTranscript renders the public record of a run as markdown. The
// output is deterministic for identical inputs: iteration follows slice
// order everywhere, never map order.
func RenderTranscript(in TranscriptInput) string {
	var b strings.Builder
	w := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	w("# Committee Discussion Transcript (simulated)")
	w("")
	w("Meeting: %s", in.MeetingID)
	w("")
	w("- crisis_mode: `%t`", in.CrisisMode)
	w("")

	w("## Citable facts")
	w("")
	for _, f := range in.Blackboard.Facts {
		w("- `%s` [%s] %s", f.ID, f.Source, f.Text)
	}
	w("")

	w("## Key uncertainties")
	w("")
	for _, u := range in.Blackboard.Uncertainties {
		w("- `%s` %s", u.ID, u.Text)
	}
	w("")

	w("## Policy menu")
	w("")
	for _, opt := range in.Blackboard.PolicyMenu {
		w("- `%s`: %s (%+dbp)", opt.Key, opt.Label, opt.DeltaBps)
	}
	w("")

	w("## Phase 1: stance cards (private, positions only)")
	w("")
	for _, c := range in.Stances {
		w("- %s: preferred_delta_bps=%d", c.Role, c.PreferredDeltaBps)
	}
	w("")

	w("## Phase 2: opening statements")
	w("")
	for _, u := range in.Openings {
		writeSpeech(&b, u)
		if q := strings.TrimSpace(u.AskOneQuestion); q != "" {
			w("> Proposed question: %s", q)
			w("")
		}
	}

	w("## Phase 3: directed questions")
	w("")
	if in.ChairQ != nil {
		if preface := strings.TrimSpace(in.ChairQ.ChairPrefaceMD); preface != "" {
			w("**CHAIR**:")
			w("")
			w("%s", preface)
			w("")
		}
		for i, dq := range in.ChairQ.DirectedQuestions {
			w("**CHAIR** (to `%s`): %s", dq.ToRole, dq.Question)
			w("")
			if i < len(in.Answers) {
				writeSpeech(&b, in.Answers[i])
			} else {
				w("> (no answer recorded)")
				w("")
			}
		}
	}

	w("## Phase 4: packages and vote")
	w("")
	if in.Packages != nil {
		if trans := strings.TrimSpace(in.Packages.ChairTransitionMD); trans != "" {
			w("**CHAIR**:")
			w("")
			w("%s", trans)
			w("")
		}
		w("### Proposed packages")
		w("")
		for _, p := range in.Packages.Packages {
			w("- package %s: delta_bps=%d, %s, %s", p.Key, p.DeltaBps, p.Stance, p.Guidance)
		}
		w("")
	}

	w("### Member views")
	w("")
	for _, rv := range in.Views {
		if len(rv.Views) == 0 {
			continue
		}
		w("**%s**:", strings.ToUpper(rv.Role))
		w("")
		for _, v := range rv.Views {
			w("- %s: %s, %s (cites %s)", v.PackageKey, v.View, v.Because, strings.Join(v.CitedFacts, ", "))
		}
		w("")
	}

	w("### Formal vote")
	w("")
	for _, v := range in.Votes {
		w("- **%s**: %+dbp, %s (facts: %s | uncertainties: %s)",
			strings.ToUpper(v.Role), v.VoteDeltaBps, v.Reason,
			strings.Join(v.CitedFacts, ", "), strings.Join(v.CitedUncertainties, ", "))
		if v.Dissent && strings.TrimSpace(v.DissentSentence) != "" {
			w("  - dissent: %s", strings.TrimSpace(v.DissentSentence))
		}
	}
	w("")

	if in.Tally != nil {
		w("### Result")
		w("")
		w("- majority_delta_bps: %d", in.Tally.MajorityDeltaBps)
		w("- vote_split: %s", in.Tally.VoteSplit())
		for _, d := range in.Tally.Dissenters {
			line := fmt.Sprintf("- dissenter: %s (%+dbp)", d.Role, d.DeltaBps)
			if d.Sentence != "" {
				line += ": " + d.Sentence
			}
			w("%s", line)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeSpeech(b *strings.Builder, u *Utterance) {
	fmt.Fprintf(b, "**%s**:\n\n%s\n", strings.ToUpper(u.Role), strings.TrimSpace(u.SpeechMD))
	var cites []string
	if len(u.CitedFacts) > 0 {
		cites = append(cites, "facts: "+strings.Join(u.CitedFacts, ", "))
	}
	if len(u.CitedUncertainties) > 0 {
		cites = append(cites, "uncertainties: "+strings.Join(u.CitedUncertainties, ", "))
	}
	if len(cites) > 0 {
		fmt.Fprintf(b, "\n> Citations: %s\n", strings.Join(cites, " · "))
	}
	fmt.Fprint(b, "\n")
}
