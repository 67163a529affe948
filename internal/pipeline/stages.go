package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"plenum/internal/blackboard"
	"plenum/internal/meeting"
	"plenum/internal/runstore"
)

// Stage identifies one state of the meeting pipeline. Stage keys double
// as artifact names in the run store.
type Stage string

const (
	StageBlackboard     Stage = "blackboard"
	StageStanceCards    Stage = "stance_cards"
	StageOpening        Stage = "opening"
	StageChairQuestions Stage = "chair_questions"
	StageAnswers        Stage = "answers"
	StageRoundSummary   Stage = "round_summary"
	StagePackages       Stage = "packages"
	StagePackageViews   Stage = "package_views"
	StageVotes          Stage = "votes"
	StageTally          Stage = "tally"
	StageDrafts         Stage = "drafts"
)

// Order is the strict execution order of the state machine.
var Order = []Stage{
	StageBlackboard,
	StageStanceCards,
	StageOpening,
	StageChairQuestions,
	StageAnswers,
	StageRoundSummary,
	StagePackages,
	StagePackageViews,
	StageVotes,
	StageTally,
	StageDrafts,
}

// ParseStage maps a stage key to its Stage, case-insensitively.
func ParseStage(s string) (Stage, error) {
	stage := Stage(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := stageDefs[stage]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
	}
	return stage, nil
}

type stageDef struct {
	key  Stage
	deps []Stage
	run  func(ctx context.Context, o *Orchestrator, run *runstore.Run) error
}

// stageDefs is the explicit dispatch table of the state machine: one
// entry per stage with its dependencies and its generation logic.
var stageDefs = map[Stage]stageDef{
	StageBlackboard: {
		key: StageBlackboard,
		run: runBlackboard,
	},
	StageStanceCards: {
		key:  StageStanceCards,
		deps: []Stage{StageBlackboard},
		run:  runStanceCards,
	},
	StageOpening: {
		key:  StageOpening,
		deps: []Stage{StageBlackboard, StageStanceCards},
		run:  runOpening,
	},
	StageChairQuestions: {
		key:  StageChairQuestions,
		deps: []Stage{StageBlackboard, StageStanceCards, StageOpening},
		run:  runChairQuestions,
	},
	StageAnswers: {
		key:  StageAnswers,
		deps: []Stage{StageBlackboard, StageStanceCards, StageChairQuestions},
		run:  runAnswers,
	},
	StageRoundSummary: {
		key:  StageRoundSummary,
		deps: []Stage{StageBlackboard, StageOpening, StageAnswers},
		run:  runRoundSummary,
	},
	StagePackages: {
		key:  StagePackages,
		deps: []Stage{StageBlackboard, StageStanceCards, StageRoundSummary},
		run:  runPackages,
	},
	StagePackageViews: {
		key:  StagePackageViews,
		deps: []Stage{StageBlackboard, StageStanceCards, StagePackages},
		run:  runPackageViews,
	},
	StageVotes: {
		key:  StageVotes,
		deps: []Stage{StageBlackboard, StageStanceCards, StagePackages, StagePackageViews},
		run:  runVotes,
	},
	StageTally: {
		key:  StageTally,
		deps: []Stage{StageVotes},
		run:  runTally,
	},
	StageDrafts: {
		key:  StageDrafts,
		deps: []Stage{StageBlackboard, StageRoundSummary, StageVotes, StageTally},
		run:  runDrafts,
	},
}

func runBlackboard(ctx context.Context, o *Orchestrator, run *runstore.Run) error {
	mats, err := o.materials.Materials(ctx, run.MeetingID)
	if err != nil {
		return fmt.Errorf("load materials: %w", err)
	}
	missing := mats.Missing()
	if len(missing) == 4 {
		return fmt.Errorf("%w: %s", ErrMaterialMissing, run.MeetingID)
	}

	bb, retries, err := o.engine.BuildBlackboard(ctx, run.MeetingID, mats)
	if err != nil {
		return err
	}
	crisis := o.engine.CrisisMode(bb)

	if err := run.SetContext(map[string]any{
		"missing_sources": missing,
		"crisis_mode":     crisis,
	}); err != nil {
		return err
	}
	_, err = run.PutJSON(string(StageBlackboard), bb, map[string]any{
		"retries":     retries,
		"crisis_mode": crisis,
	})
	return err
}

func runStanceCards(ctx context.Context, o *Orchestrator, run *runstore.Run) error {
	bb, crisis, err := o.loadBlackboard(run)
	if err != nil {
		return err
	}

	cards := make([]*meeting.StanceCard, len(o.cfg.Roles))
	tries := make([]int, len(o.cfg.Roles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallel)
	for i, role := range o.cfg.Roles {
		g.Go(func() error {
			card, retries, err := o.engine.StanceCard(gctx, run.MeetingID, role, bb, crisis)
			if err != nil {
				return err
			}
			cards[i], tries[i] = card, retries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	_, err = run.PutJSON(string(StageStanceCards), cards, map[string]any{"retries": sum(tries)})
	return err
}

func runOpening(ctx context.Context, o *Orchestrator, run *runstore.Run) error {
	bb, _, err := o.loadBlackboard(run)
	if err != nil {
		return err
	}
	cards, err := o.loadStanceCards(run)
	if err != nil {
		return err
	}

	openings := make([]*meeting.Utterance, len(o.cfg.Roles))
	tries := make([]int, len(o.cfg.Roles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallel)
	for i, role := range o.cfg.Roles {
		g.Go(func() error {
			u, retries, err := o.engine.Opening(gctx, run.MeetingID, role, bb, cards[i])
			if err != nil {
				return err
			}
			openings[i], tries[i] = u, retries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	_, err = run.PutJSON(string(StageOpening), openings, map[string]any{"retries": sum(tries)})
	return err
}

func runChairQuestions(ctx context.Context, o *Orchestrator, run *runstore.Run) error {
	bb, _, err := o.loadBlackboard(run)
	if err != nil {
		return err
	}
	cards, err := o.loadStanceCards(run)
	if err != nil {
		return err
	}
	openings, err := o.loadUtterances(run, StageOpening)
	if err != nil {
		return err
	}

	// The pool mixes the stance cards' proposed questions with the
	// questions each opening statement ended on.
	pooled := make([]*meeting.StanceCard, len(cards))
	copy(pooled, cards)
	for _, u := range openings {
		if q := strings.TrimSpace(u.AskOneQuestion); q != "" {
			pooled = append(pooled, &meeting.StanceCard{ProposedQuestions: []string{q}})
		}
	}
	pool := meeting.QuestionPool(pooled, 12)

	out, retries, err := o.engine.SelectQuestions(ctx, run.MeetingID, bb, cards, pool)
	if err != nil {
		return err
	}
	_, err = run.PutJSON(string(StageChairQuestions), out, map[string]any{"retries": retries})
	return err
}

func runAnswers(ctx context.Context, o *Orchestrator, run *runstore.Run) error {
	bb, _, err := o.loadBlackboard(run)
	if err != nil {
		return err
	}
	cards, err := o.loadStanceCards(run)
	if err != nil {
		return err
	}
	var cq meeting.ChairQuestions
	if _, err := run.GetJSON(string(StageChairQuestions), &cq); err != nil {
		return err
	}

	cardByRole := map[string]*meeting.StanceCard{}
	for _, c := range cards {
		cardByRole[c.Role] = c
	}

	answers := make([]*meeting.Utterance, len(cq.DirectedQuestions))
	tries := make([]int, len(cq.DirectedQuestions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallel)
	for i, dq := range cq.DirectedQuestions {
		g.Go(func() error {
			role := o.cfg.Role(dq.ToRole)
			if role == nil {
				return fmt.Errorf("directed question %d targets unknown role %q", i, dq.ToRole)
			}
			u, retries, err := o.engine.Answer(gctx, run.MeetingID, *role, bb, cardByRole[dq.ToRole], dq.Question)
			if err != nil {
				return err
			}
			answers[i], tries[i] = u, retries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	_, err = run.PutJSON(string(StageAnswers), answers, map[string]any{"retries": sum(tries)})
	return err
}

func runRoundSummary(ctx context.Context, o *Orchestrator, run *runstore.Run) error {
	bb, _, err := o.loadBlackboard(run)
	if err != nil {
		return err
	}
	openings, err := o.loadUtterances(run, StageOpening)
	if err != nil {
		return err
	}
	answers, err := o.loadUtterances(run, StageAnswers)
	if err != nil {
		return err
	}

	var summaries []*meeting.RoundSummary
	total := 0
	for _, round := range []struct {
		name       string
		transcript []*meeting.Utterance
	}{
		{"opening", openings},
		{"questions", answers},
	} {
		s, retries, err := o.engine.SummarizeRound(ctx, run.MeetingID, round.name, bb, round.transcript)
		if err != nil {
			return err
		}
		summaries = append(summaries, s)
		total += retries
	}

	_, err = run.PutJSON(string(StageRoundSummary), summaries, map[string]any{"retries": total})
	return err
}

func runPackages(ctx context.Context, o *Orchestrator, run *runstore.Run) error {
	bb, _, err := o.loadBlackboard(run)
	if err != nil {
		return err
	}
	cards, err := o.loadStanceCards(run)
	if err != nil {
		return err
	}

	out, retries, err := o.engine.ProposePackages(ctx, run.MeetingID, bb, cards)
	if err != nil {
		return err
	}
	_, err = run.PutJSON(string(StagePackages), out, map[string]any{"retries": retries})
	return err
}

func runPackageViews(ctx context.Context, o *Orchestrator, run *runstore.Run) error {
	bb, _, err := o.loadBlackboard(run)
	if err != nil {
		return err
	}
	cards, err := o.loadStanceCards(run)
	if err != nil {
		return err
	}
	packages, err := o.loadPackages(run)
	if err != nil {
		return err
	}

	views := make([]*meeting.RoleViews, len(o.cfg.Roles))
	tries := make([]int, len(o.cfg.Roles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallel)
	for i, role := range o.cfg.Roles {
		g.Go(func() error {
			rv, retries, err := o.engine.PackageViews(gctx, run.MeetingID, role, bb, cards[i], packages.Packages)
			if err != nil {
				return err
			}
			views[i], tries[i] = rv, retries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	_, err = run.PutJSON(string(StagePackageViews), views, map[string]any{"retries": sum(tries)})
	return err
}

func runVotes(ctx context.Context, o *Orchestrator, run *runstore.Run) error {
	bb, crisis, err := o.loadBlackboard(run)
	if err != nil {
		return err
	}
	cards, err := o.loadStanceCards(run)
	if err != nil {
		return err
	}
	packages, err := o.loadPackages(run)
	if err != nil {
		return err
	}

	votes := make([]*meeting.Vote, len(o.cfg.Roles))
	tries := make([]int, len(o.cfg.Roles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallel)
	for i, role := range o.cfg.Roles {
		g.Go(func() error {
			v, retries, err := o.engine.CastVote(gctx, run.MeetingID, role, bb, cards[i], packages.Packages, crisis)
			if err != nil {
				return err
			}
			votes[i], tries[i] = v, retries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	_, err = run.PutJSON(string(StageVotes), votes, map[string]any{"retries": sum(tries)})
	return err
}

func runTally(_ context.Context, o *Orchestrator, run *runstore.Run) error {
	votes, err := o.loadVotes(run)
	if err != nil {
		return err
	}
	tally, err := meeting.ComputeTally(votes, o.cfg.RoleIDs())
	if err != nil {
		return err
	}
	// Pure computation: never touches the gateway.
	_, err = run.PutJSON(string(StageTally), tally, map[string]any{"retries": 0})
	return err
}

func runDrafts(ctx context.Context, o *Orchestrator, run *runstore.Run) error {
	bb, crisis, err := o.loadBlackboard(run)
	if err != nil {
		return err
	}
	votes, err := o.loadVotes(run)
	if err != nil {
		return err
	}
	var tally meeting.Tally
	if _, err := run.GetJSON(string(StageTally), &tally); err != nil {
		return err
	}
	var summaries []*meeting.RoundSummary
	if _, err := run.GetJSON(string(StageRoundSummary), &summaries); err != nil {
		return err
	}

	draft, retries, err := o.engine.WriteDrafts(ctx, run.MeetingID, bb, &tally, votes, summaries)
	if err != nil {
		return err
	}

	if _, err := run.PutJSON(string(StageDrafts), draft, map[string]any{"retries": retries}); err != nil {
		return err
	}
	if _, err := run.PutText("statement", draft.StatementMD, map[string]any{"kind": "statement"}); err != nil {
		return err
	}
	if _, err := run.PutText("minutes_summary", draft.MinutesSummaryMD, map[string]any{"kind": "minutes"}); err != nil {
		return err
	}
	return o.writeTranscript(run, bb, crisis, votes, &tally)
}

// writeTranscript renders the public discussion record from the stage
// artifacts already on disk.
func (o *Orchestrator) writeTranscript(run *runstore.Run, bb *blackboard.Blackboard, crisis bool, votes []*meeting.Vote, tally *meeting.Tally) error {
	cards, err := o.loadStanceCards(run)
	if err != nil {
		return err
	}
	openings, err := o.loadUtterances(run, StageOpening)
	if err != nil {
		return err
	}
	answers, err := o.loadUtterances(run, StageAnswers)
	if err != nil {
		return err
	}
	var cq meeting.ChairQuestions
	if _, err := run.GetJSON(string(StageChairQuestions), &cq); err != nil {
		return err
	}
	packages, err := o.loadPackages(run)
	if err != nil {
		return err
	}
	var views []*meeting.RoleViews
	if _, err := run.GetJSON(string(StagePackageViews), &views); err != nil {
		return err
	}

	md := meeting.RenderTranscript(meeting.TranscriptInput{
		MeetingID:  run.MeetingID,
		Blackboard: bb,
		CrisisMode: crisis,
		Stances:    cards,
		Openings:   openings,
		ChairQ:     &cq,
		Answers:    answers,
		Packages:   packages,
		Views:      views,
		Votes:      votes,
		Tally:      tally,
	})
	_, err = run.PutText("discussion", md, map[string]any{"kind": "transcript"})
	return err
}

func (o *Orchestrator) loadBlackboard(run *runstore.Run) (*blackboard.Blackboard, bool, error) {
	var bb blackboard.Blackboard
	info, err := run.GetJSON(string(StageBlackboard), &bb)
	if err != nil {
		return nil, false, err
	}
	crisis, _ := info.Meta["crisis_mode"].(bool)
	return &bb, crisis, nil
}

// loadStanceCards returns the cards in configured role order, failing
// when any role's card is missing.
func (o *Orchestrator) loadStanceCards(run *runstore.Run) ([]*meeting.StanceCard, error) {
	var cards []*meeting.StanceCard
	if _, err := run.GetJSON(string(StageStanceCards), &cards); err != nil {
		return nil, err
	}
	byRole := map[string]*meeting.StanceCard{}
	for _, c := range cards {
		byRole[c.Role] = c
	}
	ordered := make([]*meeting.StanceCard, len(o.cfg.Roles))
	for i, role := range o.cfg.Roles {
		c, ok := byRole[role.ID]
		if !ok {
			return nil, fmt.Errorf("pipeline: stance card for %q missing from artifact", role.ID)
		}
		ordered[i] = c
	}
	return ordered, nil
}

func (o *Orchestrator) loadUtterances(run *runstore.Run, stage Stage) ([]*meeting.Utterance, error) {
	var out []*meeting.Utterance
	if _, err := run.GetJSON(string(stage), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) loadPackages(run *runstore.Run) (*meeting.ChairPackages, error) {
	var out meeting.ChairPackages
	if _, err := run.GetJSON(string(StagePackages), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (o *Orchestrator) loadVotes(run *runstore.Run) ([]*meeting.Vote, error) {
	var out []*meeting.Vote
	if _, err := run.GetJSON(string(StageVotes), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}
