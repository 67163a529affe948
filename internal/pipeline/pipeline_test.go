package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"plenum/internal/blackboard"
	"plenum/internal/committee"
	"plenum/internal/gateway"
	"plenum/internal/meeting"
	"plenum/internal/runstore"
)

const testMeeting = "2025-09-17"

var testMaterials = StaticMaterials{M: meeting.Materials{
	Macro:      "GDP growth slowed to 1.2% annualized in Q2.",
	Employment: "Payrolls rose 140k; job openings fell for a third month.",
	Inflation:  "Core inflation printed 2.9% y/y in August.",
	PolicyRule: "The policy rule implies a rate near 4.1%.",
}}

const blackboardResponse = `{
  "facts": [
    {"text": "GDP growth slowed to 1.2% annualized", "source": "macro"},
    {"text": "Payrolls rose by 140k", "source": "employment"},
    {"text": "Core inflation printed 2.9% y/y", "source": "inflation"},
    {"text": "The policy rule implies a rate near 4.1%", "source": "policy-rule"},
    {"text": "Job openings fell for a third month", "source": "employment"}
  ],
  "uncertainties": [
    {"text": "Pass-through of tariffs to core goods"},
    {"text": "Labor supply response to cooling demand"}
  ]
}`

// fullScript holds a valid response for every phase so a full run
// completes. Votes land hawk=0, dove=-25, centrist=-25.
var fullScript = map[string]string{
	"blackboard":            blackboardResponse,
	"stance_cards:centrist": `{"preferred_delta_bps": 0, "top_reasons": [{"fact_id": "F01", "because": "growth is slowing but positive"}], "key_risks": [{"uncertainty_id": "U01", "note": "two-sided"}], "proposed_questions": ["What would make you cut faster?"]}`,
	"stance_cards:hawk":     `{"preferred_delta_bps": 25, "top_reasons": [{"fact_id": "F03", "because": "inflation above target"}], "key_risks": [{"uncertainty_id": "U01", "note": "tariffs"}], "proposed_questions": ["Why ease with core at 2.9%?"]}`,
	"stance_cards:dove":     `{"preferred_delta_bps": -25, "top_reasons": [{"fact_id": "F05", "because": "labor demand cooling"}], "key_risks": [{"uncertainty_id": "U02", "note": "supply"}], "proposed_questions": ["What if openings keep falling?"]}`,
	"opening":               `{"speech_md": "My read of the data follows.", "cited_facts": ["F01", "F03"], "cited_uncertainties": ["U01"], "ask_one_question": "How do you weigh the labor data?"}`,
	"chair_questions":       `{"chair_preface_md": "Let us test the disagreements.", "cited_facts": ["F01"], "directed_questions": [{"to_role": "hawk", "question": "Why ease with core at 2.9%?"}, {"to_role": "dove", "question": "What if openings keep falling?"}, {"to_role": "centrist", "question": "What would make you cut faster?"}]}`,
	"answers":               `{"speech_md": "Answering directly.", "cited_facts": ["F02"], "cited_uncertainties": ["U02"]}`,
	"round_summary":         `{"consensus": ["growth is slowing"], "disagreements": ["pace of easing"], "open_questions_next": ["tariff pass-through"], "statement_slot_notes": [{"slot_key": "policy_decision", "note": "lean toward a cut"}]}`,
	"packages":              `{"chair_transition_md": "Two packages for the vote.", "packages": [{"key": "A", "delta_bps": -25, "stance": "dovish", "guidance": "Further adjustments as warranted."}, {"key": "B", "delta_bps": 0, "stance": "neutral", "guidance": "Hold and watch the data."}]}`,
	"package_views":         `{"package_views": [{"package_key": "A", "view": "acceptable", "because": "labor is cooling", "cited_facts": ["F05"]}, {"package_key": "B", "view": "support", "because": "inflation above target", "cited_facts": ["F03"]}]}`,
	"votes:hawk":            `{"vote_delta_bps": 0, "reason": "inflation is not yet beaten", "cited_facts": ["F03"], "dissent": true, "dissent_sentence": "Preferred to hold at this meeting."}`,
	"votes:dove":            `{"vote_delta_bps": -25, "reason": "support the labor market", "cited_facts": ["F05"], "cited_uncertainties": ["U02"]}`,
	"votes:centrist":        `{"vote_delta_bps": -25, "reason": "insurance against slowdown", "cited_facts": ["F01"]}`,
	"drafts":                `{"statement_md": "# Decision\n\nThe committee voted 2:1 to lower the policy rate by 25 basis points.", "minutes_summary_md": "# Minutes\n\nMembers weighed cooling labor demand against above-target inflation.", "vote_split": "2:1"}`,
}

func scriptedGateway(overrides ...map[string]string) *gateway.StubGateway {
	gw := gateway.NewStubGateway()
	merged := map[string]string{}
	for k, v := range fullScript {
		merged[k] = v
	}
	for _, o := range overrides {
		for k, v := range o {
			merged[k] = v
		}
	}
	for k, v := range merged {
		gw.Script(k, v)
	}
	return gw
}

func newTestOrchestrator(t *testing.T, gw gateway.Gateway) *Orchestrator {
	t.Helper()
	return New(t.TempDir(), committee.Default(), gw, testMaterials)
}

// fullRunCalls is the gateway traffic of one uncached full run: 1
// blackboard + 3 stances + 3 openings + 1 chair + 3 answers + 2
// summaries + 1 packages + 3 views + 3 votes + 1 drafts.
const fullRunCalls = 21

func TestRunAll_ProducesAllArtifacts(t *testing.T) {
	gw := scriptedGateway()
	o := newTestOrchestrator(t, gw)

	m, err := o.RunAll(context.Background(), testMeeting, false)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if gw.Calls() != fullRunCalls {
		t.Errorf("gateway calls = %d, want %d", gw.Calls(), fullRunCalls)
	}

	for _, stage := range Order {
		if _, ok := m.Artifacts[string(stage)]; !ok {
			t.Errorf("manifest missing stage %s", stage)
		}
	}
	for _, side := range []string{"statement", "minutes_summary", "discussion"} {
		if _, ok := m.Artifacts[side]; !ok {
			t.Errorf("manifest missing side artifact %s", side)
		}
	}
}

func TestRunAll_TallyMatchesVotes(t *testing.T) {
	o := newTestOrchestrator(t, scriptedGateway())
	if _, err := o.RunAll(context.Background(), testMeeting, false); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	_, raw, err := o.GetStage(testMeeting, StageTally)
	if err != nil {
		t.Fatalf("GetStage(tally): %v", err)
	}
	var tally meeting.Tally
	if err := json.Unmarshal(raw, &tally); err != nil {
		t.Fatalf("unmarshal tally: %v", err)
	}

	if diff := cmp.Diff(map[int]int{-25: 2, 0: 1}, tally.Counts); diff != "" {
		t.Errorf("counts (-want +got):\n%s", diff)
	}
	if tally.MajorityDeltaBps != -25 {
		t.Errorf("majority = %d, want -25", tally.MajorityDeltaBps)
	}
	if len(tally.Dissenters) != 1 || tally.Dissenters[0].Role != "hawk" {
		t.Errorf("dissenters = %+v, want hawk", tally.Dissenters)
	}
	if tally.Dissenters[0].Sentence == "" {
		t.Error("hawk's dissent sentence was not carried")
	}
	if tally.Total != 3 {
		t.Errorf("total = %d, want 3", tally.Total)
	}
}

func TestRunAll_AllCitationsResolve(t *testing.T) {
	o := newTestOrchestrator(t, scriptedGateway())
	if _, err := o.RunAll(context.Background(), testMeeting, false); err != nil {
		t.Fatalf("RunAll: %v", err)
	}

	_, raw, err := o.GetStage(testMeeting, StageBlackboard)
	if err != nil {
		t.Fatalf("GetStage(blackboard): %v", err)
	}
	var bb blackboard.Blackboard
	if err := json.Unmarshal(raw, &bb); err != nil {
		t.Fatalf("unmarshal blackboard: %v", err)
	}
	if len(bb.Facts) != 5 {
		t.Fatalf("facts = %d, want 5", len(bb.Facts))
	}

	var cards []*meeting.StanceCard
	_, raw, _ = o.GetStage(testMeeting, StageStanceCards)
	if err := json.Unmarshal(raw, &cards); err != nil {
		t.Fatalf("unmarshal stance cards: %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("stance cards = %d, want 3", len(cards))
	}
	for _, c := range cards {
		if len(c.TopReasons) == 0 {
			t.Errorf("card %s cites no facts", c.Role)
		}
		var facts []string
		for _, r := range c.TopReasons {
			facts = append(facts, r.FactID)
		}
		if err := bb.ValidateCitations(facts, nil); err != nil {
			t.Errorf("card %s: %v", c.Role, err)
		}
	}

	var votes []*meeting.Vote
	_, raw, _ = o.GetStage(testMeeting, StageVotes)
	if err := json.Unmarshal(raw, &votes); err != nil {
		t.Fatalf("unmarshal votes: %v", err)
	}
	cfg := committee.Default()
	for _, v := range votes {
		if err := bb.ValidateCitations(v.CitedFacts, v.CitedUncertainties); err != nil {
			t.Errorf("vote %s: %v", v.Role, err)
		}
		if !cfg.Role(v.Role).AllowsDelta(v.VoteDeltaBps, nil) {
			t.Errorf("vote %s delta %d outside allowed set", v.Role, v.VoteDeltaBps)
		}
	}
}

func TestRunAll_CachedRunIsFree(t *testing.T) {
	gw := scriptedGateway()
	o := newTestOrchestrator(t, gw)

	first, err := o.RunAll(context.Background(), testMeeting, false)
	if err != nil {
		t.Fatalf("first RunAll: %v", err)
	}
	calls := gw.Calls()

	second, err := o.RunAll(context.Background(), testMeeting, false)
	if err != nil {
		t.Fatalf("second RunAll: %v", err)
	}
	if gw.Calls() != calls {
		t.Errorf("cached run made %d gateway calls", gw.Calls()-calls)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("manifest changed on cached run (-first +second):\n%s", diff)
	}
}

func TestEnsureStage_IdempotentByteIdentical(t *testing.T) {
	gw := scriptedGateway()
	o := newTestOrchestrator(t, gw)

	_, first, err := o.EnsureStage(context.Background(), testMeeting, StageBlackboard, false)
	if err != nil {
		t.Fatalf("EnsureStage: %v", err)
	}
	calls := gw.Calls()

	_, second, err := o.EnsureStage(context.Background(), testMeeting, StageBlackboard, false)
	if err != nil {
		t.Fatalf("EnsureStage cached: %v", err)
	}
	if gw.Calls() != calls {
		t.Errorf("cached EnsureStage made %d gateway calls", gw.Calls()-calls)
	}
	if string(first) != string(second) {
		t.Error("cached artifact is not byte-identical")
	}
}

func TestEnsureStage_RefreshOverwrites(t *testing.T) {
	gw := scriptedGateway()
	o := newTestOrchestrator(t, gw)

	info1, _, err := o.EnsureStage(context.Background(), testMeeting, StageBlackboard, false)
	if err != nil {
		t.Fatalf("EnsureStage: %v", err)
	}
	calls := gw.Calls()

	info2, _, err := o.EnsureStage(context.Background(), testMeeting, StageBlackboard, true)
	if err != nil {
		t.Fatalf("EnsureStage refresh: %v", err)
	}
	if gw.Calls() == calls {
		t.Error("refresh did not hit the gateway")
	}
	t1, err := time.Parse(time.RFC3339Nano, info1.UpdatedAt)
	if err != nil {
		t.Fatalf("parse updated_at: %v", err)
	}
	t2, err := time.Parse(time.RFC3339Nano, info2.UpdatedAt)
	if err != nil {
		t.Fatalf("parse updated_at: %v", err)
	}
	if !t2.After(t1) {
		t.Errorf("refresh did not advance updated_at: %s -> %s", info1.UpdatedAt, info2.UpdatedAt)
	}
}

func TestRunAll_DeterministicUnderStub(t *testing.T) {
	o1 := newTestOrchestrator(t, scriptedGateway())
	o2 := newTestOrchestrator(t, scriptedGateway())

	if _, err := o1.RunAll(context.Background(), testMeeting, false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := o2.RunAll(context.Background(), testMeeting, false); err != nil {
		t.Fatalf("second run: %v", err)
	}

	for _, stage := range Order {
		_, a, err := o1.GetStage(testMeeting, stage)
		if err != nil {
			t.Fatalf("get %s from first run: %v", stage, err)
		}
		_, b, err := o2.GetStage(testMeeting, stage)
		if err != nil {
			t.Fatalf("get %s from second run: %v", stage, err)
		}
		if string(a) != string(b) {
			t.Errorf("stage %s differs between independent runs", stage)
		}
	}
}

func TestEnsureStage_RecordsRetryCount(t *testing.T) {
	// Malformed output on the first two attempts, valid on the third.
	gw := gateway.NewStubGateway().Script("blackboard",
		"not json",
		"{ still broken",
		blackboardResponse)
	o := newTestOrchestrator(t, gw)

	info, _, err := o.EnsureStage(context.Background(), testMeeting, StageBlackboard, false)
	if err != nil {
		t.Fatalf("EnsureStage: %v", err)
	}
	// The count round-trips through the manifest JSON, so it reads back
	// as a float.
	if got := info.Meta["retries"]; got != float64(2) {
		t.Errorf("retries = %v, want 2", got)
	}

	m, err := o.Manifest(testMeeting)
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if got := m.Artifacts[string(StageBlackboard)].Meta["retries"]; got != float64(2) {
		t.Errorf("manifest retries = %v, want 2", got)
	}
}

func TestEnsureStage_BadCitationFailsStageKeepsPriorStages(t *testing.T) {
	// Openings cite a fact that does not exist; the repair budget is
	// exhausted on the same bad answer.
	gw := scriptedGateway(map[string]string{
		"opening": `{"speech_md": "Trust me.", "cited_facts": ["F99"], "ask_one_question": "Why?"}`,
	})
	o := newTestOrchestrator(t, gw)

	_, _, err := o.EnsureStage(context.Background(), testMeeting, StageOpening, false)
	var cerr *blackboard.CitationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CitationError, got %v", err)
	}

	// Upstream stages were generated on the way and stay queryable.
	for _, stage := range []Stage{StageBlackboard, StageStanceCards} {
		if _, _, err := o.GetStage(testMeeting, stage); err != nil {
			t.Errorf("prior stage %s unavailable after failure: %v", stage, err)
		}
	}
	// The failed stage itself was never persisted.
	if _, _, err := o.GetStage(testMeeting, StageOpening); !errors.Is(err, runstore.ErrNotFound) {
		t.Errorf("failed stage persisted: %v", err)
	}
}

func TestRunAll_ConcurrentWriterRejected(t *testing.T) {
	o := newTestOrchestrator(t, scriptedGateway())

	run, err := runstore.Open(o.root, testMeeting)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	lock, err := runstore.AcquireLock(run)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()

	if _, err := o.RunAll(context.Background(), testMeeting, false); !errors.Is(err, runstore.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestRunAll_CancelledBeforeWorkLeavesNoArtifacts(t *testing.T) {
	o := newTestOrchestrator(t, scriptedGateway())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.RunAll(ctx, testMeeting, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	m, err := o.Manifest(testMeeting)
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if len(m.Artifacts) != 0 {
		t.Errorf("cancelled run left artifacts: %v", m.Artifacts)
	}
}

func TestRunAll_AllMaterialsMissing(t *testing.T) {
	o := New(t.TempDir(), committee.Default(), scriptedGateway(), StaticMaterials{})

	if _, err := o.RunAll(context.Background(), testMeeting, false); !errors.Is(err, ErrMaterialMissing) {
		t.Fatalf("expected ErrMaterialMissing, got %v", err)
	}
}

func TestParseStage(t *testing.T) {
	if s, err := ParseStage("  Votes "); err != nil || s != StageVotes {
		t.Errorf("ParseStage(Votes) = %v, %v", s, err)
	}
	if _, err := ParseStage("minutes"); !errors.Is(err, ErrUnknownStage) {
		t.Errorf("expected ErrUnknownStage, got %v", err)
	}
}

func TestDirMaterials(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, testMeeting)
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, "macro.md"), []byte("macro text"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, "inflation.md"), []byte("cpi text"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, err := DirMaterials{Dir: dir}.Materials(context.Background(), testMeeting)
	if err != nil {
		t.Fatalf("Materials: %v", err)
	}
	want := meeting.Materials{Macro: "macro text", Inflation: "cpi text"}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("materials (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"employment", "policy-rule"}, m.Missing()); diff != "" {
		t.Errorf("missing (-want +got):\n%s", diff)
	}
}
