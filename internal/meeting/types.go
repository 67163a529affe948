// Package meeting implements the deliberation agents of a policy-committee
// simulation: stance cards, public speech, chair control, secretary
// summaries, voting, tallying, and the final communique drafts. Every
// generated payload is parsed tolerantly, schema-checked, and
// citation-checked against the run's blackboard before it is accepted.
package meeting

import "strconv"

// Reason is one ranked argument on a stance card, tied to a fact.
type Reason struct {
	FactID  string `json:"fact_id"`
	Because string `json:"because"`
}

// Risk is one concern on a stance card, tied to an uncertainty.
type Risk struct {
	UncertaintyID string `json:"uncertainty_id"`
	Note          string `json:"note"`
}

// StanceCard is a role's private position, produced once per run.
type StanceCard struct {
	Role                  string   `json:"role"`
	PreferredDeltaBps     int      `json:"preferred_delta_bps"`
	TopReasons            []Reason `json:"top_reasons"`
	KeyRisks              []Risk   `json:"key_risks"`
	AcceptableCompromises []string `json:"acceptable_compromises,omitempty"`
	ProposedQuestions     []string `json:"proposed_questions,omitempty"`
}

// Utterance is one public speech block in the transcript.
type Utterance struct {
	Phase              string   `json:"phase"`
	Role               string   `json:"role"`
	SpeechMD           string   `json:"speech_md"`
	CitedFacts         []string `json:"cited_facts"`
	CitedUncertainties []string `json:"cited_uncertainties,omitempty"`
	AskOneQuestion     string   `json:"ask_one_question,omitempty"`
}

// DirectedQuestion is a chair question addressed to one role.
type DirectedQuestion struct {
	ToRole   string `json:"to_role"`
	Question string `json:"question"`
}

// ChairQuestions is the chair's interrogation round.
type ChairQuestions struct {
	ChairPrefaceMD    string             `json:"chair_preface_md"`
	CitedFacts        []string           `json:"cited_facts,omitempty"`
	DirectedQuestions []DirectedQuestion `json:"directed_questions"`
}

// SlotNote is drafting guidance for one statement slot, noted mid-round.
type SlotNote struct {
	SlotKey string `json:"slot_key"`
	Note    string `json:"note"`
}

// RoundSummary is the secretary's neutral synthesis of one round.
type RoundSummary struct {
	Round              string     `json:"round"`
	Consensus          []string   `json:"consensus"`
	Disagreements      []string   `json:"disagreements"`
	OpenQuestionsNext  []string   `json:"open_questions_next"`
	StatementSlotNotes []SlotNote `json:"statement_slot_notes"`
}

// PolicyPackage is one votable option the chair puts on the table. Its
// delta is always a member of the blackboard's policy menu.
type PolicyPackage struct {
	Key      string `json:"key"`
	DeltaBps int    `json:"delta_bps"`
	Stance   string `json:"stance"` // hawkish, neutral, dovish
	Guidance string `json:"guidance"`
}

// ChairPackages is the chair's package-proposal round.
type ChairPackages struct {
	ChairTransitionMD string          `json:"chair_transition_md"`
	Packages          []PolicyPackage `json:"packages"`
}

// PackageView is one role's verdict on one proposed package.
type PackageView struct {
	PackageKey string   `json:"package_key"`
	View       string   `json:"view"` // support, acceptable, oppose
	Because    string   `json:"because"`
	CitedFacts []string `json:"cited_facts"`
}

// RoleViews collects one role's verdicts across all packages.
type RoleViews struct {
	Role  string        `json:"role"`
	Views []PackageView `json:"package_views"`
}

// Vote is one role's formal vote.
type Vote struct {
	Role               string   `json:"role"`
	VoteDeltaBps       int      `json:"vote_delta_bps"`
	Reason             string   `json:"reason"`
	CitedFacts         []string `json:"cited_facts"`
	CitedUncertainties []string `json:"cited_uncertainties,omitempty"`
	Dissent            bool     `json:"dissent"`
	DissentSentence    string   `json:"dissent_sentence,omitempty"`
}

// Dissenter records a vote that landed off the majority delta.
type Dissenter struct {
	Role     string `json:"role"`
	DeltaBps int    `json:"delta_bps"`
	Sentence string `json:"sentence,omitempty"`
}

// Tally is the deterministic vote count for one run.
type Tally struct {
	Counts           map[int]int `json:"counts"` // delta -> votes
	MajorityDeltaBps int         `json:"majority_delta_bps"`
	Dissenters       []Dissenter `json:"dissenters"`
	Total            int         `json:"total"`
}

// VoteSplit renders the tally as "for:against", counting the majority
// bloc as "for". The drafts stage validates generated text against it.
func (t *Tally) VoteSplit() string {
	passed := t.Counts[t.MajorityDeltaBps]
	return strconv.Itoa(passed) + ":" + strconv.Itoa(t.Total-passed)
}

// CommuniqueDraft is the final written output of a run.
type CommuniqueDraft struct {
	StatementMD      string `json:"statement_md"`
	MinutesSummaryMD string `json:"minutes_summary_md"`
	VoteSplit        string `json:"vote_split"`
}
