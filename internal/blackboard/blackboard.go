// Package blackboard defines the shared, citable fact base a meeting run
// deliberates over. A blackboard is built once per run from the four
// briefing texts and never patched in place; refresh rebuilds it whole.
package blackboard

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Source tags for facts. Every fact traces to exactly one briefing text.
const (
	SourceMacro      = "macro"
	SourceEmployment = "employment"
	SourceInflation  = "inflation"
	SourcePolicyRule = "policy-rule"
)

// Sources lists the four briefing sources in canonical order.
var Sources = []string{SourceMacro, SourceEmployment, SourceInflation, SourcePolicyRule}

// Fact is one citable point distilled from a briefing text.
type Fact struct {
	ID     string `json:"id"`     // F01, F02, ...
	Text   string `json:"text"`
	Source string `json:"source"` // one of Sources
}

// Uncertainty is a citable open risk the committee cannot resolve from data.
type Uncertainty struct {
	ID   string `json:"id"` // U01, U02, ...
	Text string `json:"text"`
}

// PolicyOption is one entry of the votable policy menu.
type PolicyOption struct {
	Key      string `json:"key"`       // cut_25, hold, hike_25
	DeltaBps int    `json:"delta_bps"` // -25, 0, +25
	Label    string `json:"label"`
}

// StatementSlot carries drafting guidance for one slot of the final
// decision statement.
type StatementSlot struct {
	Key      string `json:"key"`
	Guidance string `json:"guidance"`
}

// Rules records the citation and voting constraints active for the run.
type Rules struct {
	FactsMustBeCited bool  `json:"facts_must_be_cited"`
	AllowedVoteDeltas []int `json:"allowed_vote_deltas_bps"`
}

// Blackboard is the shared fact base for one meeting run.
type Blackboard struct {
	MeetingID      string          `json:"meeting_id"`
	Facts          []Fact          `json:"facts"`
	Uncertainties  []Uncertainty   `json:"uncertainties"`
	PolicyMenu     []PolicyOption  `json:"policy_menu"`
	StatementSlots []StatementSlot `json:"statement_slots"`
	MissingSources []string        `json:"missing_sources,omitempty"` // briefing texts absent at build time
	Rules          Rules           `json:"rules"`
}

// statementSlotKeys is the closed set of slots the drafting stage knows.
var statementSlotKeys = map[string]bool{
	"economic_activity":    true,
	"labor":                true,
	"inflation":            true,
	"financial_conditions": true,
	"risks":                true,
	"policy_decision":      true,
	"forward_guidance":     true,
	"balance_sheet":        true,
}

var defaultMenu = []PolicyOption{
	{Key: "cut_25", DeltaBps: -25, Label: "Cut 25bp"},
	{Key: "hold", DeltaBps: 0, Label: "Hold"},
	{Key: "hike_25", DeltaBps: 25, Label: "Hike 25bp"},
}

// menuKeys maps the closed set of menu keys to their required deltas.
var menuKeys = map[string]int{"cut_25": -25, "hold": 0, "hike_25": 25}

// FactID formats the 1-based index i as a fact id (F01, F02, ...).
func FactID(i int) string { return fmt.Sprintf("F%02d", i) }

// UncertaintyID formats the 1-based index i as an uncertainty id (U01, ...).
func UncertaintyID(i int) string { return fmt.Sprintf("U%02d", i) }

var wsRe = regexp.MustCompile(`\s+`)

// NormalizeWS collapses runs of whitespace to single spaces and trims.
func NormalizeWS(s string) string {
	return wsRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// RawPayload is the shape the generation backend is asked to produce for
// the blackboard stage, before normalization.
type RawPayload struct {
	Facts []struct {
		Text   string `json:"text"`
		Source string `json:"source"`
	} `json:"facts"`
	Uncertainties []struct {
		Text string `json:"text"`
	} `json:"uncertainties"`
	PolicyMenu []struct {
		Key      string `json:"key"`
		DeltaBps *int   `json:"delta_bps"`
		Label    string `json:"label"`
	} `json:"policy_menu"`
	StatementSlots []struct {
		Key      string `json:"key"`
		Guidance string `json:"guidance"`
	} `json:"statement_slots"`
}

// Normalize turns a raw generated payload into a validated Blackboard.
//
// Facts with an unknown source or empty text are dropped; ids are assigned
// after filtering so the numbering is dense. Caps bound the fact and
// uncertainty counts. An empty or invalid policy menu falls back to the
// default three-option menu, and missing statement slots fall back to the
// full slot set with empty guidance.
func Normalize(meetingID string, raw *RawPayload, maxFacts, maxUncertainties int, missingSources []string) *Blackboard {
	bb := &Blackboard{
		MeetingID:      meetingID,
		MissingSources: missingSources,
		Rules: Rules{
			FactsMustBeCited:  true,
			AllowedVoteDeltas: []int{-25, 0, 25},
		},
	}

	known := make(map[string]bool, len(Sources))
	for _, s := range Sources {
		known[s] = true
	}

	for _, f := range raw.Facts {
		if len(bb.Facts) >= maxFacts {
			break
		}
		text := NormalizeWS(f.Text)
		source := strings.ToLower(strings.TrimSpace(f.Source))
		if text == "" || !known[source] {
			continue
		}
		bb.Facts = append(bb.Facts, Fact{ID: FactID(len(bb.Facts) + 1), Text: text, Source: source})
	}

	for _, u := range raw.Uncertainties {
		if len(bb.Uncertainties) >= maxUncertainties {
			break
		}
		text := NormalizeWS(u.Text)
		if text == "" {
			continue
		}
		bb.Uncertainties = append(bb.Uncertainties, Uncertainty{ID: UncertaintyID(len(bb.Uncertainties) + 1), Text: text})
	}

	for _, it := range raw.PolicyMenu {
		key := strings.TrimSpace(it.Key)
		wantDelta, ok := menuKeys[key]
		if !ok || it.DeltaBps == nil || *it.DeltaBps != wantDelta {
			continue
		}
		label := strings.TrimSpace(it.Label)
		if label == "" {
			label = key
		}
		bb.PolicyMenu = append(bb.PolicyMenu, PolicyOption{Key: key, DeltaBps: wantDelta, Label: label})
	}
	if len(bb.PolicyMenu) == 0 {
		bb.PolicyMenu = append(bb.PolicyMenu, defaultMenu...)
	}

	for _, it := range raw.StatementSlots {
		key := strings.TrimSpace(it.Key)
		if !statementSlotKeys[key] {
			continue
		}
		bb.StatementSlots = append(bb.StatementSlots, StatementSlot{Key: key, Guidance: strings.TrimSpace(it.Guidance)})
	}
	if len(bb.StatementSlots) == 0 {
		keys := make([]string, 0, len(statementSlotKeys))
		for k := range statementSlotKeys {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			bb.StatementSlots = append(bb.StatementSlots, StatementSlot{Key: k})
		}
	}

	return bb
}

// MenuDeltas returns the set of deltas present in the policy menu.
func (b *Blackboard) MenuDeltas() map[int]bool {
	m := make(map[int]bool, len(b.PolicyMenu))
	for _, it := range b.PolicyMenu {
		m[it.DeltaBps] = true
	}
	return m
}
