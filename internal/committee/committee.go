// Package committee holds the configured committee-member personas and the
// run-level tuning knobs. Roles are configuration, not runtime state: a
// meeting run reads this once and never mutates it.
package committee

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed committee.yaml
var defaultCommitteeYAML []byte

// Role is one committee-member persona.
type Role struct {
	ID          string `yaml:"id" json:"id"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	Bias        string `yaml:"bias" json:"bias"`
	Style       string `yaml:"style" json:"style"`
	// AllowedDeltas is this role's votable rate deltas in basis points.
	AllowedDeltas []int `yaml:"allowed_deltas_bps" json:"allowed_deltas_bps"`
}

// AllowsDelta reports whether d is in the role's allowed vote set, with
// crisisExtra appended when crisis mode is on.
func (r Role) AllowsDelta(d int, crisisExtra []int) bool {
	for _, a := range r.AllowedDeltas {
		if a == d {
			return true
		}
	}
	for _, a := range crisisExtra {
		if a == d {
			return true
		}
	}
	return false
}

// AllowedSet returns the role's allowed deltas, expanded by crisisExtra.
func (r Role) AllowedSet(crisisExtra []int) []int {
	out := make([]int, 0, len(r.AllowedDeltas)+len(crisisExtra))
	out = append(out, r.AllowedDeltas...)
	out = append(out, crisisExtra...)
	return out
}

// Config is the full committee configuration for a run.
type Config struct {
	Roles []Role `yaml:"roles"`

	// Blackboard caps.
	MaxFacts         int `yaml:"max_facts"`
	MaxUncertainties int `yaml:"max_uncertainties"`

	// Chair question selection bounds.
	MinQuestions int `yaml:"min_questions"`
	MaxQuestions int `yaml:"max_questions"`

	// MaxRepairs bounds the extract-validate-reprompt loop per generation.
	MaxRepairs int `yaml:"max_repairs"`

	// Parallel bounds concurrent per-role generation within a stage.
	Parallel int `yaml:"parallel"`

	// Crisis mode: keyword scan over blackboard facts; when any keyword
	// hits, CrisisDeltas join every role's allowed vote set.
	CrisisKeywords []string `yaml:"crisis_keywords"`
	CrisisDeltas   []int    `yaml:"crisis_deltas_bps"`
}

// Default returns the embedded three-member committee (centrist, hawk,
// dove) with standard caps.
func Default() *Config {
	cfg, err := Parse(defaultCommitteeYAML)
	if err != nil {
		panic(fmt.Sprintf("committee: embedded default invalid: %v", err))
	}
	return cfg
}

// Load reads a committee config from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("committee: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("committee: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses and validates committee YAML, filling zero-valued knobs
// with defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse committee yaml: %w", err)
	}

	if len(cfg.Roles) == 0 {
		return nil, fmt.Errorf("committee has no roles")
	}
	seen := make(map[string]bool, len(cfg.Roles))
	for i, r := range cfg.Roles {
		if r.ID == "" {
			return nil, fmt.Errorf("role %d has empty id", i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate role id %q", r.ID)
		}
		seen[r.ID] = true
		if len(r.AllowedDeltas) == 0 {
			return nil, fmt.Errorf("role %q has no allowed deltas", r.ID)
		}
	}

	if cfg.MaxFacts == 0 {
		cfg.MaxFacts = 28
	}
	if cfg.MaxUncertainties == 0 {
		cfg.MaxUncertainties = 8
	}
	if cfg.MinQuestions == 0 {
		cfg.MinQuestions = 3
	}
	if cfg.MaxQuestions == 0 {
		cfg.MaxQuestions = 6
	}
	if cfg.MaxRepairs == 0 {
		cfg.MaxRepairs = 2
	}
	if cfg.Parallel == 0 {
		cfg.Parallel = len(cfg.Roles)
	}
	if cfg.MinQuestions > cfg.MaxQuestions {
		return nil, fmt.Errorf("min_questions %d > max_questions %d", cfg.MinQuestions, cfg.MaxQuestions)
	}

	return &cfg, nil
}

// Role returns the role with the given id, or nil.
func (c *Config) Role(id string) *Role {
	for i := range c.Roles {
		if c.Roles[i].ID == id {
			return &c.Roles[i]
		}
	}
	return nil
}

// RoleIDs returns role ids in configuration order. This order is also the
// speaking order for opening statements.
func (c *Config) RoleIDs() []string {
	ids := make([]string, len(c.Roles))
	for i, r := range c.Roles {
		ids[i] = r.ID
	}
	return ids
}
