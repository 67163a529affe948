package meeting

import (
	"strings"
	"testing"
)

var allPrompts = []string{
	"blackboard",
	"stance_card",
	"public_speech",
	"chair_questions",
	"chair_packages",
	"package_views",
	"vote",
	"round_summary",
	"statement_minutes",
}

func TestLoadPrompt_AllEmbedded(t *testing.T) {
	for _, name := range allPrompts {
		p, err := loadPrompt(name)
		if err != nil {
			t.Fatalf("loadPrompt(%s): %v", name, err)
		}
		if p.ID == "" || p.Version == "" || p.Version == "unknown" {
			t.Errorf("%s: incomplete front matter: id=%q version=%q", name, p.ID, p.Version)
		}
		if p.System == "" {
			t.Errorf("%s: empty system prompt", name)
		}
		if !strings.Contains(p.System, "JSON object") {
			t.Errorf("%s: system prompt does not pin the output contract", name)
		}
	}
}

func TestLoadPrompt_Unknown(t *testing.T) {
	if _, err := loadPrompt("no_such_prompt"); err == nil {
		t.Error("expected error for unknown prompt")
	}
}

func TestPromptRender_Substitutes(t *testing.T) {
	p, err := loadPrompt("stance_card")
	if err != nil {
		t.Fatalf("loadPrompt: %v", err)
	}
	out, err := p.Render(map[string]any{
		"role_display_name":       "Governor Dove",
		"role_bias":               "growth first",
		"role_style":              "plainspoken",
		"allowed_vote_deltas_bps": "[-25,0,25]",
		"blackboard_json":         `{"facts":[]}`,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "Governor Dove") {
		t.Errorf("render lost the role name:\n%s", out)
	}
	if !strings.Contains(out, "[-25,0,25]") {
		t.Errorf("render lost the allowed deltas:\n%s", out)
	}
	if strings.Contains(out, "{{") {
		t.Errorf("unexpanded template action in output:\n%s", out)
	}
}

func TestSplitFrontMatter(t *testing.T) {
	header, body, err := splitFrontMatter("---\nprompt_id: x\n---\nbody text")
	if err != nil {
		t.Fatalf("splitFrontMatter: %v", err)
	}
	if header != "prompt_id: x" || body != "body text" {
		t.Errorf("header=%q body=%q", header, body)
	}

	if _, _, err := splitFrontMatter("no front matter"); err == nil {
		t.Error("expected error without front matter")
	}
	if _, _, err := splitFrontMatter("---\nunterminated"); err == nil {
		t.Error("expected error for unterminated front matter")
	}
}
