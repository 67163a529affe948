package meeting

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.md
var promptFS embed.FS

// promptTemplate is one prompt file: YAML front matter carrying identity
// and the system prompt, followed by a text/template body.
type promptTemplate struct {
	ID      string
	Version string
	System  string
	tmpl    *template.Template
}

type promptHeader struct {
	PromptID      string `yaml:"prompt_id"`
	PromptVersion string `yaml:"prompt_version"`
	SystemPrompt  string `yaml:"system_prompt"`
}

// loadPrompt reads prompts/<name>.md from the embedded set and parses it.
func loadPrompt(name string) (*promptTemplate, error) {
	raw, err := promptFS.ReadFile("prompts/" + name + ".md")
	if err != nil {
		return nil, fmt.Errorf("meeting: read prompt %s: %w", name, err)
	}
	header, body, err := splitFrontMatter(string(raw))
	if err != nil {
		return nil, fmt.Errorf("meeting: prompt %s: %w", name, err)
	}
	var h promptHeader
	if err := yaml.Unmarshal([]byte(header), &h); err != nil {
		return nil, fmt.Errorf("meeting: prompt %s front matter: %w", name, err)
	}
	if h.PromptID == "" {
		h.PromptID = name
	}
	if h.PromptVersion == "" {
		h.PromptVersion = "unknown"
	}
	tmpl, err := template.New(name).Parse(strings.TrimSpace(body))
	if err != nil {
		return nil, fmt.Errorf("meeting: parse prompt %s: %w", name, err)
	}
	return &promptTemplate{
		ID:      h.PromptID,
		Version: h.PromptVersion,
		System:  strings.TrimSpace(h.SystemPrompt),
		tmpl:    tmpl,
	}, nil
}

// splitFrontMatter separates the leading `---` block from the body.
func splitFrontMatter(raw string) (header, body string, err error) {
	if !strings.HasPrefix(raw, "---\n") {
		return "", "", fmt.Errorf("missing front matter")
	}
	rest := raw[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end == -1 {
		return "", "", fmt.Errorf("unterminated front matter")
	}
	return rest[:end], rest[end+len("\n---\n"):], nil
}

// Render executes the body template with the given params.
func (p *promptTemplate) Render(params map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("meeting: execute prompt %s: %w", p.tmpl.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// jsonString marshals v for embedding into a prompt body. Marshal failures
// cannot happen for the in-repo types that reach it.
func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// clip bounds briefing material fed into a prompt.
func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}
