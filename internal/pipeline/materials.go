package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"plenum/internal/meeting"
)

// DirMaterials reads briefing texts from <dir>/<meetingID>/<name>.md.
// A missing file is a valid degenerate case and reads as empty; any
// other I/O failure is an error.
type DirMaterials struct {
	Dir string
}

var materialFiles = []struct {
	name string
	get  func(m *meeting.Materials) *string
}{
	{"macro", func(m *meeting.Materials) *string { return &m.Macro }},
	{"employment", func(m *meeting.Materials) *string { return &m.Employment }},
	{"inflation", func(m *meeting.Materials) *string { return &m.Inflation }},
	{"policy_rule", func(m *meeting.Materials) *string { return &m.PolicyRule }},
}

func (d DirMaterials) Materials(_ context.Context, meetingID string) (meeting.Materials, error) {
	var m meeting.Materials
	base := filepath.Join(d.Dir, meetingID)
	for _, f := range materialFiles {
		data, err := os.ReadFile(filepath.Join(base, f.name+".md"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return meeting.Materials{}, fmt.Errorf("pipeline: read briefing %s: %w", f.name, err)
		}
		*f.get(&m) = string(data)
	}
	return m, nil
}

// StaticMaterials serves one fixed set of briefing texts for every
// meeting id.
type StaticMaterials struct {
	M meeting.Materials
}

func (s StaticMaterials) Materials(context.Context, string) (meeting.Materials, error) {
	return s.M, nil
}
