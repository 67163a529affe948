// Package runstore persists per-meeting pipeline artifacts. Each meeting
// owns one directory holding a manifest.json plus one file per stage
// artifact. The manifest is the single source of truth for what exists and
// when it was produced: an artifact file without a manifest entry is
// treated as absent and regenerated.
//
// Writes are atomic (temp file + rename) and the manifest is advanced in
// the same logical transaction: the artifact rename happens first, the
// manifest rename second, so a crash between the two leaves the stage
// unrecorded rather than half-recorded.
package runstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound means the requested artifact has no manifest entry.
	ErrNotFound = errors.New("runstore: artifact not found")
	// ErrManifestCorrupt means the manifest exists but cannot be trusted.
	// Fatal to the run; never auto-repaired by inference.
	ErrManifestCorrupt = errors.New("runstore: manifest corrupt")
	// ErrInvalidName means an artifact or meeting name survived
	// sanitization with nothing left.
	ErrInvalidName = errors.New("runstore: invalid name")
)

// ArtifactInfo is one manifest entry.
type ArtifactInfo struct {
	Path      string         `json:"path"` // relative to the run dir
	Bytes     int64          `json:"bytes"`
	UpdatedAt string         `json:"updated_at"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Manifest indexes one meeting's artifacts.
type Manifest struct {
	MeetingID string                  `json:"meeting_id"`
	CreatedAt string                  `json:"created_at"`
	UpdatedAt string                  `json:"updated_at"`
	Context   map[string]any          `json:"context"`
	Artifacts map[string]ArtifactInfo `json:"artifacts"`
}

// Run is an open handle on one meeting's directory.
type Run struct {
	MeetingID string
	Dir       string
}

func nowUTC() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// SanitizeName lowercases the name and strips everything outside
// [a-z0-9-_]. Caller-supplied names never reach the filesystem unfiltered.
func SanitizeName(name string) (string, error) {
	var b strings.Builder
	for _, ch := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
			b.WriteRune(ch)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return b.String(), nil
}

// Open ensures the run directory and manifest exist and returns the handle.
func Open(root, meetingID string) (*Run, error) {
	safe, err := SanitizeName(meetingID)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, safe)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("runstore: create run dir: %w", err)
	}
	run := &Run{MeetingID: safe, Dir: dir}

	if _, err := os.Stat(run.manifestPath()); errors.Is(err, os.ErrNotExist) {
		m := &Manifest{
			MeetingID: safe,
			CreatedAt: nowUTC(),
			UpdatedAt: nowUTC(),
			Context:   map[string]any{},
			Artifacts: map[string]ArtifactInfo{},
		}
		if err := run.saveManifest(m); err != nil {
			return nil, err
		}
	}
	return run, nil
}

func (r *Run) manifestPath() string { return filepath.Join(r.Dir, "manifest.json") }

// Manifest loads and validates the manifest.
func (r *Run) Manifest() (*Manifest, error) {
	data, err := os.ReadFile(r.manifestPath())
	if err != nil {
		return nil, fmt.Errorf("runstore: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
	}
	if m.MeetingID != r.MeetingID {
		return nil, fmt.Errorf("%w: meeting id %q does not match run %q", ErrManifestCorrupt, m.MeetingID, r.MeetingID)
	}
	if m.Artifacts == nil {
		m.Artifacts = map[string]ArtifactInfo{}
	}
	if m.Context == nil {
		m.Context = map[string]any{}
	}
	return &m, nil
}

func (r *Run) saveManifest(m *Manifest) error {
	m.UpdatedAt = nowUTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("runstore: marshal manifest: %w", err)
	}
	return atomicWrite(r.manifestPath(), data)
}

// SetContext replaces the manifest context block.
func (r *Run) SetContext(ctx map[string]any) error {
	m, err := r.Manifest()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = map[string]any{}
	}
	m.Context = ctx
	return r.saveManifest(m)
}

// Exists reports whether the manifest records the named artifact.
func (r *Run) Exists(name string) (bool, error) {
	safe, err := SanitizeName(name)
	if err != nil {
		return false, err
	}
	m, err := r.Manifest()
	if err != nil {
		return false, err
	}
	_, ok := m.Artifacts[safe]
	return ok, nil
}

// Info returns the manifest entry for an artifact.
func (r *Run) Info(name string) (*ArtifactInfo, error) {
	safe, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}
	m, err := r.Manifest()
	if err != nil {
		return nil, err
	}
	info, ok := m.Artifacts[safe]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, safe)
	}
	return &info, nil
}

// PutJSON writes a JSON artifact and records it in the manifest.
func (r *Run) PutJSON(name string, payload any, meta map[string]any) (*ArtifactInfo, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("runstore: marshal artifact %s: %w", name, err)
	}
	return r.put(name, "json", append(data, '\n'), meta)
}

// PutText writes a markdown artifact and records it in the manifest.
func (r *Run) PutText(name, text string, meta map[string]any) (*ArtifactInfo, error) {
	return r.put(name, "md", []byte(text), meta)
}

func (r *Run) put(name, ext string, data []byte, meta map[string]any) (*ArtifactInfo, error) {
	safe, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}

	// Validate the manifest before touching the artifact: a corrupt
	// manifest aborts the write entirely.
	m, err := r.Manifest()
	if err != nil {
		return nil, err
	}

	filename := safe + "." + ext
	if err := atomicWrite(filepath.Join(r.Dir, filename), data); err != nil {
		return nil, err
	}

	info := ArtifactInfo{
		Path:      filename,
		Bytes:     int64(len(data)),
		UpdatedAt: nowUTC(),
		Meta:      meta,
	}
	m.Artifacts[safe] = info
	if err := r.saveManifest(m); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetJSON reads a JSON artifact into out.
func (r *Run) GetJSON(name string, out any) (*ArtifactInfo, error) {
	info, data, err := r.get(name)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("runstore: parse artifact %s: %w", name, err)
	}
	return info, nil
}

// GetText reads a markdown artifact.
func (r *Run) GetText(name string) (*ArtifactInfo, string, error) {
	info, data, err := r.get(name)
	if err != nil {
		return nil, "", err
	}
	return info, string(data), nil
}

// GetRaw reads an artifact's bytes as recorded in the manifest.
func (r *Run) GetRaw(name string) (*ArtifactInfo, []byte, error) {
	return r.get(name)
}

func (r *Run) get(name string) (*ArtifactInfo, []byte, error) {
	info, err := r.Info(name)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(filepath.Join(r.Dir, info.Path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s (manifest entry without file)", ErrNotFound, name)
		}
		return nil, nil, fmt.Errorf("runstore: read artifact %s: %w", name, err)
	}
	return info, data, nil
}

// atomicWrite writes data to path via a temp file in the same directory
// plus rename, so readers never observe a partial file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("runstore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("runstore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("runstore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("runstore: rename temp: %w", err)
	}
	return nil
}
