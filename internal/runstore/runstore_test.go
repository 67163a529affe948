package runstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func openTestRun(t *testing.T) *Run {
	t.Helper()
	run, err := Open(t.TempDir(), "2025-09-17")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return run
}

func TestOpen_CreatesManifest(t *testing.T) {
	run := openTestRun(t)

	m, err := run.Manifest()
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if m.MeetingID != "2025-09-17" {
		t.Errorf("meeting id = %q", m.MeetingID)
	}
	if m.CreatedAt == "" || m.UpdatedAt == "" {
		t.Error("timestamps missing")
	}
	if len(m.Artifacts) != 0 {
		t.Errorf("fresh run has artifacts: %v", m.Artifacts)
	}
}

func TestOpen_Reentrant(t *testing.T) {
	root := t.TempDir()
	run1, err := Open(root, "2025-09-17")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := run1.PutJSON("tally", map[string]int{"0": 3}, nil); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}

	run2, err := Open(root, "2025-09-17")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	ok, err := run2.Exists("tally")
	if err != nil || !ok {
		t.Errorf("Exists after reopen = %v, %v", ok, err)
	}
}

func TestPutGetJSON_RoundTrip(t *testing.T) {
	run := openTestRun(t)

	payload := map[string]any{"facts": []any{"F01"}}
	info, err := run.PutJSON("blackboard", payload, map[string]any{"kind": "blackboard"})
	if err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	if info.Path != "blackboard.json" || info.Bytes == 0 {
		t.Errorf("info = %+v", info)
	}

	var got map[string]any
	if _, err := run.GetJSON("blackboard", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if diff := cmp.Diff(payload, got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}

func TestPutText_ManifestMeta(t *testing.T) {
	run := openTestRun(t)

	if _, err := run.PutText("statement", "# Decision\n", map[string]any{"kind": "statement"}); err != nil {
		t.Fatalf("PutText: %v", err)
	}

	info, err := run.Info("statement")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Path != "statement.md" {
		t.Errorf("path = %q", info.Path)
	}
	if info.Meta["kind"] != "statement" {
		t.Errorf("meta = %v", info.Meta)
	}

	_, text, err := run.GetText("statement")
	if err != nil || text != "# Decision\n" {
		t.Errorf("GetText = %q, %v", text, err)
	}
}

func TestGet_NotFound(t *testing.T) {
	run := openTestRun(t)
	var out map[string]any
	if _, err := run.GetJSON("votes", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOverwrite_AdvancesUpdatedAt(t *testing.T) {
	run := openTestRun(t)

	first, err := run.PutJSON("votes", map[string]int{"v": 1}, nil)
	if err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	second, err := run.PutJSON("votes", map[string]int{"v": 2}, nil)
	if err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	t1, err := time.Parse(time.RFC3339Nano, first.UpdatedAt)
	if err != nil {
		t.Fatalf("parse first updated_at: %v", err)
	}
	t2, err := time.Parse(time.RFC3339Nano, second.UpdatedAt)
	if err != nil {
		t.Fatalf("parse second updated_at: %v", err)
	}
	if !t2.After(t1) {
		t.Errorf("updated_at did not advance: %s -> %s", first.UpdatedAt, second.UpdatedAt)
	}

	var got map[string]int
	if _, err := run.GetJSON("votes", &got); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if got["v"] != 2 {
		t.Errorf("v = %d, want overwritten value 2", got["v"])
	}
}

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Blackboard", "blackboard"},
		{"round_summary", "round_summary"},
		{"2025-09-17", "2025-09-17"},
		{"  spaced name  ", "spacedname"},
		{"../../etc/passwd", "etcpasswd"},
	}
	for _, tc := range cases {
		got, err := SanitizeName(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("SanitizeName(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
	if _, err := SanitizeName("///"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func TestManifestCorrupt(t *testing.T) {
	run := openTestRun(t)
	if err := os.WriteFile(filepath.Join(run.Dir, "manifest.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt manifest: %v", err)
	}

	if _, err := run.Manifest(); !errors.Is(err, ErrManifestCorrupt) {
		t.Errorf("expected ErrManifestCorrupt, got %v", err)
	}
	// A corrupt manifest must abort writes, not be overwritten by them.
	if _, err := run.PutJSON("votes", map[string]int{}, nil); !errors.Is(err, ErrManifestCorrupt) {
		t.Errorf("put on corrupt manifest: %v", err)
	}
}

func TestManifestCorrupt_WrongMeeting(t *testing.T) {
	run := openTestRun(t)
	data := `{"meeting_id": "someone-else", "artifacts": {}}`
	if err := os.WriteFile(filepath.Join(run.Dir, "manifest.json"), []byte(data), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := run.Manifest(); !errors.Is(err, ErrManifestCorrupt) {
		t.Errorf("expected ErrManifestCorrupt, got %v", err)
	}
}

func TestAtomicWrite_NoPartialFiles(t *testing.T) {
	run := openTestRun(t)
	if _, err := run.PutText("discussion", strings.Repeat("x", 1<<16), nil); err != nil {
		t.Fatalf("PutText: %v", err)
	}

	entries, err := os.ReadDir(run.Dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestSetContext(t *testing.T) {
	run := openTestRun(t)
	if err := run.SetContext(map[string]any{"materials": "ready"}); err != nil {
		t.Fatalf("SetContext: %v", err)
	}
	m, err := run.Manifest()
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if m.Context["materials"] != "ready" {
		t.Errorf("context = %v", m.Context)
	}
}

func TestLock_SingleWriter(t *testing.T) {
	run := openTestRun(t)

	l1, err := AcquireLock(run)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if _, err := AcquireLock(run); !errors.Is(err, ErrLocked) {
		t.Errorf("second acquire: expected ErrLocked, got %v", err)
	}

	if err := l1.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	l2, err := AcquireLock(run)
	if err != nil {
		t.Errorf("acquire after release: %v", err)
	}
	l2.Release()
}
