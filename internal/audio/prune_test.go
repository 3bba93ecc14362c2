package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPruneRecordings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	files := map[string]time.Time{
		"1_recording.aac": now.Add(-48 * time.Hour),
		"2_recording.aac": now.Add(-time.Minute),
		"notes.txt":       now.Add(-72 * time.Hour),
	}
	for name, mod := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed, err := PruneRecordings(dir, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "1_recording.aac")); !os.IsNotExist(err) {
		t.Fatalf("old recording should be removed")
	}
	for _, keep := range []string{"2_recording.aac", "notes.txt"} {
		if _, err := os.Stat(filepath.Join(dir, keep)); err != nil {
			t.Fatalf("%s should be kept: %v", keep, err)
		}
	}
}

func TestPruneRecordingsMissingDir(t *testing.T) {
	t.Parallel()

	removed, err := PruneRecordings(filepath.Join(t.TempDir(), "nope"), time.Hour, time.Now())
	if err != nil || removed != 0 {
		t.Fatalf("expected no-op, got %d %v", removed, err)
	}
}
