package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSinkLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := NewFileSink()
	if _, err := sink.Write([]byte("early")); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("write before start: expected ErrSinkClosed, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "1_recording.aac")
	if err := sink.Start(ctx, path); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sink.Start(ctx, path); !errors.Is(err, ErrRecordingActive) {
		t.Fatalf("second start: expected ErrRecordingActive, got %v", err)
	}
	for _, chunk := range []string{"abc", "def"} {
		if _, err := sink.Write([]byte(chunk)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got, err := sink.Stop(ctx)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got != path {
		t.Fatalf("expected path %q, got %q", path, got)
	}
	if sink.Written() != 6 {
		t.Fatalf("expected 6 bytes written, got %d", sink.Written())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "abcdef" {
		t.Fatalf("unexpected content %q", data)
	}
	if _, err := sink.Stop(ctx); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("second stop: expected ErrNotRecording, got %v", err)
	}
}
