package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/memohai/chatsync/internal/media"
)

type fakeDevice struct {
	startFn func(ctx context.Context, path string) error
	stopFn  func(ctx context.Context) (string, error)
	started []string
	stops   int
}

func (d *fakeDevice) Start(ctx context.Context, path string) error {
	d.started = append(d.started, path)
	if d.startFn != nil {
		return d.startFn(ctx, path)
	}
	return nil
}

func (d *fakeDevice) Stop(ctx context.Context) (string, error) {
	d.stops++
	if d.stopFn != nil {
		return d.stopFn(ctx)
	}
	return "", nil
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.UnixMilli(1700000000123) }
}

func TestRecorderStartStop(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "Audio")
	device := &fakeDevice{}
	r := NewRecorder(nil, dir, device, WithClock(fixedClock()))

	var states []State
	r.OnStateChange(func(s State) { states = append(states, s) })

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("recordings dir not created: %v", err)
	}
	wantPath := filepath.Join(dir, "1700000000123_recording.aac")
	if len(device.started) != 1 || device.started[0] != wantPath {
		t.Fatalf("unexpected device start: %v", device.started)
	}
	if r.State() != StateRecording {
		t.Fatalf("expected recording, got %s", r.State())
	}

	asset, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	want := media.Asset{Path: wantPath, Type: media.MediaTypeAudio, Name: "recording.aac", Mime: "audio/aac"}
	if asset != want {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle, got %s", r.State())
	}
	wantStates := []State{StateRecording, StateStopping, StateIdle}
	if len(states) != len(wantStates) {
		t.Fatalf("unexpected transitions: %v", states)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Fatalf("unexpected transitions: %v", states)
		}
	}
}

func TestRecorderRejectsSecondStart(t *testing.T) {
	t.Parallel()

	device := &fakeDevice{}
	r := NewRecorder(nil, t.TempDir(), device)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrRecordingActive) {
		t.Fatalf("expected ErrRecordingActive, got %v", err)
	}
	if len(device.started) != 1 {
		t.Fatalf("device started %d times", len(device.started))
	}
}

func TestRecorderStopWithoutStart(t *testing.T) {
	t.Parallel()

	device := &fakeDevice{}
	r := NewRecorder(nil, t.TempDir(), device)
	if _, err := r.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
	if device.stops != 0 || r.State() != StateIdle {
		t.Fatalf("stop without start must be a no-op")
	}
}

func TestRecorderDeviceFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("mic busy")

	startFail := &fakeDevice{startFn: func(context.Context, string) error { return boom }}
	r := NewRecorder(nil, t.TempDir(), startFail)
	if err := r.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected device error, got %v", err)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle after failed start, got %s", r.State())
	}

	stopFail := &fakeDevice{stopFn: func(context.Context) (string, error) { return "", boom }}
	r = NewRecorder(nil, t.TempDir(), stopFail)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := r.Stop(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected device error, got %v", err)
	}
	if r.State() != StateIdle {
		t.Fatalf("expected idle after failed stop, got %s", r.State())
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("recorder should accept a new recording: %v", err)
	}
}

func TestRecorderRejectsStartWhileStopping(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	stopping := make(chan struct{})
	device := &fakeDevice{stopFn: func(context.Context) (string, error) {
		close(stopping)
		<-release
		return "", nil
	}}
	r := NewRecorder(nil, t.TempDir(), device)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = r.Stop(context.Background())
	}()
	<-stopping
	if r.State() != StateStopping {
		t.Fatalf("expected stopping, got %s", r.State())
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrRecordingActive) {
		t.Fatalf("expected ErrRecordingActive while stopping, got %v", err)
	}
	close(release)
	wg.Wait()
}

func TestRecorderWithFileSink(t *testing.T) {
	t.Parallel()

	sink := NewFileSink()
	r := NewRecorder(nil, t.TempDir(), sink)
	if _, err := sink.Write([]byte("early")); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed before start, got %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	for _, chunk := range []string{"chunk-1;", "chunk-2"} {
		if _, err := sink.Write([]byte(chunk)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	asset, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	data, err := os.ReadFile(asset.Path)
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if string(data) != "chunk-1;chunk-2" || sink.Written() != int64(len(data)) {
		t.Fatalf("unexpected recording content %q", data)
	}
}
