// Package audio captures voice notes into local files that the media
// pipeline then uploads.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/memohai/chatsync/internal/media"
	"github.com/memohai/chatsync/internal/metrics"
)

const (
	// RecordingName is the display name of every recorded asset.
	RecordingName = "recording.aac"
	fileSuffix    = "_recording.aac"
)

// State is the recorder state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
)

// Device captures audio into a file.
type Device interface {
	// Start begins writing captured audio to path.
	Start(ctx context.Context, path string) error
	// Stop finalizes the recording and returns the written path.
	Stop(ctx context.Context) (string, error)
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the clock used for file names.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRecorderMetrics records outcomes on m.
func WithRecorderMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// Recorder is the single owner of a capture device. At most one recording
// is active at a time.
type Recorder struct {
	dir     string
	device  Device
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	state     State
	path      string
	observers []func(State)
}

// NewRecorder creates a recorder writing into dir.
func NewRecorder(log *slog.Logger, dir string, device Device, opts ...RecorderOption) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		dir:    dir,
		device: device,
		now:    time.Now,
		logger: log.With(slog.String("service", "audio")),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// OnStateChange registers fn to observe transitions.
func (r *Recorder) OnStateChange(fn func(State)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

// Start begins a recording into <dir>/<unix-ms>_recording.aac.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return ErrRecordingActive
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("create recordings dir: %w", err)
	}
	path := filepath.Join(r.dir, strconv.FormatInt(r.now().UnixMilli(), 10)+fileSuffix)
	if err := r.device.Start(ctx, path); err != nil {
		r.mu.Unlock()
		r.metrics.Recording("start_error")
		r.logger.Error("recording start failed", slog.String("path", path), slog.Any("error", err))
		return fmt.Errorf("start recording: %w", err)
	}
	r.state = StateRecording
	r.path = path
	observers := r.snapshotObservers()
	r.mu.Unlock()

	r.logger.Info("recording started", slog.String("path", path))
	notify(observers, StateRecording)
	return nil
}

// Stop finalizes the recording and returns it as an audio asset. The
// recorder is back in Idle when Stop returns, even on device failure.
func (r *Recorder) Stop(ctx context.Context) (media.Asset, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return media.Asset{}, ErrNotRecording
	}
	r.state = StateStopping
	path := r.path
	observers := r.snapshotObservers()
	r.mu.Unlock()
	notify(observers, StateStopping)

	written, err := r.device.Stop(ctx)

	r.mu.Lock()
	r.state = StateIdle
	r.path = ""
	observers = r.snapshotObservers()
	r.mu.Unlock()
	notify(observers, StateIdle)

	if err != nil {
		r.metrics.Recording("stop_error")
		r.logger.Error("recording stop failed", slog.String("path", path), slog.Any("error", err))
		return media.Asset{}, fmt.Errorf("stop recording: %w", err)
	}
	if written != "" {
		path = written
	}
	r.metrics.Recording("ok")
	r.logger.Info("recording finished", slog.String("path", path))
	return media.Asset{Path: path, Type: media.MediaTypeAudio, Name: RecordingName, Mime: "audio/aac"}, nil
}

func (r *Recorder) snapshotObservers() []func(State) {
	return append([]func(State){}, r.observers...)
}

func notify(observers []func(State), s State) {
	for _, fn := range observers {
		fn(s)
	}
}
