package audio

import "errors"

var (
	// ErrRecordingActive indicates Start while a recording is running or
	// being finalized.
	ErrRecordingActive = errors.New("a recording is already active")
	// ErrNotRecording indicates Stop without a running recording.
	ErrNotRecording = errors.New("no recording in progress")
	// ErrSinkClosed indicates audio data written outside a recording.
	ErrSinkClosed = errors.New("audio sink is not recording")
)
