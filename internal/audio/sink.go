package audio

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// FileSink is a Device fed by a remote client: the client captures audio
// and streams encoded chunks, which the sink appends to the file chosen on
// Start.
type FileSink struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	written int64
}

var _ Device = (*FileSink)(nil)

// NewFileSink creates an idle sink.
func NewFileSink() *FileSink {
	return &FileSink{}
}

// Start opens path for writing.
func (s *FileSink) Start(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return ErrRecordingActive
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open recording file: %w", err)
	}
	s.file = f
	s.path = path
	s.written = 0
	return nil
}

// Write appends a chunk to the open recording.
func (s *FileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return 0, ErrSinkClosed
	}
	n, err := s.file.Write(p)
	s.written += int64(n)
	return n, err
}

// Written returns the bytes written to the current or last recording.
func (s *FileSink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Stop syncs and closes the file.
func (s *FileSink) Stop(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return "", ErrNotRecording
	}
	f, path := s.file, s.path
	s.file = nil
	s.path = ""
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("sync recording: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close recording: %w", err)
	}
	return path, nil
}
