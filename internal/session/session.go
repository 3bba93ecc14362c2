// Package session holds the state behind one open chat screen: the live
// channel subscription, the local draft, the upload pipeline, the audio
// recorder and the playback controller.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/memohai/chatsync/internal/audio"
	"github.com/memohai/chatsync/internal/channel"
	"github.com/memohai/chatsync/internal/identity"
	"github.com/memohai/chatsync/internal/media"
	"github.com/memohai/chatsync/internal/message"
	"github.com/memohai/chatsync/internal/playback"
)

// Draft is the unsent local state of a screen.
type Draft struct {
	Text      string `json:"text"`
	Uploading bool   `json:"uploading"`
	Recording bool   `json:"recording"`
}

// Session is one chat screen of one user.
type Session struct {
	identity  identity.Identity
	channelID channel.ID
	logger    *slog.Logger
	notifier  Notifier

	manager  *channel.Manager
	sub      *channel.Subscription
	store    *message.Store
	service  *message.Service
	pipeline *media.Pipeline
	recorder *audio.Recorder
	sink     *audio.FileSink
	player   *playback.Controller

	mu      sync.Mutex
	draft   Draft
	sending bool
	closed  bool
	onClose func()
}

// Identity returns the user operating the session.
func (s *Session) Identity() identity.Identity { return s.identity }

// ChannelID returns the channel the session is attached to.
func (s *Session) ChannelID() channel.ID { return s.channelID }

// Messages returns the current ordered view of the channel.
func (s *Session) Messages() []message.Message { return s.store.Snapshot() }

// Draft returns a copy of the draft.
func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Cursor returns the playback cursor.
func (s *Session) Cursor() playback.Cursor { return s.player.Cursor() }

// SetDraft replaces the draft text.
func (s *Session) SetDraft(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.draft.Text = text
	return nil
}

// Send sends the draft text. The draft is cleared only after the store
// accepted the message; a failed send keeps it for the user to retry.
func (s *Session) Send(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if s.sending {
		s.mu.Unlock()
		return "", ErrSendInFlight
	}
	s.sending = true
	text := s.draft.Text
	s.mu.Unlock()

	id, err := s.service.SendText(ctx, string(s.channelID), text)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sending = false
	if err != nil {
		return "", err
	}
	if s.draft.Text == text {
		s.draft.Text = ""
	}
	return id, nil
}

// Upload stores asset and sends it as a media message.
func (s *Session) Upload(ctx context.Context, asset media.Asset) (string, error) {
	if s.isClosed() {
		return "", ErrClosed
	}
	return s.pipeline.Upload(ctx, string(s.channelID), asset)
}

// StartRecording starts capturing audio from the client.
func (s *Session) StartRecording(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.recorder.Start(ctx)
}

// WriteAudio appends a chunk streamed by the client to the open recording.
func (s *Session) WriteAudio(chunk []byte) error {
	_, err := s.sink.Write(chunk)
	return err
}

// StopRecording finalizes the recording and uploads it as an audio
// message. The local file is removed once the upload attempt completes.
func (s *Session) StopRecording(ctx context.Context) (string, error) {
	asset, err := s.recorder.Stop(ctx)
	if err != nil {
		return "", err
	}
	defer s.discard(asset.Path)
	if s.isClosed() {
		return "", ErrClosed
	}
	return s.pipeline.Upload(ctx, string(s.channelID), asset)
}

// Play toggles playback of an audio message from the current view.
func (s *Session) Play(ctx context.Context, messageID string) error {
	if s.isClosed() {
		return ErrClosed
	}
	msg, ok := s.store.Find(messageID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	m, ok := msg.Payload.(message.Media)
	if !ok || m.MediaKind != message.KindAudio {
		return fmt.Errorf("%w: %s", ErrNotAudio, messageID)
	}
	return s.player.Select(ctx, messageID, m.FileURL)
}

// Seek relocates the active playback.
func (s *Session) Seek(ctx context.Context, position time.Duration) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.player.Seek(ctx, position); err != nil {
		return err
	}
	s.notifier.Playback(s.player.Cursor())
	return nil
}

// Progress records the position reported by the client player.
func (s *Session) Progress(ctx context.Context, position, duration time.Duration) playback.Cursor {
	return s.player.Progress(ctx, position, duration)
}

// Close stops playback, abandons an open recording and detaches the
// subscription. It is idempotent.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	onClose := s.onClose
	s.mu.Unlock()

	s.player.Stop(ctx)
	if s.recorder.State() == audio.StateRecording {
		if asset, err := s.recorder.Stop(ctx); err == nil {
			s.discard(asset.Path)
		} else {
			s.logger.Warn("abandon recording failed", slog.Any("error", err))
		}
	}
	s.manager.CloseAll(ctx)
	if onClose != nil {
		onClose()
	}
	s.logger.Info("session closed")
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) discard(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("remove recording failed", slog.String("path", path), slog.Any("error", err))
	}
}

func (s *Session) setUploading(v bool) {
	s.mu.Lock()
	s.draft.Uploading = v
	s.mu.Unlock()
	s.notifier.Uploading(v)
}

func (s *Session) setRecording(state audio.State) {
	s.mu.Lock()
	s.draft.Recording = state != audio.StateIdle
	s.mu.Unlock()
	s.notifier.Recording(state)
}
