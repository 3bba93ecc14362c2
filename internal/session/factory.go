package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/memohai/chatsync/internal/audio"
	"github.com/memohai/chatsync/internal/channel"
	"github.com/memohai/chatsync/internal/docstore"
	"github.com/memohai/chatsync/internal/identity"
	"github.com/memohai/chatsync/internal/media"
	"github.com/memohai/chatsync/internal/message"
	"github.com/memohai/chatsync/internal/metrics"
	"github.com/memohai/chatsync/internal/playback"
)

// Config holds the shared dependencies of every session.
type Config struct {
	Subscriber    docstore.Subscriber
	Appender      docstore.Appender
	Uploader      media.Uploader
	RecordingsDir string
	MaxBytes      int64
	Metrics       *metrics.Metrics
}

type sessionKey struct {
	user    string
	channel channel.ID
}

// sharedPipeline is the single upload pipeline of a user on a channel,
// shared by the session and by HTTP uploads while anything holds it.
type sharedPipeline struct {
	pipeline *media.Pipeline
	refs     int
}

// Factory opens sessions and tracks the open ones so that out-of-band
// requests (HTTP uploads) share the state of the live screen.
type Factory struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	sessions  map[sessionKey]*Session
	pipelines map[sessionKey]*sharedPipeline
}

// NewFactory creates a session factory.
func NewFactory(log *slog.Logger, cfg Config) *Factory {
	if log == nil {
		log = slog.Default()
	}
	return &Factory{
		cfg:       cfg,
		logger:    log,
		sessions:  map[sessionKey]*Session{},
		pipelines: map[sessionKey]*sharedPipeline{},
	}
}

// Open attaches a new session of id to channelID. Events flow to notifier
// until Close.
func (f *Factory) Open(ctx context.Context, id identity.Identity, channelID channel.ID, notifier Notifier) (*Session, error) {
	if err := id.Require(); err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	key := sessionKey{user: id.UserID, channel: channelID}
	f.mu.Lock()
	if _, exists := f.sessions[key]; exists {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionOpen, channelID)
	}
	f.mu.Unlock()

	log := f.logger.With(
		slog.String("service", "session"),
		slog.String("user_id", id.UserID),
		slog.String("channel_id", string(channelID)),
	)
	service := message.NewService(f.logger, f.cfg.Appender, id)
	sink := audio.NewFileSink()
	s := &Session{
		identity:  id,
		channelID: channelID,
		logger:    log,
		notifier:  notifier,
		manager:   channel.NewManager(f.logger, f.cfg.Subscriber, id, channel.WithMetrics(f.cfg.Metrics)),
		store:     message.NewStore(),
		service:   service,
		pipeline:  f.acquirePipeline(key, id),
		sink:      sink,
		recorder: audio.NewRecorder(f.logger, f.cfg.RecordingsDir, sink, audio.WithRecorderMetrics(f.cfg.Metrics)),
		player:   playback.NewController(f.logger, remotePlayer{notifier: notifier}, f.cfg.Metrics),
	}
	detachUploads := s.pipeline.OnStateChange(s.setUploading)
	release := func() {
		detachUploads()
		f.releasePipeline(key)
	}
	s.recorder.OnStateChange(s.setRecording)
	s.player.OnTransition(func(_ playback.Transition, cursor playback.Cursor) {
		notifier.Playback(cursor)
	})

	sub, err := s.manager.Open(ctx, channelID, s.store, channel.Handlers{
		OnChange: notifier.Snapshot,
		OnError:  notifier.Error,
	})
	if err != nil {
		release()
		return nil, err
	}
	s.sub = sub

	f.mu.Lock()
	if _, exists := f.sessions[key]; exists {
		f.mu.Unlock()
		s.manager.CloseAll(ctx)
		release()
		return nil, fmt.Errorf("%w: %s", ErrSessionOpen, channelID)
	}
	f.sessions[key] = s
	f.mu.Unlock()
	s.onClose = func() {
		release()
		f.forget(key, s)
	}

	f.cfg.Metrics.SessionOpened()
	log.Info("session opened")
	return s, nil
}

// Lookup returns the open session of id on channelID.
func (f *Factory) Lookup(id identity.Identity, channelID channel.ID) (*Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionKey{user: id.UserID, channel: channelID}]
	return s, ok
}

// Len returns the number of open sessions.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// CloseAll closes every open session.
func (f *Factory) CloseAll(ctx context.Context) {
	f.mu.Lock()
	open := make([]*Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		open = append(open, s)
	}
	f.mu.Unlock()
	for _, s := range open {
		s.Close(ctx)
	}
}

// Upload sends asset to channelID through the pipeline of id on that
// channel. It is the same pipeline an open session uses, so at most one
// upload per user and channel runs whether or not a session is open.
func (f *Factory) Upload(ctx context.Context, id identity.Identity, channelID channel.ID, asset media.Asset) (string, error) {
	if err := id.Require(); err != nil {
		return "", err
	}
	if !channelID.Includes(id.UserID) {
		return "", fmt.Errorf("%w: %s", channel.ErrNotParticipant, channelID)
	}
	key := sessionKey{user: id.UserID, channel: channelID}
	p := f.acquirePipeline(key, id)
	defer f.releasePipeline(key)
	return p.Upload(ctx, string(channelID), asset)
}

// Uploading reports whether id has an upload running on channelID.
func (f *Factory) Uploading(id identity.Identity, channelID channel.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	shared, ok := f.pipelines[sessionKey{user: id.UserID, channel: channelID}]
	return ok && shared.pipeline.Uploading()
}

func (f *Factory) acquirePipeline(key sessionKey, id identity.Identity) *media.Pipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	shared, ok := f.pipelines[key]
	if !ok {
		service := message.NewService(f.logger, f.cfg.Appender, id)
		shared = &sharedPipeline{pipeline: media.NewPipeline(f.logger, f.cfg.Uploader, service,
			media.WithMaxBytes(f.cfg.MaxBytes), media.WithPipelineMetrics(f.cfg.Metrics))}
		f.pipelines[key] = shared
	}
	shared.refs++
	return shared.pipeline
}

func (f *Factory) releasePipeline(key sessionKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	shared, ok := f.pipelines[key]
	if !ok {
		return
	}
	shared.refs--
	if shared.refs <= 0 {
		delete(f.pipelines, key)
	}
}

func (f *Factory) forget(key sessionKey, s *Session) {
	f.mu.Lock()
	if f.sessions[key] == s {
		delete(f.sessions, key)
	}
	f.mu.Unlock()
	f.cfg.Metrics.SessionClosed()
}
