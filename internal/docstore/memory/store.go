// Package memory provides an in-process realtime document store. It is the
// default driver for single-node deployments and the store used by tests.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/chatsync/internal/docstore"
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the server clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPendingTimestamps makes Append deliver the new record first with an
// unresolved timestamp and then again once the timestamp is assigned, the
// way a remote store with local write latency behaves.
func WithPendingTimestamps() Option {
	return func(s *Store) { s.pending = true }
}

// Store keeps channels and profiles in memory.
type Store struct {
	mu       sync.RWMutex
	channels map[string][]docstore.Record
	profiles map[string]docstore.Profile
	hub      *docstore.Hub
	now      func() time.Time
	pending  bool
	closed   bool
	logger   *slog.Logger
}

var _ docstore.Store = (*Store)(nil)

// New creates an empty store.
func New(log *slog.Logger, opts ...Option) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		channels: map[string][]docstore.Record{},
		profiles: map[string]docstore.Profile{},
		hub:      docstore.NewHub(),
		now:      time.Now,
		logger:   log.With(slog.String("docstore", "memory")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe opens a live query over channelID.
func (s *Store) Subscribe(_ context.Context, channelID string, fn docstore.SnapshotFunc) (docstore.Unsubscribe, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, docstore.ErrChannelRequired
	}
	if s.isClosed() {
		return nil, docstore.ErrClosed
	}
	return s.hub.Subscribe(channelID, fn, s.loader(channelID))
}

// Append stores rec in channelID. A nil CreatedAt is resolved to the store
// clock; an explicit CreatedAt is kept.
func (s *Store) Append(_ context.Context, channelID string, rec docstore.Record) (string, error) {
	if strings.TrimSpace(channelID) == "" {
		return "", docstore.ErrChannelRequired
	}
	if rec.SenderID == "" || rec.Type == "" {
		return "", fmt.Errorf("%w: sender and type are required", docstore.ErrInvalidRecord)
	}
	rec.ID = uuid.NewString()
	rec.ChannelID = channelID
	serverTimestamp := rec.CreatedAt == nil
	if serverTimestamp && !s.pending {
		now := s.now().UTC()
		rec.CreatedAt = &now
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", docstore.ErrClosed
	}
	s.channels[channelID] = append(s.channels[channelID], rec)
	s.mu.Unlock()
	s.hub.Refresh(channelID, s.loader(channelID))

	if serverTimestamp && s.pending {
		s.resolve(channelID, rec.ID)
		s.hub.Refresh(channelID, s.loader(channelID))
	}
	s.logger.Debug("record appended", slog.String("channel_id", channelID), slog.String("id", rec.ID))
	return rec.ID, nil
}

func (s *Store) resolve(channelID, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.channels[channelID]
	for i := range records {
		if records[i].ID == id && records[i].CreatedAt == nil {
			now := s.now().UTC()
			records[i].CreatedAt = &now
			return
		}
	}
}

// ListProfiles returns every profile ordered by uid.
func (s *Store) ListProfiles(_ context.Context) ([]docstore.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}
	out := make([]docstore.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// UpsertProfile creates or replaces a profile.
func (s *Store) UpsertProfile(_ context.Context, profile docstore.Profile) error {
	if strings.TrimSpace(profile.UID) == "" {
		return fmt.Errorf("%w: uid is required", docstore.ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	s.profiles[profile.UID] = profile
	return nil
}

// Ping fails once the store is closed.
func (s *Store) Ping(_ context.Context) error {
	if s.isClosed() {
		return docstore.ErrClosed
	}
	return nil
}

// Close stops all subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Store) loader(channelID string) docstore.Loader {
	return func() ([]docstore.Record, error) {
		s.mu.RLock()
		records := make([]docstore.Record, len(s.channels[channelID]))
		copy(records, s.channels[channelID])
		s.mu.RUnlock()
		docstore.SortNewestFirst(records)
		return records, nil
	}
}
