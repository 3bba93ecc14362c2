package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/memohai/chatsync/internal/docstore"
	"github.com/memohai/chatsync/internal/identity"
	"github.com/memohai/chatsync/internal/message"
	"github.com/memohai/chatsync/internal/metrics"
)

// Handlers receive the results of a subscription. Both are optional. They
// run on the delivery goroutine, one snapshot at a time.
type Handlers struct {
	// OnChange receives the store contents after each applied snapshot.
	OnChange func(msgs []message.Message)
	// OnError receives listener failures.
	OnError func(err error)
}

// Subscription is one live query held by a Manager.
type Subscription struct {
	channelID ID
	store     *message.Store
	handlers  Handlers
	manager   *Manager

	// mu serializes deliveries with Close.
	mu          sync.Mutex
	closed      bool
	unsubscribe docstore.Unsubscribe
}

// ChannelID returns the subscribed channel.
func (s *Subscription) ChannelID() ID { return s.channelID }

// Store returns the local view fed by this subscription.
func (s *Subscription) Store() *message.Store { return s.store }

// Closed reports whether Close has run.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records subscription metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// Manager opens and releases channel subscriptions for one user.
type Manager struct {
	subscriber docstore.Subscriber
	identity   identity.Identity
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu     sync.Mutex
	subs   map[ID]*Subscription
	closed atomic.Bool
}

// NewManager creates a manager acting as id.
func NewManager(log *slog.Logger, subscriber docstore.Subscriber, id identity.Identity, opts ...Option) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		subscriber: subscriber,
		identity:   id,
		logger:     log.With(slog.String("component", "channel"), slog.String("user_id", id.UserID)),
		subs:       map[ID]*Subscription{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open subscribes to channelID and feeds every snapshot into store. The
// store is replaced wholesale on each snapshot; nothing is merged.
func (m *Manager) Open(ctx context.Context, channelID ID, store *message.Store, handlers Handlers) (*Subscription, error) {
	if err := m.identity.Require(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if strings.TrimSpace(string(channelID)) == "" {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, ErrChannelRequired)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: message store is required", ErrConfiguration)
	}
	if m.subscriber == nil {
		return nil, fmt.Errorf("%w: document store is required", ErrConfiguration)
	}
	if !channelID.Includes(m.identity.UserID) {
		return nil, fmt.Errorf("%w: %s", ErrNotParticipant, channelID)
	}
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}

	sub := &Subscription{channelID: channelID, store: store, handlers: handlers, manager: m}
	m.mu.Lock()
	if _, exists := m.subs[channelID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, channelID)
	}
	m.subs[channelID] = sub
	m.mu.Unlock()

	unsubscribe, err := m.subscriber.Subscribe(ctx, string(channelID), sub.deliver)
	if err != nil {
		m.forget(sub)
		m.logger.Error("subscribe failed", slog.String("channel_id", string(channelID)), slog.Any("error", err))
		return nil, fmt.Errorf("subscribe %s: %w", channelID, err)
	}

	sub.mu.Lock()
	if sub.closed {
		// Closed while Subscribe was in flight.
		sub.mu.Unlock()
		unsubscribe()
		return nil, ErrManagerClosed
	}
	sub.unsubscribe = unsubscribe
	sub.mu.Unlock()

	m.metrics.SubscriptionOpened()
	m.logger.Info("subscription opened", slog.String("channel_id", string(channelID)))
	return sub, nil
}

// Close detaches sub. It is idempotent. Once it returns no callback of sub
// touches the store. It must not be called from inside OnChange or OnError.
func (m *Manager) Close(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	unsubscribe := sub.unsubscribe
	sub.unsubscribe = nil
	sub.mu.Unlock()

	m.forget(sub)
	if unsubscribe != nil {
		unsubscribe()
		m.metrics.SubscriptionClosed()
		m.logger.Info("subscription closed", slog.String("channel_id", string(sub.channelID)))
	}
}

// CloseAll releases every open subscription and rejects later Opens.
func (m *Manager) CloseAll(_ context.Context) {
	m.closed.Store(true)
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()
	for _, sub := range subs {
		m.Close(sub)
	}
}

// Len returns the number of open subscriptions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Manager) forget(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[sub.channelID] == sub {
		delete(m.subs, sub.channelID)
	}
}

func (s *Subscription) deliver(snap docstore.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	m := s.manager
	defer func() {
		if r := recover(); r != nil {
			m.metrics.SnapshotDelivered("panic")
			m.logger.Error("snapshot callback panicked", slog.String("channel_id", string(s.channelID)), slog.Any("panic", r))
		}
	}()

	if snap.Err != nil {
		m.metrics.SnapshotDelivered("error")
		m.logger.Warn("snapshot listener error", slog.String("channel_id", string(s.channelID)), slog.Any("error", snap.Err))
		if s.handlers.OnError != nil {
			s.handlers.OnError(snap.Err)
		}
		return
	}

	msgs, failed := message.FromRecords(snap.Records)
	for _, f := range failed {
		m.logger.Warn("skip undecodable record", slog.String("channel_id", string(s.channelID)), slog.String("id", f.ID), slog.Any("error", f.Err))
	}
	m.metrics.RecordsDropped(len(failed))

	s.store.ReplaceAll(msgs)
	m.metrics.SnapshotDelivered("applied")
	if s.handlers.OnChange != nil {
		s.handlers.OnChange(s.store.Snapshot())
	}
}
