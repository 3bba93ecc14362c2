// Package postgres implements the document store on PostgreSQL. Appends
// fire a NOTIFY from an insert trigger; one LISTEN connection per store
// turns notifications into channel refreshes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memohai/chatsync/internal/docstore"
)

const (
	notifyChannel  = "chat_messages"
	listenRetry    = 2 * time.Second
	refreshTimeout = 10 * time.Second
)

// Store is a pgx backed docstore.Store.
type Store struct {
	pool   *pgxpool.Pool
	hub    *docstore.Hub
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ docstore.Store = (*Store)(nil)

// Open connects to dsn, applies migrations and starts the listener.
func Open(ctx context.Context, log *slog.Logger, dsn string) (*Store, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return New(log, pool), nil
}

// New wraps an existing pool. The schema must already be migrated.
func New(log *slog.Logger, pool *pgxpool.Pool) *Store {
	if log == nil {
		log = slog.Default()
	}
	listenCtx, cancel := context.WithCancel(context.Background())
	s := &Store{
		pool:   pool,
		hub:    docstore.NewHub(),
		logger: log.With(slog.String("docstore", "postgres")),
		cancel: cancel,
	}
	s.wg.Add(1)
	go s.listen(listenCtx)
	return s
}

// Subscribe opens a live query over channelID.
func (s *Store) Subscribe(ctx context.Context, channelID string, fn docstore.SnapshotFunc) (docstore.Unsubscribe, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, docstore.ErrChannelRequired
	}
	return s.hub.Subscribe(channelID, fn, s.loader(ctx, channelID))
}

// Append inserts rec. A nil CreatedAt takes the database clock.
func (s *Store) Append(ctx context.Context, channelID string, rec docstore.Record) (string, error) {
	if strings.TrimSpace(channelID) == "" {
		return "", docstore.ErrChannelRequired
	}
	if rec.SenderID == "" || rec.Type == "" {
		return "", fmt.Errorf("%w: sender and type are required", docstore.ErrInvalidRecord)
	}
	var id string
	err := s.pool.QueryRow(ctx, `
INSERT INTO messages (channel_id, sender_id, type, text, file_url, file_name, created_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
RETURNING id::text`,
		channelID, rec.SenderID, rec.Type, rec.Text, rec.FileURL, rec.FileName, rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

// ListProfiles returns every profile ordered by uid.
func (s *Store) ListProfiles(ctx context.Context) ([]docstore.Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT uid, name, email FROM users ORDER BY uid`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	profiles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (docstore.Profile, error) {
		var p docstore.Profile
		err := row.Scan(&p.UID, &p.Name, &p.Email)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan profiles: %w", err)
	}
	return profiles, nil
}

// UpsertProfile creates or replaces a profile.
func (s *Store) UpsertProfile(ctx context.Context, profile docstore.Profile) error {
	if strings.TrimSpace(profile.UID) == "" {
		return fmt.Errorf("%w: uid is required", docstore.ErrInvalidRecord)
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO users (uid, name, email) VALUES ($1, $2, $3)
ON CONFLICT (uid) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, updated_at = now()`,
		profile.UID, profile.Name, profile.Email)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Ping checks a pooled connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close stops the listener and subscriptions and closes the pool.
func (s *Store) Close() error {
	s.cancel()
	s.wg.Wait()
	s.hub.Close()
	s.pool.Close()
	return nil
}

func (s *Store) loader(ctx context.Context, channelID string) docstore.Loader {
	return func() ([]docstore.Record, error) {
		rows, err := s.pool.Query(ctx, `
SELECT id::text, channel_id, sender_id, type, text, file_url, file_name, created_at
FROM messages
WHERE channel_id = $1
ORDER BY created_at DESC, seq ASC`, channelID)
		if err != nil {
			return nil, fmt.Errorf("query messages: %w", err)
		}
		records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (docstore.Record, error) {
			var rec docstore.Record
			var createdAt time.Time
			err := row.Scan(&rec.ID, &rec.ChannelID, &rec.SenderID, &rec.Type, &rec.Text, &rec.FileURL, &rec.FileName, &createdAt)
			createdAt = createdAt.UTC()
			rec.CreatedAt = &createdAt
			return rec, err
		})
		if err != nil {
			return nil, fmt.Errorf("scan messages: %w", err)
		}
		docstore.SortNewestFirst(records)
		return records, nil
	}
}

func (s *Store) listen(ctx context.Context) {
	defer s.wg.Done()
	for {
		err := s.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("notification listener stopped", slog.Any("error", err))
		s.hub.Fail(fmt.Errorf("listen %s: %w", notifyChannel, err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(listenRetry):
		}
	}
}

func (s *Store) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener conn: %w", err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	// Catch up on anything written while the listener was down.
	for _, channelID := range s.hub.Channels() {
		s.refresh(channelID)
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("wait notification: %w", err)
		}
		s.refresh(n.Payload)
	}
}

func (s *Store) refresh(channelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	s.hub.Refresh(channelID, s.loader(ctx, channelID))
}
