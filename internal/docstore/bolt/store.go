// Package bolt stores channels and profiles in an embedded bbolt file.
// Realtime delivery is in-process, so a bolt store serves a single node.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/memohai/chatsync/internal/docstore"
)

var (
	messagesBucket = []byte("messages")
	profilesBucket = []byte("profiles")
)

// Store is a bbolt backed docstore.Store.
type Store struct {
	db     *bolt.DB
	hub    *docstore.Hub
	now    func() time.Time
	logger *slog.Logger
}

var _ docstore.Store = (*Store)(nil)

// Open opens or creates the database file at path.
func Open(log *slog.Logger, path string) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{messagesBucket, profilesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}
	return &Store{
		db:     db,
		hub:    docstore.NewHub(),
		now:    time.Now,
		logger: log.With(slog.String("docstore", "bolt"), slog.String("path", path)),
	}, nil
}

// Subscribe opens a live query over channelID.
func (s *Store) Subscribe(_ context.Context, channelID string, fn docstore.SnapshotFunc) (docstore.Unsubscribe, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, docstore.ErrChannelRequired
	}
	return s.hub.Subscribe(channelID, fn, s.loader(channelID))
}

// Append writes rec under the channel's bucket. Keys are the bucket
// sequence, so iteration order is insertion order.
func (s *Store) Append(_ context.Context, channelID string, rec docstore.Record) (string, error) {
	if strings.TrimSpace(channelID) == "" {
		return "", docstore.ErrChannelRequired
	}
	if rec.SenderID == "" || rec.Type == "" {
		return "", fmt.Errorf("%w: sender and type are required", docstore.ErrInvalidRecord)
	}
	rec.ID = uuid.NewString()
	rec.ChannelID = channelID
	if rec.CreatedAt == nil {
		now := s.now().UTC()
		rec.CreatedAt = &now
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.Bucket(messagesBucket).CreateBucketIfNotExists([]byte(channelID))
		if err != nil {
			return err
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		return bucket.Put(sequenceKey(seq), payload)
	})
	if err != nil {
		return "", fmt.Errorf("append record: %w", err)
	}
	s.hub.Refresh(channelID, s.loader(channelID))
	return rec.ID, nil
}

// ListProfiles returns every profile in key order.
func (s *Store) ListProfiles(_ context.Context) ([]docstore.Profile, error) {
	var out []docstore.Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(profilesBucket).ForEach(func(_, v []byte) error {
			var p docstore.Profile
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

// UpsertProfile creates or replaces a profile keyed by uid.
func (s *Store) UpsertProfile(_ context.Context, profile docstore.Profile) error {
	if strings.TrimSpace(profile.UID) == "" {
		return fmt.Errorf("%w: uid is required", docstore.ErrInvalidRecord)
	}
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(profilesBucket).Put([]byte(profile.UID), payload)
	}); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Ping runs an empty read transaction.
func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(messagesBucket) == nil {
			return fmt.Errorf("bucket %s missing", messagesBucket)
		}
		return nil
	})
}

// Close stops subscriptions and closes the file.
func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}

func (s *Store) loader(channelID string) docstore.Loader {
	return func() ([]docstore.Record, error) {
		var records []docstore.Record
		err := s.db.View(func(tx *bolt.Tx) error {
			bucket := tx.Bucket(messagesBucket).Bucket([]byte(channelID))
			if bucket == nil {
				return nil
			}
			return bucket.ForEach(func(k, v []byte) error {
				var rec docstore.Record
				if err := json.Unmarshal(v, &rec); err != nil {
					s.logger.Warn("skip undecodable record", slog.String("channel_id", channelID), slog.Uint64("seq", binary.BigEndian.Uint64(k)), slog.Any("error", err))
					return nil
				}
				records = append(records, rec)
				return nil
			})
		})
		if err != nil {
			return nil, fmt.Errorf("load channel: %w", err)
		}
		docstore.SortNewestFirst(records)
		return records, nil
	}
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
