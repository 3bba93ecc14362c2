// Package mongo implements the document store on MongoDB. Each
// subscription owns a change stream filtered to its channel and re-reads the
// channel on every change. Change streams require a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/memohai/chatsync/internal/docstore"
)

const (
	messagesCollection = "messages"
	usersCollection    = "users"
	connectTimeout     = 10 * time.Second
)

// Store is a mongo-driver backed docstore.Store.
type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	messages *mongo.Collection
	users    *mongo.Collection
	logger   *slog.Logger
	owned    bool
}

var _ docstore.Store = (*Store)(nil)

// Connect dials uri, pings the server and ensures indexes.
func Connect(ctx context.Context, log *slog.Logger, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	s := New(log, client.Database(database))
	s.owned = true
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle. Close does not disconnect it.
func New(log *slog.Logger, db *mongo.Database) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		client:   db.Client(),
		db:       db,
		messages: db.Collection(messagesCollection),
		users:    db.Collection(usersCollection),
		logger:   log.With(slog.String("docstore", "mongo")),
	}
}

// Database exposes the handle so GridFS storage can share the connection.
func (s *Store) Database() *mongo.Database { return s.db }

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "channel_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create message index: %w", err)
	}
	return nil
}

// Subscribe opens a change stream for channelID, delivers the initial
// snapshot, then a fresh snapshot after every change.
func (s *Store) Subscribe(ctx context.Context, channelID string, fn docstore.SnapshotFunc) (docstore.Unsubscribe, error) {
	if strings.TrimSpace(channelID) == "" {
		return nil, docstore.ErrChannelRequired
	}
	if fn == nil {
		return nil, errors.New("snapshot callback is required")
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "fullDocument.channel_id", Value: channelID}}}},
	}
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := s.messages.Watch(streamCtx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch messages: %w", err)
	}
	initial, err := s.load(streamCtx, channelID)
	if err != nil {
		cancel()
		_ = stream.Close(context.Background())
		return nil, err
	}

	go func() {
		defer func() { _ = stream.Close(context.Background()) }()
		deliver := func(snap docstore.Snapshot) bool {
			if streamCtx.Err() != nil {
				return false
			}
			fn(snap)
			return true
		}
		if !deliver(docstore.Snapshot{ChannelID: channelID, Records: initial}) {
			return
		}
		for stream.Next(streamCtx) {
			records, err := s.load(streamCtx, channelID)
			if !deliver(docstore.Snapshot{ChannelID: channelID, Records: records, Err: err}) {
				return
			}
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			s.logger.Warn("change stream ended", slog.String("channel_id", channelID), slog.Any("error", err))
			deliver(docstore.Snapshot{ChannelID: channelID, Err: fmt.Errorf("change stream: %w", err)})
		}
	}()

	return func() { cancel() }, nil
}

type messageDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	ChannelID string             `bson:"channel_id"`
	SenderID  string             `bson:"sender_id"`
	Type      string             `bson:"type"`
	Text      string             `bson:"text,omitempty"`
	FileURL   string             `bson:"file_url,omitempty"`
	FileName  string             `bson:"file_name,omitempty"`
	CreatedAt *time.Time         `bson:"created_at,omitempty"`
}

func (d messageDoc) record() docstore.Record {
	rec := docstore.Record{
		ID:        d.ID.Hex(),
		ChannelID: d.ChannelID,
		SenderID:  d.SenderID,
		Type:      d.Type,
		Text:      d.Text,
		FileURL:   d.FileURL,
		FileName:  d.FileName,
	}
	if d.CreatedAt != nil {
		t := d.CreatedAt.UTC()
		rec.CreatedAt = &t
	}
	return rec
}

// Append upserts a new document. A nil CreatedAt is set by the server
// through $currentDate.
func (s *Store) Append(ctx context.Context, channelID string, rec docstore.Record) (string, error) {
	if strings.TrimSpace(channelID) == "" {
		return "", docstore.ErrChannelRequired
	}
	if rec.SenderID == "" || rec.Type == "" {
		return "", fmt.Errorf("%w: sender and type are required", docstore.ErrInvalidRecord)
	}
	id := primitive.NewObjectID()
	fields := bson.M{
		"channel_id": channelID,
		"sender_id":  rec.SenderID,
		"type":       rec.Type,
	}
	if rec.Text != "" {
		fields["text"] = rec.Text
	}
	if rec.FileURL != "" {
		fields["file_url"] = rec.FileURL
	}
	if rec.FileName != "" {
		fields["file_name"] = rec.FileName
	}
	update := bson.M{"$setOnInsert": fields}
	if rec.CreatedAt != nil {
		fields["created_at"] = rec.CreatedAt.UTC()
	} else {
		update["$currentDate"] = bson.M{"created_at": true}
	}
	_, err := s.messages.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}
	return id.Hex(), nil
}

// ListProfiles returns every profile ordered by uid.
func (s *Store) ListProfiles(ctx context.Context) ([]docstore.Profile, error) {
	cur, err := s.users.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	var profiles []docstore.Profile
	if err := cur.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	return profiles, nil
}

// UpsertProfile creates or replaces a profile.
func (s *Store) UpsertProfile(ctx context.Context, profile docstore.Profile) error {
	if strings.TrimSpace(profile.UID) == "" {
		return fmt.Errorf("%w: uid is required", docstore.ErrInvalidRecord)
	}
	_, err := s.users.ReplaceOne(ctx, bson.M{"_id": profile.UID}, profile, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Ping checks the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

// Close disconnects the client when the store dialed it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) load(ctx context.Context, channelID string) ([]docstore.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := s.messages.Find(ctx, bson.M{"channel_id": channelID}, opts)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer cur.Close(ctx)

	var records []docstore.Record
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			s.logger.Warn("skip undecodable message", slog.String("channel_id", channelID), slog.Any("error", err))
			continue
		}
		records = append(records, doc.record())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	docstore.SortNewestFirst(records)
	return records, nil
}
