// Package docstore defines the realtime document store the chat core is
// built on: per-channel ordered message collections with live snapshots,
// append with server-assigned timestamps, and a user-profile collection.
package docstore

import (
	"context"
	"sort"
	"time"
)

// Record is the stored shape of a message document. CreatedAt is nil on
// append to request a server timestamp, and nil on reads while the store has
// not resolved it yet.
type Record struct {
	ID        string     `json:"id" bson:"_id,omitempty"`
	ChannelID string     `json:"channel_id" bson:"channel_id"`
	SenderID  string     `json:"sender_id" bson:"sender_id"`
	Type      string     `json:"type" bson:"type"`
	Text      string     `json:"text,omitempty" bson:"text,omitempty"`
	FileURL   string     `json:"file_url,omitempty" bson:"file_url,omitempty"`
	FileName  string     `json:"file_name,omitempty" bson:"file_name,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty" bson:"created_at,omitempty"`
}

// Snapshot is one delivery of a channel's full ordered contents, newest
// first. A non-nil Err reports a listener failure instead of contents.
type Snapshot struct {
	ChannelID string
	Records   []Record
	Err       error
}

// SnapshotFunc receives snapshots for a subscription, serialized and in
// delivery order.
type SnapshotFunc func(Snapshot)

// Unsubscribe detaches a live subscription. It is safe to call more than once.
type Unsubscribe func()

// Subscriber opens live queries over a channel's message collection.
type Subscriber interface {
	Subscribe(ctx context.Context, channelID string, fn SnapshotFunc) (Unsubscribe, error)
}

// Appender writes new message documents and returns the assigned id.
type Appender interface {
	Append(ctx context.Context, channelID string, rec Record) (string, error)
}

// Profile is an entry of the user-profile collection.
type Profile struct {
	UID   string `json:"uid" bson:"_id"`
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
}

// Directory reads and writes the user-profile collection.
type Directory interface {
	ListProfiles(ctx context.Context) ([]Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) error
}

// Store is the full document store used by the service.
type Store interface {
	Subscriber
	Appender
	Directory
	// Ping reports whether the store can serve requests.
	Ping(ctx context.Context) error
	Close() error
}

// SortNewestFirst orders records by CreatedAt descending. Unresolved
// timestamps are the most recent writes and sort first; ties keep their
// relative order.
func SortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].CreatedAt, records[j].CreatedAt
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.After(*b)
		}
	})
}
