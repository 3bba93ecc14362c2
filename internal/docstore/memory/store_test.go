package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/memohai/chatsync/internal/docstore"
)

type collector struct {
	mu    sync.Mutex
	snaps []docstore.Snapshot
	ch    chan struct{}
}

func newCollector() *collector { return &collector{ch: make(chan struct{}, 64)} }

func (c *collector) fn(s docstore.Snapshot) {
	c.mu.Lock()
	c.snaps = append(c.snaps, s)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) waitFor(t *testing.T, n int) []docstore.Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.snaps) >= n {
			out := append([]docstore.Snapshot(nil), c.snaps...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.ch:
		case <-timeout:
			t.Fatalf("timed out waiting for %d snapshots", n)
		}
	}
}

func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func TestStoreAppendDeliversNewestFirst(t *testing.T) {
	t.Parallel()

	store := New(nil, WithClock(steppingClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))))
	defer store.Close()

	ctx := context.Background()
	c := newCollector()
	unsubscribe, err := store.Subscribe(ctx, "u1_u2", c.fn)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsubscribe()

	first, err := store.Append(ctx, "u1_u2", docstore.Record{SenderID: "u1", Type: "text", Text: "hi"})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	second, err := store.Append(ctx, "u1_u2", docstore.Record{SenderID: "u2", Type: "text", Text: "hey"})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	snaps := c.waitFor(t, 3)
	if len(snaps[0].Records) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d records", len(snaps[0].Records))
	}
	last := snaps[2].Records
	if len(last) != 2 || last[0].ID != second || last[1].ID != first {
		t.Fatalf("unexpected order: %+v", last)
	}
	if last[0].CreatedAt == nil || last[0].ChannelID != "u1_u2" {
		t.Fatalf("expected resolved timestamp and channel, got %+v", last[0])
	}
}

func TestStorePendingTimestampsDeliverTwice(t *testing.T) {
	t.Parallel()

	store := New(nil, WithPendingTimestamps())
	defer store.Close()

	ctx := context.Background()
	c := newCollector()
	unsubscribe, err := store.Subscribe(ctx, "a_b", c.fn)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsubscribe()

	if _, err := store.Append(ctx, "a_b", docstore.Record{SenderID: "a", Type: "text", Text: "x"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	snaps := c.waitFor(t, 3)
	if snaps[1].Records[0].CreatedAt != nil {
		t.Fatalf("expected pending timestamp in first delivery")
	}
	if snaps[2].Records[0].CreatedAt == nil {
		t.Fatalf("expected resolved timestamp in second delivery")
	}
}

func TestStoreChannelsAreIsolated(t *testing.T) {
	t.Parallel()

	store := New(nil)
	defer store.Close()

	ctx := context.Background()
	c := newCollector()
	unsubscribe, err := store.Subscribe(ctx, "a_b", c.fn)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsubscribe()

	if _, err := store.Append(ctx, "a_c", docstore.Record{SenderID: "a", Type: "text", Text: "x"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	c.waitFor(t, 1)
	time.Sleep(30 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snaps) != 1 {
		t.Fatalf("expected no delivery for another channel, got %d snapshots", len(c.snaps))
	}
}

func TestStoreRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	store := New(nil)
	ctx := context.Background()

	if _, err := store.Subscribe(ctx, " ", func(docstore.Snapshot) {}); !errors.Is(err, docstore.ErrChannelRequired) {
		t.Fatalf("expected ErrChannelRequired, got %v", err)
	}
	if _, err := store.Append(ctx, "a_b", docstore.Record{Type: "text"}); !errors.Is(err, docstore.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if err := store.UpsertProfile(ctx, docstore.Profile{}); !errors.Is(err, docstore.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}

	_ = store.Close()
	if _, err := store.Append(ctx, "a_b", docstore.Record{SenderID: "a", Type: "text"}); !errors.Is(err, docstore.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestStoreProfiles(t *testing.T) {
	t.Parallel()

	store := New(nil)
	defer store.Close()
	ctx := context.Background()

	for _, p := range []docstore.Profile{
		{UID: "u2", Name: "Bo", Email: "bo@example.com"},
		{UID: "u1", Name: "Al", Email: "al@example.com"},
		{UID: "u2", Name: "Bob", Email: "bob@example.com"},
	} {
		if err := store.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}
	profiles, err := store.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(profiles) != 2 || profiles[0].UID != "u1" || profiles[1].Name != "Bob" {
		t.Fatalf("unexpected profiles: %+v", profiles)
	}
}

func TestStorePing(t *testing.T) {
	t.Parallel()

	s := New(nil)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping open store: %v", err)
	}
	_ = s.Close()
	if err := s.Ping(context.Background()); !errors.Is(err, docstore.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
