package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/chatsync/internal/docstore"
)

func openIntegrationStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := Open(ctx, nil, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot open database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreNotifyDeliversSnapshots(t *testing.T) {
	store := openIntegrationStore(t)
	ctx := context.Background()
	channelID := "it-" + uuid.NewString()

	snaps := make(chan docstore.Snapshot, 8)
	unsubscribe, err := store.Subscribe(ctx, channelID, func(s docstore.Snapshot) { snaps <- s })
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer unsubscribe()

	select {
	case s := <-snaps:
		if len(s.Records) != 0 {
			t.Fatalf("expected empty initial snapshot, got %d", len(s.Records))
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for initial snapshot")
	}

	id, err := store.Append(ctx, channelID, docstore.Record{SenderID: "u1", Type: "text", Text: "hello"})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	select {
	case s := <-snaps:
		if s.Err != nil {
			t.Fatalf("unexpected snapshot error: %v", s.Err)
		}
		if len(s.Records) != 1 || s.Records[0].ID != id || s.Records[0].CreatedAt == nil {
			t.Fatalf("unexpected snapshot: %+v", s.Records)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for notify snapshot")
	}
}

func TestStoreProfilesUpsert(t *testing.T) {
	store := openIntegrationStore(t)
	ctx := context.Background()
	uid := "it-" + uuid.NewString()

	if err := store.UpsertProfile(ctx, docstore.Profile{UID: uid, Name: "A"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := store.UpsertProfile(ctx, docstore.Profile{UID: uid, Name: "B", Email: "b@example.com"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	profiles, err := store.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	found := false
	for _, p := range profiles {
		if p.UID == uid {
			found = true
			if p.Name != "B" || p.Email != "b@example.com" {
				t.Fatalf("unexpected profile: %+v", p)
			}
		}
	}
	if !found {
		t.Fatalf("profile %s not listed", uid)
	}
}
