package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/memohai/chatsync/internal/docstore"
)

func TestStoreAppendSubscribeAndReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "chat.db")
	store, err := Open(nil, path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	ctx := context.Background()

	snaps := make(chan docstore.Snapshot, 8)
	unsubscribe, err := store.Subscribe(ctx, "u1_u2", func(s docstore.Snapshot) { snaps <- s })
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := store.Append(ctx, "u1_u2", docstore.Record{SenderID: "u1", Type: "text", Text: "first", CreatedAt: &older}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	id, err := store.Append(ctx, "u1_u2", docstore.Record{SenderID: "u2", Type: "image", FileURL: "https://cdn/x.jpg", FileName: "x.jpg"})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	var last docstore.Snapshot
	for i := 0; i < 3; i++ {
		select {
		case last = <-snaps:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for snapshot %d", i)
		}
	}
	if len(last.Records) != 2 || last.Records[0].ID != id {
		t.Fatalf("expected newest record first, got %+v", last.Records)
	}
	unsubscribe()

	if err := store.UpsertProfile(ctx, docstore.Profile{UID: "u1", Name: "Al"}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened, err := Open(nil, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	records, err := reopened.loader("u1_u2")()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(records) != 2 || records[1].Text != "first" {
		t.Fatalf("unexpected records after reopen: %+v", records)
	}
	profiles, err := reopened.ListProfiles(ctx)
	if err != nil || len(profiles) != 1 || profiles[0].Name != "Al" {
		t.Fatalf("unexpected profiles: %+v err=%v", profiles, err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(nil, " "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
