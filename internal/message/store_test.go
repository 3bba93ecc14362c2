package message

import (
	"testing"
	"time"
)

func TestStoreReplaceAllOrdersNewestFirst(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	msg := func(id string, offset time.Duration, pending bool) Message {
		m := Message{ID: id, SenderID: "u1", Payload: Text{Body: id}}
		if !pending {
			m.CreatedAt = base.Add(offset)
		}
		return m
	}

	store := NewStore()
	store.ReplaceAll([]Message{
		msg("old", 0, false),
		msg("tie-a", time.Minute, false),
		msg("pending", 0, true),
		msg("tie-b", time.Minute, false),
		msg("new", time.Hour, false),
	})

	got := store.Snapshot()
	want := []string{"pending", "new", "tie-a", "tie-b", "old"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, got[i].ID)
		}
	}
	if store.Version() != 1 || store.Len() != 5 {
		t.Fatalf("unexpected version/len: %d/%d", store.Version(), store.Len())
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	input := []Message{{ID: "a", Payload: Text{Body: "a"}}}
	store := NewStore()
	store.ReplaceAll(input)
	input[0].ID = "mutated"

	snap := store.Snapshot()
	snap[0].ID = "changed"
	if m, ok := store.Find("a"); !ok || m.ID != "a" {
		t.Fatalf("store was mutated through a shared slice")
	}
	if _, ok := store.Find("missing"); ok {
		t.Fatalf("expected missing message")
	}
}

func TestStoreReplaceAllWithEmptyClears(t *testing.T) {
	t.Parallel()

	store := NewStore()
	store.ReplaceAll([]Message{{ID: "a", Payload: Text{Body: "a"}}})
	store.ReplaceAll(nil)
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}
