package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/chatsync/internal/docstore"
)

func openIntegrationStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("skip integration test: TEST_MONGO_URI is not set")
	}
	store, err := Connect(context.Background(), nil, uri, "chatsync_test")
	if err != nil {
		t.Skipf("skip integration test: cannot connect to mongodb: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreChangeStreamDelivers(t *testing.T) {
	store := openIntegrationStore(t)
	ctx := context.Background()
	channelID := "it-" + uuid.NewString()

	snaps := make(chan docstore.Snapshot, 8)
	unsubscribe, err := store.Subscribe(ctx, channelID, func(s docstore.Snapshot) { snaps <- s })
	require.NoError(t, err)
	defer unsubscribe()

	select {
	case s := <-snaps:
		assert.Empty(t, s.Records)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}

	id, err := store.Append(ctx, channelID, docstore.Record{SenderID: "u1", Type: "audio", FileURL: "https://cdn/a.aac", FileName: "recording.aac"})
	require.NoError(t, err)

	select {
	case s := <-snaps:
		require.NoError(t, s.Err)
		require.Len(t, s.Records, 1)
		assert.Equal(t, id, s.Records[0].ID)
		assert.NotNil(t, s.Records[0].CreatedAt)
		assert.Equal(t, "recording.aac", s.Records[0].FileName)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for change snapshot")
	}
}

func TestStoreProfiles(t *testing.T) {
	store := openIntegrationStore(t)
	ctx := context.Background()
	uid := "it-" + uuid.NewString()

	require.NoError(t, store.UpsertProfile(ctx, docstore.Profile{UID: uid, Name: "A"}))
	require.NoError(t, store.UpsertProfile(ctx, docstore.Profile{UID: uid, Name: "B"}))

	profiles, err := store.ListProfiles(ctx)
	require.NoError(t, err)
	var names []string
	for _, p := range profiles {
		if p.UID == uid {
			names = append(names, p.Name)
		}
	}
	assert.Equal(t, []string{"B"}, names)
}

func TestMessageDocRecordNormalizesTime(t *testing.T) {
	t.Parallel()

	local := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	rec := messageDoc{ChannelID: "a_b", SenderID: "a", Type: "text", Text: "hi", CreatedAt: &local}.record()
	require.NotNil(t, rec.CreatedAt)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
	assert.True(t, rec.CreatedAt.Equal(local))

	pending := messageDoc{SenderID: "a", Type: "text"}.record()
	assert.Nil(t, pending.CreatedAt)
}
