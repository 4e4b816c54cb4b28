package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/support-chat/internal/message"
	"github.com/omochice/support-chat/internal/store"
)

type readMarker interface {
	LastRead(conversationID, readerID string) (time.Time, bool)
}

type testStore interface {
	message.Store
	readMarker
}

func forEachStore(t *testing.T, fn func(t *testing.T, s testStore)) {
	t.Run("memory", func(t *testing.T) {
		s := store.NewMemoryStore(store.WithIDFunc(store.SequentialIDs("m")))
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
	t.Run("pebble", func(t *testing.T) {
		s, err := store.OpenPebble("chat", store.PebbleOptions{
			FS:    vfs.NewMem(),
			NewID: store.SequentialIDs("m"),
		}, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func create(t *testing.T, s message.Store) *message.Message {
	t.Helper()
	msg, err := s.CreateMessage(context.Background(), message.CreateParams{
		ConversationID: "c1",
		SenderID:       "alice",
		RecipientID:    "agent",
		Content:        "Hello",
	})
	require.NoError(t, err)
	return msg
}

func TestStore_CreateAndGet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		msg := create(t, s)
		assert.Equal(t, "m1", msg.ID)
		assert.Equal(t, message.StatusSent, msg.Status)
		assert.True(t, msg.IsActive)
		assert.False(t, msg.IsUpdated)

		got, err := s.GetMessage(context.Background(), "m1")
		require.NoError(t, err)
		assert.Equal(t, "Hello", got.Content)
		assert.Equal(t, "c1", got.ConversationID)
		assert.Equal(t, message.StatusSent, got.Status)
	})
}

func TestStore_CreateRequiresAddressing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		_, err := s.CreateMessage(context.Background(), message.CreateParams{SenderID: "alice", Content: "x"})
		assert.Error(t, err)
	})
}

func TestStore_GetMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		_, err := s.GetMessage(context.Background(), "nope")
		assert.ErrorIs(t, err, message.ErrNotFound)
	})
}

func TestStore_UpdateMarksUpdated(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		create(t, s)
		updated, err := s.UpdateMessage(context.Background(), "m1", "Hello, edited")
		require.NoError(t, err)
		assert.Equal(t, "Hello, edited", updated.Content)
		assert.True(t, updated.IsUpdated)
		assert.Equal(t, message.StatusSent, updated.Status)
	})
}

func TestStore_RecallIsTerminal(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		create(t, s)

		recalled, err := s.DeleteMessage(ctx, "m1")
		require.NoError(t, err)
		assert.False(t, recalled.IsActive)
		require.NotNil(t, recalled.DeletedAt)

		_, err = s.UpdateMessage(ctx, "m1", "again")
		assert.ErrorIs(t, err, message.ErrNotFound)
		_, err = s.DeleteMessage(ctx, "m1")
		assert.ErrorIs(t, err, message.ErrNotFound)

		// status is frozen after a recall
		frozen, err := s.AdvanceStatus(ctx, "m1", message.StatusSeen)
		require.NoError(t, err)
		assert.Equal(t, message.StatusSent, frozen.Status)

		got, err := s.GetMessage(ctx, "m1")
		require.NoError(t, err)
		assert.False(t, got.IsActive)
	})
}

func TestStore_StatusIsMonotonic(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		create(t, s)

		observed := []message.Status{message.StatusSent}
		for _, next := range []message.Status{message.StatusDelivered, message.StatusSent, message.StatusSeen, message.StatusDelivered, message.StatusPending} {
			msg, err := s.AdvanceStatus(ctx, "m1", next)
			require.NoError(t, err)
			observed = append(observed, msg.Status)
		}
		for i := 1; i < len(observed); i++ {
			assert.GreaterOrEqual(t, observed[i], observed[i-1])
		}
		assert.Equal(t, message.StatusSeen, observed[len(observed)-1])
	})
}

func TestStore_MarkConversationRead(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		at, err := s.MarkConversationRead(context.Background(), "c1", "agent")
		require.NoError(t, err)
		assert.False(t, at.IsZero())

		got, ok := s.LastRead("c1", "agent")
		require.True(t, ok)
		assert.True(t, at.Equal(got))

		_, ok = s.LastRead("c1", "alice")
		assert.False(t, ok)
	})
}

func TestStore_ReadMarkersDoNotCollide(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		_, err := s.MarkConversationRead(context.Background(), "dm:a", "b:c")
		require.NoError(t, err)

		_, ok := s.LastRead("dm:a:b", "c")
		assert.False(t, ok)
		_, ok = s.LastRead("dm:a", "b:c")
		assert.True(t, ok)
	})
}

func TestStore_CancelledContext(t *testing.T) {
	forEachStore(t, func(t *testing.T, s testStore) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.CreateMessage(ctx, message.CreateParams{ConversationID: "c1", SenderID: "a", RecipientID: "b", Content: "x"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPebbleStore_Reopen(t *testing.T) {
	fs := vfs.NewMem()
	s, err := store.OpenPebble("chat", store.PebbleOptions{FS: fs, NewID: store.SequentialIDs("m")}, zerolog.Nop())
	require.NoError(t, err)
	create(t, s)
	require.NoError(t, s.Close())
	assert.False(t, s.Ready())

	reopened, err := store.OpenPebble("chat", store.PebbleOptions{FS: fs}, zerolog.Nop())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Content)
}
