package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/support-chat/pkg/protocol"
)

func view(id, content string, at time.Time) protocol.MessageView {
	return protocol.MessageView{
		ID:             id,
		ConversationID: "C1",
		SenderID:       "A",
		Content:        content,
		Status:         "sent",
		IsActive:       true,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func TestTimeline_ApplyNewIsIdempotent(t *testing.T) {
	tl := NewTimeline(nil)
	now := time.Now()

	assert.True(t, tl.ApplyNew(view("m1", "Hello", now)))
	assert.False(t, tl.ApplyNew(view("m1", "Hello", now)))
	assert.Len(t, tl.View("C1"), 1)
}

func TestTimeline_UpdateAndRecallByID(t *testing.T) {
	tl := NewTimeline(nil)
	now := time.Now()
	tl.ApplyNew(view("m1", "Hello", now))

	assert.True(t, tl.ApplyUpdated(protocol.MessageUpdated{MessageID: "m1", ConversationID: "C1", Content: "Hello, edited", UpdatedAt: now}))
	msg, ok := tl.Message("C1", "m1")
	require.True(t, ok)
	assert.Equal(t, "Hello, edited", msg.Content)
	assert.True(t, msg.IsUpdated)

	assert.True(t, tl.ApplyDeleted(protocol.MessageDeleted{MessageID: "m1", ConversationID: "C1", DeletedAt: now}))
	msg, _ = tl.Message("C1", "m1")
	assert.False(t, msg.IsActive)
	assert.Empty(t, msg.Content)

	// recalled messages are frozen
	assert.False(t, tl.ApplyUpdated(protocol.MessageUpdated{MessageID: "m1", ConversationID: "C1", Content: "again"}))
	assert.False(t, tl.ApplyDeleted(protocol.MessageDeleted{MessageID: "m1", ConversationID: "C1"}))

	// unknown ids are ignored
	assert.False(t, tl.ApplyUpdated(protocol.MessageUpdated{MessageID: "m9", ConversationID: "C1", Content: "x"}))
}

func TestTimeline_ApplyReadKeepsLatest(t *testing.T) {
	tl := NewTimeline(nil)
	early := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)

	tl.ApplyRead(protocol.MessagesRead{ConversationID: "C1", ReadBy: "S", ReadAt: late})
	tl.ApplyRead(protocol.MessagesRead{ConversationID: "C1", ReadBy: "S", ReadAt: early})

	at, ok := tl.LastRead("C1", "S")
	require.True(t, ok)
	assert.Equal(t, late, at)
}

func TestTimeline_ViewIncludesPendingSends(t *testing.T) {
	r := NewReconciler()
	tl := NewTimeline(r)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	tl.ApplyNew(view("m2", "second", base.Add(time.Second)))
	tl.ApplyNew(view("m1", "first", base))
	pending := r.Submit("C1", "S", "A", "sending...")

	entries := tl.View("C1")
	require.Len(t, entries, 3)
	assert.Equal(t, "m1", entries[0].ID)
	assert.Equal(t, "m2", entries[1].ID)
	assert.True(t, entries[2].Optimistic)
	assert.Equal(t, pending.TempID, entries[2].ID)
	assert.Equal(t, LocalStatusSending, entries[2].LocalStatus)

	// once confirmed the optimistic row disappears
	r.Confirm(pending.TempID, "m3")
	assert.Len(t, tl.View("C1"), 2)
}
