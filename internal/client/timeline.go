package client

import (
	"sort"
	"sync"
	"time"

	"github.com/omochice/support-chat/pkg/protocol"
)

// Entry is one rendered row of a conversation.
type Entry struct {
	ID          string
	SenderID    string
	Content     string
	Status      string
	IsUpdated   bool
	IsActive    bool
	Optimistic  bool
	LocalStatus LocalStatus
	CreatedAt   time.Time
}

type conversationLog struct {
	messages map[string]protocol.MessageView
	reads    map[string]time.Time
}

// Timeline holds the durable messages received by broadcast. Edits and
// recalls are matched by server message id, never by temp id.
type Timeline struct {
	reconciler *Reconciler

	mu            sync.RWMutex
	conversations map[string]*conversationLog
}

// NewTimeline creates a Timeline that renders the pending sends of r.
func NewTimeline(r *Reconciler) *Timeline {
	return &Timeline{
		reconciler:    r,
		conversations: make(map[string]*conversationLog),
	}
}

func (t *Timeline) conversation(id string) *conversationLog {
	c, ok := t.conversations[id]
	if !ok {
		c = &conversationLog{
			messages: make(map[string]protocol.MessageView),
			reads:    make(map[string]time.Time),
		}
		t.conversations[id] = c
	}
	return c
}

// ApplyNew stores a new message. A duplicate delivery of the same id is
// ignored and reported as false.
func (t *Timeline) ApplyNew(msg protocol.MessageView) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.conversation(msg.ConversationID)
	if _, ok := c.messages[msg.ID]; ok {
		return false
	}
	c.messages[msg.ID] = msg
	return true
}

// ApplyUpdated replaces the content of a known, active message.
func (t *Timeline) ApplyUpdated(ev protocol.MessageUpdated) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.conversation(ev.ConversationID)
	msg, ok := c.messages[ev.MessageID]
	if !ok || !msg.IsActive {
		return false
	}
	msg.Content = ev.Content
	msg.IsUpdated = true
	msg.UpdatedAt = ev.UpdatedAt
	c.messages[ev.MessageID] = msg
	return true
}

// ApplyDeleted marks a known message as recalled and drops its content.
func (t *Timeline) ApplyDeleted(ev protocol.MessageDeleted) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.conversation(ev.ConversationID)
	msg, ok := c.messages[ev.MessageID]
	if !ok || !msg.IsActive {
		return false
	}
	msg.IsActive = false
	msg.Content = ""
	msg.UpdatedAt = ev.DeletedAt
	c.messages[ev.MessageID] = msg
	return true
}

// ApplyRead records a read marker.
func (t *Timeline) ApplyRead(ev protocol.MessagesRead) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.conversation(ev.ConversationID)
	if ev.ReadAt.After(c.reads[ev.ReadBy]) {
		c.reads[ev.ReadBy] = ev.ReadAt
	}
}

// LastRead returns when userID last read conversationID.
func (t *Timeline) LastRead(conversationID, userID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conversations[conversationID]
	if !ok {
		return time.Time{}, false
	}
	at, ok := c.reads[userID]
	return at, ok
}

// Message returns a durable message by id.
func (t *Timeline) Message(conversationID, messageID string) (protocol.MessageView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conversations[conversationID]
	if !ok {
		return protocol.MessageView{}, false
	}
	msg, ok := c.messages[messageID]
	return msg, ok
}

// View renders the durable messages of a conversation followed by its
// still-pending optimistic sends.
func (t *Timeline) View(conversationID string) []Entry {
	t.mu.RLock()
	var out []Entry
	if c, ok := t.conversations[conversationID]; ok {
		for _, msg := range c.messages {
			out = append(out, Entry{
				ID:        msg.ID,
				SenderID:  msg.SenderID,
				Content:   msg.Content,
				Status:    msg.Status,
				IsUpdated: msg.IsUpdated,
				IsActive:  msg.IsActive,
				CreatedAt: msg.CreatedAt,
			})
		}
	}
	t.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if t.reconciler != nil {
		for _, p := range t.reconciler.Pending(conversationID) {
			out = append(out, Entry{
				ID:          p.TempID,
				SenderID:    p.SenderID,
				Content:     p.Content,
				IsActive:    true,
				Optimistic:  true,
				LocalStatus: p.LocalStatus,
				CreatedAt:   p.CreatedAt,
			})
		}
	}
	return out
}
