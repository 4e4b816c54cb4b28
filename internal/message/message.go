// Package message implements the message lifecycle: persisting sends, edits,
// recalls and read markers through a Store and fanning the results out to
// the rooms that should see them.
package message

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/omochice/support-chat/pkg/protocol"
)

// ErrNotFound is returned by stores when a message is absent or recalled.
var ErrNotFound = errors.New("message not found")

// Message is the durable record of one chat message. Messages are never
// physically deleted; a recall clears IsActive.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	RecipientID    string     `json:"recipientId"`
	Content        string     `json:"content"`
	Status         Status     `json:"status"`
	IsUpdated      bool       `json:"isUpdated"`
	IsActive       bool       `json:"isActive"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// View renders the message for the wire. Recalled messages carry no content.
func (m *Message) View() protocol.MessageView {
	v := protocol.MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		RecipientID:    m.RecipientID,
		Content:        m.Content,
		Status:         m.Status.String(),
		IsUpdated:      m.IsUpdated,
		IsActive:       m.IsActive,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if !m.IsActive {
		v.Content = ""
	}
	return v
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	c := *m
	if m.DeletedAt != nil {
		at := *m.DeletedAt
		c.DeletedAt = &at
	}
	return &c
}

// ConversationKey derives the conversation of a direct exchange between two
// identities. The key does not depend on argument order.
func ConversationKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return "dm:" + strings.Join(ids, ":")
}
