package store

import (
	"errors"
	"time"

	"github.com/omochice/support-chat/internal/message"
)

// errInvalidParams is returned for messages missing their addressing.
var errInvalidParams = errors.New("store: conversation, sender and recipient are required")

func newMessage(id string, params message.CreateParams, now time.Time) (*message.Message, error) {
	if params.ConversationID == "" || params.SenderID == "" || params.RecipientID == "" {
		return nil, errInvalidParams
	}
	return &message.Message{
		ID:             id,
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		RecipientID:    params.RecipientID,
		Content:        params.Content,
		Status:         message.StatusSent,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Recalled messages are frozen: edits and repeated recalls see ErrNotFound.
func applyUpdate(m *message.Message, content string, now time.Time) error {
	if !m.IsActive {
		return message.ErrNotFound
	}
	m.Content = content
	m.IsUpdated = true
	m.UpdatedAt = now
	return nil
}

func applyDelete(m *message.Message, now time.Time) error {
	if !m.IsActive {
		return message.ErrNotFound
	}
	m.IsActive = false
	m.UpdatedAt = now
	m.DeletedAt = &now
	return nil
}

// applyStatus ignores regressions and leaves recalled messages untouched.
func applyStatus(m *message.Message, status message.Status, now time.Time) {
	if !m.IsActive || !m.Status.CanAdvanceTo(status) {
		return
	}
	m.Status = status
	m.UpdatedAt = now
}
