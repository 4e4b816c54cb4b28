package message

import (
	"context"
	"time"
)

// CreateParams describes a new message.
type CreateParams struct {
	ConversationID string
	SenderID       string
	RecipientID    string
	Content        string
}

// Store is the system of record for messages. Implementations enforce the
// lifecycle rules: updates and deletes of recalled messages return
// ErrNotFound and AdvanceStatus never moves a status backwards.
type Store interface {
	// CreateMessage persists a message with status sent.
	CreateMessage(ctx context.Context, params CreateParams) (*Message, error)
	// UpdateMessage replaces the content and marks the message as updated.
	UpdateMessage(ctx context.Context, id, content string) (*Message, error)
	// DeleteMessage recalls the message.
	DeleteMessage(ctx context.Context, id string) (*Message, error)
	// MarkConversationRead records that readerID has read the conversation.
	MarkConversationRead(ctx context.Context, conversationID, readerID string) (time.Time, error)
	// GetMessage returns the message including recalled ones.
	GetMessage(ctx context.Context, id string) (*Message, error)
	// AdvanceStatus moves the status forward. A non-advancing status is ignored.
	AdvanceStatus(ctx context.Context, id string, status Status) (*Message, error)
	Close() error
}
