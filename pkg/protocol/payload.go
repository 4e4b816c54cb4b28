package protocol

import "time"

// ConversationRef is the payload of join_conversation, leave_conversation
// and mark_as_read.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// SendMessage is the payload of send_message.
type SendMessage struct {
	RecipientID         string `json:"recipientIdentity"`
	Content             string `json:"content"`
	ConversationID      string `json:"conversationId,omitempty"`
	ClientCorrelationID string `json:"clientCorrelationId"`
}

// UpdateMessage is the payload of update_message.
type UpdateMessage struct {
	MessageID      string `json:"messageId"`
	Content        string `json:"content"`
	ConversationID string `json:"conversationId,omitempty"`
}

// DeleteMessage is the payload of delete_message.
type DeleteMessage struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Typing is the payload of typing.
type Typing struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// MessageView is the client-facing rendering of a stored message.
// Content is empty for recalled messages.
type MessageView struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	RecipientID    string    `json:"recipientId,omitempty"`
	Content        string    `json:"content,omitempty"`
	Status         string    `json:"status"`
	IsUpdated      bool      `json:"isUpdated"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SenderSummary identifies the author of a new_message.
type SenderSummary struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
}

// NewMessage is the payload of new_message.
type NewMessage struct {
	Message MessageView   `json:"message"`
	Sender  SenderSummary `json:"sender"`
}

// MessageSent acknowledges a send to the originating session.
type MessageSent struct {
	ClientCorrelationID string `json:"clientCorrelationId"`
	MessageID           string `json:"messageId"`
	ConversationID      string `json:"conversationId"`
	Status              string `json:"status"`
}

// MessageError reports a failed operation to the originating session.
type MessageError struct {
	ClientCorrelationID string `json:"clientCorrelationId,omitempty"`
	Event               Event  `json:"event,omitempty"`
	MessageID           string `json:"messageId,omitempty"`
	Error               string `json:"error"`
	Code                string `json:"code"`
}

// MessageUpdated is the payload of message_updated.
type MessageUpdated struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Content        string    `json:"content"`
	IsUpdated      bool      `json:"isUpdated"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// MessageDeleted is the payload of message_deleted. It has no content field.
type MessageDeleted struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	IsActive       bool      `json:"isActive"`
	DeletedAt      time.Time `json:"deletedAt"`
}

// MessagesRead is the payload of messages_read.
type MessagesRead struct {
	ConversationID string    `json:"conversationId"`
	ReadBy         string    `json:"readBy"`
	ReadAt         time.Time `json:"readAt"`
}

// UserTyping is the payload of user_typing.
type UserTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Username       string `json:"username,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

// PresenceChange is the payload of user_online and user_offline.
type PresenceChange struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// OnlineUser is one entry of online_users.
type OnlineUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
}

// OnlineUsers is the payload of online_users.
type OnlineUsers struct {
	Users []OnlineUser `json:"users"`
}
