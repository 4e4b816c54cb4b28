package message

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/omochice/support-chat/internal/chat"
	"github.com/omochice/support-chat/internal/metrics"
	"github.com/omochice/support-chat/internal/platformerrors"
	"github.com/omochice/support-chat/pkg/protocol"
)

// DefaultMaxContentLength bounds message content in runes.
const DefaultMaxContentLength = 4000

// Fanout delivers events to rooms. *chat.Router implements it.
type Fanout interface {
	Broadcast(env protocol.Envelope, rooms ...chat.Room) chat.Reach
	BroadcastExcept(env protocol.Envelope, exceptSessionID string, rooms ...chat.Room) chat.Reach
}

// SendCommand asks to send a new message.
type SendCommand struct {
	Sender         chat.Identity
	RecipientID    string
	ConversationID string
	Content        string
	CorrelationID  string
}

// SendResult is the outcome of a successful send.
type SendResult struct {
	Message       *Message
	CorrelationID string
	Delivered     bool
}

// EditCommand asks to replace the content of a message.
type EditCommand struct {
	Editor    chat.Identity
	MessageID string
	Content   string
}

// RecallCommand asks to recall a message.
type RecallCommand struct {
	Actor     chat.Identity
	MessageID string
}

// MarkReadCommand records that the reader has read a conversation.
type MarkReadCommand struct {
	Reader         chat.Identity
	ConversationID string
}

// ReadReceipt is the outcome of MarkRead.
type ReadReceipt struct {
	ConversationID string
	ReadBy         string
	ReadAt         time.Time
}

// TypingCommand relays a typing indicator.
type TypingCommand struct {
	SessionID      string
	User           chat.Identity
	ConversationID string
	IsTyping       bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxContentLength overrides DefaultMaxContentLength.
func WithMaxContentLength(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxContent = n
		}
	}
}

// Manager runs the message lifecycle. Operations within one conversation
// hold a per-conversation lock across persistence and broadcast, so events
// of a conversation go out in the order their writes completed.
type Manager struct {
	store      Store
	fanout     Fanout
	locks      *keyedMutex
	maxContent int
	log        zerolog.Logger
}

// NewManager creates a Manager.
func NewManager(store Store, fanout Fanout, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		fanout:     fanout,
		locks:      newKeyedMutex(),
		maxContent: DefaultMaxContentLength,
		log:        log.With().Str("component", "message_manager").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send persists a message and fans new_message out to the conversation room,
// the recipient's identity room (unless the sender wrote to themselves) and
// the admin pool (unless the sender is support). Nothing is broadcast when
// persistence fails.
func (m *Manager) Send(ctx context.Context, cmd SendCommand) (res *SendResult, err error) {
	defer func() { metrics.RecordOperation("send", err) }()

	content, err := m.validateContent(cmd.Content)
	if err != nil {
		return nil, err
	}
	if cmd.RecipientID == "" {
		return nil, platformerrors.Validation("recipient is required")
	}
	conversationID := cmd.ConversationID
	if conversationID == "" {
		conversationID = ConversationKey(cmd.Sender.UserID, cmd.RecipientID)
	}

	unlock := m.locks.Lock(conversationID)
	defer unlock()

	start := time.Now()
	msg, err := m.store.CreateMessage(ctx, CreateParams{
		ConversationID: conversationID,
		SenderID:       cmd.Sender.UserID,
		RecipientID:    cmd.RecipientID,
		Content:        content,
	})
	observe("create", start)
	if err != nil {
		m.log.Error().Err(err).Str("sender_id", cmd.Sender.UserID).Str("conversation_id", conversationID).Msg("failed to persist message")
		return nil, storeError(err, "failed to save message")
	}

	env, err := protocol.NewEnvelope(protocol.EventNewMessage, protocol.NewMessage{
		Message: msg.View(),
		Sender: protocol.SenderSummary{
			UserID:   cmd.Sender.UserID,
			Username: cmd.Sender.DisplayName(),
			Role:     string(cmd.Sender.Role),
		},
	})
	if err != nil {
		return nil, platformerrors.NewError(platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to encode message", err)
	}

	rooms := []chat.Room{chat.ConversationRoom(conversationID)}
	if cmd.RecipientID != cmd.Sender.UserID {
		rooms = append(rooms, chat.IdentityRoom(cmd.RecipientID))
	}
	if !cmd.Sender.IsSupport() {
		rooms = append(rooms, chat.AdminPoolRoom())
	}
	reach := m.fanout.Broadcast(env, rooms...)

	res = &SendResult{Message: msg, CorrelationID: cmd.CorrelationID}
	if cmd.RecipientID != cmd.Sender.UserID && reach.Reached(cmd.RecipientID) {
		if advanced, err := m.store.AdvanceStatus(ctx, msg.ID, StatusDelivered); err != nil {
			m.log.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to mark message delivered")
		} else {
			res.Message = advanced
			res.Delivered = true
		}
	}

	m.log.Debug().
		Str("message_id", msg.ID).
		Str("conversation_id", conversationID).
		Int("sessions", reach.Sessions).
		Msg("message sent")
	return res, nil
}

// Edit replaces the content of a message. Only its sender may edit it.
func (m *Manager) Edit(ctx context.Context, cmd EditCommand) (msg *Message, err error) {
	defer func() { metrics.RecordOperation("edit", err) }()

	content, err := m.validateContent(cmd.Content)
	if err != nil {
		return nil, err
	}
	current, err := m.lookup(ctx, cmd.MessageID)
	if err != nil {
		return nil, err
	}
	if current.SenderID != cmd.Editor.UserID {
		return nil, platformerrors.NewError(platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "only the sender may edit a message", nil)
	}

	unlock := m.locks.Lock(current.ConversationID)
	defer unlock()

	start := time.Now()
	msg, err = m.store.UpdateMessage(ctx, cmd.MessageID, content)
	observe("update", start)
	if err != nil {
		return nil, storeError(err, "failed to update message")
	}

	m.broadcast(protocol.EventMessageUpdated, protocol.MessageUpdated{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		IsUpdated:      msg.IsUpdated,
		UpdatedAt:      msg.UpdatedAt,
	}, msg.ConversationID)
	return msg, nil
}

// Recall soft-deletes a message. The sender and support identities may
// recall. The broadcast carries only the recall marker.
func (m *Manager) Recall(ctx context.Context, cmd RecallCommand) (msg *Message, err error) {
	defer func() { metrics.RecordOperation("recall", err) }()

	current, err := m.lookup(ctx, cmd.MessageID)
	if err != nil {
		return nil, err
	}
	if current.SenderID != cmd.Actor.UserID && !cmd.Actor.IsSupport() {
		return nil, platformerrors.NewError(platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "only the sender may recall a message", nil)
	}

	unlock := m.locks.Lock(current.ConversationID)
	defer unlock()

	start := time.Now()
	msg, err = m.store.DeleteMessage(ctx, cmd.MessageID)
	observe("delete", start)
	if err != nil {
		return nil, storeError(err, "failed to recall message")
	}

	deletedAt := msg.UpdatedAt
	if msg.DeletedAt != nil {
		deletedAt = *msg.DeletedAt
	}
	m.broadcast(protocol.EventMessageDeleted, protocol.MessageDeleted{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		IsActive:       false,
		DeletedAt:      deletedAt,
	}, msg.ConversationID)
	return msg, nil
}

// MarkRead persists a conversation read marker and announces it.
// Message statuses are left untouched.
func (m *Manager) MarkRead(ctx context.Context, cmd MarkReadCommand) (receipt *ReadReceipt, err error) {
	defer func() { metrics.RecordOperation("mark_read", err) }()

	if cmd.ConversationID == "" {
		return nil, platformerrors.Validation("conversationId is required")
	}

	unlock := m.locks.Lock(cmd.ConversationID)
	defer unlock()

	start := time.Now()
	readAt, err := m.store.MarkConversationRead(ctx, cmd.ConversationID, cmd.Reader.UserID)
	observe("mark_read", start)
	if err != nil {
		return nil, storeError(err, "failed to mark conversation read")
	}

	receipt = &ReadReceipt{ConversationID: cmd.ConversationID, ReadBy: cmd.Reader.UserID, ReadAt: readAt}
	m.broadcast(protocol.EventMessagesRead, protocol.MessagesRead{
		ConversationID: receipt.ConversationID,
		ReadBy:         receipt.ReadBy,
		ReadAt:         receipt.ReadAt,
	}, cmd.ConversationID)
	return receipt, nil
}

// Typing relays a typing indicator to the rest of the conversation room.
func (m *Manager) Typing(cmd TypingCommand) error {
	if cmd.ConversationID == "" {
		return platformerrors.Validation("conversationId is required")
	}
	env, err := protocol.NewEnvelope(protocol.EventUserTyping, protocol.UserTyping{
		ConversationID: cmd.ConversationID,
		UserID:         cmd.User.UserID,
		Username:       cmd.User.DisplayName(),
		IsTyping:       cmd.IsTyping,
	})
	if err != nil {
		return platformerrors.NewError(platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to encode typing event", err)
	}
	m.fanout.BroadcastExcept(env, cmd.SessionID, chat.ConversationRoom(cmd.ConversationID))
	return nil
}

func (m *Manager) lookup(ctx context.Context, id string) (*Message, error) {
	if id == "" {
		return nil, platformerrors.Validation("messageId is required")
	}
	start := time.Now()
	msg, err := m.store.GetMessage(ctx, id)
	observe("get", start)
	if err != nil {
		return nil, storeError(err, "failed to load message")
	}
	if !msg.IsActive {
		return nil, platformerrors.NewError(platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "message not found", ErrNotFound)
	}
	return msg, nil
}

func (m *Manager) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", platformerrors.Validation("content must not be empty")
	}
	if utf8.RuneCountInString(content) > m.maxContent {
		return "", platformerrors.Validation("content is too long")
	}
	return content, nil
}

func (m *Manager) broadcast(event protocol.Event, payload any, conversationID string) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		m.log.Error().Err(err).Str("event", event.String()).Msg("failed to build event")
		return
	}
	m.fanout.Broadcast(env, chat.ConversationRoom(conversationID))
}

func storeError(err error, message string) *platformerrors.PlatformError {
	if errors.Is(err, ErrNotFound) {
		return platformerrors.NewError(platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "message not found", err)
	}
	return platformerrors.NewError(platformerrors.LayerInfrastructure, platformerrors.ErrorTypeDatabaseError, message, err)
}

func observe(operation string, start time.Time) {
	metrics.PersistenceDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
