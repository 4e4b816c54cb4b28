package server

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/omochice/support-chat/internal/chat"
	"github.com/omochice/support-chat/internal/message"
	"github.com/omochice/support-chat/internal/platformerrors"
	"github.com/omochice/support-chat/pkg/protocol"
)

// Dispatcher turns inbound envelopes into typed commands and answers the
// originating session. It implements chat.Handler.
type Dispatcher struct {
	hub     *chat.Hub
	manager *message.Manager
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(hub *chat.Hub, manager *message.Manager, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		hub:     hub,
		manager: manager,
		log:     log.With().Str("component", "dispatcher").Logger(),
	}
}

// Handle implements chat.Handler.
func (d *Dispatcher) Handle(ctx context.Context, s *chat.Session, env protocol.Envelope) {
	switch env.Event {
	case protocol.EventJoinConversation:
		d.join(s, env)
	case protocol.EventLeaveConversation:
		d.leave(s, env)
	case protocol.EventSendMessage:
		d.send(ctx, s, env)
	case protocol.EventUpdateMessage:
		d.update(ctx, s, env)
	case protocol.EventDeleteMessage:
		d.delete(ctx, s, env)
	case protocol.EventMarkAsRead:
		d.markRead(ctx, s, env)
	case protocol.EventTyping:
		d.typing(s, env)
	case protocol.EventGetOnlineUsers:
		d.onlineUsers(s)
	default:
		d.fail(s, protocol.MessageError{Event: env.Event}, platformerrors.Validation("unsupported event"))
	}
}

func (d *Dispatcher) join(s *chat.Session, env protocol.Envelope) {
	var req protocol.ConversationRef
	if err := bind(env, &req); err != nil || req.ConversationID == "" {
		d.fail(s, protocol.MessageError{Event: env.Event}, platformerrors.Validation("conversationId is required"))
		return
	}
	d.hub.Router().Join(s.ID, chat.ConversationRoom(req.ConversationID))
}

func (d *Dispatcher) leave(s *chat.Session, env protocol.Envelope) {
	var req protocol.ConversationRef
	if err := bind(env, &req); err != nil || req.ConversationID == "" {
		d.fail(s, protocol.MessageError{Event: env.Event}, platformerrors.Validation("conversationId is required"))
		return
	}
	d.hub.Router().Leave(s.ID, chat.ConversationRoom(req.ConversationID))
}

func (d *Dispatcher) send(ctx context.Context, s *chat.Session, env protocol.Envelope) {
	var req protocol.SendMessage
	if err := bind(env, &req); err != nil {
		d.fail(s, protocol.MessageError{ClientCorrelationID: env.CorrelationID(), Event: env.Event}, err)
		return
	}

	res, err := d.manager.Send(ctx, message.SendCommand{
		Sender:         s.Identity,
		RecipientID:    req.RecipientID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		CorrelationID:  req.ClientCorrelationID,
	})
	if err != nil {
		d.fail(s, protocol.MessageError{ClientCorrelationID: req.ClientCorrelationID, Event: env.Event}, err)
		return
	}

	d.reply(s, protocol.EventMessageSent, protocol.MessageSent{
		ClientCorrelationID: res.CorrelationID,
		MessageID:           res.Message.ID,
		ConversationID:      res.Message.ConversationID,
		Status:              res.Message.Status.String(),
	})
}

func (d *Dispatcher) update(ctx context.Context, s *chat.Session, env protocol.Envelope) {
	var req protocol.UpdateMessage
	if err := bind(env, &req); err != nil {
		d.fail(s, protocol.MessageError{Event: env.Event}, err)
		return
	}
	if _, err := d.manager.Edit(ctx, message.EditCommand{
		Editor:    s.Identity,
		MessageID: req.MessageID,
		Content:   req.Content,
	}); err != nil {
		d.fail(s, protocol.MessageError{Event: env.Event, MessageID: req.MessageID}, err)
	}
}

func (d *Dispatcher) delete(ctx context.Context, s *chat.Session, env protocol.Envelope) {
	var req protocol.DeleteMessage
	if err := bind(env, &req); err != nil {
		d.fail(s, protocol.MessageError{Event: env.Event}, err)
		return
	}
	if _, err := d.manager.Recall(ctx, message.RecallCommand{
		Actor:     s.Identity,
		MessageID: req.MessageID,
	}); err != nil {
		d.fail(s, protocol.MessageError{Event: env.Event, MessageID: req.MessageID}, err)
	}
}

func (d *Dispatcher) markRead(ctx context.Context, s *chat.Session, env protocol.Envelope) {
	var req protocol.ConversationRef
	if err := bind(env, &req); err != nil {
		d.fail(s, protocol.MessageError{Event: env.Event}, err)
		return
	}
	if _, err := d.manager.MarkRead(ctx, message.MarkReadCommand{
		Reader:         s.Identity,
		ConversationID: req.ConversationID,
	}); err != nil {
		d.fail(s, protocol.MessageError{Event: env.Event}, err)
	}
}

func (d *Dispatcher) typing(s *chat.Session, env protocol.Envelope) {
	var req protocol.Typing
	if err := bind(env, &req); err != nil {
		d.fail(s, protocol.MessageError{Event: env.Event}, err)
		return
	}
	if err := d.manager.Typing(message.TypingCommand{
		SessionID:      s.ID,
		User:           s.Identity,
		ConversationID: req.ConversationID,
		IsTyping:       req.IsTyping,
	}); err != nil {
		d.fail(s, protocol.MessageError{Event: env.Event}, err)
	}
}

func (d *Dispatcher) onlineUsers(s *chat.Session) {
	online := d.hub.Presence().AllOnline()
	users := make([]protocol.OnlineUser, 0, len(online))
	for _, id := range online {
		users = append(users, protocol.OnlineUser{
			UserID:   id.UserID,
			Username: id.DisplayName(),
			Role:     string(id.Role),
		})
	}
	d.reply(s, protocol.EventOnlineUsers, protocol.OnlineUsers{Users: users})
}

func (d *Dispatcher) reply(s *chat.Session, event protocol.Event, payload any) {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		d.log.Error().Err(err).Str("event", event.String()).Msg("failed to build reply")
		return
	}
	s.Send(env)
}

// fail reports err to the originating session only.
func (d *Dispatcher) fail(s *chat.Session, report protocol.MessageError, err error) {
	perr := platformerrors.GetPlatformError(err)
	if perr == nil {
		perr = platformerrors.NewError(platformerrors.LayerHandler, platformerrors.ErrorTypeInternal, "internal error", err)
	}
	report.Error = perr.Message
	report.Code = perr.Type.Code()

	event := d.log.Debug()
	if perr.Type == platformerrors.ErrorTypeDatabaseError || perr.Type == platformerrors.ErrorTypeInternal {
		event = d.log.Error()
	}
	event.Err(err).
		Str("session_id", s.ID).
		Str("event", report.Event.String()).
		Str("error_id", perr.UUID).
		Msg("operation failed")

	d.reply(s, protocol.EventMessageError, report)
}

func bind(env protocol.Envelope, v any) error {
	if err := env.Bind(v); err != nil {
		return platformerrors.NewError(platformerrors.LayerHandler, platformerrors.ErrorTypeValidation, "malformed payload", err)
	}
	return nil
}
