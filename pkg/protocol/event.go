package protocol

// Event names one kind of frame exchanged over a session.
type Event string

// Inbound events (client to server).
const (
	EventJoinConversation  Event = "join_conversation"
	EventLeaveConversation Event = "leave_conversation"
	EventSendMessage       Event = "send_message"
	EventUpdateMessage     Event = "update_message"
	EventDeleteMessage     Event = "delete_message"
	EventMarkAsRead        Event = "mark_as_read"
	EventTyping            Event = "typing"
	EventGetOnlineUsers    Event = "get_online_users"
)

// Outbound events (server to client).
const (
	EventNewMessage     Event = "new_message"
	EventMessageSent    Event = "message_sent"
	EventMessageError   Event = "message_error"
	EventMessageUpdated Event = "message_updated"
	EventMessageDeleted Event = "message_deleted"
	EventMessagesRead   Event = "messages_read"
	EventUserTyping     Event = "user_typing"
	EventUserOnline     Event = "user_online"
	EventUserOffline    Event = "user_offline"
	EventOnlineUsers    Event = "online_users"
)

// IsInbound reports whether clients are allowed to send e.
func (e Event) IsInbound() bool {
	switch e {
	case EventJoinConversation,
		EventLeaveConversation,
		EventSendMessage,
		EventUpdateMessage,
		EventDeleteMessage,
		EventMarkAsRead,
		EventTyping,
		EventGetOnlineUsers:
		return true
	default:
		return false
	}
}

// String returns the wire name of the event.
func (e Event) String() string {
	return string(e)
}
