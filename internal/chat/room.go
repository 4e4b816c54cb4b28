package chat

// RoomKind tags the three room shapes.
type RoomKind uint8

const (
	RoomKindIdentity RoomKind = iota + 1
	RoomKindConversation
	RoomKindAdminPool
)

// Room is a named broadcast group. Rooms are comparable and used as map keys.
type Room struct {
	Kind RoomKind
	ID   string
}

// IdentityRoom reaches every session of one identity.
func IdentityRoom(userID string) Room {
	return Room{Kind: RoomKindIdentity, ID: userID}
}

// ConversationRoom reaches the sessions that joined one conversation.
func ConversationRoom(conversationID string) Room {
	return Room{Kind: RoomKindConversation, ID: conversationID}
}

// AdminPoolRoom reaches every support session.
func AdminPoolRoom() Room {
	return Room{Kind: RoomKindAdminPool}
}

func (r Room) String() string {
	switch r.Kind {
	case RoomKindIdentity:
		return "identity:" + r.ID
	case RoomKindConversation:
		return "conversation:" + r.ID
	case RoomKindAdminPool:
		return "admin-pool"
	default:
		return "unknown:" + r.ID
	}
}
