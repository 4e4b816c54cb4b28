package chat

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/support-chat/pkg/protocol"
)

func newTestSession(t *testing.T, r *Router, p *Presence, id, userID string) *Session {
	t.Helper()
	identity := Identity{UserID: userID}
	s := newSession(id, nil, identity, protocol.CodecJSON, DefaultOptions(), zerolog.Nop())
	r.Attach(s)
	p.Register(identity, id)
	require.True(t, r.Join(id, IdentityRoom(userID)))
	return s
}

// drain returns the events queued on s without blocking.
func drain(t *testing.T, s *Session) []protocol.Event {
	t.Helper()
	var out []protocol.Event
	for {
		select {
		case frame, ok := <-s.outgoing:
			if !ok {
				return out
			}
			var env protocol.Envelope
			require.NoError(t, env.Decode(frame))
			out = append(out, env.Event)
		default:
			return out
		}
	}
}

func typingEnvelope(t *testing.T) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(protocol.EventUserTyping, protocol.UserTyping{ConversationID: "c1", UserID: "alice", IsTyping: true})
	require.NoError(t, err)
	return env
}

func newTestRouter() (*Router, *Presence) {
	p := NewPresence()
	return NewRouter(p, zerolog.Nop()), p
}

func TestRouter_BroadcastReachesRoomMembers(t *testing.T) {
	r, p := newTestRouter()
	a := newTestSession(t, r, p, "s1", "alice")
	b := newTestSession(t, r, p, "s2", "bob")
	c := newTestSession(t, r, p, "s3", "carol")

	room := ConversationRoom("c1")
	r.Join(a.ID, room)
	r.Join(b.ID, room)

	reach := r.Broadcast(typingEnvelope(t), room)
	assert.Equal(t, 2, reach.Sessions)
	assert.Equal(t, []string{"alice", "bob"}, reach.Users())
	assert.Len(t, drain(t, a), 1)
	assert.Len(t, drain(t, b), 1)
	assert.Empty(t, drain(t, c))
}

func TestRouter_LeaveStopsDelivery(t *testing.T) {
	r, p := newTestRouter()
	a := newTestSession(t, r, p, "s1", "alice")
	room := ConversationRoom("c1")

	r.Join(a.ID, room)
	r.Leave(a.ID, room)
	reach := r.Broadcast(typingEnvelope(t), room)
	assert.Zero(t, reach.Sessions)
	assert.Empty(t, drain(t, a))

	// rejoin restores delivery
	r.Join(a.ID, room)
	r.Broadcast(typingEnvelope(t), room)
	assert.Len(t, drain(t, a), 1)
}

func TestRouter_JoinTwiceDeliversOnce(t *testing.T) {
	r, p := newTestRouter()
	a := newTestSession(t, r, p, "s1", "alice")
	room := ConversationRoom("c1")

	r.Join(a.ID, room)
	r.Join(a.ID, room)
	r.Broadcast(typingEnvelope(t), room)
	assert.Len(t, drain(t, a), 1)
}

func TestRouter_EmptyRoomIsNoop(t *testing.T) {
	r, _ := newTestRouter()
	reach := r.Broadcast(typingEnvelope(t), ConversationRoom("nobody"))
	assert.Zero(t, reach.Sessions)
	assert.Zero(t, r.RoomCount())

	// leaving an unknown room does not panic
	r.Leave("ghost", ConversationRoom("nobody"))
}

func TestRouter_MultiRoomBroadcastDedupes(t *testing.T) {
	r, p := newTestRouter()
	a := newTestSession(t, r, p, "s1", "alice")
	r.Join(a.ID, ConversationRoom("c1"))

	reach := r.Broadcast(typingEnvelope(t), ConversationRoom("c1"), IdentityRoom("alice"))
	assert.Equal(t, 1, reach.Sessions)
	assert.Len(t, drain(t, a), 1)
}

func TestRouter_BroadcastExcept(t *testing.T) {
	r, p := newTestRouter()
	a := newTestSession(t, r, p, "s1", "alice")
	b := newTestSession(t, r, p, "s2", "bob")
	room := ConversationRoom("c1")
	r.Join(a.ID, room)
	r.Join(b.ID, room)

	reach := r.BroadcastExcept(typingEnvelope(t), a.ID, room)
	assert.Equal(t, 1, reach.Sessions)
	assert.False(t, reach.Reached("alice"))
	assert.True(t, reach.Reached("bob"))
	assert.Empty(t, drain(t, a))
}

func TestRouter_UnicastOffline(t *testing.T) {
	r, p := newTestRouter()
	a := newTestSession(t, r, p, "s1", "alice")

	assert.False(t, r.Unicast("bob", typingEnvelope(t)))
	assert.True(t, r.Unicast("alice", typingEnvelope(t)))
	assert.Len(t, drain(t, a), 1)
}

func TestRouter_DetachRemovesEverywhere(t *testing.T) {
	r, p := newTestRouter()
	a := newTestSession(t, r, p, "s1", "alice")
	r.Join(a.ID, ConversationRoom("c1"))
	r.Join(a.ID, AdminPoolRoom())
	require.Len(t, r.RoomsOf(a.ID), 3)

	r.Detach(a.ID)
	assert.Empty(t, r.RoomsOf(a.ID))
	assert.Empty(t, r.Members(ConversationRoom("c1")))
	assert.Zero(t, r.RoomCount())
	assert.False(t, r.Join(a.ID, ConversationRoom("c1")))
}

func TestRouter_ClosedSessionIsSkipped(t *testing.T) {
	r, p := newTestRouter()
	a := newTestSession(t, r, p, "s1", "alice")
	room := ConversationRoom("c1")
	r.Join(a.ID, room)

	a.close()
	reach := r.Broadcast(typingEnvelope(t), room)
	assert.Zero(t, reach.Sessions)
}
