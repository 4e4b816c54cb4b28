package chat

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/omochice/support-chat/internal/metrics"
	"github.com/omochice/support-chat/pkg/protocol"
)

// Reach describes who a broadcast was delivered to.
type Reach struct {
	Sessions int
	users    map[string]struct{}
}

// NewReach builds a Reach for fan-out implementations outside this package.
func NewReach(sessions int, users ...string) Reach {
	r := Reach{Sessions: sessions, users: make(map[string]struct{}, len(users))}
	for _, u := range users {
		r.users[u] = struct{}{}
	}
	return r
}

// Reached reports whether at least one session of userID received the event.
func (r Reach) Reached(userID string) bool {
	_, ok := r.users[userID]
	return ok
}

// Users returns the reached user IDs in sorted order.
func (r Reach) Users() []string {
	out := make([]string, 0, len(r.users))
	for id := range r.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Router maintains room membership and fans events out to room members.
// Membership is read under the router lock for the whole fan-out, so a
// session that leaves concurrently either gets the event before leaving
// or not at all.
type Router struct {
	presence *Presence
	log      zerolog.Logger

	mu          sync.RWMutex
	sessions    map[string]*Session
	rooms       map[Room]map[string]*Session
	memberships map[string]map[Room]struct{}
}

// NewRouter creates a router that consults presence for unicasts.
func NewRouter(presence *Presence, log zerolog.Logger) *Router {
	return &Router{
		presence:    presence,
		log:         log.With().Str("component", "router").Logger(),
		sessions:    make(map[string]*Session),
		rooms:       make(map[Room]map[string]*Session),
		memberships: make(map[string]map[Room]struct{}),
	}
}

// Attach makes a session addressable by ID.
func (r *Router) Attach(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// Detach removes the session from every room and forgets it.
func (r *Router) Detach(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.memberships[sessionID] {
		r.removeMember(room, sessionID)
	}
	delete(r.memberships, sessionID)
	delete(r.sessions, sessionID)
}

// Join adds the session to room. Joining twice is a no-op.
// It reports false when the session is not attached.
func (r *Router) Join(sessionID string, room Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Session)
		r.rooms[room] = members
	}
	members[sessionID] = s

	joined, ok := r.memberships[sessionID]
	if !ok {
		joined = make(map[Room]struct{})
		r.memberships[sessionID] = joined
	}
	joined[room] = struct{}{}
	return true
}

// Leave removes the session from room. Leaving a room one is not in is a no-op.
func (r *Router) Leave(sessionID string, room Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeMember(room, sessionID)
	if joined, ok := r.memberships[sessionID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.memberships, sessionID)
		}
	}
}

// removeMember drops sessionID from room and the room itself once empty.
// Caller must hold r.mu.
func (r *Router) removeMember(room Room, sessionID string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Broadcast delivers env to every session in any of rooms, once per session.
// Rooms without members are skipped silently.
func (r *Router) Broadcast(env protocol.Envelope, rooms ...Room) Reach {
	return r.BroadcastExcept(env, "", rooms...)
}

// BroadcastExcept is Broadcast that skips the session exceptID.
func (r *Router) BroadcastExcept(env protocol.Envelope, exceptID string, rooms ...Room) Reach {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make(map[string]*Session)
	for _, room := range rooms {
		for id, s := range r.rooms[room] {
			if id != exceptID {
				targets[id] = s
			}
		}
	}
	return r.deliver(env, targets)
}

// BroadcastAll delivers env to every attached session.
func (r *Router) BroadcastAll(env protocol.Envelope) Reach {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deliver(env, r.sessions)
}

// Unicast delivers env to the identity room of userID. It reports false,
// without queueing anything, when the identity is offline.
func (r *Router) Unicast(userID string, env protocol.Envelope) bool {
	if !r.presence.IsOnline(userID) {
		return false
	}
	return r.Broadcast(env, IdentityRoom(userID)).Sessions > 0
}

// deliver encodes env at most once per codec and queues it on every target.
// Caller must hold r.mu for reading.
func (r *Router) deliver(env protocol.Envelope, targets map[string]*Session) Reach {
	reach := Reach{users: make(map[string]struct{})}
	frames := make(map[protocol.Codec][]byte, 2)

	for _, s := range targets {
		frame, ok := frames[s.Codec]
		if !ok {
			var err error
			frame, err = env.Encode(s.Codec)
			if err != nil {
				r.log.Error().Err(err).Str("event", env.Event.String()).Msg("failed to encode broadcast")
				return reach
			}
			frames[s.Codec] = frame
		}
		if s.sendFrame(frame) {
			reach.Sessions++
			reach.users[s.Identity.UserID] = struct{}{}
		}
	}

	metrics.FanoutRecipients.Observe(float64(reach.Sessions))
	return reach
}

// Members returns the session IDs currently in room, sorted.
func (r *Router) Members(room Room) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RoomsOf returns the rooms sessionID belongs to, sorted by name.
func (r *Router) RoomsOf(sessionID string) []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Room, 0, len(r.memberships[sessionID]))
	for room := range r.memberships[sessionID] {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// RoomCount returns the number of non-empty rooms.
func (r *Router) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
