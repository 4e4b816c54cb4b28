package chat

import (
	"sort"
	"sync"
)

type presenceEntry struct {
	sessionID string
	identity  Identity
}

// Presence is the bidirectional identity <-> session registry.
// Both directions are updated under one lock, so no caller observes a
// half-inserted or half-removed pair.
type Presence struct {
	mu        sync.RWMutex
	byUser    map[string]presenceEntry
	bySession map[string]string
}

// NewPresence creates an empty registry.
func NewPresence() *Presence {
	return &Presence{
		byUser:    make(map[string]presenceEntry),
		bySession: make(map[string]string),
	}
}

// Register records sessionID as the live session of identity. If the identity
// already had a session, that mapping is replaced and its ID is returned.
func (p *Presence) Register(identity Identity, sessionID string) (previous string, replaced bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.byUser[identity.UserID]; ok && old.sessionID != sessionID {
		delete(p.bySession, old.sessionID)
		previous, replaced = old.sessionID, true
	}
	p.byUser[identity.UserID] = presenceEntry{sessionID: sessionID, identity: identity}
	p.bySession[sessionID] = identity.UserID
	return previous, replaced
}

// Unregister removes the pair owned by sessionID. It is a no-op when the
// session is unknown or has been superseded.
func (p *Presence) Unregister(sessionID string) (Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok := p.bySession[sessionID]
	if !ok {
		return Identity{}, false
	}
	delete(p.bySession, sessionID)

	entry := p.byUser[userID]
	if entry.sessionID != sessionID {
		return Identity{}, false
	}
	delete(p.byUser, userID)
	return entry.identity, true
}

// IsOnline reports whether userID has a live session.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byUser[userID]
	return ok
}

// SessionFor returns the live session of userID.
func (p *Presence) SessionFor(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.byUser[userID]
	return entry.sessionID, ok
}

// IdentityOf returns the identity registered for sessionID.
func (p *Presence) IdentityOf(sessionID string) (Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	userID, ok := p.bySession[sessionID]
	if !ok {
		return Identity{}, false
	}
	return p.byUser[userID].identity, true
}

// AllOnline returns every online identity ordered by user ID.
func (p *Presence) AllOnline() []Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Identity, 0, len(p.byUser))
	for _, entry := range p.byUser {
		out = append(out, entry.identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len returns the number of online identities.
func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}

// consistent reports whether both directions agree. Used by tests.
func (p *Presence) consistent() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.byUser) != len(p.bySession) {
		return false
	}
	for userID, entry := range p.byUser {
		if p.bySession[entry.sessionID] != userID {
			return false
		}
	}
	return true
}
