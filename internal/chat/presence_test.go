package chat

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresence_RegisterAndLookup(t *testing.T) {
	p := NewPresence()
	alice := Identity{UserID: "alice", Name: "Alice", Role: RoleMember}

	_, replaced := p.Register(alice, "s1")
	assert.False(t, replaced)
	assert.True(t, p.IsOnline("alice"))

	sid, ok := p.SessionFor("alice")
	require.True(t, ok)
	assert.Equal(t, "s1", sid)

	got, ok := p.IdentityOf("s1")
	require.True(t, ok)
	assert.Equal(t, alice, got)
	assert.Equal(t, 1, p.Len())
}

func TestPresence_ReRegisterReplaces(t *testing.T) {
	p := NewPresence()
	alice := Identity{UserID: "alice"}

	p.Register(alice, "s1")
	previous, replaced := p.Register(alice, "s2")
	require.True(t, replaced)
	assert.Equal(t, "s1", previous)

	_, ok := p.IdentityOf("s1")
	assert.False(t, ok, "reverse entry of superseded session must be gone")

	// a late unregister of the old session leaves the new one in place
	_, removed := p.Unregister("s1")
	assert.False(t, removed)
	sid, _ := p.SessionFor("alice")
	assert.Equal(t, "s2", sid)
	assert.True(t, p.consistent())
}

func TestPresence_Unregister(t *testing.T) {
	p := NewPresence()
	p.Register(Identity{UserID: "alice"}, "s1")

	id, removed := p.Unregister("s1")
	require.True(t, removed)
	assert.Equal(t, "alice", id.UserID)
	assert.False(t, p.IsOnline("alice"))

	_, removed = p.Unregister("s1")
	assert.False(t, removed)
	_, removed = p.Unregister("unknown")
	assert.False(t, removed)
	assert.Equal(t, 0, p.Len())
}

func TestPresence_AllOnlineSorted(t *testing.T) {
	p := NewPresence()
	p.Register(Identity{UserID: "carol"}, "s3")
	p.Register(Identity{UserID: "alice"}, "s1")
	p.Register(Identity{UserID: "bob", Role: RoleSupport}, "s2")

	var ids []string
	for _, id := range p.AllOnline() {
		ids = append(ids, id.UserID)
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, ids)
}

func TestPresence_ConsistentUnderRandomOperations(t *testing.T) {
	p := NewPresence()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		user := fmt.Sprintf("u%d", rng.Intn(8))
		session := fmt.Sprintf("s%d", rng.Intn(24))
		if rng.Intn(2) == 0 {
			p.Register(Identity{UserID: user}, session)
		} else {
			p.Unregister(session)
		}
		require.True(t, p.consistent(), "inconsistent after step %d", i)
	}
}

func TestPresence_ConcurrentAccess(t *testing.T) {
	p := NewPresence()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				user := fmt.Sprintf("u%d", i%5)
				session := fmt.Sprintf("w%d-s%d", w, i)
				p.Register(Identity{UserID: user}, session)
				p.IsOnline(user)
				p.AllOnline()
				p.Unregister(session)
			}
		}(w)
	}
	wg.Wait()

	assert.True(t, p.consistent())
	assert.Equal(t, 0, p.Len())
}
