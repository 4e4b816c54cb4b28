package client

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciler_ConfirmResolvesOnce(t *testing.T) {
	r := NewReconciler()
	msg := r.Submit("C1", "S", "A", "Hello")
	assert.Equal(t, LocalStatusSending, msg.LocalStatus)
	assert.NotEmpty(t, msg.TempID)
	assert.Equal(t, 1, r.PendingCount())

	assert.True(t, r.Confirm(msg.TempID, "m1"))
	assert.False(t, r.Confirm(msg.TempID, "m1"), "second confirm")
	assert.False(t, r.Fail(msg.TempID, errors.New("late")), "fail after confirm")
	assert.Zero(t, r.PendingCount())

	res, ok := r.Outcome(msg.TempID)
	require.True(t, ok)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "m1", res.MessageID)
}

func TestReconciler_FailResolvesOnce(t *testing.T) {
	r := NewReconciler()
	msg := r.Submit("C1", "S", "A", "Hello again")
	boom := errors.New("store down")

	assert.True(t, r.Fail(msg.TempID, boom))
	assert.False(t, r.Confirm(msg.TempID, "m2"))

	res, ok := r.Outcome(msg.TempID)
	require.True(t, ok)
	assert.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err, boom)
}

func TestReconciler_UnknownCorrelation(t *testing.T) {
	r := NewReconciler()
	assert.False(t, r.Confirm("nope", "m1"))
	assert.False(t, r.Fail("nope", errors.New("x")))
	_, ok := r.Outcome("nope")
	assert.False(t, ok)
}

func TestReconciler_PendingByConversation(t *testing.T) {
	r := NewReconciler()
	a := r.Submit("C1", "S", "A", "one")
	r.Submit("C2", "S", "A", "two")
	c := r.Submit("C1", "S", "A", "three")

	pending := r.Pending("C1")
	require.Len(t, pending, 2)
	assert.ElementsMatch(t, []string{a.TempID, c.TempID}, []string{pending[0].TempID, pending[1].TempID})
	assert.Len(t, r.Pending(""), 3)
}

func TestReconciler_ExactlyOnceUnderRacingResolutions(t *testing.T) {
	r := NewReconciler()
	const n = 200

	ids := make([]string, n)
	for i := range ids {
		ids[i] = r.Submit("C1", "S", "A", "x").TempID
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins = make(map[string]int)
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for _, id := range ids {
				var won bool
				if rng.Intn(2) == 0 {
					won = r.Confirm(id, "m-"+id)
				} else {
					won = r.Fail(id, errors.New("rejected"))
				}
				if won {
					mu.Lock()
					wins[id]++
					mu.Unlock()
				}
			}
		}(int64(w))
	}
	wg.Wait()

	assert.Zero(t, r.PendingCount())
	require.Len(t, wins, n)
	for id, count := range wins {
		assert.Equal(t, 1, count, "entry %s resolved %d times", id, count)
	}
}

func TestReconciler_OutcomeHistoryIsBounded(t *testing.T) {
	r := newReconciler(2)
	var ids []string
	for i := 0; i < 3; i++ {
		msg := r.Submit("C1", "S", "A", "hi")
		require.True(t, r.Confirm(msg.TempID, msg.TempID))
		ids = append(ids, msg.TempID)
	}

	_, ok := r.Outcome(ids[0])
	assert.False(t, ok, "oldest outcome is evicted")
	for _, id := range ids[1:] {
		_, ok := r.Outcome(id)
		assert.True(t, ok)
	}
	assert.False(t, r.Fail(ids[0], errors.New("late")), "evicted entry stays resolved")
}
