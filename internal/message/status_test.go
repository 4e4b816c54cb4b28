package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusSent, true},
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusSeen, true},
		{StatusDelivered, StatusSeen, true},
		{StatusSeen, StatusDelivered, false},
		{StatusDelivered, StatusSent, false},
		{StatusSent, StatusSent, false},
		{StatusSeen, Status(9), false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestStatus_TextRoundTrip(t *testing.T) {
	data, err := json.Marshal(struct{ S Status }{StatusDelivered})
	require.NoError(t, err)
	assert.JSONEq(t, `{"S":"delivered"}`, string(data))

	var out struct{ S Status }
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, StatusDelivered, out.S)

	assert.Error(t, json.Unmarshal([]byte(`{"S":"lost"}`), &out))
}

func TestMessage_ViewHidesRecalledContent(t *testing.T) {
	m := &Message{ID: "m1", Content: "secret", IsActive: false, Status: StatusSent}
	assert.Empty(t, m.View().Content)

	m.IsActive = true
	assert.Equal(t, "secret", m.View().Content)
	assert.Equal(t, "sent", m.View().Status)
}

func TestConversationKey_IsSymmetric(t *testing.T) {
	assert.Equal(t, ConversationKey("alice", "agent"), ConversationKey("agent", "alice"))
	assert.NotEqual(t, ConversationKey("alice", "agent"), ConversationKey("alice", "bob"))
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())

	unlockA()
	unlockB()
	assert.Zero(t, k.size())
}
