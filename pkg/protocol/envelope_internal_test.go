package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestEnvelope_toProto(t *testing.T) {
	env := Envelope{
		Event: EventTyping,
		Data:  map[string]any{"conversationId": "c1", "isTyping": true},
	}

	pbMsg, err := env.toProto()
	require.NoError(t, err)

	assert.Equal(t, "typing", pbMsg.Fields["event"].GetStringValue())
	data := pbMsg.Fields["data"].GetStructValue()
	require.NotNil(t, data)
	assert.Equal(t, "c1", data.Fields["conversationId"].GetStringValue())
	assert.True(t, data.Fields["isTyping"].GetBoolValue())
}

func TestEnvelope_toProtoWithoutData(t *testing.T) {
	pbMsg, err := Envelope{Event: EventGetOnlineUsers}.toProto()
	require.NoError(t, err)

	_, ok := pbMsg.Fields["data"]
	assert.False(t, ok)
}

func TestEnvelope_fromProto(t *testing.T) {
	pbMsg, err := structpb.NewStruct(map[string]any{
		"event": "join_conversation",
		"data":  map[string]any{"conversationId": "c1"},
	})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, env.fromProto(pbMsg))
	assert.Equal(t, EventJoinConversation, env.Event)
	assert.Equal(t, "c1", env.Data["conversationId"])
}

func TestEnvelope_fromProtoMissingEvent(t *testing.T) {
	pbMsg, err := structpb.NewStruct(map[string]any{"data": map[string]any{}})
	require.NoError(t, err)

	var env Envelope
	assert.ErrorIs(t, env.fromProto(pbMsg), ErrMissingEvent)
}

func TestToMap(t *testing.T) {
	m, err := toMap(ConversationRef{ConversationID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"conversationId": "c1"}, m)

	m, err = toMap(nil)
	require.NoError(t, err)
	assert.Nil(t, m)
}
