package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	payload := ConversationStartedV1{
		InboxID:        "inbox-001",
		ConversationID: "conv-001",
		Channel:        "email",
		StartedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	env, err := NewEnvelope(TypeConversationStarted, "test-producer", payload)
	require.NoError(t, err)

	assert.NotEmpty(t, env.Meta.ID)
	assert.Equal(t, env.Meta.ID, env.Meta.CorrelationID)
	assert.Equal(t, TypeConversationStarted, env.Meta.Type)
	assert.Equal(t, "test-producer", env.Meta.Producer)
	assert.False(t, env.Meta.Time.IsZero())

	var decoded ConversationStartedV1
	require.NoError(t, json.Unmarshal(env.Data, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestJSONHandler_DecodesEnvelope(t *testing.T) {
	env, err := NewEnvelope(TypeConversationStarted, "test-producer", ConversationStartedV1{
		InboxID:        "inbox-001",
		ConversationID: "conv-001",
	})
	require.NoError(t, err)

	body, err := json.Marshal(env)
	require.NoError(t, err)

	var got ConversationStartedV1
	handler := JSONHandler(func(_ context.Context, ev ConversationStartedV1) error {
		got = ev
		return nil
	})

	err = handler(context.Background(), amqp.Delivery{Body: body})
	require.NoError(t, err)
	assert.Equal(t, "inbox-001", got.InboxID)
	assert.Equal(t, "conv-001", got.ConversationID)
}

func TestJSONHandler_PoisonOnBadJSON(t *testing.T) {
	handler := JSONHandler(func(_ context.Context, _ ConversationStartedV1) error {
		t.Fatal("handler must not run for undecodable bodies")
		return nil
	})

	err := handler(context.Background(), amqp.Delivery{Body: []byte("{not json")})
	assert.ErrorIs(t, err, ErrPoison)
}

func TestJSONHandler_PoisonOnBadPayload(t *testing.T) {
	body := []byte(`{"meta":{"id":"1","type":"conversation.started.v1"},"data":{"started_at":12345}}`)

	handler := JSONHandler(func(_ context.Context, _ ConversationStartedV1) error {
		t.Fatal("handler must not run for undecodable payloads")
		return nil
	})

	err := handler(context.Background(), amqp.Delivery{Body: body})
	assert.ErrorIs(t, err, ErrPoison)
}
