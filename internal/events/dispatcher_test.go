package events

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftdesk/router/internal/routing"
	"github.com/shiftdesk/router/internal/store"
)

// setupDispatcher wires a dispatcher over a real store and scheduler. The
// AMQP client is nil: inbound handling never touches the broker.
func setupDispatcher(t *testing.T) (*Dispatcher, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := routing.NewRegistry(st, nil)
	capacity := routing.NewCapacityFilter(registry, st, nil)
	scheduler := routing.NewScheduler(st, st, st, capacity, registry, nil)

	return NewDispatcher(scheduler, st, nil, nil), st
}

func seedRoutableInbox(t *testing.T, st *store.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateInbox(ctx, &store.Inbox{
		ID:                    "inbox-001",
		Name:                  "Support",
		AutoAssignmentEnabled: true,
	}))
	require.NoError(t, st.CreateAgent(ctx, &store.Agent{
		ID:           "agent-a",
		DisplayName:  "Alice",
		Availability: store.AvailabilityOnline,
	}))
	require.NoError(t, st.AddMember(ctx, "inbox-001", "agent-a"))
}

func TestDispatcher_HandleConversationStarted(t *testing.T) {
	d, st := setupDispatcher(t)
	ctx := context.Background()
	seedRoutableInbox(t, st)

	err := d.HandleConversationStarted(ctx, ConversationStartedV1{
		InboxID:        "inbox-001",
		ConversationID: "conv-001",
		Channel:        "chat",
	})
	require.NoError(t, err)

	conv, err := st.GetConversation(ctx, "conv-001")
	require.NoError(t, err)
	require.NotNil(t, conv.AssignedAgentID)
	assert.Equal(t, "agent-a", *conv.AssignedAgentID)
}

func TestDispatcher_HandleConversationStarted_Replay(t *testing.T) {
	d, st := setupDispatcher(t)
	ctx := context.Background()
	seedRoutableInbox(t, st)

	event := ConversationStartedV1{
		InboxID:        "inbox-001",
		ConversationID: "conv-001",
	}
	require.NoError(t, d.HandleConversationStarted(ctx, event))

	// Redelivery of the same event acks cleanly and changes nothing
	require.NoError(t, d.HandleConversationStarted(ctx, event))

	conv, err := st.GetConversation(ctx, "conv-001")
	require.NoError(t, err)
	require.NotNil(t, conv.AssignedAgentID)
	assert.Equal(t, "agent-a", *conv.AssignedAgentID)

	events, err := st.ListAssignmentEvents(ctx, "conv-001", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestDispatcher_HandleConversationStarted_MissingIDs(t *testing.T) {
	d, _ := setupDispatcher(t)

	err := d.HandleConversationStarted(context.Background(), ConversationStartedV1{
		InboxID: "inbox-001",
	})
	assert.ErrorIs(t, err, ErrPoison)
}

func TestDispatcher_HandleConversationStarted_UnknownInbox(t *testing.T) {
	d, _ := setupDispatcher(t)

	err := d.HandleConversationStarted(context.Background(), ConversationStartedV1{
		InboxID:        "nope",
		ConversationID: "conv-001",
	})
	assert.ErrorIs(t, err, ErrPoison)
}

func TestDispatcher_HandleConversationStarted_NoEligibleAgents(t *testing.T) {
	d, st := setupDispatcher(t)
	ctx := context.Background()
	seedRoutableInbox(t, st)
	require.NoError(t, st.SetAgentAvailability(ctx, "agent-a", store.AvailabilityOffline))

	err := d.HandleConversationStarted(ctx, ConversationStartedV1{
		InboxID:        "inbox-001",
		ConversationID: "conv-001",
	})
	require.NoError(t, err)

	conv, err := st.GetConversation(ctx, "conv-001")
	require.NoError(t, err)
	assert.False(t, conv.Assigned())
}
