package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendAssignmentEvent_FillsDefaults(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	event := &AssignmentEvent{
		ConversationID: "conv-001",
		Kind:           EventSkipped,
	}
	err := store.AppendAssignmentEvent(ctx, event)
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())

	events, err := store.ListAssignmentEvents(ctx, "conv-001", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventSkipped, events[0].Kind)
	assert.Nil(t, events[0].FromAgentID)
	assert.Nil(t, events[0].ToAgentID)
}

func TestStore_ListAssignmentEvents_ChronologicalOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	agent := "agent-001"
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := store.AppendAssignmentEvent(ctx, &AssignmentEvent{
			ConversationID: "conv-001",
			ToAgentID:      &agent,
			Kind:           EventPickup,
			Timestamp:      base.Add(time.Duration(2-i) * time.Minute),
		})
		require.NoError(t, err)
	}

	events, err := store.ListAssignmentEvents(ctx, "conv-001", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].Timestamp.Before(events[1].Timestamp))
	assert.True(t, events[1].Timestamp.Before(events[2].Timestamp))
}

func TestStore_ListAssignmentEvents_Limit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := store.AppendAssignmentEvent(ctx, &AssignmentEvent{
			ConversationID: "conv-001",
			Kind:           EventSkipped,
		})
		require.NoError(t, err)
	}

	events, err := store.ListAssignmentEvents(ctx, "conv-001", 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestStore_ListAssignmentEvents_FiltersByConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendAssignmentEvent(ctx, &AssignmentEvent{
		ConversationID: "conv-001",
		Kind:           EventSkipped,
	}))
	require.NoError(t, store.AppendAssignmentEvent(ctx, &AssignmentEvent{
		ConversationID: "conv-002",
		Kind:           EventSkipped,
	}))

	events, err := store.ListAssignmentEvents(ctx, "conv-001", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "conv-001", events[0].ConversationID)
}
