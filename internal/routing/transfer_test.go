package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftdesk/router/internal/store"
)

func setupTransferEnv(t *testing.T) (*testEnv, *TransferCoordinator) {
	t.Helper()
	env := setupTestEnv(t)
	coordinator := NewTransferCoordinator(env.scheduler, env.registry, nil)

	env.addInbox(t, "inbox-001")
	env.addAgent(t, "agent-a", store.AvailabilityOnline, "inbox-001")
	env.addConversation(t, "conv-001", "inbox-001")

	_, err := env.scheduler.Pickup(context.Background(), "conv-001", "agent-a")
	require.NoError(t, err)

	return env, coordinator
}

func TestTransferCoordinator_OnlineTarget(t *testing.T) {
	env, coordinator := setupTransferEnv(t)
	ctx := context.Background()

	env.addAgent(t, "agent-b", store.AvailabilityOnline, "inbox-001")

	result, err := coordinator.Transfer(ctx, "conv-001", "agent-a", "agent-b")
	require.NoError(t, err)
	assert.False(t, result.TargetOffline)
	require.NotNil(t, result.Conversation.AssignedAgentID)
	assert.Equal(t, "agent-b", *result.Conversation.AssignedAgentID)
}

func TestTransferCoordinator_OfflineTargetWarns(t *testing.T) {
	env, coordinator := setupTransferEnv(t)
	ctx := context.Background()

	env.addAgent(t, "agent-b", store.AvailabilityAway, "inbox-001")

	// The transfer still succeeds; the flag carries the warning
	result, err := coordinator.Transfer(ctx, "conv-001", "agent-a", "agent-b")
	require.NoError(t, err)
	assert.True(t, result.TargetOffline)
	require.NotNil(t, result.Conversation.AssignedAgentID)
	assert.Equal(t, "agent-b", *result.Conversation.AssignedAgentID)
}

func TestTransferCoordinator_UnknownTarget(t *testing.T) {
	_, coordinator := setupTransferEnv(t)

	_, err := coordinator.Transfer(context.Background(), "conv-001", "agent-a", "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
