package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftdesk/router/internal/store"
)

func TestRegistry_SetAvailability(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.addAgent(t, "agent-a", store.AvailabilityOffline)

	err := env.registry.SetAvailability(ctx, "agent-a", store.AvailabilityOnline)
	require.NoError(t, err)

	availability, err := env.registry.AgentAvailability(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, store.AvailabilityOnline, availability)
}

func TestRegistry_SetAvailability_UnknownState(t *testing.T) {
	env := setupTestEnv(t)

	env.addAgent(t, "agent-a", store.AvailabilityOffline)

	err := env.registry.SetAvailability(context.Background(), "agent-a", "vacationing")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegistry_SetAvailability_UnknownAgent(t *testing.T) {
	env := setupTestEnv(t)

	err := env.registry.SetAvailability(context.Background(), "nope", store.AvailabilityOnline)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRegistry_EligiblePool_OnlineMembersOnly(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.addInbox(t, "inbox-001")
	env.addAgent(t, "agent-c", store.AvailabilityOnline, "inbox-001")
	env.addAgent(t, "agent-a", store.AvailabilityOnline, "inbox-001")
	env.addAgent(t, "agent-b", store.AvailabilityBusy, "inbox-001")
	env.addAgent(t, "agent-d", store.AvailabilityOnline) // online but not a member

	pool, err := env.registry.EligiblePool(ctx, "inbox-001")
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-a", "agent-c"}, pool)
}

func TestCapacityFilter_NoLimit(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.addInbox(t, "inbox-001")
	env.addAgent(t, "agent-a", store.AvailabilityOnline, "inbox-001")
	env.addAgent(t, "agent-b", store.AvailabilityOnline, "inbox-001")

	eligible, err := env.capacity.EligibleForAssignment(ctx, "inbox-001")
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-a", "agent-b"}, eligible)
}

func TestCapacityFilter_ExcludesAgentsAtLimit(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	env.addInbox(t, "inbox-001")
	limit := 2
	require.NoError(t, env.store.SetAgentCapacity(ctx, "inbox-001", &limit))

	env.addAgent(t, "agent-a", store.AvailabilityOnline, "inbox-001")
	env.addAgent(t, "agent-b", store.AvailabilityOnline, "inbox-001")

	for i := 0; i < 2; i++ {
		convID := "conv-held-" + string(rune('a'+i))
		env.addConversation(t, convID, "inbox-001")
		_, err := env.scheduler.Pickup(ctx, convID, "agent-a")
		require.NoError(t, err)
	}

	eligible, err := env.capacity.EligibleForAssignment(ctx, "inbox-001")
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-b"}, eligible)
}
