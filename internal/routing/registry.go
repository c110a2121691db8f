// ABOUTME: AvailabilityRegistry tracks agent availability and inbox memberships
// ABOUTME: Pure state accessor over the store; holds no scheduling logic

package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shiftdesk/router/internal/store"
)

// Directory is the slice of the store the registry reads and writes.
type Directory interface {
	GetAgent(ctx context.Context, id string) (*store.Agent, error)
	SetAgentAvailability(ctx context.Context, id string, availability store.Availability) error
	ListMembers(ctx context.Context, inboxID string) ([]*store.Member, error)
	IsMember(ctx context.Context, inboxID, agentID string) (bool, error)
}

// Registry exposes agent availability and inbox membership to the scheduler.
type Registry struct {
	directory Directory
	logger    *slog.Logger
}

// NewRegistry creates a registry backed by the given directory.
// Pass nil logger for default.
func NewRegistry(directory Directory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		directory: directory,
		logger:    logger.With("component", "registry"),
	}
}

// SetAvailability updates an agent's availability state. Transitioning to
// offline or busy has no effect on conversations the agent already holds.
// Returns ErrValidation for an unknown state and store.ErrNotFound for an
// unknown agent.
func (r *Registry) SetAvailability(ctx context.Context, agentID string, availability store.Availability) error {
	if !availability.Valid() {
		return fmt.Errorf("%w: unknown availability %q", ErrValidation, availability)
	}

	if err := r.directory.SetAgentAvailability(ctx, agentID, availability); err != nil {
		return err
	}

	r.logger.Info("availability changed", "agent_id", agentID, "availability", availability)
	return nil
}

// EligiblePool returns the inbox members with availability online, ordered
// ascending by agent ID. This ordering is the rotation universe: it must be
// stable so round-robin selection is deterministic.
func (r *Registry) EligiblePool(ctx context.Context, inboxID string) ([]string, error) {
	members, err := r.directory.ListMembers(ctx, inboxID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}

	var pool []string
	for _, m := range members {
		if m.Availability == store.AvailabilityOnline {
			pool = append(pool, m.AgentID)
		}
	}
	return pool, nil
}

// IsMember reports whether the agent currently belongs to the inbox.
func (r *Registry) IsMember(ctx context.Context, inboxID, agentID string) (bool, error) {
	return r.directory.IsMember(ctx, inboxID, agentID)
}

// AgentAvailability returns the agent's current availability state.
func (r *Registry) AgentAvailability(ctx context.Context, agentID string) (store.Availability, error) {
	agent, err := r.directory.GetAgent(ctx, agentID)
	if err != nil {
		return "", err
	}
	return agent.Availability, nil
}
