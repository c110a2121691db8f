// ABOUTME: TransferCoordinator orchestrates agent-to-agent handoff over the scheduler
// ABOUTME: Adds the offline-target advisory warning without altering scheduler semantics

package routing

import (
	"context"
	"log/slog"

	"github.com/shiftdesk/router/internal/store"
)

// TransferResult is a completed handoff. TargetOffline is advisory: the
// transfer went through, but the receiving agent was not online when it did.
type TransferResult struct {
	Conversation  *store.Conversation
	TargetOffline bool
}

// TransferCoordinator wraps Scheduler.Transfer with the availability lookup
// that produces the caller-visible warning.
type TransferCoordinator struct {
	scheduler *Scheduler
	registry  *Registry
	logger    *slog.Logger
}

// NewTransferCoordinator creates a coordinator. Pass nil logger for default.
func NewTransferCoordinator(scheduler *Scheduler, registry *Registry, logger *slog.Logger) *TransferCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransferCoordinator{
		scheduler: scheduler,
		registry:  registry,
		logger:    logger.With("component", "transfer"),
	}
}

// Transfer hands the conversation from one agent to another. Membership of
// the target is enforced (ErrNotMember); an offline or away target is allowed
// and flagged in the result rather than blocked.
func (c *TransferCoordinator) Transfer(ctx context.Context, conversationID, fromAgentID, toAgentID string) (*TransferResult, error) {
	availability, err := c.registry.AgentAvailability(ctx, toAgentID)
	if err != nil {
		return nil, err
	}

	conv, err := c.scheduler.Transfer(ctx, conversationID, fromAgentID, toAgentID)
	if err != nil {
		return nil, err
	}

	offline := availability != store.AvailabilityOnline
	if offline {
		c.logger.Warn("transfer target is not online",
			"conversation_id", conversationID,
			"to_agent_id", toAgentID,
			"availability", availability,
		)
	}

	return &TransferResult{
		Conversation:  conv,
		TargetOffline: offline,
	}, nil
}
