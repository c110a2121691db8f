// ABOUTME: CapacityFilter computes which inbox members can take a new assignment
// ABOUTME: Intersects the online pool with agents under the per-agent conversation limit

package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shiftdesk/router/internal/store"
)

// CapacitySource is the slice of the store the filter needs.
type CapacitySource interface {
	GetInbox(ctx context.Context, id string) (*store.Inbox, error)
	CountOpenConversations(ctx context.Context, agentID string) (int, error)
}

// CapacityFilter narrows the registry's eligible pool to agents with room for
// another conversation.
type CapacityFilter struct {
	registry *Registry
	source   CapacitySource
	logger   *slog.Logger
}

// NewCapacityFilter creates a filter over the registry and store.
// Pass nil logger for default.
func NewCapacityFilter(registry *Registry, source CapacitySource, logger *slog.Logger) *CapacityFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CapacityFilter{
		registry: registry,
		source:   source,
		logger:   logger.With("component", "capacity"),
	}
}

// EligibleForAssignment returns online inbox members whose open conversation
// count is below the inbox's per-agent limit, preserving the registry's
// ascending-ID order. Agents at or over the limit are excluded from rotation
// entirely, not deprioritized. An unset limit means unbounded.
func (f *CapacityFilter) EligibleForAssignment(ctx context.Context, inboxID string) ([]string, error) {
	inbox, err := f.source.GetInbox(ctx, inboxID)
	if err != nil {
		return nil, err
	}

	pool, err := f.registry.EligiblePool(ctx, inboxID)
	if err != nil {
		return nil, err
	}
	if inbox.MaxConversationsPerAgent == nil {
		return pool, nil
	}

	limit := *inbox.MaxConversationsPerAgent
	var eligible []string
	for _, agentID := range pool {
		count, err := f.source.CountOpenConversations(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("counting conversations for %s: %w", agentID, err)
		}
		if count < limit {
			eligible = append(eligible, agentID)
		} else {
			f.logger.Debug("agent at capacity, excluded from rotation",
				"inbox_id", inboxID,
				"agent_id", agentID,
				"count", count,
				"limit", limit,
			)
		}
	}
	return eligible, nil
}
