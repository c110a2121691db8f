// ABOUTME: AssignmentScheduler selects agents round-robin and commits ownership changes
// ABOUTME: All mutable state lives in the store; races resolve through CAS, not locks

package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shiftdesk/router/internal/store"
)

// defaultAssignAttempts bounds the auto-assign retry loop. The rotation
// cursor is the only contended resource and retries re-read tiny state, so a
// small bound is enough.
const defaultAssignAttempts = 3

// Conversations is the conversation slice of the backing store: conditional
// reads plus the CAS mutations the scheduler commits through.
type Conversations interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	CountOpenConversations(ctx context.Context, agentID string) (int, error)
	PickupConversation(ctx context.Context, conversationID, agentID string) (*store.Conversation, error)
	TransferConversation(ctx context.Context, conversationID, fromAgentID, toAgentID string) (*store.Conversation, error)
	ReleaseConversation(ctx context.Context, conversationID, agentID string) (*store.Conversation, error)
	AutoAssignConversation(ctx context.Context, inboxID, conversationID, agentID string, prevCursor *string) (*store.Conversation, error)
}

// InboxSource provides inbox configuration. The rotation cursor it exposes is
// written only inside AutoAssignConversation's transaction.
type InboxSource interface {
	GetInbox(ctx context.Context, id string) (*store.Inbox, error)
}

// AuditSink records decisions that change no assignment state, like skipped
// auto-assignments. State-changing events are written by the store inside the
// same transaction as the change.
type AuditSink interface {
	AppendAssignmentEvent(ctx context.Context, event *store.AssignmentEvent) error
}

// Notifier observes committed assignment changes. Implementations must not
// block; delivery is advisory and failures are the implementation's to log.
type Notifier interface {
	NotifyAssignment(ctx context.Context, inboxID string, event *store.AssignmentEvent)
}

// Scheduler is the assignment state machine. It holds no mutable state of its
// own: the rotation cursor and conversation ownership live in the store and
// are only ever written through conditional updates, so a scheduler instance
// is safe to share across goroutines and replicas.
type Scheduler struct {
	conversations Conversations
	inboxes       InboxSource
	audit         AuditSink
	capacity      *CapacityFilter
	registry      *Registry
	notifiers     []Notifier
	maxAttempts   int
	logger        *slog.Logger
}

// NewScheduler creates a scheduler. Pass nil logger for default.
func NewScheduler(conversations Conversations, inboxes InboxSource, audit AuditSink, capacity *CapacityFilter, registry *Registry, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		conversations: conversations,
		inboxes:       inboxes,
		audit:         audit,
		capacity:      capacity,
		registry:      registry,
		maxAttempts:   defaultAssignAttempts,
		logger:        logger.With("component", "scheduler"),
	}
}

// AddNotifier registers an observer for committed assignment changes.
// Not safe to call concurrently with scheduling operations; register
// notifiers during startup.
func (s *Scheduler) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// SetAssignAttempts overrides the auto-assign retry bound. Values below 1
// keep the default. Call during startup.
func (s *Scheduler) SetAssignAttempts(n int) {
	if n >= 1 {
		s.maxAttempts = n
	}
}

// AutoAssign distributes an unassigned conversation to the next agent in the
// inbox's round-robin rotation. It returns the chosen agent ID, or "" when
// the conversation legitimately stays unassigned (auto-assignment disabled,
// or no eligible agents — the latter records a skipped event).
//
// The commit is a single transaction over conversation ownership, rotation
// cursor and the auto_assign event. A concurrent auto-assign on the same
// inbox moves the cursor and fails our cursor CAS; we re-read rotation state
// and retry a bounded number of times.
func (s *Scheduler) AutoAssign(ctx context.Context, inboxID, conversationID string) (string, error) {
	inbox, err := s.inboxes.GetInbox(ctx, inboxID)
	if err != nil {
		return "", err
	}

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return "", err
	}
	if conv.InboxID != inboxID {
		return "", fmt.Errorf("%w: conversation %s does not belong to inbox %s", ErrValidation, conversationID, inboxID)
	}
	if conv.Assigned() {
		return "", store.ErrConflict
	}

	if !inbox.AutoAssignmentEnabled {
		s.logger.Debug("auto-assignment disabled, leaving unassigned",
			"inbox_id", inboxID,
			"conversation_id", conversationID,
		)
		return "", nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		eligible, err := s.capacity.EligibleForAssignment(ctx, inboxID)
		if err != nil {
			return "", err
		}

		if len(eligible) == 0 {
			event := &store.AssignmentEvent{
				ConversationID: conversationID,
				Kind:           store.EventSkipped,
			}
			if err := s.audit.AppendAssignmentEvent(ctx, event); err != nil {
				return "", fmt.Errorf("recording skipped assignment: %w", err)
			}
			s.logger.Info("no eligible agents, conversation left unassigned",
				"inbox_id", inboxID,
				"conversation_id", conversationID,
			)
			return "", nil
		}

		chosen := nextInRotation(eligible, inbox.RotationCursor)

		updated, err := s.conversations.AutoAssignConversation(ctx, inboxID, conversationID, chosen, inbox.RotationCursor)
		if errors.Is(err, store.ErrRotationConflict) {
			s.logger.Debug("rotation cursor moved, retrying",
				"inbox_id", inboxID,
				"attempt", attempt,
			)
			inbox, err = s.inboxes.GetInbox(ctx, inboxID)
			if err != nil {
				return "", err
			}
			continue
		}
		if err != nil {
			return "", err
		}

		s.logger.Info("conversation auto-assigned",
			"inbox_id", inboxID,
			"conversation_id", conversationID,
			"agent_id", chosen,
		)
		s.notify(ctx, inboxID, &store.AssignmentEvent{
			ConversationID: conversationID,
			ToAgentID:      &chosen,
			Kind:           store.EventAutoAssign,
			Timestamp:      updated.UpdatedAt,
		})
		return chosen, nil
	}

	return "", fmt.Errorf("auto-assign: rotation contention after %d attempts: %w", s.maxAttempts, store.ErrConflict)
}

// Pickup assigns an unassigned conversation to the requesting agent. The
// compare-and-swap against a NULL owner admits exactly one winner; losers get
// store.ErrConflict and should surface "already taken" rather than retry.
// Manual pickup never moves the rotation cursor.
func (s *Scheduler) Pickup(ctx context.Context, conversationID, agentID string) (*store.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	member, err := s.registry.IsMember(ctx, conv.InboxID, agentID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fmt.Errorf("%w: agent %s, inbox %s", ErrNotMember, agentID, conv.InboxID)
	}

	updated, err := s.conversations.PickupConversation(ctx, conversationID, agentID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("conversation picked up",
		"conversation_id", conversationID,
		"agent_id", agentID,
	)
	s.notify(ctx, updated.InboxID, &store.AssignmentEvent{
		ConversationID: conversationID,
		ToAgentID:      &agentID,
		Kind:           store.EventPickup,
		Timestamp:      updated.UpdatedAt,
	})
	return updated, nil
}

// Transfer hands a conversation from one agent to another. The target must
// currently be an inbox member; offline targets are allowed (the coordinator
// attaches the advisory warning). The swap succeeds only while fromAgentID is
// still the owner, otherwise store.ErrConflict.
func (s *Scheduler) Transfer(ctx context.Context, conversationID, fromAgentID, toAgentID string) (*store.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	member, err := s.registry.IsMember(ctx, conv.InboxID, toAgentID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, fmt.Errorf("%w: agent %s, inbox %s", ErrNotMember, toAgentID, conv.InboxID)
	}

	updated, err := s.conversations.TransferConversation(ctx, conversationID, fromAgentID, toAgentID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("conversation transferred",
		"conversation_id", conversationID,
		"from_agent_id", fromAgentID,
		"to_agent_id", toAgentID,
	)
	s.notify(ctx, updated.InboxID, &store.AssignmentEvent{
		ConversationID: conversationID,
		FromAgentID:    &fromAgentID,
		ToAgentID:      &toAgentID,
		Kind:           store.EventTransfer,
		Timestamp:      updated.UpdatedAt,
	})
	return updated, nil
}

// Release unassigns a conversation currently owned by agentID. Releasing a
// conversation someone else already unassigned is a no-op success; a
// conversation now owned by a different agent is store.ErrConflict. Release
// never triggers auto-assignment — re-routing is an external decision.
func (s *Scheduler) Release(ctx context.Context, conversationID, agentID string) (*store.Conversation, error) {
	updated, err := s.conversations.ReleaseConversation(ctx, conversationID, agentID)
	if errors.Is(err, store.ErrConflict) {
		current, getErr := s.conversations.GetConversation(ctx, conversationID)
		if getErr != nil {
			return nil, getErr
		}
		if !current.Assigned() {
			// Desired end state already holds; no event, no notification.
			return current, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("conversation released",
		"conversation_id", conversationID,
		"agent_id", agentID,
	)
	s.notify(ctx, updated.InboxID, &store.AssignmentEvent{
		ConversationID: conversationID,
		FromAgentID:    &agentID,
		Kind:           store.EventRelease,
		Timestamp:      updated.UpdatedAt,
	})
	return updated, nil
}

// AgentConversationCount returns the agent's current open assignment count.
func (s *Scheduler) AgentConversationCount(ctx context.Context, agentID string) (int, error) {
	return s.conversations.CountOpenConversations(ctx, agentID)
}

func (s *Scheduler) notify(ctx context.Context, inboxID string, event *store.AssignmentEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	for _, n := range s.notifiers {
		n.NotifyAssignment(ctx, inboxID, event)
	}
}

// nextInRotation picks the element strictly after cursor in the eligible
// ordered set, wrapping circularly. An unset cursor, or a cursor that is no
// longer eligible, selects the first element. With K eligible agents this
// keeps assignment counts within 1 of each other across any run of calls.
func nextInRotation(eligible []string, cursor *string) string {
	if cursor == nil {
		return eligible[0]
	}
	for i, agentID := range eligible {
		if agentID == *cursor {
			return eligible[(i+1)%len(eligible)]
		}
	}
	return eligible[0]
}
