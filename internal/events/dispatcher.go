// ABOUTME: Dispatcher routes inbound conversation.started events into auto-assignment
// ABOUTME: Also publishes assignment.changed notifications as a routing.Notifier

package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shiftdesk/router/internal/routing"
	"github.com/shiftdesk/router/internal/store"
)

// ConversationCreator is the store slice the dispatcher needs to register
// conversations announced on the wire.
type ConversationCreator interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
}

// Dispatcher connects the event transport to the scheduler: inbound
// conversation.started events create the conversation record and trigger
// auto-assignment; committed assignments go back out as assignment.changed.
type Dispatcher struct {
	scheduler *routing.Scheduler
	creator   ConversationCreator
	client    *Client
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. Pass nil logger for default.
func NewDispatcher(scheduler *routing.Scheduler, creator ConversationCreator, client *Client, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		scheduler: scheduler,
		creator:   creator,
		client:    client,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Spec returns the consumer spec binding conversation.started events to
// HandleConversationStarted.
func (d *Dispatcher) Spec(queue string) ConsumerSpec {
	return ConsumerSpec{
		Queue:      queue,
		BindingKey: TypeConversationStarted,
		Consume:    JSONHandler(d.HandleConversationStarted),
	}
}

// HandleConversationStarted registers the conversation and runs
// auto-assignment. A replayed event for an already-known conversation is not
// an error: creation is skipped and assignment proceeds (and no-ops with a
// conflict if the conversation is already owned). Invalid payloads are poison.
func (d *Dispatcher) HandleConversationStarted(ctx context.Context, ev ConversationStartedV1) error {
	if ev.InboxID == "" || ev.ConversationID == "" {
		return ErrPoison
	}

	conv := &store.Conversation{
		ID:      ev.ConversationID,
		InboxID: ev.InboxID,
	}
	err := d.creator.CreateConversation(ctx, conv)
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("creating conversation: %w", err)
	}

	assignee, err := d.scheduler.AutoAssign(ctx, ev.InboxID, ev.ConversationID)
	switch {
	case errors.Is(err, store.ErrConflict):
		// Redelivered event for a conversation that already found an owner.
		d.logger.Debug("conversation already assigned",
			"conversation_id", ev.ConversationID,
		)
		return nil
	case errors.Is(err, routing.ErrValidation), errors.Is(err, store.ErrNotFound):
		// Bad reference data won't get better on redelivery.
		d.logger.Warn("unroutable conversation event",
			"inbox_id", ev.InboxID,
			"conversation_id", ev.ConversationID,
			"error", err,
		)
		return ErrPoison
	case err != nil:
		return fmt.Errorf("auto-assigning: %w", err)
	}

	if assignee == "" {
		d.logger.Info("conversation left unassigned",
			"inbox_id", ev.InboxID,
			"conversation_id", ev.ConversationID,
		)
	}
	return nil
}

// NotifyAssignment implements routing.Notifier by publishing an
// assignment.changed event. Publishing is best-effort: the assignment is
// already durable, so a broker hiccup is logged rather than propagated.
func (d *Dispatcher) NotifyAssignment(ctx context.Context, inboxID string, event *store.AssignmentEvent) {
	payload := AssignmentChangedV1{
		InboxID:        inboxID,
		ConversationID: event.ConversationID,
		FromAgentID:    event.FromAgentID,
		ToAgentID:      event.ToAgentID,
		Kind:           string(event.Kind),
		ChangedAt:      event.Timestamp,
	}

	env, err := NewEnvelope(TypeAssignmentChanged, d.client.config.Producer, payload)
	if err != nil {
		d.logger.Error("building assignment notification", "error", err)
		return
	}

	routingKey := fmt.Sprintf("assignment.changed.%s", inboxID)
	if err := d.client.PublishJSON(ctx, routingKey, env); err != nil {
		d.logger.Error("publishing assignment notification",
			"conversation_id", event.ConversationID,
			"error", err,
		)
	}
}

// Ensure Dispatcher implements routing.Notifier
var _ routing.Notifier = (*Dispatcher)(nil)
