// ABOUTME: In-memory fan-out broadcaster for committed assignment events
// ABOUTME: Publishes to all subscribers of an inbox for cross-client awareness

package routing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shiftdesk/router/internal/store"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Broadcaster provides in-memory pub/sub for committed AssignmentEvents.
// Subscribers register for an inbox ID and receive ownership changes as they
// commit, which lets UIs show "just taken by someone else" without polling.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *store.AssignmentEvent // inboxID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *store.AssignmentEvent),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for assignment events on the given inbox.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, inboxID string) (<-chan *store.AssignmentEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *store.AssignmentEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[inboxID]; !ok {
		b.subscribers[inboxID] = make(map[string]chan *store.AssignmentEvent)
	}
	b.subscribers[inboxID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "inbox_id", inboxID, "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(inboxID, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the given inbox.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(inboxID string, event *store.AssignmentEvent) {
	b.mu.RLock()
	subs, ok := b.subscribers[inboxID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding lock during sends
	targets := make([]chan *store.AssignmentEvent, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
			// Sent
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"inbox_id", inboxID,
				"event_id", event.ID,
			)
		}
	}
}

// NotifyAssignment implements Notifier.
func (b *Broadcaster) NotifyAssignment(_ context.Context, inboxID string, event *store.AssignmentEvent) {
	b.Publish(inboxID, event)
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(inboxID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[inboxID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, inboxID)
	}

	b.logger.Debug("subscriber removed", "inbox_id", inboxID, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for inboxID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, inboxID)
	}

	b.logger.Debug("broadcaster closed")
}

// Ensure Broadcaster implements Notifier
var _ Notifier = (*Broadcaster)(nil)
