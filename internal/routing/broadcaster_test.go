package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftdesk/router/internal/store"
)

func TestBroadcaster_PublishToSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx := context.Background()
	ch1, _ := b.Subscribe(ctx, "inbox-001")
	ch2, _ := b.Subscribe(ctx, "inbox-001")
	chOther, _ := b.Subscribe(ctx, "inbox-002")

	agent := "agent-a"
	b.Publish("inbox-001", &store.AssignmentEvent{
		ID:             "event-1",
		ConversationID: "conv-001",
		ToAgentID:      &agent,
		Kind:           store.EventPickup,
	})

	for _, ch := range []<-chan *store.AssignmentEvent{ch1, ch2} {
		select {
		case event := <-ch:
			assert.Equal(t, "conv-001", event.ConversationID)
		case <-time.After(time.Second):
			t.Fatal("expected event delivery")
		}
	}

	select {
	case <-chOther:
		t.Fatal("event leaked to another inbox's subscriber")
	default:
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(context.Background(), "inbox-001")
	b.Unsubscribe("inbox-001", subID)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")

	// Publishing after unsubscribe must not panic
	b.Publish("inbox-001", &store.AssignmentEvent{ID: "event-1", Kind: store.EventRelease})
}

func TestBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "inbox-001")
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond, "subscription should close after context cancellation")
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(context.Background(), "inbox-001")

	// Overflow the buffer; Publish must never block
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish("inbox-001", &store.AssignmentEvent{Kind: store.EventPickup})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Len(t, ch, subscriberBufferSize)
}
