// ABOUTME: Tests for the panel event bus
// ABOUTME: Fan-out delivery, unsubscribe, context cleanup, drop-on-full

package panel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx := context.Background()
	first, _ := bus.Subscribe(ctx, TopicAnalysisDone)
	second, _ := bus.Subscribe(ctx, TopicAnalysisDone)

	bus.Publish(TopicAnalysisDone, "payload")

	assert.Equal(t, "payload", recvEvent(t, first).Payload)
	assert.Equal(t, "payload", recvEvent(t, second).Payload)
}

func TestPublishToOtherTopicNotDelivered(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ch, _ := bus.Subscribe(context.Background(), TopicChatCleared)

	bus.Publish(TopicAnalysisDone, nil)

	select {
	case <-ch:
		t.Fatal("received event for a different topic")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ch, subID := bus.Subscribe(context.Background(), TopicChatCleared)
	bus.Unsubscribe(TopicChatCleared, subID)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe is harmless
	bus.Publish(TopicChatCleared, nil)
}

func TestSubscribeCleansUpOnContextCancel(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := bus.Subscribe(ctx, TopicChatCleared)

	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ch, _ := bus.Subscribe(context.Background(), TopicAnalysisDone)

	// Overfill the buffer without draining; Publish must not block
	for i := 0; i < subscriberBufferSize+5; i++ {
		bus.Publish(TopicAnalysisDone, i)
	}

	assert.Len(t, ch, subscriberBufferSize)
}
