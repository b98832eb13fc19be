// ABOUTME: In-memory fan-out event bus for cross-component panel signals
// ABOUTME: Replaces ambient window-level listeners with explicit subscriptions

package panel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Bus topics for cross-component signals.
const (
	TopicChatCleared          = "chat_cleared"
	TopicTraceUploaded        = "trace_uploaded"
	TopicAnalysisDone         = "analysis_done"
	TopicInterventionOpened   = "intervention_opened"
	TopicInterventionResolved = "intervention_resolved"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 16
)

// Event is one signal published on the bus.
type Event struct {
	Topic   string
	Payload any
}

// Bus provides in-memory pub/sub for panel lifecycle signals. The panel
// subscribes during its active lifetime and unsubscribes on teardown,
// preserving the at-most-one-active-listener discipline.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Event // topic -> subID -> ch
	logger      *slog.Logger
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]map[string]chan Event),
		logger:      logger.With("component", "bus"),
	}
}

// Subscribe registers a subscriber for events on the given topic.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx
// is cancelled.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[topic]; !ok {
		b.subscribers[topic] = make(map[string]chan Event)
	}
	b.subscribers[topic][subID] = ch
	b.mu.Unlock()

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(topic, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the topic.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	subs, ok := b.subscribers[topic]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding lock during sends
	targets := make([]chan Event, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	event := Event{Topic: topic, Payload: payload}
	for _, ch := range targets {
		select {
		case ch <- event:
			// Sent
		default:
			b.logger.Debug("dropped event for slow subscriber", "topic", topic)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(topic, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[topic]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty topic entries
	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, topic)
	}
}
