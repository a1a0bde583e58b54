package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
)

// MemoryEventBus is an in-process EventBus for single-instance deployments
type MemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *entities.SessionEvent]struct{}
	closed      bool
}

// NewMemoryEventBus creates a new in-process event bus
func NewMemoryEventBus() providers.EventBus {
	return &MemoryEventBus{
		subscribers: make(map[string]map[chan *entities.SessionEvent]struct{}),
	}
}

// Publish delivers the event to current subscribers without blocking
func (b *MemoryEventBus) Publish(ctx context.Context, channel string, event *entities.SessionEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subscriber := range b.subscribers[channel] {
		select {
		case subscriber <- event:
		default:
			log.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("subscriber channel full, skipping event")
		}
	}
	return nil
}

// Subscribe subscribes to events on a channel until ctx is done
func (b *MemoryEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.SessionEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	eventChan := make(chan *entities.SessionEvent, subscriberBuffer)
	if b.closed {
		close(eventChan)
		return eventChan, nil
	}
	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.SessionEvent]struct{})
	}
	b.subscribers[channel][eventChan] = struct{}{}

	go func() {
		<-ctx.Done()
		b.remove(channel, eventChan)
	}()

	return eventChan, nil
}

func (b *MemoryEventBus) remove(channel string, eventChan chan *entities.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[channel]
	if _, ok := subs[eventChan]; !ok {
		return
	}
	delete(subs, eventChan)
	close(eventChan)
	if len(subs) == 0 {
		delete(b.subscribers, channel)
	}
}

// Unsubscribe closes every subscriber of a channel
func (b *MemoryEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subscriber := range b.subscribers[channel] {
		close(subscriber)
	}
	delete(b.subscribers, channel)
	return nil
}

// Close closes all subscriptions
func (b *MemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subs := range b.subscribers {
		for subscriber := range subs {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	b.closed = true
	return nil
}
