package testutil

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"github.com/watercoop/waterbill/internal/domain/events"
	"github.com/watercoop/waterbill/internal/publisher"
	"github.com/watercoop/waterbill/internal/types"
)

// InMemoryEventPublisher records published billing events for assertions
type InMemoryEventPublisher struct {
	mu     sync.RWMutex
	events []*events.BillingEvent
}

var _ publisher.EventPublisher = (*InMemoryEventPublisher)(nil)

func NewInMemoryEventPublisher() *InMemoryEventPublisher {
	return &InMemoryEventPublisher{
		events: make([]*events.BillingEvent, 0),
	}
}

func (p *InMemoryEventPublisher) Publish(ctx context.Context, event *events.BillingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.UserID == "" {
		event.UserID = types.GetUserID(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = types.GetRequestID(ctx)
	}
	p.events = append(p.events, event)
	return nil
}

// GetEvents returns all published events in publish order
func (p *InMemoryEventPublisher) GetEvents() []*events.BillingEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*events.BillingEvent, len(p.events))
	copy(out, p.events)
	return out
}

// EventsNamed returns the published events with the given name
func (p *InMemoryEventPublisher) EventsNamed(name string) []*events.BillingEvent {
	return lo.Filter(p.GetEvents(), func(e *events.BillingEvent, _ int) bool {
		return e.EventName == name
	})
}

// Clear removes all published events
func (p *InMemoryEventPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = make([]*events.BillingEvent, 0)
}
