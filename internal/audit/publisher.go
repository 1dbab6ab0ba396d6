package audit

import (
	"context"
	"sync"
)

// Publisher delivers security events to the pipeline.
type Publisher interface {
	Publish(ctx context.Context, event SecurityEvent) error
	Close() error
}

// NopPublisher discards all events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, SecurityEvent) error { return nil }
func (NopPublisher) Close() error                                 { return nil }

// InMemoryPublisher records events in memory for tests and development.
type InMemoryPublisher struct {
	mu     sync.RWMutex
	events []SecurityEvent
}

// NewInMemory constructs an empty in-memory publisher.
func NewInMemory() *InMemoryPublisher {
	return &InMemoryPublisher{}
}

func (p *InMemoryPublisher) Publish(_ context.Context, event SecurityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of everything published so far.
func (p *InMemoryPublisher) Events() []SecurityEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]SecurityEvent, len(p.events))
	copy(out, p.events)
	return out
}

// ByAction filters the recorded events.
func (p *InMemoryPublisher) ByAction(action Action) []SecurityEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []SecurityEvent
	for _, e := range p.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func (p *InMemoryPublisher) Close() error { return nil }
