/*
Package message delivers storage events to registered subscribers.
Delivery is synchronous: Publish returns after every subscriber has
handled the event, so subscribers may answer by mutating it.
*/
package message

import (
	"context"
	"sync"

	"github.com/janelia-flyem/pixstore/pix"
)

// Event is a notification published on a topic.
type Event interface {
	Topic() string
}

// Publisher delivers an event and returns once it has been handled.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber handles events for the topics it was subscribed to.
type Subscriber interface {
	Handle(ctx context.Context, e Event) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, e Event) error

func (f SubscriberFunc) Handle(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Bus is a Publisher dispatching to subscribers in the order they subscribed.
type Bus struct {
	sync.RWMutex
	subs map[string][]Subscriber
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]Subscriber, 4)}
}

// Subscribe adds s to the subscribers of topic.
func (b *Bus) Subscribe(topic string, s Subscriber) {
	b.Lock()
	b.subs[topic] = append(b.subs[topic], s)
	b.Unlock()
}

// NumSubscribers returns the number of subscribers for topic.
func (b *Bus) NumSubscribers(topic string) int {
	b.RLock()
	defer b.RUnlock()
	return len(b.subs[topic])
}

// Publish calls each subscriber of the event's topic in turn.  The first
// subscriber error stops delivery and is returned.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.RLock()
	subs := make([]Subscriber, len(b.subs[e.Topic()]))
	copy(subs, b.subs[e.Topic()])
	b.RUnlock()

	if len(subs) == 0 {
		pix.Debugf("No subscribers for %q event\n", e.Topic())
		return nil
	}
	for _, s := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Handle(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
