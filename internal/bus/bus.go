// Package bus provides the in-process publish/subscribe channel that
// connects the stores, the view engines, and the daemon surface.
package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus fans events out to subscribers by namespace prefix.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish delivers an event with the given kind and payload to every
// subscriber whose prefix matches. Delivery is non-blocking: a
// subscriber with a full buffer misses the event.
func (b *Bus) Publish(kind string, payload any) {
	evt := Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe returns a channel receiving events whose kind starts with
// prefix, plus a function detaching the subscription.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
