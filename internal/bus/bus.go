// Package bus is the in-process publish/subscribe channel connecting the sync
// core to its projections (HTTP API, TUI board). Subscribers filter by kind
// prefix; publishing never blocks.
package bus

import (
	"strings"
	"sync"
	"time"
)

// Event is a single notification delivered to subscribers.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

type subscriber struct {
	prefix string
	ch     chan Event
}

// Bus fans events out to all subscribers whose prefix matches the event kind.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]subscriber)}
}

// Publish delivers an event of the given kind to every matching subscriber.
// A subscriber whose buffer is full misses the event; a slow consumer must
// not be able to stall the reconcile path.
func (b *Bus) Publish(kind string, payload any) {
	evt := Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !strings.HasPrefix(kind, s.prefix) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
		}
	}
}

// Subscribe registers interest in all kinds starting with prefix. The empty
// prefix matches everything. The returned cancel func must be called to
// release the subscription; the channel is never closed by the bus.
func (b *Bus) Subscribe(prefix string, buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscriber{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
