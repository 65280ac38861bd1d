package events

import (
	"sync"
)

// Bus is a lightweight pub/sub broker using channels.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Event][]chan any
	dropped map[Event]uint64
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[Event][]chan any),
		dropped: make(map[Event]uint64),
	}
}

// Subscribe registers a listener for an event and returns the channel
// and an unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish fans the payload out to subscribers without blocking. Slow
// subscribers lose messages rather than stalling publishers.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	subs := b.subs[e]
	b.mu.RUnlock()

	var droppedAny bool
	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
			droppedAny = true
		}
	}
	if droppedAny {
		b.mu.Lock()
		b.dropped[e]++
		b.mu.Unlock()
	}
}

// Dropped returns the per-topic count of publishes that lost at least
// one subscriber delivery.
func (b *Bus) Dropped() map[Event]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[Event]uint64, len(b.dropped))
	for e, n := range b.dropped {
		out[e] = n
	}
	return out
}
