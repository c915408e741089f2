// Package events provides an in-process event bus for fanin events.
package events

import (
	"sync"

	"github.com/jdziat/fanin/pkg/core"
)

// Bus fans events out to subscribers. It implements core.Emitter.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan core.Event
	buffer int
}

// NewBus creates a bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 100
	}
	return &Bus{buffer: buffer}
}

// Subscribe returns a channel receiving every event emitted from now on.
// The caller must call Unsubscribe when done to prevent resource leaks.
func (b *Bus) Subscribe() <-chan core.Event {
	ch := make(chan core.Event, b.buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel created by Subscribe.
// The channel is not closed; callers must stop reading before calling Unsubscribe.
func (b *Bus) Unsubscribe(ch <-chan core.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Emit sends e to all subscribers without blocking.
func (b *Bus) Emit(e core.Event) {
	b.mu.RLock()
	subs := make([]chan core.Event, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			// Drop if full - this prevents blocking on slow consumers
		}
	}
}
