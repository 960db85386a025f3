package session

import (
	"sync"

	"github.com/wolfman30/wa-relay/pkg/logging"
)

const defaultSubscriberBuffer = 64

// Bus fans events out to any number of subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	logger *logging.Logger
	buffer int

	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates a Bus whose subscriber channels hold buffer events.
func NewBus(buffer int, logger *logging.Logger) *Bus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Bus{
		logger: logger,
		buffer: buffer,
		subs:   make(map[int]chan Event),
	}
}

// Subscribe registers a new subscriber. Only events published after the call
// are delivered. The returned func unsubscribes and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers evt to every current subscriber.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.logger.Warn("session bus: subscriber buffer full, dropping event", "subscriber", id, "event", evt.Type)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel; later Subscribe calls get a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
