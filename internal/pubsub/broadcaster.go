package pubsub

import (
	"sync"

	"go.uber.org/zap"
)

// DefaultBuffer is the channel size used when Subscribe is given zero
const DefaultBuffer = 64

// Broadcaster fans every published value out to all current subscribers.
// Delivery never blocks the publisher: a subscriber whose buffer is full
// misses the value. Values are neither reordered nor deduplicated.
type Broadcaster[T any] struct {
	name   string
	logger *zap.Logger

	mu     sync.RWMutex
	subs   map[int]chan T
	nextID int
	closed bool

	replay  bool
	latest  T
	hasLast bool
}

// NewBroadcaster creates a broadcaster; name is used in log fields only
func NewBroadcaster[T any](name string, logger *zap.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster[T]{
		name:   name,
		logger: logger,
		subs:   make(map[int]chan T),
	}
}

// NewBehavior creates a broadcaster that remembers the latest value and
// hands it to every new subscriber first.
func NewBehavior[T any](name string, initial T, logger *zap.Logger) *Broadcaster[T] {
	b := NewBroadcaster[T](name, logger)
	b.replay = true
	b.latest = initial
	b.hasLast = true
	return b
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (b *Broadcaster[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan T, buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.replay && b.hasLast {
		ch <- b.latest
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers v to every subscriber without blocking
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if b.replay {
		b.latest = v
		b.hasLast = true
	}

	for id, ch := range b.subs {
		select {
		case ch <- v:
		default:
			b.logger.Warn("Subscriber buffer full, dropping event",
				zap.String("stream", b.name),
				zap.Int("subscriber", id),
			)
		}
	}
}

// Latest returns the last published value of a behaviour broadcaster
func (b *Broadcaster[T]) Latest() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.hasLast
}

// SubscriberCount returns the number of active subscribers
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel; later publishes are ignored
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
