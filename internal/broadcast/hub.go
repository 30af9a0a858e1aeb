// Package broadcast fans state snapshots out to subscribers.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/aretw0/abyss/internal/logging"
)

// DefaultBuffer is the channel capacity used when Subscribe is given zero.
const DefaultBuffer = 16

// Hub delivers every published value to all current subscribers.
// Publish never blocks: a subscriber whose buffer is full misses the value.
type Hub[T any] struct {
	mu          sync.RWMutex
	subscribers map[chan T]struct{}
	logger      *slog.Logger
	name        string
}

// New creates a hub. The name only appears in log records.
func New[T any](name string, logger *slog.Logger) *Hub[T] {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub[T]{
		subscribers: make(map[chan T]struct{}),
		logger:      logger,
		name:        name,
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (h *Hub[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan T, buffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Publish sends v to every subscriber without blocking.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- v:
		default:
			h.logger.Warn("Subscriber buffer full, dropping update", "hub", h.name)
		}
	}
}

// Len returns the number of active subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close unregisters and closes every subscriber.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}
