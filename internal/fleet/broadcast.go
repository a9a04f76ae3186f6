package fleet

import (
	"context"
	"sync"

	"github.com/nerrad567/snooz-gateway/internal/snooz"
)

// Event is one debounced device state-change, as delivered to listeners.
type Event = snooz.Event

// Listener receives broadcast events. A listener error is logged and
// isolated; it never affects delivery to other listeners and never
// propagates back to the publisher.
type Listener func(ctx context.Context, event Event) error

// Broadcaster fans events out to all registered listeners.
//
// Listeners for one event are dispatched concurrently so a slow or broken
// listener cannot block the others, but publishes themselves are serialised:
// Publish does not return until every listener has been invoked for the
// event, which preserves publish order per listener.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners []Listener

	publishMu sync.Mutex
	logger    Logger
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{logger: noopLogger{}}
}

// SetLogger sets the logger for the broadcaster.
func (b *Broadcaster) SetLogger(logger Logger) {
	b.logger = logger
}

// Register adds a listener. Listeners cannot be removed; they live for the
// process lifetime, matching the gateway's ownership model.
func (b *Broadcaster) Register(listener Listener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, listener)
	b.mu.Unlock()
}

// Publish delivers the event to every registered listener concurrently and
// waits for all of them. Listener failures and panics are logged, never
// raised.
func (b *Broadcaster) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	// Serialising publishes keeps per-listener delivery in publish order.
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	var wg sync.WaitGroup
	for _, listener := range listeners {
		wg.Add(1)
		go func(l Listener) {
			defer wg.Done()
			b.deliver(ctx, l, event)
		}(listener)
	}
	wg.Wait()
}

// deliver invokes one listener with error and panic isolation.
func (b *Broadcaster) deliver(ctx context.Context, listener Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panic recovered",
				"device", event.DeviceName,
				"panic", r,
			)
		}
	}()

	if err := listener(ctx, event); err != nil {
		b.logger.Debug("event listener error",
			"device", event.DeviceName,
			"error", err,
		)
	}
}
