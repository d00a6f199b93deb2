package transport

import (
	"encoding/json"
	"sync"
)

// TelemetryEvent is a device or telemetry event received on the
// realtime channel. These are cross-component signals: they bypass the
// zone callbacks and fan out to whoever subscribed on the bus.
type TelemetryEvent struct {
	// Event names the event.
	Event string

	// Data is the event payload, verbatim.
	Data json.RawMessage
}

// TelemetryHandler consumes telemetry events.
type TelemetryHandler func(TelemetryEvent)

// TelemetryBus fans telemetry events out to subscribers. Safe for
// concurrent use. A nil *TelemetryBus drops events.
type TelemetryBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]TelemetryHandler
}

// NewTelemetryBus creates an empty bus.
func NewTelemetryBus() *TelemetryBus {
	return &TelemetryBus{handlers: make(map[int]TelemetryHandler)}
}

// Subscribe registers a handler and returns its cancel function.
func (b *TelemetryBus) Subscribe(h TelemetryHandler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every subscriber, synchronously and in
// no particular order.
func (b *TelemetryBus) Publish(event TelemetryEvent) {
	if b == nil {
		return
	}

	b.mu.RLock()
	handlers := make([]TelemetryHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
