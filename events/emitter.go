package events

import (
	"encoding/json"
	"sync"
)

// Handler consumes a public event. The payload is the original notification
// payload, unmodified; handlers must not retain it past the call.
type Handler func(payload json.RawMessage)

// Sink broadcasts events to downstream subscribers.
type Sink interface {
	Emit(event string, payload json.RawMessage)
}

// NoopSink satisfies the Sink interface while discarding all events. It is
// useful when a component wants to optionally expose events.
type NoopSink struct{}

// Emit implements the Sink interface.
func (NoopSink) Emit(string, json.RawMessage) {}

type subscription struct {
	id      uint64
	handler Handler
}

// Emitter maps event names to ordered subscriber lists. Emit invokes the
// subscribers synchronously in registration order.
type Emitter struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string][]subscription
}

// NewEmitter returns an empty subscriber registry.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[string][]subscription)}
}

// Subscribe registers a handler for the named event and returns a function
// that removes it. Remaining subscribers keep their registration order.
func (e *Emitter) Subscribe(event string, handler Handler) func() {
	if e == nil || handler == nil {
		return func() {}
	}
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs[event] = append(e.subs[event], subscription{id: id, handler: handler})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.subs[event]
		for i, sub := range subs {
			if sub.id == id {
				e.subs[event] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit implements the Sink interface. The subscriber list is snapshotted
// under the lock so handlers may subscribe or unsubscribe reentrantly.
func (e *Emitter) Emit(event string, payload json.RawMessage) {
	if e == nil {
		return
	}
	e.mu.Lock()
	subs := append([]subscription(nil), e.subs[event]...)
	e.mu.Unlock()
	for _, sub := range subs {
		sub.handler(payload)
	}
}
