package voiceagent

import (
	"sync"
)

// Emitter is a minimal typed publish/subscribe channel decoupling producers
// (capture, socket) from consumers (UI, sender). Dispatch is synchronous:
// Publish returns after every handler for the event has run. Within one
// event name handlers fire in subscription order; there is no ordering
// guarantee across different event names.
type Emitter struct {
	mu       sync.Mutex
	handlers map[string][]*subscription
	nextID   uint64
	log      *Logger
}

type subscription struct {
	id      uint64
	handler EventHandler
}

func NewEmitter(log *Logger) *Emitter {
	return &Emitter{
		handlers: make(map[string][]*subscription),
		log:      orNop(log).WithComponent("emitter"),
	}
}

// Subscribe registers handler for event and returns a function that removes
// it. Unsubscribing twice is a no-op.
func (e *Emitter) Subscribe(event string, handler EventHandler) func() {
	e.mu.Lock()
	e.nextID++
	sub := &subscription{id: e.nextID, handler: handler}
	e.handlers[event] = append(e.handlers[event], sub)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.handlers[event]
		for i, s := range subs {
			if s.id == sub.id {
				e.handlers[event] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish invokes every handler registered for event. A panic in one
// handler is recovered and logged so the remaining handlers still run.
func (e *Emitter) Publish(event string, payload any) {
	e.mu.Lock()
	subs := make([]*subscription, len(e.handlers[event]))
	copy(subs, e.handlers[event])
	e.mu.Unlock()

	for _, sub := range subs {
		e.dispatch(event, sub, payload)
	}
}

func (e *Emitter) dispatch(event string, sub *subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("handler for %q panicked: %v", event, r)
		}
	}()
	sub.handler(payload)
}

// UnsubscribeAll removes all handlers for the named events, or every
// handler when called with no arguments.
func (e *Emitter) UnsubscribeAll(events ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(events) == 0 {
		e.handlers = make(map[string][]*subscription)
		return
	}
	for _, event := range events {
		delete(e.handlers, event)
	}
}

// HandlerCount returns the number of handlers registered for event.
func (e *Emitter) HandlerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[event])
}

// SubscribeError registers a typed handler for the error event, with the
// same unsubscribe semantics as Subscribe. Non-AgentError payloads are
// ignored.
func (e *Emitter) SubscribeError(handler ErrorHandler) func() {
	return e.Subscribe(EventError, func(payload any) {
		if err, ok := payload.(*AgentError); ok {
			handler(err)
		}
	})
}

// PublishError is a convenience wrapper emitting err on the error event
// after logging it.
func (e *Emitter) PublishError(err *AgentError) {
	e.log.LogAgentError(err)
	e.Publish(EventError, err)
}
