package events

import (
	"context"
	"errors"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// handlerSet is the subscription table shared by dispatcher implementations.
type handlerSet struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

func newHandlerSet() *handlerSet {
	return &handlerSet{listeners: make(map[EventType][]EventHandler)}
}

func (h *handlerSet) add(eventType EventType, handler EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[eventType] = append(h.listeners[eventType], handler)
}

// dispatch runs every handler for the event and joins their failures.
func (h *handlerSet) dispatch(ctx context.Context, event Event) error {
	h.mu.RLock()
	handlers := append([]EventHandler{}, h.listeners[event.Type]...)
	h.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	handlers *handlerSet
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{handlers: newHandlerSet()}
}

// Publish synchronously invokes handlers for the given event. Every handler runs
// even when an earlier one fails.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	return d.handlers.dispatch(ctx, event)
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.handlers.add(eventType, handler)
}
