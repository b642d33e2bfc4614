package templates

import (
	"context"
	"sync"

	"github.com/gobeaver/assemblefs/vfs"
	"github.com/google/uuid"
)

// Event is delivered to listeners by Emit.
type Event struct {
	Name    string
	Item    vfs.Item
	Payload any
}

// Listener handles an event.
type Listener func(ctx context.Context, ev Event) error

// Subscription identifies one listener registration.
type Subscription struct {
	Event string
	ID    uuid.UUID
}

type listener struct {
	id uuid.UUID
	fn Listener
}

// Emitter dispatches named events to listeners in subscription order.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[string][]listener
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[string][]listener)}
}

// On subscribes fn to event.
func (e *Emitter) On(event string, fn Listener) Subscription {
	sub := Subscription{Event: event, ID: uuid.New()}

	e.mu.Lock()
	e.listeners[event] = append(e.listeners[event], listener{id: sub.ID, fn: fn})
	e.mu.Unlock()

	return sub
}

// Off removes the listener registered as sub. It reports whether one was
// removed.
func (e *Emitter) Off(sub Subscription) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls := e.listeners[sub.Event]
	for i, l := range ls {
		if l.id == sub.ID {
			e.listeners[sub.Event] = append(ls[:i:i], ls[i+1:]...)
			return true
		}
	}
	return false
}

// Emit calls every listener of ev.Name and returns the first error.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	e.mu.RLock()
	ls := append([]listener(nil), e.listeners[ev.Name]...)
	e.mu.RUnlock()

	for _, l := range ls {
		if err := l.fn(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// ListenerCount returns the number of listeners subscribed to event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[event])
}
