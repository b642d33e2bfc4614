package storage

import (
	"context"
	"sync"
	"sync/atomic"
)

// CallbackChangeToken is a ChangeToken that supports active callbacks.
// Drivers with native change events (local, memory) hand these out.
type CallbackChangeToken struct {
	mu        sync.RWMutex
	changed   atomic.Bool
	callbacks []func()
}

// NewCallbackChangeToken creates a new ChangeToken that supports active callbacks.
func NewCallbackChangeToken() *CallbackChangeToken {
	return &CallbackChangeToken{}
}

func (t *CallbackChangeToken) HasChanged() bool {
	return t.changed.Load()
}

func (t *CallbackChangeToken) ActiveChangeCallbacks() bool {
	return true
}

func (t *CallbackChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	t.mu.Lock()
	t.callbacks = append(t.callbacks, callback)
	index := len(t.callbacks) - 1
	t.mu.Unlock()

	// A callback registered after the change still fires once.
	if t.changed.Load() {
		callback()
	}

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if index < len(t.callbacks) {
			t.callbacks[index] = nil
		}
	}
}

// SignalChange marks the token as changed and invokes all callbacks.
// Only the first call has an effect.
func (t *CallbackChangeToken) SignalChange() {
	if t.changed.Swap(true) {
		return
	}

	t.mu.RLock()
	callbacks := make([]func(), len(t.callbacks))
	copy(callbacks, t.callbacks)
	t.mu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb()
		}
	}
}

// CompositeChangeToken combines multiple ChangeTokens into one.
// HasChanged returns true if ANY of the underlying tokens has changed.
type CompositeChangeToken struct {
	tokens []ChangeToken
}

// NewCompositeChangeToken creates a token that combines multiple tokens.
func NewCompositeChangeToken(tokens ...ChangeToken) *CompositeChangeToken {
	return &CompositeChangeToken{tokens: tokens}
}

func (c *CompositeChangeToken) HasChanged() bool {
	for _, t := range c.tokens {
		if t.HasChanged() {
			return true
		}
	}
	return false
}

func (c *CompositeChangeToken) ActiveChangeCallbacks() bool {
	for _, t := range c.tokens {
		if !t.ActiveChangeCallbacks() {
			return false
		}
	}
	return len(c.tokens) > 0
}

func (c *CompositeChangeToken) RegisterChangeCallback(callback func()) (unregister func()) {
	var once sync.Once
	fire := func() { once.Do(callback) }

	unregisters := make([]func(), 0, len(c.tokens))
	for _, t := range c.tokens {
		unregisters = append(unregisters, t.RegisterChangeCallback(fire))
	}

	return func() {
		for _, u := range unregisters {
			u()
		}
	}
}

// OnChange keeps watching: each time the current token fires, changeAction
// runs and a fresh token is produced. The returned cancel stops the loop.
func OnChange(tokenProducer func(ctx context.Context) (ChangeToken, error), changeAction func()) (cancel func()) {
	ctx, cancelFunc := context.WithCancel(context.Background())

	go func() {
		for {
			token, err := tokenProducer(ctx)
			if err != nil {
				return
			}

			done := make(chan struct{})
			var once sync.Once
			unregister := token.RegisterChangeCallback(func() {
				once.Do(func() { close(done) })
			})

			select {
			case <-ctx.Done():
				unregister()
				return
			case <-done:
				unregister()
				changeAction()
			}
		}
	}()

	return cancelFunc
}
