package templates

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/gobeaver/assemblefs/vfs"
)

// ErrNoHandler is returned when dispatching to a name that was never
// registered.
var ErrNoHandler = errors.New("templates: handler is not registered")

// Middleware observes an item at a dispatch point. Returning an error stops
// the dispatch.
type Middleware func(ctx context.Context, item vfs.Item) error

type observer struct {
	filter *regexp.Regexp
	fn     Middleware
}

// registry maps dispatch point names to their observers.
type registry struct {
	mu     sync.RWMutex
	points map[string][]observer
}

func newRegistry() *registry {
	return &registry{points: make(map[string][]observer)}
}

func (r *registry) register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.points[name]; !ok {
		r.points[name] = nil
	}
}

func (r *registry) has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.points[name]
	return ok
}

func (r *registry) observe(name, pattern string, fn Middleware) error {
	var filter *regexp.Regexp
	if pattern != "" {
		var err error
		if filter, err = regexp.Compile(pattern); err != nil {
			return fmt.Errorf("templates: invalid filter for %q: %w", name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.points[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNoHandler, name)
	}
	r.points[name] = append(r.points[name], observer{filter: filter, fn: fn})
	return nil
}

func (r *registry) handle(ctx context.Context, name string, item vfs.Item) error {
	r.mu.RLock()
	observers, ok := r.points[name]
	observers = append([]observer(nil), observers...)
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNoHandler, name)
	}

	var p string
	if f := item.File(); f != nil {
		p = filepath.ToSlash(f.Path())
	}
	for _, o := range observers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.filter != nil && !o.filter.MatchString(p) {
			continue
		}
		if err := o.fn(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (r *registry) count(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.points[name])
}
