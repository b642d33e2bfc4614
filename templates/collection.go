package templates

import (
	"context"
	"sync"

	"github.com/gobeaver/assemblefs/vfs"
)

// Collection is an ordered set of views keyed by path. It shares the
// dispatch points and events of its app.
type Collection struct {
	name string
	app  *App

	mu    sync.RWMutex
	views map[string]*View
	keys  []string
}

func newCollection(name string, app *App) *Collection {
	return &Collection{name: name, app: app, views: make(map[string]*View)}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// App returns the owning app.
func (c *Collection) App() *App { return c.app }

// Root implements Host.
func (c *Collection) Root() string { return c.app.Root() }

// Handler implements Host; the dispatch point is registered on the app.
func (c *Collection) Handler(name string) { c.app.Handler(name) }

// HasHandler implements Host.
func (c *Collection) HasHandler(name string) bool { return c.app.HasHandler(name) }

// Handle implements Host.
func (c *Collection) Handle(ctx context.Context, name string, item vfs.Item) error {
	return c.app.Handle(ctx, name, item)
}

// Observe implements Host; observers are shared with the app.
func (c *Collection) Observe(name, pattern string, fn Middleware) error {
	return c.app.Observe(name, pattern, fn)
}

// On implements Host.
func (c *Collection) On(event string, fn Listener) Subscription { return c.app.On(event, fn) }

// Off implements Host.
func (c *Collection) Off(sub Subscription) bool { return c.app.Off(sub) }

// Emit implements Host.
func (c *Collection) Emit(ctx context.Context, ev Event) error { return c.app.Emit(ctx, ev) }

// Set stores item under key, or under its path when key is empty. A key
// that is already present keeps its view: the view takes over the new file
// and is returned, so callers always see the stored pointer. The onLoad
// dispatch point runs for the stored view when it is registered. When onLoad
// fails a new view is dropped and an existing one gets its previous file back.
func (c *Collection) Set(ctx context.Context, key string, item vfs.Item) (*View, error) {
	incoming := ToView(item)
	if key == "" {
		key = incoming.Path()
	}

	c.mu.Lock()
	view, exists := c.views[key]
	var prev *vfs.File
	if exists {
		prev = view.File()
		if view != incoming {
			view.setFile(incoming.File())
		}
	} else {
		view = incoming
		view.Key = key
		if view.Collection == "" {
			view.Collection = c.name
		}
		c.views[key] = view
		c.keys = append(c.keys, key)
	}
	c.mu.Unlock()

	if c.HasHandler(LoadHook) {
		if err := c.Handle(ctx, LoadHook, view); err != nil {
			if exists {
				view.setFile(prev)
			} else {
				c.Delete(key)
			}
			return nil, err
		}
	}
	return view, nil
}

// Add stores item under its path.
func (c *Collection) Add(ctx context.Context, item vfs.Item) (*View, error) {
	return c.Set(ctx, "", item)
}

// Get returns the view stored under key.
func (c *Collection) Get(key string) (*View, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.views[key]
	return v, ok
}

// Len returns the number of views.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.views)
}

// Keys returns the keys in insertion order.
func (c *Collection) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.keys...)
}

// Views returns the views in insertion order.
func (c *Collection) Views() []*View {
	c.mu.RLock()
	defer c.mu.RUnlock()

	views := make([]*View, 0, len(c.keys))
	for _, k := range c.keys {
		views = append(views, c.views[k])
	}
	return views
}

// Delete removes key and reports whether it was present.
func (c *Collection) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.views[key]; !ok {
		return false
	}
	delete(c.views, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i:i], c.keys[i+1:]...)
			break
		}
	}
	return true
}
