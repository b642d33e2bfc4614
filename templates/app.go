package templates

import (
	"context"
	"sort"
	"sync"

	"github.com/gobeaver/assemblefs/vfs"
)

// LoadHook is the dispatch point run when a view enters a collection.
const LoadHook = "onLoad"

// Paths holds the directories the host works from.
type Paths struct {
	// Templates is the root relative destinations resolve against.
	Templates string
}

// Host is the surface shared by App and Collection.
type Host interface {
	Root() string
	Handler(name string)
	HasHandler(name string) bool
	Handle(ctx context.Context, name string, item vfs.Item) error
	Observe(name, pattern string, fn Middleware) error
	On(event string, fn Listener) Subscription
	Off(sub Subscription) bool
	Emit(ctx context.Context, ev Event) error
}

// App owns collections, dispatch points and events.
type App struct {
	Paths Paths

	handlers *registry
	events   *Emitter

	mu          sync.RWMutex
	collections map[string]*Collection
}

// New returns an app rooted at templatesDir.
func New(templatesDir string) *App {
	return &App{
		Paths:       Paths{Templates: templatesDir},
		handlers:    newRegistry(),
		events:      NewEmitter(),
		collections: make(map[string]*Collection),
	}
}

// Root returns Paths.Templates.
func (a *App) Root() string {
	return a.Paths.Templates
}

// Handler registers a dispatch point. Registering a name twice keeps its
// observers.
func (a *App) Handler(name string) {
	a.handlers.register(name)
}

// HasHandler reports whether name is a dispatch point.
func (a *App) HasHandler(name string) bool {
	return a.handlers.has(name)
}

// Handle runs the observers of name against item in registration order and
// returns the first failure.
func (a *App) Handle(ctx context.Context, name string, item vfs.Item) error {
	return a.handlers.handle(ctx, name, item)
}

// Observe attaches fn to the dispatch point name. A non-empty pattern is a
// regular expression the item path must match.
func (a *App) Observe(name, pattern string, fn Middleware) error {
	return a.handlers.observe(name, pattern, fn)
}

// Observers returns how many observers are attached to name.
func (a *App) Observers(name string) int {
	return a.handlers.count(name)
}

// On subscribes fn to event.
func (a *App) On(event string, fn Listener) Subscription {
	return a.events.On(event, fn)
}

// Off removes a subscription.
func (a *App) Off(sub Subscription) bool {
	return a.events.Off(sub)
}

// Emit delivers ev to its listeners.
func (a *App) Emit(ctx context.Context, ev Event) error {
	return a.events.Emit(ctx, ev)
}

// ListenerCount returns the number of listeners for event.
func (a *App) ListenerCount(event string) int {
	return a.events.ListenerCount(event)
}

// Create returns the collection name, creating it on first use.
func (a *App) Create(name string) *Collection {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.collections[name]; ok {
		return c
	}
	c := newCollection(name, a)
	a.collections[name] = c
	return c
}

// Collection looks up an existing collection.
func (a *App) Collection(name string) (*Collection, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.collections[name]
	return c, ok
}

// Collections returns the collection names in sorted order.
func (a *App) Collections() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.collections))
	for name := range a.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	_ Host = (*App)(nil)
	_ Host = (*Collection)(nil)
)
