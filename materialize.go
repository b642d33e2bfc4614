package assemblefs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gobeaver/assemblefs/stream"
	"github.com/gobeaver/assemblefs/templates"
	"github.com/gobeaver/assemblefs/vfs"
)

// HostKind tells the materializer where files end up.
type HostKind int

const (
	// KindPlain hosts cannot dispatch hooks; files are only wrapped.
	KindPlain HostKind = iota
	// KindCollection hosts store files in a collection.
	KindCollection
	// KindStandalone hosts run onLoad once per file without storing it.
	KindStandalone
)

func (k HostKind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindCollection:
		return "collection"
	case KindStandalone:
		return "standalone"
	default:
		return fmt.Sprintf("HostKind(%d)", int(k))
	}
}

// Target is the resolved destination of materialized files.
type Target struct {
	Kind       HostKind
	Collection *templates.Collection
	Dispatcher Dispatcher
}

// ResolveTarget decides once where files read for host go. A collection
// host stores into itself. An app stores into the named collection,
// creating it when missing, and otherwise loads standalone views.
func ResolveTarget(host any, collection string) Target {
	switch h := host.(type) {
	case *templates.Collection:
		return Target{Kind: KindCollection, Collection: h, Dispatcher: h}
	case *templates.App:
		if collection == "" {
			return Target{Kind: KindStandalone, Dispatcher: h}
		}
		c, ok := h.Collection(collection)
		if !ok {
			c = h.Create(collection)
		}
		return Target{Kind: KindCollection, Collection: c, Dispatcher: h}
	case Dispatcher:
		if h != nil {
			return Target{Kind: KindStandalone, Dispatcher: h}
		}
	}
	return Target{Kind: KindPlain}
}

// Materialize returns a transform turning files into views for host. Files
// without contents pass through unchanged.
func Materialize(host any, collection string) stream.Transform[vfs.Item] {
	return hooks{recorder: NoopRecorder{}, logger: slog.Default()}.materialize(ResolveTarget(host, collection))
}

func (h hooks) materialize(t Target) stream.Transform[vfs.Item] {
	return func(ctx context.Context, item vfs.Item, push func(vfs.Item) error) error {
		f := fileOf(item)
		if f == nil || f.Empty() || f.IsNull() {
			return push(item)
		}
		view := templates.ToView(item)

		switch t.Kind {
		case KindCollection:
			stored, err := t.Collection.Set(ctx, view.Path(), view)
			if err != nil {
				return &HookError{Hook: OnLoad, Path: view.Path(), Err: fmt.Errorf("collection %q: %w", t.Collection.Name(), err)}
			}
			view = stored
		case KindStandalone:
			if err := h.dispatch(ctx, t.Dispatcher, OnLoad, view); err != nil {
				return err
			}
		}

		h.recorder.IncItem("materialize")
		return push(view)
	}
}
