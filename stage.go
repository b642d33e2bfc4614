package assemblefs

import (
	"context"
	"log/slog"
	"time"

	"github.com/gobeaver/assemblefs/stream"
	"github.com/gobeaver/assemblefs/templates"
	"github.com/gobeaver/assemblefs/vfs"
)

// Dispatcher runs the observers of a dispatch point.
type Dispatcher interface {
	HasHandler(name string) bool
	Handle(ctx context.Context, name string, item vfs.Item) error
}

// HandleStage returns a transform that dispatches hook name for every file
// with contents. Empty and null files pass through untouched, as does
// everything when host is nil. A failing hook aborts the stream and the
// failing file is not emitted.
func HandleStage(host Dispatcher, name string) stream.Transform[vfs.Item] {
	return hooks{recorder: NoopRecorder{}, logger: slog.Default()}.stage(host, name)
}

// hooks carries the observability shared by every stage of an assembler.
type hooks struct {
	recorder Recorder
	logger   *slog.Logger
}

func (h hooks) stage(host Dispatcher, name string) stream.Transform[vfs.Item] {
	return func(ctx context.Context, item vfs.Item, push func(vfs.Item) error) error {
		f := fileOf(item)
		if f == nil || f.Empty() || f.IsNull() || host == nil {
			return push(item)
		}
		if err := h.dispatch(ctx, host, name, item); err != nil {
			return err
		}
		h.recorder.IncItem(name)
		return push(item)
	}
}

// dispatch runs hook name for item.
func (h hooks) dispatch(ctx context.Context, host Dispatcher, name string, item vfs.Item) error {
	path := fileOf(item).Path()
	if !host.HasHandler(name) {
		h.recorder.IncHookResult(name, ResultMissing)
		return &HookError{Hook: name, Path: path, Err: &notRegisteredError{name: name}}
	}

	start := time.Now()
	err := host.Handle(ctx, name, item)
	h.recorder.ObserveHookDuration(name, time.Since(start))
	if err != nil {
		h.recorder.IncHookResult(name, ResultError)
		h.logger.Error("hook failed", "hook", name, "path", path, "error", err)
		return &HookError{Hook: name, Path: path, Err: err}
	}
	h.recorder.IncHookResult(name, ResultOK)
	return nil
}

// fileOf returns the file behind item, nil for nil items including typed
// nil pointers.
func fileOf(item vfs.Item) *vfs.File {
	switch v := item.(type) {
	case nil:
		return nil
	case *vfs.File:
		if v == nil {
			return nil
		}
		return v
	case *templates.View:
		if v == nil {
			return nil
		}
	}
	return item.File()
}
