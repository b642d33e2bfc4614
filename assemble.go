package assemblefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobeaver/assemblefs/storage"
	"github.com/gobeaver/assemblefs/stream"
	"github.com/gobeaver/assemblefs/templates"
	"github.com/gobeaver/assemblefs/vfs"
)

// Assembler builds file pipelines for a host. Files read with Src run
// through onStream and land in collections; files written with Dest run
// through preWrite and postWrite around the write.
type Assembler struct {
	host     templates.Host
	engine   *vfs.Engine
	logger   *slog.Logger
	recorder Recorder
	defaults vfs.Options

	// mu guards the single prepareDest subscription.
	mu         sync.Mutex
	prepareSub *templates.Subscription
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithLogger sets the logger. slog.Default is used otherwise.
func WithLogger(logger *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) AssemblerOption {
	return func(a *Assembler) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithDefaults replaces the engine options every call starts from.
func WithDefaults(opts vfs.Options) AssemblerOption {
	return func(a *Assembler) { a.defaults = opts }
}

// Apply attaches an assembler to host and installs the lifecycle dispatch
// points the host is missing. Applying to the same host again reuses them.
func Apply(host templates.Host, engine *vfs.Engine, options ...AssemblerOption) (*Assembler, error) {
	if host == nil {
		return nil, &ArgumentError{Op: "apply", Arg: "host", Err: ErrNoHost}
	}
	if engine == nil {
		return nil, &ArgumentError{Op: "apply", Arg: "engine", Err: ErrNoEngine}
	}

	a := &Assembler{
		host:     host,
		engine:   engine,
		logger:   slog.Default(),
		recorder: NoopRecorder{},
		defaults: vfs.DefaultOptions(),
	}
	for _, option := range options {
		option(a)
	}

	if added := EnsureHandlers(host, Lifecycle...); len(added) > 0 {
		a.logger.Debug("registered lifecycle handlers", "handlers", added)
	}
	return a, nil
}

// Host returns the host the assembler is attached to.
func (a *Assembler) Host() templates.Host {
	return a.host
}

// Engine returns the file system engine.
func (a *Assembler) Engine() *vfs.Engine {
	return a.engine
}

func (a *Assembler) hooks() hooks {
	return hooks{recorder: a.recorder, logger: a.logger}
}

// Copy streams the files matching patterns to dest without running any
// hook. Patterns matching nothing are allowed unless WithAllowEmpty(false)
// is given.
func (a *Assembler) Copy(ctx context.Context, patterns []string, dest vfs.Dest, options ...Option) (*stream.Stream[vfs.Item], error) {
	if err := validatePatterns("copy", patterns); err != nil {
		return nil, err
	}
	if dest.IsZero() {
		return nil, &ArgumentError{Op: "copy", Arg: "dest", Err: ErrMissingDest}
	}
	opts := a.options(true, options)

	src, err := a.engine.Source(ctx, patterns, opts.Options)
	if err != nil {
		return nil, sourceError("copy", err)
	}
	sink, err := a.engine.Sink(ctx, dest, opts.Options)
	if err != nil {
		src.Abort(err)
		return nil, err
	}

	a.logger.Debug("copy", "patterns", patterns, "dest", dest.String())
	return stream.Join(src, sink), nil
}

// Src streams the files matching patterns through onStream and turns them
// into views. With WithCollection the views are stored in that collection.
func (a *Assembler) Src(ctx context.Context, patterns []string, options ...Option) (*stream.Stream[vfs.Item], error) {
	if err := validatePatterns("src", patterns); err != nil {
		return nil, err
	}
	opts := a.options(true, options)

	src, err := a.engine.Source(ctx, patterns, opts.Options)
	if err != nil {
		return nil, sourceError("src", err)
	}

	h := a.hooks()
	target := ResolveTarget(a.host, opts.Collection)
	load := stream.Through(ctx,
		h.stage(a.host, OnStream),
		h.materialize(target),
	)

	a.logger.Debug("src", "patterns", patterns, "collection", opts.Collection, "kind", target.Kind)
	return stream.Join(src, load), nil
}

// Dest returns a writable stream that prepares the destination of every
// file, runs preWrite, writes the file below dest and runs postWrite. Wait
// returns nil only after every file was written and passed postWrite.
func (a *Assembler) Dest(ctx context.Context, dest vfs.Dest, options ...Option) (*stream.Stream[vfs.Item], error) {
	if dest.IsZero() {
		return nil, &ArgumentError{Op: "dest", Arg: "dest", Err: ErrMissingDest}
	}
	opts := a.options(false, options)

	if err := a.host.Emit(ctx, templates.Event{Name: EventDest, Payload: dest}); err != nil {
		return nil, fmt.Errorf("dest event: %w", err)
	}
	preparer := a.prepareDest(dest, opts)

	if opts.Cwd == "" {
		opts.Cwd = a.host.Root()
	}

	h := a.hooks()
	a.logger.Debug("dest", "dest", dest.String(), "cwd", preparer.cwd)
	return stream.Through(ctx,
		preparer.stage,
		h.stage(a.host, PreWrite),
		a.engine.WriteStage(dest, opts.Options),
		h.stage(a.host, PostWrite),
	), nil
}

// PrepareDest subscribes the destination preparer for dest to the host's
// prepareDest event, replacing the one a previous call subscribed. A render
// pass fires the event to learn destinations before files are written.
func (a *Assembler) PrepareDest(dest vfs.Dest, options ...Option) error {
	if dest.IsZero() {
		return &ArgumentError{Op: "prepareDest", Arg: "dest", Err: ErrMissingDest}
	}
	a.prepareDest(dest, a.options(false, options))
	return nil
}

func (a *Assembler) prepareDest(dest vfs.Dest, opts Options) *destPreparer {
	p := newDestPreparer(a.cwd(opts), dest, opts)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.prepareSub != nil {
		a.host.Off(*a.prepareSub)
	}
	sub := a.host.On(EventPrepareDest, p.listener)
	a.prepareSub = &sub
	return p
}

// cwd is the directory destinations are prepared against: the host root,
// then the Cwd option, then the engine root.
func (a *Assembler) cwd(opts Options) string {
	if root := a.host.Root(); root != "" {
		return a.engine.Abs(root)
	}
	if opts.Cwd != "" {
		return a.engine.Abs(opts.Cwd)
	}
	return a.engine.Root()
}

// Symlink returns a writable stream that links every file below dest.
func (a *Assembler) Symlink(ctx context.Context, dest vfs.Dest, options ...Option) (*stream.Stream[vfs.Item], error) {
	if dest.IsZero() {
		return nil, &ArgumentError{Op: "symlink", Arg: "dest", Err: ErrMissingDest}
	}
	opts := a.options(false, options)

	s, err := a.engine.Link(ctx, dest, opts.Options)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("symlink", "dest", dest.String())
	return s, nil
}

// Watch returns a token that fires when files matching pattern change.
func (a *Assembler) Watch(ctx context.Context, pattern string, options ...Option) (storage.ChangeToken, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, &ArgumentError{Op: "watch", Arg: "pattern", Err: ErrInvalidGlob}
	}
	return a.engine.Watch(ctx, pattern, a.options(false, options).Options)
}

// WriteFile writes a single file or view to path through the Dest
// pipeline.
func (a *Assembler) WriteFile(ctx context.Context, item vfs.Item, path string, options ...Option) error {
	f := fileOf(item)
	if f == nil {
		return &ArgumentError{Op: "writeFile", Arg: "file", Err: ErrMissingFile}
	}
	if path == "" {
		return &ArgumentError{Op: "writeFile", Arg: "dest", Err: ErrMissingDest}
	}

	f.Base = f.Dirname()
	f.SetPath(filepath.Join(f.Dirname(), filepath.Base(path)))

	s, err := a.Dest(ctx, vfs.DestDir(filepath.Dir(path)), options...)
	if err != nil {
		return err
	}
	if err := s.Write(ctx, item); err != nil {
		s.Abort(err)
		return s.Wait()
	}
	s.End()
	return s.Wait()
}

// WriteFiles writes every view of the named collection below dest.
func (a *Assembler) WriteFiles(ctx context.Context, collection string, dest vfs.Dest, options ...Option) error {
	c, err := a.collection(collection)
	if err != nil {
		return err
	}
	s, err := a.Dest(ctx, dest, options...)
	if err != nil {
		return err
	}

	go func() {
		for _, v := range c.Views() {
			if err := s.Write(ctx, v); err != nil {
				s.Abort(err)
				return
			}
		}
		s.End()
	}()
	return s.Wait()
}

func (a *Assembler) collection(name string) (*templates.Collection, error) {
	switch h := a.host.(type) {
	case *templates.Collection:
		if name == "" || name == h.Name() {
			return h, nil
		}
		if c, ok := h.App().Collection(name); ok {
			return c, nil
		}
	case *templates.App:
		if c, ok := h.Collection(name); ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, ErrNoCollection)
}

// options applies per-call options over the assembler defaults. Reading
// calls allow empty matches unless told otherwise.
func (a *Assembler) options(read bool, options []Option) Options {
	defaults := a.defaults
	if read {
		defaults.AllowEmpty = true
	}
	return applyOptions(defaults, options...)
}

func validatePatterns(op string, patterns []string) error {
	if len(patterns) == 0 {
		return &ArgumentError{Op: op, Arg: "patterns", Err: ErrInvalidGlob}
	}
	for _, p := range patterns {
		if strings.TrimSpace(strings.TrimPrefix(p, "!")) == "" {
			return &ArgumentError{Op: op, Arg: "patterns", Err: ErrInvalidGlob}
		}
	}
	return nil
}

// sourceError turns pattern compilation failures into argument errors.
func sourceError(op string, err error) error {
	if errors.Is(err, storage.ErrNotAllowed) {
		return &ArgumentError{Op: op, Arg: "patterns", Err: err}
	}
	return &ArgumentError{Op: op, Arg: "patterns", Err: fmt.Errorf("%w: %v", ErrInvalidGlob, err)}
}
