package vfs

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/gobeaver/assemblefs/storage"
)

// Engine reads and writes Files on a storage backend. Files carry absolute
// OS-style paths; root maps them onto backend paths.
type Engine struct {
	fs   storage.FileSystem
	root string
}

// New returns an engine over fsys whose backend root corresponds to root.
// An empty root is "/".
func New(fsys storage.FileSystem, root string) *Engine {
	if root == "" {
		root = string(filepath.Separator)
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Engine{fs: fsys, root: filepath.Clean(root)}
}

// FS returns the backend.
func (e *Engine) FS() storage.FileSystem {
	return e.fs
}

// Root returns the absolute directory the backend root maps to.
func (e *Engine) Root() string {
	return e.root
}

// Abs resolves p against the engine root.
func (e *Engine) Abs(p string) string {
	return absPath(e.root, p)
}

func (e *Engine) cwd(opts Options) string {
	if opts.Cwd == "" {
		return e.root
	}
	return absPath(e.root, opts.Cwd)
}

// rel maps an absolute path onto a backend path.
func (e *Engine) rel(op, abs string) (string, error) {
	r, err := filepath.Rel(e.root, abs)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", &storage.PathError{Op: op, Path: abs, Err: storage.ErrNotAllowed}
	}
	if r == "." {
		return "", nil
	}
	return filepath.ToSlash(r), nil
}

// fromBackend maps a backend path onto an absolute path.
func (e *Engine) fromBackend(p string) string {
	return filepath.Join(e.root, filepath.FromSlash(p))
}

// Watch returns a change token for pattern when the backend supports it.
func (e *Engine) Watch(ctx context.Context, pattern string, opts Options) (storage.ChangeToken, error) {
	w, ok := e.fs.(storage.CanWatch)
	if !ok {
		return nil, &storage.PathError{Op: "watch", Path: pattern, Err: storage.ErrNotSupported}
	}
	rel, err := e.rel("watch", absPath(e.cwd(opts), pattern))
	if err != nil {
		return nil, err
	}
	return w.Watch(ctx, rel)
}
