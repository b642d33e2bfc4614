package storage

import (
	"context"
	"errors"
	"io"
)

// ErrReadOnly is returned when a write reaches a read-only filesystem.
var ErrReadOnly = errors.New("filesystem is read-only")

// ReadOnlyFileSystem wraps a FileSystem and refuses every mutation. Dry runs
// mount the source tree through it so that only the output mount can change.
//
//	src := storage.NewReadOnly(local.New("."))
//	err := src.Write(ctx, "a.txt", r) // wraps ErrReadOnly
type ReadOnlyFileSystem struct {
	fs      FileSystem
	onWrite func(op, path string)
}

// ReadOnlyOption configures a ReadOnlyFileSystem.
type ReadOnlyOption func(*ReadOnlyFileSystem)

// WithWriteAttemptHandler registers fn to observe refused writes.
func WithWriteAttemptHandler(fn func(op, path string)) ReadOnlyOption {
	return func(r *ReadOnlyFileSystem) {
		r.onWrite = fn
	}
}

// NewReadOnly wraps fs.
func NewReadOnly(fs FileSystem, opts ...ReadOnlyOption) *ReadOnlyFileSystem {
	r := &ReadOnlyFileSystem{fs: fs}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Unwrap returns the wrapped filesystem.
func (r *ReadOnlyFileSystem) Unwrap() FileSystem {
	return r.fs
}

func (r *ReadOnlyFileSystem) refuse(op, path string) error {
	if r.onWrite != nil {
		r.onWrite(op, path)
	}
	return &PathError{Op: op, Path: path, Err: ErrReadOnly}
}

func (r *ReadOnlyFileSystem) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	return r.fs.Read(ctx, path)
}

func (r *ReadOnlyFileSystem) ReadAll(ctx context.Context, path string) ([]byte, error) {
	return r.fs.ReadAll(ctx, path)
}

func (r *ReadOnlyFileSystem) FileExists(ctx context.Context, path string) (bool, error) {
	return r.fs.FileExists(ctx, path)
}

func (r *ReadOnlyFileSystem) DirExists(ctx context.Context, path string) (bool, error) {
	return r.fs.DirExists(ctx, path)
}

func (r *ReadOnlyFileSystem) Stat(ctx context.Context, path string) (*FileInfo, error) {
	return r.fs.Stat(ctx, path)
}

func (r *ReadOnlyFileSystem) ListContents(ctx context.Context, path string, recursive bool) ([]FileInfo, error) {
	return r.fs.ListContents(ctx, path, recursive)
}

func (r *ReadOnlyFileSystem) Write(_ context.Context, path string, _ io.Reader, _ ...Option) error {
	return r.refuse("write", path)
}

func (r *ReadOnlyFileSystem) Delete(_ context.Context, path string) error {
	return r.refuse("delete", path)
}

func (r *ReadOnlyFileSystem) CreateDir(_ context.Context, path string) error {
	return r.refuse("createdir", path)
}

func (r *ReadOnlyFileSystem) DeleteDir(_ context.Context, path string) error {
	return r.refuse("deletedir", path)
}

func (r *ReadOnlyFileSystem) Copy(_ context.Context, _, dst string) error {
	return r.refuse("copy", dst)
}

func (r *ReadOnlyFileSystem) Move(_ context.Context, src, _ string) error {
	return r.refuse("move", src)
}

func (r *ReadOnlyFileSystem) Symlink(_ context.Context, _, link string) error {
	return r.refuse("symlink", link)
}

// Readlink delegates when the wrapped filesystem supports links.
func (r *ReadOnlyFileSystem) Readlink(ctx context.Context, path string) (string, error) {
	if linker, ok := r.fs.(CanSymlink); ok {
		return linker.Readlink(ctx, path)
	}
	return "", &PathError{Op: "readlink", Path: path, Err: ErrNotSupported}
}

func (r *ReadOnlyFileSystem) Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error) {
	if checksummer, ok := r.fs.(CanChecksum); ok {
		return checksummer.Checksum(ctx, path, algorithm)
	}
	return "", &PathError{Op: "checksum", Path: path, Err: ErrNotSupported}
}

func (r *ReadOnlyFileSystem) Checksums(ctx context.Context, path string, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	if checksummer, ok := r.fs.(CanChecksum); ok {
		return checksummer.Checksums(ctx, path, algorithms)
	}
	return nil, &PathError{Op: "checksums", Path: path, Err: ErrNotSupported}
}

func (r *ReadOnlyFileSystem) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	if watcher, ok := r.fs.(CanWatch); ok {
		return watcher.Watch(ctx, pattern)
	}
	return nil, &PathError{Op: "watch", Path: pattern, Err: ErrNotSupported}
}

// IsReadOnlyError reports whether err came from a read-only filesystem.
func IsReadOnlyError(err error) bool {
	return errors.Is(err, ErrReadOnly)
}

var (
	_ FileSystem  = (*ReadOnlyFileSystem)(nil)
	_ CanCopy     = (*ReadOnlyFileSystem)(nil)
	_ CanMove     = (*ReadOnlyFileSystem)(nil)
	_ CanSymlink  = (*ReadOnlyFileSystem)(nil)
	_ CanChecksum = (*ReadOnlyFileSystem)(nil)
	_ CanWatch    = (*ReadOnlyFileSystem)(nil)
)
