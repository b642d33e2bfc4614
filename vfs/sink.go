package vfs

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gobeaver/assemblefs/storage"
	"github.com/gobeaver/assemblefs/stream"
)

// Sink returns a writable stream that writes every file below dest and
// emits it re-based onto its new location. Null files other than
// directories and links are re-based but not written.
func (e *Engine) Sink(ctx context.Context, dest Dest, opts Options) (*stream.Stream[Item], error) {
	if dest.IsZero() {
		return nil, ErrNoDest
	}
	return stream.Through(ctx, e.WriteStage(dest, opts)), nil
}

// WriteStage is the transform behind Sink.
func (e *Engine) WriteStage(dest Dest, opts Options) stream.Transform[Item] {
	cwd := e.cwd(opts)
	return func(ctx context.Context, item Item, push func(Item) error) error {
		if item == nil || item.File() == nil {
			return push(item)
		}
		f := item.File()

		outDir, err := dest.Resolve(f)
		if err != nil {
			return &storage.PathError{Op: "dest", Path: f.Path(), Err: err}
		}
		outDir = absPath(cwd, outDir)

		writePath := filepath.Join(outDir, f.Relative())
		rel, err := e.rel("dest", writePath)
		if err != nil {
			return err
		}

		f.Cwd = cwd
		f.Base = outDir
		f.SetPath(writePath)

		switch {
		case f.IsDirectory():
			err = e.fs.CreateDir(ctx, rel)
		case f.IsSymbolic() && f.IsNull():
			err = e.symlink(ctx, f.Symlink, rel)
		case f.IsNull():
			return push(item)
		default:
			err = e.write(ctx, f, rel, opts)
		}
		if err != nil {
			return err
		}

		if info, err := e.fs.Stat(ctx, rel); err == nil {
			f.Stat = info
		}
		return push(item)
	}
}

func (e *Engine) write(ctx context.Context, f *File, rel string, opts Options) error {
	wopts := []storage.Option{storage.WithOverwrite(opts.Overwrite)}
	if mode := fileMode(f, opts); mode != 0 {
		wopts = append(wopts, storage.WithMode(mode))
	}
	if opts.DirMode != 0 {
		wopts = append(wopts, storage.WithDirMode(opts.DirMode))
	}

	var (
		body     io.Reader
		streamed bool
	)
	if f.IsStream() && !opts.Append && !opts.SkipUnchanged {
		rc := f.Reader()
		defer rc.Close()
		body, streamed = rc, true
	} else {
		data, err := f.Bytes()
		if err != nil {
			return err
		}

		if opts.Append {
			existing, err := e.fs.ReadAll(ctx, rel)
			if err != nil && !storage.IsNotExist(err) {
				return err
			}
			data = append(existing, data...)
			wopts = append(wopts, storage.WithOverwrite(true))
		}
		if opts.SkipUnchanged {
			same, err := storage.SameContent(ctx, e.fs, rel, data)
			if err != nil {
				return err
			}
			if same {
				return nil
			}
		}
		body = bytes.NewReader(data)
	}

	err := e.fs.Write(ctx, rel, body, wopts...)
	// the stream was consumed; reading again yields the file on disk
	if streamed {
		f.SetReader(e.lazy(ctx, rel))
	}
	if err != nil && !(storage.IsExist(err) && !opts.Overwrite) {
		return err
	}
	return nil
}

func fileMode(f *File, opts Options) os.FileMode {
	if opts.Mode != 0 {
		return opts.Mode
	}
	if f.Stat != nil {
		return f.Stat.Mode.Perm()
	}
	return 0
}

func (e *Engine) symlink(ctx context.Context, target, rel string) error {
	linker, ok := e.fs.(storage.CanSymlink)
	if !ok {
		return &storage.PathError{Op: "symlink", Path: rel, Err: storage.ErrNotSupported}
	}
	return linker.Symlink(ctx, e.backendTarget(target), rel)
}

// rooted backends resolve absolute link targets on the host file system.
type rooted interface {
	Root() string
}

// backendTarget converts an absolute OS target into the form the backend
// understands. Relative targets are kept.
func (e *Engine) backendTarget(target string) string {
	if !filepath.IsAbs(target) {
		return filepath.ToSlash(target)
	}
	if _, ok := e.fs.(rooted); ok {
		return target
	}
	if rel, err := e.rel("symlink", target); err == nil {
		return "/" + rel
	}
	return filepath.ToSlash(target)
}

// Link returns a writable stream that creates a symbolic link below dest
// for every file, pointing at the file's current path.
func (e *Engine) Link(ctx context.Context, dest Dest, opts Options) (*stream.Stream[Item], error) {
	if dest.IsZero() {
		return nil, ErrNoDest
	}
	if _, ok := e.fs.(storage.CanSymlink); !ok {
		return nil, &storage.PathError{Op: "symlink", Path: dest.String(), Err: storage.ErrNotSupported}
	}

	cwd := e.cwd(opts)
	return stream.Through(ctx, func(ctx context.Context, item Item, push func(Item) error) error {
		if item == nil || item.File() == nil {
			return push(item)
		}
		f := item.File()

		outDir, err := dest.Resolve(f)
		if err != nil {
			return &storage.PathError{Op: "symlink", Path: f.Path(), Err: err}
		}
		outDir = absPath(cwd, outDir)

		target := f.Path()
		linkPath := filepath.Join(outDir, f.Relative())
		rel, err := e.rel("symlink", linkPath)
		if err != nil {
			return err
		}

		junction := f.IsDirectory() && opts.UseJunctions && runtime.GOOS == "windows"
		if junction {
			f.SetData("junction", true)
		} else if opts.RelativeSymlinks {
			if r, err := filepath.Rel(filepath.Dir(linkPath), target); err == nil {
				target = r
			}
		}

		if err := e.symlink(ctx, target, rel); err != nil {
			return err
		}

		f.Cwd = cwd
		f.Base = outDir
		f.Symlink = target
		f.SetPath(linkPath)
		if info, err := e.fs.Stat(ctx, rel); err == nil {
			f.Stat = info
		}
		return push(item)
	}), nil
}
