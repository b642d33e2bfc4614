package vfs

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/gobeaver/assemblefs/stream"
	"github.com/gobeaver/assemblefs/storage"
)

type pattern struct {
	raw      string
	rel      string
	parent   string
	literal  bool
	selector storage.FileSelector
}

func (e *Engine) compile(cwd, raw string, dot bool) (pattern, error) {
	rel, err := e.rel("source", absPath(cwd, raw))
	if err != nil {
		return pattern{}, err
	}

	p := pattern{raw: raw, rel: rel, literal: !storage.HasMagic(rel)}
	var parent []string
	for _, seg := range strings.Split(rel, "/") {
		if storage.HasMagic(seg) {
			break
		}
		parent = append(parent, seg)
	}
	if p.literal {
		p.parent = path.Dir(rel)
		if p.parent == "." {
			p.parent = ""
		}
	} else {
		p.parent = strings.Join(parent, "/")
	}

	if p.selector, err = storage.Glob(rel, storage.GlobOptions{Dot: dot}); err != nil {
		return pattern{}, err
	}
	return p, nil
}

// Source returns a stream of the files matching patterns. Patterns starting
// with "!" exclude matches of the others. Files are emitted pattern by
// pattern in listing order, each path at most once. Invalid patterns fail
// before the stream starts.
func (e *Engine) Source(ctx context.Context, patterns []string, opts Options) (*stream.Stream[Item], error) {
	cwd := e.cwd(opts)

	var positives, negatives []pattern
	for _, raw := range patterns {
		negated := strings.HasPrefix(raw, "!")
		p, err := e.compile(cwd, strings.TrimPrefix(raw, "!"), opts.Dot || negated)
		if err != nil {
			return nil, err
		}
		if negated {
			negatives = append(negatives, p)
		} else {
			positives = append(positives, p)
		}
	}
	if len(positives) == 0 {
		return nil, ErrNoPatterns
	}

	var filters []storage.FileSelector
	if len(negatives) > 0 {
		excluded := make([]storage.FileSelector, len(negatives))
		for i, n := range negatives {
			excluded[i] = n.selector
		}
		filters = append(filters, storage.Not(storage.Or(excluded...)))
	}
	if !opts.Since.IsZero() {
		since := opts.Since
		filters = append(filters, storage.FuncSelector(func(info *storage.FileInfo) bool {
			return info.IsDir || info.ModTime.After(since)
		}))
	}
	filter := storage.And(filters...)

	return stream.Readable(ctx, func(ctx context.Context, push func(Item) error) error {
		seen := make(map[string]bool)
		for _, p := range positives {
			matches, found, err := e.expand(ctx, p, filter)
			if err != nil {
				return err
			}
			if !found && !opts.AllowEmpty {
				return &storage.PathError{Op: "source", Path: p.raw, Err: ErrNoMatch}
			}

			base := e.fromBackend(p.parent)
			if opts.Base != "" {
				base = absPath(cwd, opts.Base)
			}

			for i := range matches {
				info := &matches[i]
				if seen[info.Path] {
					continue
				}
				seen[info.Path] = true

				f, err := e.load(ctx, info, cwd, base, opts)
				if err != nil {
					return err
				}
				if err := push(f); err != nil {
					return err
				}
			}
		}
		return nil
	}), nil
}

// expand lists the entries matching p that pass filter. found reports
// whether p matched anything before filtering.
func (e *Engine) expand(ctx context.Context, p pattern, filter storage.FileSelector) ([]storage.FileInfo, bool, error) {
	if p.literal {
		info, err := e.fs.Stat(ctx, p.rel)
		if err != nil {
			if storage.IsNotExist(err) {
				return nil, false, nil
			}
			return nil, false, err
		}
		info.Path = p.rel
		if !filter.Match(info) {
			return nil, true, nil
		}
		return []storage.FileInfo{*info}, true, nil
	}

	found := false
	hit := storage.FuncSelector(func(*storage.FileInfo) bool {
		found = true
		return true
	})
	matches, err := storage.ListWithSelector(ctx, e.fs, p.parent, storage.And(p.selector, hit, filter), true)
	if err != nil {
		if storage.IsNotExist(err) || errors.Is(err, storage.ErrNotDir) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return matches, found, nil
}

func (e *Engine) load(ctx context.Context, info *storage.FileInfo, cwd, base string, opts Options) (*File, error) {
	f := &File{Cwd: cwd, Base: base, Data: make(map[string]any)}
	f.SetPath(e.fromBackend(info.Path))
	st := *info
	f.Stat = &st
	f.Symlink = info.Symlink
	if opts.Sourcemaps {
		f.SetData("sourcemaps", true)
	}

	switch {
	case info.IsDir, !opts.Read:
	case info.Symlink != "" && !opts.FollowSymlinks:
	case opts.Buffer:
		data, err := e.fs.ReadAll(ctx, info.Path)
		if err != nil {
			return nil, err
		}
		if data == nil {
			data = []byte{}
		}
		f.SetContents(data)
	default:
		f.SetReader(e.lazy(ctx, info.Path))
	}
	return f, nil
}

// lazy opens p on first read. The pipeline context may be gone by then.
func (e *Engine) lazy(ctx context.Context, p string) io.ReadCloser {
	ctx = context.WithoutCancel(ctx)
	return &lazyReader{open: func() (io.ReadCloser, error) {
		return e.fs.Read(ctx, p)
	}}
}
