package assemblefs

import (
	"os"
	"time"

	"github.com/gobeaver/assemblefs/vfs"
)

// Option configures a single Copy, Src, Dest or Symlink call.
type Option func(*Options)

// Options holds the per-call settings. Engine settings are passed to the
// file-system engine unchanged.
type Options struct {
	vfs.Options

	// Collection names the collection Src adds files to.
	Collection string

	// BaseFunc computes the destination base per file, taking precedence
	// over Base when preparing destinations.
	BaseFunc func(*vfs.File) (string, error)
}

func applyOptions(defaults vfs.Options, options ...Option) Options {
	opts := Options{Options: defaults}
	for _, option := range options {
		option(&opts)
	}
	return opts
}

// WithCollection adds files read by Src to the named collection.
func WithCollection(name string) Option {
	return func(o *Options) { o.Collection = name }
}

// WithAllowEmpty controls whether patterns matching nothing are an error.
func WithAllowEmpty(allow bool) Option {
	return func(o *Options) { o.AllowEmpty = allow }
}

// WithCwd sets the directory patterns and destinations resolve against.
func WithCwd(dir string) Option {
	return func(o *Options) { o.Cwd = dir }
}

// WithBase sets the base directory relative paths are computed from.
func WithBase(dir string) Option {
	return func(o *Options) { o.Base = dir }
}

// WithBaseFunc computes the destination base per file.
func WithBaseFunc(fn func(*vfs.File) (string, error)) Option {
	return func(o *Options) { o.BaseFunc = fn }
}

// WithRead controls whether contents are read.
func WithRead(read bool) Option {
	return func(o *Options) { o.Read = read }
}

// WithBuffer controls whether contents are buffered or streamed.
func WithBuffer(buffer bool) Option {
	return func(o *Options) { o.Buffer = buffer }
}

// WithSince only reads files modified after t.
func WithSince(t time.Time) Option {
	return func(o *Options) { o.Since = t }
}

// WithDot lets wildcards match dotfiles.
func WithDot(dot bool) Option {
	return func(o *Options) { o.Dot = dot }
}

// WithMode sets the mode of written files.
func WithMode(mode os.FileMode) Option {
	return func(o *Options) { o.Mode = mode }
}

// WithDirMode sets the mode of created directories.
func WithDirMode(mode os.FileMode) Option {
	return func(o *Options) { o.DirMode = mode }
}

// WithOverwrite controls whether existing files are replaced.
func WithOverwrite(overwrite bool) Option {
	return func(o *Options) { o.Overwrite = overwrite }
}

// WithAppend appends to existing files.
func WithAppend(appendContents bool) Option {
	return func(o *Options) { o.Append = appendContents }
}

// WithSkipUnchanged leaves files whose contents already match.
func WithSkipUnchanged(skip bool) Option {
	return func(o *Options) { o.SkipUnchanged = skip }
}

// WithSourcemaps records that source maps were requested.
func WithSourcemaps(enabled bool) Option {
	return func(o *Options) { o.Sourcemaps = enabled }
}

// WithFollowSymlinks controls whether links are read through.
func WithFollowSymlinks(follow bool) Option {
	return func(o *Options) { o.FollowSymlinks = follow }
}

// WithRelativeSymlinks makes Symlink create relative links.
func WithRelativeSymlinks(relative bool) Option {
	return func(o *Options) { o.RelativeSymlinks = relative }
}

// WithUseJunctions makes Symlink create junctions for directories on
// Windows.
func WithUseJunctions(use bool) Option {
	return func(o *Options) { o.UseJunctions = use }
}
