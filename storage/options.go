package storage

import (
	"os"
	"time"
)

// Option represents a write option
type Option func(*Options)

// Options contains all possible options for write operations
type Options struct {
	// ContentType specifies the MIME type of the file
	ContentType string

	// Metadata contains additional metadata for the file
	Metadata map[string]string

	// Mode is applied to the written file when non-zero
	Mode os.FileMode

	// DirMode is applied to directories created for the file when non-zero
	DirMode os.FileMode

	// ModTime is stamped on the written file when non-zero
	ModTime time.Time

	// NoOverwrite makes Write fail with ErrExist when the file is present
	NoOverwrite bool
}

// WithContentType sets the content type of the file
func WithContentType(contentType string) Option {
	return func(o *Options) {
		o.ContentType = contentType
	}
}

// WithMetadata sets additional metadata for the file
func WithMetadata(metadata map[string]string) Option {
	return func(o *Options) {
		o.Metadata = metadata
	}
}

// WithMode sets the permission bits of the written file
func WithMode(mode os.FileMode) Option {
	return func(o *Options) {
		o.Mode = mode
	}
}

// WithDirMode sets the permission bits of created parent directories
func WithDirMode(mode os.FileMode) Option {
	return func(o *Options) {
		o.DirMode = mode
	}
}

// WithModTime stamps the modification time of the written file
func WithModTime(t time.Time) Option {
	return func(o *Options) {
		o.ModTime = t
	}
}

// WithOverwrite enables or disables overwriting existing files.
// Overwriting is the default.
func WithOverwrite(overwrite bool) Option {
	return func(o *Options) {
		o.NoOverwrite = !overwrite
	}
}

// ApplyOptions folds options into an Options value.
func ApplyOptions(options ...Option) *Options {
	opts := &Options{}
	for _, option := range options {
		if option != nil {
			option(opts)
		}
	}
	return opts
}
