package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Options tunes Source, Sink and Link. Start from DefaultOptions; the zero
// value disables reading.
type Options struct {
	// AllowEmpty suppresses the error for patterns that match nothing.
	AllowEmpty bool
	// Cwd is the directory patterns and relative destinations resolve
	// against. Relative values resolve against the engine root.
	Cwd string
	// Base overrides the directory Relative paths are computed from.
	Base string
	// Read loads contents; false yields null files.
	Read bool
	// Buffer reads contents into memory; false gives a lazily opened stream.
	Buffer bool
	// Since skips files not modified after this instant.
	Since time.Time
	// Dot lets wildcards match names starting with a dot.
	Dot bool

	// Mode overrides the file mode of written files.
	Mode os.FileMode
	// DirMode is the mode of created directories.
	DirMode os.FileMode
	// Overwrite replaces existing files.
	Overwrite bool
	// Append adds contents to the end of existing files.
	Append bool
	// SkipUnchanged leaves files alone whose contents already match.
	SkipUnchanged bool

	// Sourcemaps is recorded on each file; maps are not generated.
	Sourcemaps bool
	// FollowSymlinks reads through links; false yields link entries.
	FollowSymlinks bool
	// RelativeSymlinks makes Link create relative targets.
	RelativeSymlinks bool
	// UseJunctions creates directory junctions instead of links on Windows.
	UseJunctions bool
}

// DefaultOptions returns the options Source, Sink and Link use unless told
// otherwise.
func DefaultOptions() Options {
	return Options{
		Read:           true,
		Buffer:         true,
		Overwrite:      true,
		FollowSymlinks: true,
		UseJunctions:   true,
	}
}

var (
	// ErrNoMatch is returned when a pattern matches nothing and empty
	// results are not allowed.
	ErrNoMatch = errors.New("vfs: file not found with glob")

	// ErrNoDest is returned when an output directory is missing.
	ErrNoDest = errors.New("vfs: missing output directory")

	// ErrNoPatterns is returned by Source without positive patterns.
	ErrNoPatterns = errors.New("vfs: no positive glob patterns")
)

// Dest names an output directory, fixed or computed per file.
type Dest struct {
	dir string
	fn  func(*File) (string, error)
}

// DestDir returns a fixed destination.
func DestDir(dir string) Dest {
	return Dest{dir: dir}
}

// DestFunc returns a destination computed for each file.
func DestFunc(fn func(*File) (string, error)) Dest {
	return Dest{fn: fn}
}

// IsZero reports whether no destination was given.
func (d Dest) IsZero() bool {
	return d.dir == "" && d.fn == nil
}

// IsFunc reports whether the destination is computed per file.
func (d Dest) IsFunc() bool {
	return d.fn != nil
}

// Resolve returns the output directory for f.
func (d Dest) Resolve(f *File) (string, error) {
	dir := d.dir
	if d.fn != nil {
		var err error
		if dir, err = d.fn(f); err != nil {
			return "", err
		}
	}
	if dir == "" {
		return "", ErrNoDest
	}
	return dir, nil
}

func (d Dest) String() string {
	if d.fn != nil {
		return "<func>"
	}
	return d.dir
}

func absPath(cwd, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(cwd, p)
}
