package vfs

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobeaver/assemblefs/storage"
)

// Item is anything flowing through a pipeline that is backed by a File.
type Item interface {
	File() *File
}

// File is a single file-system entry travelling through a pipeline. Its
// contents are a buffer, a lazily opened stream, or absent (null).
type File struct {
	// Cwd is the working directory the file was matched from.
	Cwd string
	// Base is the directory Relative is computed against.
	Base string
	// Stat describes the entry at the time it was read or written.
	Stat *storage.FileInfo
	// Symlink is the link target when the entry is a symbolic link.
	Symlink string
	// Data holds arbitrary metadata attached by hooks and loaders.
	Data map[string]any

	history []string

	mu       sync.Mutex
	contents []byte
	reader   io.ReadCloser
}

// NewFile creates a null file at path.
func NewFile(path string) *File {
	f := &File{Data: make(map[string]any)}
	if path != "" {
		f.SetPath(path)
		f.Cwd = filepath.Dir(f.Path())
		f.Base = f.Cwd
	}
	return f
}

// File returns f, making *File an Item.
func (f *File) File() *File {
	return f
}

// Path returns the current absolute path.
func (f *File) Path() string {
	if len(f.history) == 0 {
		return ""
	}
	return f.history[len(f.history)-1]
}

// SetPath moves the file. Previous paths are kept in History.
func (f *File) SetPath(path string) {
	path = filepath.Clean(path)
	if path == f.Path() {
		return
	}
	f.history = append(f.history, path)
}

// History returns every path the file had, oldest first.
func (f *File) History() []string {
	return append([]string(nil), f.history...)
}

// Relative returns the path relative to Base.
func (f *File) Relative() string {
	if f.Base == "" {
		return filepath.Base(f.Path())
	}
	rel, err := filepath.Rel(f.Base, f.Path())
	if err != nil {
		return filepath.Base(f.Path())
	}
	return rel
}

// Basename returns the last path element.
func (f *File) Basename() string {
	return filepath.Base(f.Path())
}

// Dirname returns the directory holding the file.
func (f *File) Dirname() string {
	return filepath.Dir(f.Path())
}

// Extname returns the extension including the dot.
func (f *File) Extname() string {
	return filepath.Ext(f.Path())
}

// Stem returns the basename without extension.
func (f *File) Stem() string {
	return strings.TrimSuffix(f.Basename(), f.Extname())
}

// SetData stores a metadata value.
func (f *File) SetData(key string, value any) {
	if f.Data == nil {
		f.Data = make(map[string]any)
	}
	f.Data[key] = value
}

// IsNull reports whether the file has no contents.
func (f *File) IsNull() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contents == nil && f.reader == nil
}

// IsBuffer reports whether the contents are held in memory.
func (f *File) IsBuffer() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contents != nil
}

// IsStream reports whether the contents are an unread stream.
func (f *File) IsStream() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reader != nil
}

// IsDirectory reports whether the entry is a directory.
func (f *File) IsDirectory() bool {
	return f.Stat != nil && f.Stat.IsDir
}

// IsSymbolic reports whether the entry is a symbolic link.
func (f *File) IsSymbolic() bool {
	return f.Symlink != ""
}

// Empty reports whether the file carries neither a path nor contents.
func (f *File) Empty() bool {
	return f.Path() == "" && f.IsNull()
}

// Bytes returns the contents. Stream contents are read fully and kept as
// a buffer.
func (f *File) Bytes() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reader != nil {
		data, err := io.ReadAll(f.reader)
		closeErr := f.reader.Close()
		f.reader = nil
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
		if data == nil {
			data = []byte{}
		}
		f.contents = data
	}
	return f.contents, nil
}

// Reader returns the contents as a stream and leaves the file null when the
// contents were a stream. Buffer contents stay in place.
func (f *File) Reader() io.ReadCloser {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.reader != nil {
		r := f.reader
		f.reader = nil
		return r
	}
	if f.contents != nil {
		return io.NopCloser(bytes.NewReader(f.contents))
	}
	return nil
}

// SetContents replaces the contents with a buffer. A nil slice makes the
// file null.
func (f *File) SetContents(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeReader()
	f.contents = data
}

// SetReader replaces the contents with a stream.
func (f *File) SetReader(r io.ReadCloser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeReader()
	f.contents = nil
	f.reader = r
}

func (f *File) closeReader() {
	if f.reader != nil {
		_ = f.reader.Close()
		f.reader = nil
	}
}

// Clone returns a copy sharing no mutable state. Stream contents are
// buffered first.
func (f *File) Clone() (*File, error) {
	data, err := f.Bytes()
	if err != nil {
		return nil, err
	}

	c := &File{
		Cwd:     f.Cwd,
		Base:    f.Base,
		Symlink: f.Symlink,
		Data:    make(map[string]any, len(f.Data)),
		history: f.History(),
	}
	if f.Stat != nil {
		st := *f.Stat
		c.Stat = &st
	}
	for k, v := range f.Data {
		c.Data[k] = v
	}
	if data != nil {
		c.contents = append([]byte{}, data...)
	}
	return c, nil
}

// lazyReader opens the underlying stream on first read.
type lazyReader struct {
	open func() (io.ReadCloser, error)
	rc   io.ReadCloser
	err  error
}

func (l *lazyReader) Read(p []byte) (int, error) {
	if l.rc == nil && l.err == nil {
		l.rc, l.err = l.open()
	}
	if l.err != nil {
		return 0, l.err
	}
	return l.rc.Read(p)
}

func (l *lazyReader) Close() error {
	if l.rc == nil {
		return nil
	}
	return l.rc.Close()
}
