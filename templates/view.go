package templates

import (
	"sync"

	"github.com/gobeaver/assemblefs/vfs"
)

// View is a file managed by the host, identified by Key.
type View struct {
	// Key is the path the view is stored under.
	Key string
	// Collection names the owning collection, empty for standalone views.
	Collection string

	mu   sync.RWMutex
	file *vfs.File
}

// NewView wraps f.
func NewView(f *vfs.File) *View {
	return &View{Key: f.Path(), file: f}
}

// ToView returns item itself when it already is a view, otherwise a new
// view wrapping its file.
func ToView(item vfs.Item) *View {
	if v, ok := item.(*View); ok {
		return v
	}
	return NewView(item.File())
}

// File returns the underlying file.
func (v *View) File() *vfs.File {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.file
}

func (v *View) setFile(f *vfs.File) {
	v.mu.Lock()
	v.file = f
	v.mu.Unlock()
}

// Path returns the file path.
func (v *View) Path() string {
	return v.File().Path()
}

// Data returns the metadata bag, creating it when missing.
func (v *View) Data() map[string]any {
	f := v.File()
	if f.Data == nil {
		f.Data = make(map[string]any)
	}
	return f.Data
}
