package local

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gobeaver/assemblefs/storage"
)

// Watch implements storage.CanWatch using fsnotify. The directory holding the
// literal prefix of pattern is watched, recursively when pattern contains "**".
func (a *Adapter) Watch(ctx context.Context, pattern string) (storage.ChangeToken, error) {
	selector, err := storage.Glob(pattern, storage.GlobOptions{Dot: true})
	if err != nil {
		return nil, err
	}

	watchPath := filepath.Join(a.root, filepath.FromSlash(globParent(pattern)))
	if !isPathUnderRoot(a.root, watchPath) {
		return nil, &storage.PathError{Op: "watch", Path: pattern, Err: storage.ErrNotAllowed}
	}

	watcher, err := newFSWatcher()
	if err != nil {
		return nil, &storage.PathError{Op: "watch", Path: pattern, Err: err}
	}

	if err := watcher.Add(watchPath); err != nil {
		watcher.Close()
		return nil, pathError("watch", pattern, err)
	}

	if strings.Contains(pattern, "**") {
		_ = filepath.WalkDir(watchPath, func(path string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() && path != watchPath {
				_ = watcher.Add(path)
			}
			return nil
		})
	}

	token := storage.NewCallbackChangeToken()

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events():
				if !ok {
					return
				}

				relPath, err := filepath.Rel(a.root, event.Name)
				if err != nil {
					continue
				}
				if selector.Match(&storage.FileInfo{Path: filepath.ToSlash(relPath)}) {
					token.SignalChange()
					return // spent after the first change
				}
			case _, ok := <-watcher.Errors():
				if !ok {
					return
				}
			}
		}
	}()

	return token, nil
}

// globParent returns the literal directory prefix of a slash pattern.
func globParent(pattern string) string {
	pattern = filepath.ToSlash(pattern)
	segs := strings.Split(pattern, "/")
	var parent []string
	for i, seg := range segs {
		if storage.HasMagic(seg) || i == len(segs)-1 {
			break
		}
		parent = append(parent, seg)
	}
	return strings.Join(parent, "/")
}

// fsWatcher wraps fsnotify.Watcher with a simpler interface
type fsWatcher interface {
	Add(path string) error
	Close() error
	Events() <-chan fsEvent
	Errors() <-chan error
}

type fsEvent struct {
	Name string
	Op   uint32
}

// fsnotifyWatcher wraps fsnotify.Watcher to implement fsWatcher interface
type fsnotifyWatcher struct {
	watcher *fsnotify.Watcher
	events  chan fsEvent
	errors  chan error
	done    chan struct{}
}

// newFSWatcher creates a new file system watcher using fsnotify
func newFSWatcher() (fsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &fsnotifyWatcher{
		watcher: w,
		events:  make(chan fsEvent),
		errors:  make(chan error),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(fw.events)
		defer close(fw.errors)
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				select {
				case fw.events <- fsEvent{Name: event.Name, Op: uint32(event.Op)}:
				case <-fw.done:
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				select {
				case fw.errors <- err:
				case <-fw.done:
					return
				}
			}
		}
	}()

	return fw, nil
}

func (w *fsnotifyWatcher) Add(path string) error {
	return w.watcher.Add(path)
}

func (w *fsnotifyWatcher) Close() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return w.watcher.Close()
}

func (w *fsnotifyWatcher) Events() <-chan fsEvent {
	return w.events
}

func (w *fsnotifyWatcher) Errors() <-chan error {
	return w.errors
}
