package memory

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/assemblefs/storage"
	"github.com/gobwas/glob"
)

// memoryFile represents a file stored in memory
type memoryFile struct {
	content     []byte
	contentType string
	metadata    map[string]string
	mode        os.FileMode
	modTime     time.Time
}

// memoryDir represents a directory in memory
type memoryDir struct {
	mode    os.FileMode
	modTime time.Time
}

// memoryLink represents a symbolic link in memory
type memoryLink struct {
	target  string
	modTime time.Time
}

// watchEntry represents a single watch subscription
type watchEntry struct {
	filter glob.Glob
	token  *storage.CallbackChangeToken
}

// Adapter provides an in-memory implementation of storage.FileSystem.
// Useful for tests and for staging output before it is flushed elsewhere.
type Adapter struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	dirs    map[string]*memoryDir
	links   map[string]*memoryLink
	maxSize int64 // Maximum total storage size (0 = unlimited)
	size    int64 // Current total size

	watchMu sync.RWMutex
	watches []*watchEntry
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
}

// New creates a new in-memory filesystem adapter
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	a := &Adapter{
		files:   make(map[string]*memoryFile),
		dirs:    make(map[string]*memoryDir),
		links:   make(map[string]*memoryLink),
		maxSize: maxSize,
	}
	a.dirs[""] = &memoryDir{mode: os.ModeDir | 0755, modTime: time.Now()}

	return a
}

// Write implements storage.FileWriter
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, options ...storage.Option) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	path = normalizePath(path)
	if !isValidPath(path) || path == "" {
		return &storage.PathError{Op: "write", Path: path, Err: storage.ErrNotAllowed}
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return &storage.PathError{Op: "write", Path: path, Err: err}
	}

	opts := storage.ApplyOptions(options...)

	a.mu.Lock()
	defer a.mu.Unlock()

	path = a.followLocked(path)

	if _, isDir := a.dirs[path]; isDir {
		return &storage.PathError{Op: "write", Path: path, Err: storage.ErrIsDir}
	}

	newSize := a.size + int64(len(data))
	if existing, exists := a.files[path]; exists {
		if opts.NoOverwrite {
			return &storage.PathError{Op: "write", Path: path, Err: storage.ErrExist}
		}
		newSize -= int64(len(existing.content))
	}

	if a.maxSize > 0 && newSize > a.maxSize {
		return &storage.PathError{Op: "write", Path: path, Err: storage.ErrNoSpace}
	}

	a.ensureParentDirs(path, opts.DirMode)

	contentType := opts.ContentType
	if contentType == "" {
		contentType = detectContentType(path, data)
	}
	mode := opts.Mode
	if mode == 0 {
		mode = 0644
	}
	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now()
	}

	a.files[path] = &memoryFile{
		content:     data,
		contentType: contentType,
		metadata:    opts.Metadata,
		mode:        mode,
		modTime:     modTime,
	}
	a.size = newSize

	go a.notifyWatchers(path)

	return nil
}

// Read implements storage.FileReader
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, exists := a.files[a.followLocked(path)]
	if !exists {
		return nil, &storage.PathError{Op: "read", Path: path, Err: storage.ErrNotExist}
	}

	return io.NopCloser(bytes.NewReader(file.content)), nil
}

// ReadAll implements storage.FileReader
func (a *Adapter) ReadAll(ctx context.Context, path string) ([]byte, error) {
	rc, err := a.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete implements storage.FileWriter
func (a *Adapter) Delete(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	path = normalizePath(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isLink := a.links[path]; isLink {
		delete(a.links, path)
		go a.notifyWatchers(path)
		return nil
	}

	file, exists := a.files[path]
	if !exists {
		return &storage.PathError{Op: "delete", Path: path, Err: storage.ErrNotExist}
	}

	a.size -= int64(len(file.content))
	delete(a.files, path)

	go a.notifyWatchers(path)

	return nil
}

// FileExists implements storage.FileReader
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.files[a.followLocked(path)]
	return exists, nil
}

// DirExists implements storage.FileReader
func (a *Adapter) DirExists(ctx context.Context, path string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.dirs[a.followLocked(path)]
	return exists, nil
}

// Stat implements storage.FileReader. Links are followed and their target
// reported in FileInfo.Symlink.
func (a *Adapter) Stat(ctx context.Context, path string) (*storage.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	info, ok := a.describeLocked(path)
	if !ok {
		return nil, &storage.PathError{Op: "stat", Path: path, Err: storage.ErrNotExist}
	}
	return info, nil
}

// describeLocked builds the FileInfo for path. Must be called with lock held.
func (a *Adapter) describeLocked(p string) (*storage.FileInfo, bool) {
	var target string
	resolved := p
	if link, isLink := a.links[p]; isLink {
		target = link.target
		resolved = a.followLocked(p)
	}

	if file, exists := a.files[resolved]; exists {
		return &storage.FileInfo{
			Name:        path.Base(p),
			Path:        p,
			Size:        int64(len(file.content)),
			Mode:        file.mode,
			ModTime:     file.modTime,
			ContentType: file.contentType,
			Symlink:     target,
			Metadata:    file.metadata,
		}, true
	}

	if dir, exists := a.dirs[resolved]; exists {
		return &storage.FileInfo{
			Name:    path.Base(p),
			Path:    p,
			Mode:    dir.mode,
			ModTime: dir.modTime,
			IsDir:   true,
			Symlink: target,
		}, true
	}

	if link, isLink := a.links[p]; isLink {
		// dangling link
		return &storage.FileInfo{
			Name:    path.Base(p),
			Path:    p,
			Mode:    os.ModeSymlink | 0777,
			ModTime: link.modTime,
			Symlink: link.target,
		}, true
	}

	return nil, false
}

// ListContents implements storage.FileReader
func (a *Adapter) ListContents(ctx context.Context, dir string, recursive bool) ([]storage.FileInfo, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	dir = normalizePath(dir)

	a.mu.RLock()
	defer a.mu.RUnlock()

	resolved := a.followLocked(dir)
	if _, exists := a.dirs[resolved]; !exists {
		if _, isFile := a.files[resolved]; isFile {
			return nil, &storage.PathError{Op: "listcontents", Path: dir, Err: storage.ErrNotDir}
		}
		return nil, &storage.PathError{Op: "listcontents", Path: dir, Err: storage.ErrNotExist}
	}

	prefix := ""
	if resolved != "" {
		prefix = resolved + "/"
	}

	seen := make(map[string]bool)
	var files []storage.FileInfo
	add := func(entry string) {
		rel := strings.TrimPrefix(entry, prefix)
		if rel == "" || !strings.HasPrefix(entry, prefix) {
			return
		}
		if !recursive && strings.Contains(rel, "/") {
			return
		}
		// report entries under the requested (possibly linked) directory
		listed := rel
		if dir != "" {
			listed = dir + "/" + rel
		}
		if seen[listed] {
			return
		}
		seen[listed] = true
		if info, ok := a.describeLocked(entry); ok {
			info.Path = listed
			files = append(files, *info)
		}
	}

	for p := range a.files {
		add(p)
	}
	for p := range a.dirs {
		add(p)
	}
	for p := range a.links {
		add(p)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}

// CreateDir implements storage.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	path = normalizePath(path)
	if !isValidPath(path) {
		return &storage.PathError{Op: "createdir", Path: path, Err: storage.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.files[path]; exists {
		return &storage.PathError{Op: "createdir", Path: path, Err: storage.ErrExist}
	}

	a.ensureParentDirs(path, 0)
	if _, exists := a.dirs[path]; !exists {
		a.dirs[path] = &memoryDir{mode: os.ModeDir | 0755, modTime: time.Now()}
	}

	return nil
}

// DeleteDir implements storage.FileWriter
func (a *Adapter) DeleteDir(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	path = normalizePath(path)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.dirs[path]; !exists {
		if _, isFile := a.files[path]; isFile {
			return &storage.PathError{Op: "deletedir", Path: path, Err: storage.ErrNotDir}
		}
		return &storage.PathError{Op: "deletedir", Path: path, Err: storage.ErrNotExist}
	}

	prefix := path + "/"
	var deleted []string

	for p, file := range a.files {
		if strings.HasPrefix(p, prefix) {
			a.size -= int64(len(file.content))
			deleted = append(deleted, p)
			delete(a.files, p)
		}
	}
	for p := range a.links {
		if strings.HasPrefix(p, prefix) {
			delete(a.links, p)
		}
	}
	for p := range a.dirs {
		if strings.HasPrefix(p, prefix) || p == path {
			delete(a.dirs, p)
		}
	}

	if len(deleted) > 0 {
		go func() {
			for _, p := range deleted {
				a.notifyWatchers(p)
			}
		}()
	}

	return nil
}

// Clear removes all files and directories from the memory filesystem
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.files = make(map[string]*memoryFile)
	a.dirs = make(map[string]*memoryDir)
	a.links = make(map[string]*memoryLink)
	a.size = 0
	a.dirs[""] = &memoryDir{mode: os.ModeDir | 0755, modTime: time.Now()}
}

// Size returns the current total size of all stored files
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// FileCount returns the number of files stored
func (a *Adapter) FileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.files)
}

// ensureParentDirs creates all parent directories for a given path.
// Must be called with lock held.
func (a *Adapter) ensureParentDirs(p string, mode os.FileMode) {
	if mode == 0 {
		mode = 0755
	}
	dir := path.Dir(p)
	for dir != "" && dir != "." && dir != "/" {
		if _, exists := a.dirs[dir]; !exists {
			a.dirs[dir] = &memoryDir{mode: os.ModeDir | mode, modTime: time.Now()}
		}
		dir = path.Dir(dir)
	}
}

// followLocked resolves links (including links on parent segments).
// Must be called with lock held.
func (a *Adapter) followLocked(p string) string {
	for hops := 0; hops < 32; hops++ {
		changed := false
		segs := strings.Split(p, "/")
		for i := range segs {
			prefix := strings.Join(segs[:i+1], "/")
			link, isLink := a.links[prefix]
			if !isLink {
				continue
			}
			target := link.target
			if !path.IsAbs(target) {
				target = path.Join(path.Dir(prefix), target)
			}
			rest := strings.Join(segs[i+1:], "/")
			p = normalizePath(path.Join(target, rest))
			changed = true
			break
		}
		if !changed {
			return p
		}
	}
	return p
}

// normalizePath normalizes a file path to a clean slash path without a
// leading slash; the root is "".
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// isValidPath checks if a path is valid (no directory traversal)
func isValidPath(p string) bool {
	return p != ".." && !strings.HasPrefix(p, "../")
}

// detectContentType determines the content type of a file
func detectContentType(p string, data []byte) string {
	if ext := path.Ext(p); ext != "" {
		if contentType := mime.TypeByExtension(ext); contentType != "" {
			return contentType
		}
	}

	if len(data) > 0 {
		return http.DetectContentType(data)
	}

	return "application/octet-stream"
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements storage.CanCopy for in-memory file copying.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	src = normalizePath(src)
	dst = normalizePath(dst)

	if !isValidPath(src) || !isValidPath(dst) {
		return &storage.PathError{Op: "copy", Path: src, Err: storage.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	srcFile, exists := a.files[a.followLocked(src)]
	if !exists {
		return &storage.PathError{Op: "copy", Path: src, Err: storage.ErrNotExist}
	}

	if a.maxSize > 0 && a.size+int64(len(srcFile.content)) > a.maxSize {
		return &storage.PathError{Op: "copy", Path: dst, Err: storage.ErrNoSpace}
	}

	a.ensureParentDirs(dst, 0)

	content := make([]byte, len(srcFile.content))
	copy(content, srcFile.content)

	metadata := make(map[string]string, len(srcFile.metadata))
	for k, v := range srcFile.metadata {
		metadata[k] = v
	}

	if old, exists := a.files[dst]; exists {
		a.size -= int64(len(old.content))
	}
	a.files[dst] = &memoryFile{
		content:     content,
		contentType: srcFile.contentType,
		metadata:    metadata,
		mode:        srcFile.mode,
		modTime:     time.Now(),
	}
	a.size += int64(len(content))

	go a.notifyWatchers(dst)

	return nil
}

// Move implements storage.CanMove for in-memory file moving.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	src = normalizePath(src)
	dst = normalizePath(dst)

	if !isValidPath(src) || !isValidPath(dst) {
		return &storage.PathError{Op: "move", Path: src, Err: storage.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	srcFile, exists := a.files[src]
	if !exists {
		return &storage.PathError{Op: "move", Path: src, Err: storage.ErrNotExist}
	}

	a.ensureParentDirs(dst, 0)

	if old, exists := a.files[dst]; exists {
		a.size -= int64(len(old.content))
	}
	a.files[dst] = srcFile
	srcFile.modTime = time.Now()
	delete(a.files, src)

	go func() {
		a.notifyWatchers(src)
		a.notifyWatchers(dst)
	}()

	return nil
}

// Symlink implements storage.CanSymlink. Relative targets resolve against
// the directory holding link.
func (a *Adapter) Symlink(ctx context.Context, target, link string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	link = normalizePath(link)
	if !isValidPath(link) || link == "" {
		return &storage.PathError{Op: "symlink", Path: link, Err: storage.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isDir := a.dirs[link]; isDir {
		return &storage.PathError{Op: "symlink", Path: link, Err: storage.ErrIsDir}
	}
	if old, exists := a.files[link]; exists {
		a.size -= int64(len(old.content))
		delete(a.files, link)
	}

	a.ensureParentDirs(link, 0)
	a.links[link] = &memoryLink{target: strings.ReplaceAll(target, "\\", "/"), modTime: time.Now()}

	go a.notifyWatchers(link)

	return nil
}

// Readlink implements storage.CanSymlink.
func (a *Adapter) Readlink(ctx context.Context, path string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	link, exists := a.links[path]
	if !exists {
		return "", &storage.PathError{Op: "readlink", Path: path, Err: storage.ErrNotExist}
	}
	return link.target, nil
}

// Checksum implements storage.CanChecksum for in-memory files.
func (a *Adapter) Checksum(ctx context.Context, path string, algorithm storage.ChecksumAlgorithm) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, exists := a.files[a.followLocked(path)]
	if !exists {
		return "", &storage.PathError{Op: "checksum", Path: path, Err: storage.ErrNotExist}
	}

	checksum, err := storage.CalculateChecksum(bytes.NewReader(file.content), algorithm)
	if err != nil {
		return "", &storage.PathError{Op: "checksum", Path: path, Err: err}
	}

	return checksum, nil
}

// Checksums implements storage.CanChecksum for efficient multi-hash calculation.
func (a *Adapter) Checksums(ctx context.Context, path string, algorithms []storage.ChecksumAlgorithm) (map[storage.ChecksumAlgorithm]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	path = normalizePath(path)

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, exists := a.files[a.followLocked(path)]
	if !exists {
		return nil, &storage.PathError{Op: "checksums", Path: path, Err: storage.ErrNotExist}
	}

	checksums, err := storage.CalculateChecksums(bytes.NewReader(file.content), algorithms)
	if err != nil {
		return nil, &storage.PathError{Op: "checksums", Path: path, Err: err}
	}

	return checksums, nil
}

// ============================================================================
// Watcher Implementation
// ============================================================================

// Watch implements storage.CanWatch for in-memory file change detection.
// Supports glob patterns like "**/*.txt", "*.json", "config/*"
func (a *Adapter) Watch(ctx context.Context, pattern string) (storage.ChangeToken, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	g, err := glob.Compile(normalizePath(pattern), '/')
	if err != nil {
		return nil, &storage.PathError{Op: "watch", Path: pattern, Err: err}
	}

	token := storage.NewCallbackChangeToken()

	a.watchMu.Lock()
	a.watches = append(a.watches, &watchEntry{filter: g, token: token})
	a.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		a.removeWatch(token)
	}()

	return token, nil
}

// notifyWatchers signals all watchers whose filter matches the given path
func (a *Adapter) notifyWatchers(path string) {
	a.watchMu.RLock()
	defer a.watchMu.RUnlock()

	for _, entry := range a.watches {
		if entry.filter.Match(path) {
			entry.token.SignalChange()
		}
	}
}

// removeWatch removes a watch entry by token
func (a *Adapter) removeWatch(token *storage.CallbackChangeToken) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	for i, entry := range a.watches {
		if entry.token == token {
			a.watches[i] = a.watches[len(a.watches)-1]
			a.watches = a.watches[:len(a.watches)-1]
			return
		}
	}
}

// Ensure Adapter implements interfaces
var (
	_ storage.FileSystem  = (*Adapter)(nil)
	_ storage.CanCopy     = (*Adapter)(nil)
	_ storage.CanMove     = (*Adapter)(nil)
	_ storage.CanSymlink  = (*Adapter)(nil)
	_ storage.CanChecksum = (*Adapter)(nil)
	_ storage.CanWatch    = (*Adapter)(nil)
)
