package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrMountNotFound is returned when no mount point matches the path
	ErrMountNotFound = errors.New("no mount point found for path")
	// ErrMountExists is returned when trying to mount at an existing path
	ErrMountExists = errors.New("mount point already exists")
	// ErrNilDriver is returned when trying to mount a nil driver
	ErrNilDriver = errors.New("driver cannot be nil")
	// ErrCrossMount is returned when an operation cannot cross mount boundaries
	ErrCrossMount = errors.New("operation cannot cross mount boundaries")
)

// Mounts routes paths to file systems mounted below a common namespace.
// Mount points are backend paths; "" mounts a file system at the root.
// Paths below a nested mount are served by the nested file system only.
//
// Example:
//
//	mounts := storage.NewMounts()
//	mounts.Mount("", localDriver)
//	mounts.Mount("public", memoryDriver) // output stays in memory
type Mounts struct {
	mu     sync.RWMutex
	mounts map[string]FileSystem
	// sorted mount paths for longest-prefix matching
	sortedPaths []string
}

// NewMounts creates an empty mount table.
func NewMounts() *Mounts {
	return &Mounts{mounts: make(map[string]FileSystem)}
}

// Mount attaches fs at mountPath.
func (m *Mounts) Mount(mountPath string, fs FileSystem) error {
	if fs == nil {
		return ErrNilDriver
	}
	mountPath = normalizeMountPath(mountPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mounts[mountPath]; exists {
		return fmt.Errorf("%w: %q", ErrMountExists, mountPath)
	}
	m.mounts[mountPath] = fs
	m.updateSortedPaths()
	return nil
}

// Unmount removes the file system at mountPath.
func (m *Mounts) Unmount(mountPath string) error {
	mountPath = normalizeMountPath(mountPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.mounts[mountPath]; !exists {
		return fmt.Errorf("%w: %q", ErrMountNotFound, mountPath)
	}
	delete(m.mounts, mountPath)
	m.updateSortedPaths()
	return nil
}

// MountPaths returns all mount paths, longest first.
func (m *Mounts) MountPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.sortedPaths...)
}

// resolve finds the mount serving p and the path relative to it.
func (m *Mounts) resolve(p string) (FileSystem, string, string, error) {
	p = normalizeMountPath(p)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mountPath := range m.sortedPaths {
		if rel, ok := underMount(p, mountPath); ok {
			return m.mounts[mountPath], mountPath, rel, nil
		}
	}
	return nil, "", "", &PathError{Op: "resolve", Path: p, Err: ErrMountNotFound}
}

// underMount reports whether p lies at or below mountPath and returns the
// remainder.
func underMount(p, mountPath string) (string, bool) {
	switch {
	case mountPath == "":
		return p, true
	case p == mountPath:
		return "", true
	case strings.HasPrefix(p, mountPath+"/"):
		return strings.TrimPrefix(p, mountPath+"/"), true
	}
	return "", false
}

// updateSortedPaths must be called with the lock held.
func (m *Mounts) updateSortedPaths() {
	paths := make([]string, 0, len(m.mounts))
	for p := range m.mounts {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) > len(paths[j])
		}
		return paths[i] < paths[j]
	})
	m.sortedPaths = paths
}

// normalizeMountPath strips leading and trailing slashes and cleans p.
func normalizeMountPath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// ============================================================================
// FileSystem Interface Implementation
// ============================================================================

func (m *Mounts) Write(ctx context.Context, filePath string, content io.Reader, options ...Option) error {
	fs, _, rel, err := m.resolve(filePath)
	if err != nil {
		return err
	}
	return fs.Write(ctx, rel, content, options...)
}

func (m *Mounts) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	fs, _, rel, err := m.resolve(filePath)
	if err != nil {
		return nil, err
	}
	return fs.Read(ctx, rel)
}

func (m *Mounts) ReadAll(ctx context.Context, filePath string) ([]byte, error) {
	fs, _, rel, err := m.resolve(filePath)
	if err != nil {
		return nil, err
	}
	return fs.ReadAll(ctx, rel)
}

func (m *Mounts) Delete(ctx context.Context, filePath string) error {
	fs, _, rel, err := m.resolve(filePath)
	if err != nil {
		return err
	}
	return fs.Delete(ctx, rel)
}

func (m *Mounts) FileExists(ctx context.Context, filePath string) (bool, error) {
	fs, _, rel, err := m.resolve(filePath)
	if err != nil {
		return false, err
	}
	return fs.FileExists(ctx, rel)
}

func (m *Mounts) DirExists(ctx context.Context, dirPath string) (bool, error) {
	fs, _, rel, err := m.resolve(dirPath)
	if err != nil {
		return false, err
	}
	return fs.DirExists(ctx, rel)
}

// Stat returns the entry with its path in the mount namespace.
func (m *Mounts) Stat(ctx context.Context, filePath string) (*FileInfo, error) {
	fs, mountPath, rel, err := m.resolve(filePath)
	if err != nil {
		return nil, err
	}
	info, err := fs.Stat(ctx, rel)
	if err != nil {
		return nil, err
	}
	info.Path = path.Join(mountPath, info.Path)
	if rel == "" && mountPath != "" {
		info.Name = path.Base(mountPath)
		info.Path = mountPath
	}
	return info, nil
}

// ListContents lists dir in the mount namespace. Nested mount points show up
// as directories, and recursive listings descend into them.
func (m *Mounts) ListContents(ctx context.Context, dir string, recursive bool) ([]FileInfo, error) {
	dir = normalizeMountPath(dir)
	fs, mountPath, rel, err := m.resolve(dir)
	if err != nil {
		return nil, err
	}

	files, err := fs.ListContents(ctx, rel, recursive)
	if err != nil {
		return nil, err
	}

	nested := m.nestedMounts(mountPath, dir)
	seen := make(map[string]bool, len(files))
	result := make([]FileInfo, 0, len(files))
	for _, f := range files {
		f.Path = path.Join(mountPath, f.Path)
		if shadowed(f.Path, nested) {
			continue
		}
		seen[f.Path] = true
		result = append(result, f)
	}

	for _, np := range nested {
		child, _ := underMount(np, dir)
		first := strings.SplitN(child, "/", 2)[0]
		entry := path.Join(dir, first)
		if !seen[entry] {
			seen[entry] = true
			result = append(result, FileInfo{Name: first, Path: entry, IsDir: true})
		}
		if !recursive {
			continue
		}
		for _, d := range intermediateDirs(entry, np) {
			if !seen[d] {
				seen[d] = true
				result = append(result, FileInfo{Name: path.Base(d), Path: d, IsDir: true})
			}
		}
		sub, err := m.ListContents(ctx, np, true)
		if err != nil {
			return nil, err
		}
		for _, f := range sub {
			if !seen[f.Path] {
				seen[f.Path] = true
				result = append(result, f)
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

// nestedMounts returns the mount points below dir served by other mounts
// than mountPath, outermost first.
func (m *Mounts) nestedMounts(mountPath, dir string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var nested []string
	for _, p := range m.sortedPaths {
		if p == mountPath || p == dir {
			continue
		}
		if _, ok := underMount(p, dir); ok {
			nested = append(nested, p)
		}
	}
	sort.Strings(nested)

	// keep only the outermost nested mounts; the recursion covers the rest
	var outer []string
	for _, p := range nested {
		if len(outer) > 0 {
			if _, ok := underMount(p, outer[len(outer)-1]); ok {
				continue
			}
		}
		outer = append(outer, p)
	}
	return outer
}

// shadowed reports whether p belongs to one of the nested mounts.
func shadowed(p string, nested []string) bool {
	for _, np := range nested {
		if _, ok := underMount(p, np); ok {
			return true
		}
	}
	return false
}

// intermediateDirs lists the directories strictly between from and to,
// followed by to itself.
func intermediateDirs(from, to string) []string {
	var dirs []string
	rest, _ := underMount(to, from)
	cur := from
	for _, seg := range strings.Split(rest, "/") {
		if seg == "" {
			continue
		}
		cur = path.Join(cur, seg)
		dirs = append(dirs, cur)
	}
	return dirs
}

func (m *Mounts) CreateDir(ctx context.Context, dirPath string) error {
	fs, _, rel, err := m.resolve(dirPath)
	if err != nil {
		return err
	}
	return fs.CreateDir(ctx, rel)
}

func (m *Mounts) DeleteDir(ctx context.Context, dirPath string) error {
	fs, mountPath, rel, err := m.resolve(dirPath)
	if err != nil {
		return err
	}
	if rel == "" && mountPath != "" {
		return &PathError{Op: "deletedir", Path: dirPath, Err: ErrNotAllowed}
	}
	return fs.DeleteDir(ctx, rel)
}

// ============================================================================
// Cross-Mount Operations
// ============================================================================

// Copy copies a file, reading and writing when the paths live on different
// mounts.
func (m *Mounts) Copy(ctx context.Context, srcPath, dstPath string) error {
	srcFS, _, srcRel, err := m.resolve(srcPath)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	dstFS, _, dstRel, err := m.resolve(dstPath)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}

	if srcFS == dstFS {
		if copier, ok := srcFS.(CanCopy); ok {
			return copier.Copy(ctx, srcRel, dstRel)
		}
	}

	reader, err := srcFS.Read(ctx, srcRel)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	defer reader.Close()

	srcInfo, err := srcFS.Stat(ctx, srcRel)
	if err != nil {
		return fmt.Errorf("get source info: %w", err)
	}

	opts := []Option{WithMode(srcInfo.Mode.Perm())}
	if srcInfo.ContentType != "" {
		opts = append(opts, WithContentType(srcInfo.ContentType))
	}
	if len(srcInfo.Metadata) > 0 {
		opts = append(opts, WithMetadata(srcInfo.Metadata))
	}
	if err := dstFS.Write(ctx, dstRel, reader, opts...); err != nil {
		return fmt.Errorf("write destination: %w", err)
	}
	return nil
}

// Move moves a file, copying and deleting across mounts.
func (m *Mounts) Move(ctx context.Context, srcPath, dstPath string) error {
	srcFS, _, srcRel, err := m.resolve(srcPath)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}
	dstFS, _, dstRel, err := m.resolve(dstPath)
	if err != nil {
		return fmt.Errorf("resolve destination: %w", err)
	}

	if srcFS == dstFS {
		if mover, ok := srcFS.(CanMove); ok {
			return mover.Move(ctx, srcRel, dstRel)
		}
	}

	if err := m.Copy(ctx, srcPath, dstPath); err != nil {
		return err
	}
	if err := srcFS.Delete(ctx, srcRel); err != nil {
		return fmt.Errorf("delete source after move: %w", err)
	}
	return nil
}

// ============================================================================
// Optional Interface Implementations
// ============================================================================

// Symlink creates link on the mount serving it. Relative targets must stay
// on that mount.
func (m *Mounts) Symlink(ctx context.Context, target, link string) error {
	fs, _, rel, err := m.resolve(link)
	if err != nil {
		return err
	}
	linker, ok := fs.(CanSymlink)
	if !ok {
		return &PathError{Op: "symlink", Path: link, Err: ErrNotSupported}
	}
	return linker.Symlink(ctx, target, rel)
}

func (m *Mounts) Readlink(ctx context.Context, link string) (string, error) {
	fs, _, rel, err := m.resolve(link)
	if err != nil {
		return "", err
	}
	linker, ok := fs.(CanSymlink)
	if !ok {
		return "", &PathError{Op: "readlink", Path: link, Err: ErrNotSupported}
	}
	return linker.Readlink(ctx, rel)
}

func (m *Mounts) Checksum(ctx context.Context, filePath string, algorithm ChecksumAlgorithm) (string, error) {
	fs, _, rel, err := m.resolve(filePath)
	if err != nil {
		return "", err
	}
	if checksummer, ok := fs.(CanChecksum); ok {
		return checksummer.Checksum(ctx, rel, algorithm)
	}
	return "", &PathError{Op: "checksum", Path: filePath, Err: ErrNotSupported}
}

func (m *Mounts) Checksums(ctx context.Context, filePath string, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	fs, _, rel, err := m.resolve(filePath)
	if err != nil {
		return nil, err
	}
	if checksummer, ok := fs.(CanChecksum); ok {
		return checksummer.Checksums(ctx, rel, algorithms)
	}
	return nil, &PathError{Op: "checksums", Path: filePath, Err: ErrNotSupported}
}

// Watch delegates to the mount serving the literal prefix of pattern.
// Patterns whose prefix covers nested mounts watch those too.
func (m *Mounts) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	pattern = normalizeMountPath(pattern)

	var literal []string
	for _, seg := range strings.Split(pattern, "/") {
		if HasMagic(seg) {
			break
		}
		literal = append(literal, seg)
	}
	prefix := strings.Join(literal, "/")

	fs, mountPath, _, err := m.resolve(prefix)
	if err != nil {
		return nil, err
	}

	var tokens []ChangeToken
	watch := func(fs FileSystem, rel string) error {
		watcher, ok := fs.(CanWatch)
		if !ok {
			return nil
		}
		token, err := watcher.Watch(ctx, rel)
		if err != nil {
			return err
		}
		tokens = append(tokens, token)
		return nil
	}

	rel, _ := underMount(pattern, mountPath)
	if err := watch(fs, rel); err != nil {
		return nil, err
	}
	// a "**" segment reaches into nested mounts with the rest of the pattern
	if i := strings.Index(pattern, "**"); i >= 0 && (i == 0 || pattern[i-1] == '/') {
		for _, np := range m.nestedMounts(mountPath, prefix) {
			nfs, _, _, err := m.resolve(np)
			if err != nil {
				return nil, err
			}
			if err := watch(nfs, pattern[i:]); err != nil {
				return nil, err
			}
		}
	}

	switch len(tokens) {
	case 0:
		return nil, &PathError{Op: "watch", Path: pattern, Err: ErrNotSupported}
	case 1:
		return tokens[0], nil
	}
	return NewCompositeChangeToken(tokens...), nil
}

var (
	_ FileSystem  = (*Mounts)(nil)
	_ CanCopy     = (*Mounts)(nil)
	_ CanMove     = (*Mounts)(nil)
	_ CanSymlink  = (*Mounts)(nil)
	_ CanChecksum = (*Mounts)(nil)
	_ CanWatch    = (*Mounts)(nil)
)
