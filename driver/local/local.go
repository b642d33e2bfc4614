package local

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobeaver/assemblefs/storage"
)

const (
	defaultDirMode  os.FileMode = 0755
	defaultFileMode os.FileMode = 0644
)

// Adapter provides a local filesystem implementation of storage.FileSystem
type Adapter struct {
	root string
}

// New creates a new local filesystem adapter rooted at root.
// The directory is created when missing.
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(absRoot, defaultDirMode); err != nil {
		return nil, err
	}

	return &Adapter{
		root: absRoot,
	}, nil
}

// Root returns the absolute directory the adapter is rooted at.
func (a *Adapter) Root() string {
	return a.root
}

// resolve checks the context and maps path onto the OS filesystem,
// refusing anything that escapes the root.
func (a *Adapter) resolve(ctx context.Context, op, path string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	fullPath := filepath.Join(a.root, filepath.Clean(filepath.FromSlash(path)))
	if !isPathUnderRoot(a.root, fullPath) {
		return "", &storage.PathError{Op: op, Path: path, Err: storage.ErrNotAllowed}
	}
	return fullPath, nil
}

func pathError(op, path string, err error) error {
	if os.IsNotExist(err) {
		return &storage.PathError{Op: op, Path: path, Err: storage.ErrNotExist}
	}
	if os.IsExist(err) {
		return &storage.PathError{Op: op, Path: path, Err: storage.ErrExist}
	}
	if os.IsPermission(err) {
		return &storage.PathError{Op: op, Path: path, Err: storage.ErrPermission}
	}
	return &storage.PathError{Op: op, Path: path, Err: err}
}

// Write implements storage.FileWriter
func (a *Adapter) Write(ctx context.Context, path string, content io.Reader, options ...storage.Option) error {
	fullPath, err := a.resolve(ctx, "write", path)
	if err != nil {
		return err
	}

	opts := storage.ApplyOptions(options...)

	dirMode := defaultDirMode
	if opts.DirMode != 0 {
		dirMode = opts.DirMode
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), dirMode); err != nil {
		return pathError("write", path, err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if opts.NoOverwrite {
		flags |= os.O_EXCL
	}
	mode := defaultFileMode
	if opts.Mode != 0 {
		mode = opts.Mode
	}

	f, err := os.OpenFile(fullPath, flags, mode)
	if err != nil {
		return pathError("write", path, err)
	}

	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return pathError("write", path, err)
	}
	if err := f.Close(); err != nil {
		return pathError("write", path, err)
	}

	// OpenFile only applies mode to new files.
	if opts.Mode != 0 {
		if err := os.Chmod(fullPath, opts.Mode); err != nil {
			return pathError("write", path, err)
		}
	}
	if !opts.ModTime.IsZero() {
		if err := os.Chtimes(fullPath, opts.ModTime, opts.ModTime); err != nil {
			return pathError("write", path, err)
		}
	}

	return nil
}

// Read implements storage.FileReader
func (a *Adapter) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := a.resolve(ctx, "read", path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, pathError("read", path, err)
	}

	return f, nil
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
	fullPath, err := a.resolve(ctx, "delete", path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		return pathError("delete", path, err)
	}
	return nil
}

// FileExists implements storage.FileReader
func (a *Adapter) FileExists(ctx context.Context, path string) (bool, error) {
	fullPath, err := a.resolve(ctx, "fileexists", path)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, pathError("fileexists", path, err)
	}

	return !info.IsDir(), nil
}

// DirExists implements storage.FileReader
func (a *Adapter) DirExists(ctx context.Context, path string) (bool, error) {
	fullPath, err := a.resolve(ctx, "direxists", path)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, pathError("direxists", path, err)
	}

	return info.IsDir(), nil
}

// Stat implements storage.FileReader. Symbolic links are followed; the
// link target is reported in FileInfo.Symlink.
func (a *Adapter) Stat(ctx context.Context, path string) (*storage.FileInfo, error) {
	fullPath, err := a.resolve(ctx, "stat", path)
	if err != nil {
		return nil, err
	}

	info, err := a.describe(fullPath, path)
	if err != nil {
		return nil, pathError("stat", path, err)
	}
	return info, nil
}

func (a *Adapter) describe(fullPath, path string) (*storage.FileInfo, error) {
	linfo, err := os.Lstat(fullPath)
	if err != nil {
		return nil, err
	}

	info := linfo
	var target string
	if linfo.Mode()&os.ModeSymlink != 0 {
		if target, err = os.Readlink(fullPath); err != nil {
			return nil, err
		}
		// Dangling links are described by the link itself.
		if followed, err := os.Stat(fullPath); err == nil {
			info = followed
		}
	}

	contentType := ""
	if !info.IsDir() && info.Mode().IsRegular() {
		contentType = getContentType(fullPath)
	}

	return &storage.FileInfo{
		Name:        filepath.Base(fullPath),
		Path:        filepath.ToSlash(path),
		Size:        info.Size(),
		Mode:        info.Mode(),
		ModTime:     info.ModTime(),
		IsDir:       info.IsDir(),
		ContentType: contentType,
		Symlink:     target,
	}, nil
}

// ListContents implements storage.FileReader
func (a *Adapter) ListContents(ctx context.Context, path string, recursive bool) ([]storage.FileInfo, error) {
	fullPath, err := a.resolve(ctx, "listcontents", path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, pathError("listcontents", path, err)
	}
	if !info.IsDir() {
		return nil, &storage.PathError{Op: "listcontents", Path: path, Err: storage.ErrNotDir}
	}

	var files []storage.FileInfo

	if recursive {
		err = filepath.WalkDir(fullPath, func(walkPath string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if walkPath == fullPath {
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			relPath, err := filepath.Rel(a.root, walkPath)
			if err != nil {
				return err
			}
			entry, err := a.describe(walkPath, relPath)
			if err != nil {
				return err
			}
			files = append(files, *entry)
			return nil
		})
		if err != nil {
			return nil, pathError("listcontents", path, err)
		}
		return files, nil
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, pathError("listcontents", path, err)
	}

	files = make([]storage.FileInfo, 0, len(entries))
	for _, entry := range entries {
		entryPath := filepath.Join(filepath.FromSlash(path), entry.Name())
		described, err := a.describe(filepath.Join(a.root, entryPath), entryPath)
		if err != nil {
			continue
		}
		files = append(files, *described)
	}

	return files, nil
}

// CreateDir implements storage.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, path string) error {
	fullPath, err := a.resolve(ctx, "createdir", path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(fullPath, defaultDirMode); err != nil {
		return pathError("createdir", path, err)
	}
	return nil
}

// DeleteDir implements storage.FileWriter
func (a *Adapter) DeleteDir(ctx context.Context, path string) error {
	fullPath, err := a.resolve(ctx, "deletedir", path)
	if err != nil {
		return err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return pathError("deletedir", path, err)
	}
	if !info.IsDir() {
		return &storage.PathError{Op: "deletedir", Path: path, Err: storage.ErrNotDir}
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return pathError("deletedir", path, err)
	}
	return nil
}

// isPathUnderRoot checks if a path is under a given root directory
func isPathUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	return !filepath.IsAbs(rel) && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// getContentType tries to determine the content type of a file
func getContentType(path string) string {
	if ext := filepath.Ext(path); ext != "" {
		if contentType := mime.TypeByExtension(ext); contentType != "" {
			return contentType
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return ""
	}

	return http.DetectContentType(buffer[:n])
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements storage.CanCopy for native file copying.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	srcPath, err := a.resolve(ctx, "copy", src)
	if err != nil {
		return err
	}
	dstPath, err := a.resolve(ctx, "copy", dst)
	if err != nil {
		return err
	}

	srcFile, err := os.Open(srcPath)
	if err != nil {
		return pathError("copy", src, err)
	}
	defer srcFile.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), defaultDirMode); err != nil {
		return pathError("copy", dst, err)
	}

	dstFile, err := os.Create(dstPath)
	if err != nil {
		return pathError("copy", dst, err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return pathError("copy", dst, err)
	}

	if srcInfo, err := os.Stat(srcPath); err == nil {
		_ = os.Chmod(dstPath, srcInfo.Mode())
	}

	return nil
}

// Move implements storage.CanMove for native file moving/renaming.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	srcPath, err := a.resolve(ctx, "move", src)
	if err != nil {
		return err
	}
	dstPath, err := a.resolve(ctx, "move", dst)
	if err != nil {
		return err
	}

	if _, err := os.Stat(srcPath); err != nil {
		return pathError("move", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), defaultDirMode); err != nil {
		return pathError("move", dst, err)
	}

	// Rename fails across devices; fall back to copy+delete.
	if err := os.Rename(srcPath, dstPath); err != nil {
		if err := a.Copy(ctx, src, dst); err != nil {
			return err
		}
		if err := os.Remove(srcPath); err != nil {
			return pathError("move", src, err)
		}
	}

	return nil
}

// Symlink implements storage.CanSymlink. An existing entry at link is replaced.
func (a *Adapter) Symlink(ctx context.Context, target, link string) error {
	linkPath, err := a.resolve(ctx, "symlink", link)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(linkPath), defaultDirMode); err != nil {
		return pathError("symlink", link, err)
	}
	if err := os.Remove(linkPath); err != nil && !os.IsNotExist(err) {
		return pathError("symlink", link, err)
	}
	if err := os.Symlink(filepath.FromSlash(target), linkPath); err != nil {
		return pathError("symlink", link, err)
	}
	return nil
}

// Readlink implements storage.CanSymlink.
func (a *Adapter) Readlink(ctx context.Context, path string) (string, error) {
	fullPath, err := a.resolve(ctx, "readlink", path)
	if err != nil {
		return "", err
	}

	target, err := os.Readlink(fullPath)
	if err != nil {
		return "", pathError("readlink", path, err)
	}
	return target, nil
}

// Checksum implements storage.CanChecksum for local files.
func (a *Adapter) Checksum(ctx context.Context, path string, algorithm storage.ChecksumAlgorithm) (string, error) {
	fullPath, err := a.resolve(ctx, "checksum", path)
	if err != nil {
		return "", err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return "", pathError("checksum", path, err)
	}
	defer file.Close()

	checksum, err := storage.CalculateChecksum(file, algorithm)
	if err != nil {
		return "", &storage.PathError{Op: "checksum", Path: path, Err: err}
	}

	return checksum, nil
}

// Checksums implements storage.CanChecksum for efficient multi-hash calculation.
func (a *Adapter) Checksums(ctx context.Context, path string, algorithms []storage.ChecksumAlgorithm) (map[storage.ChecksumAlgorithm]string, error) {
	fullPath, err := a.resolve(ctx, "checksums", path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, pathError("checksums", path, err)
	}
	defer file.Close()

	checksums, err := storage.CalculateChecksums(file, algorithms)
	if err != nil {
		return nil, &storage.PathError{Op: "checksums", Path: path, Err: err}
	}

	return checksums, nil
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
