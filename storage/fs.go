package storage

import (
	"context"
	"io"
	"os"
	"time"
)

// FileInfo represents file/directory metadata
type FileInfo struct {
	Name        string
	Path        string
	Size        int64
	Mode        os.FileMode
	ModTime     time.Time
	IsDir       bool
	ContentType string
	// Symlink holds the link target when the entry is a symbolic link.
	Symlink  string
	Metadata map[string]string
}

// IsSymlink reports whether the entry is a symbolic link.
func (f *FileInfo) IsSymlink() bool {
	return f.Symlink != ""
}

// ============================================================================
// Core Interfaces (Interface Segregation)
// ============================================================================

// FileReader provides read-only filesystem access.
// Sources only ever need this half of a backend.
type FileReader interface {
	// Read returns a stream for reading file content.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// ReadAll reads entire file into memory. Use for small files only.
	ReadAll(ctx context.Context, path string) ([]byte, error)

	// FileExists checks if a file exists at path.
	FileExists(ctx context.Context, path string) (bool, error)

	// DirExists checks if a directory exists at path.
	DirExists(ctx context.Context, path string) (bool, error)

	// Stat returns file/directory metadata.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// ListContents lists directory contents.
	// If recursive is true, includes all descendants.
	ListContents(ctx context.Context, path string, recursive bool) ([]FileInfo, error)
}

// FileWriter provides write filesystem operations.
type FileWriter interface {
	// Write writes content from reader to path, creating parent directories.
	Write(ctx context.Context, path string, r io.Reader, opts ...Option) error

	// Delete removes a file.
	Delete(ctx context.Context, path string) error

	// CreateDir creates a directory (and parents if needed).
	CreateDir(ctx context.Context, path string) error

	// DeleteDir removes a directory and all contents.
	DeleteDir(ctx context.Context, path string) error
}

// FileSystem provides full read-write filesystem access.
type FileSystem interface {
	FileReader
	FileWriter
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================
// Drivers expose optional capabilities through these interfaces.
// Use type assertion to check for support:
//
//	if linker, ok := fs.(CanSymlink); ok {
//	    linker.Symlink(ctx, target, link)
//	}

// CanCopy indicates the filesystem supports native copy operations.
type CanCopy interface {
	Copy(ctx context.Context, src, dst string) error
}

// CanMove indicates the filesystem supports native move/rename operations.
type CanMove interface {
	Move(ctx context.Context, src, dst string) error
}

// CanSymlink indicates the filesystem can create and resolve symbolic links.
type CanSymlink interface {
	// Symlink creates link pointing at target. target is stored verbatim,
	// so it may be relative to the directory holding link.
	Symlink(ctx context.Context, target, link string) error

	// Readlink returns the target of the link at path.
	Readlink(ctx context.Context, path string) (string, error)
}

// ChecksumAlgorithm represents a supported checksum algorithm
type ChecksumAlgorithm string

const (
	ChecksumMD5    ChecksumAlgorithm = "md5"
	ChecksumSHA1   ChecksumAlgorithm = "sha1"
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	ChecksumSHA512 ChecksumAlgorithm = "sha512"
	ChecksumCRC32  ChecksumAlgorithm = "crc32"
	// ChecksumXXHash is the xxHash algorithm (64-bit, extremely fast).
	// Sinks use it to detect unchanged output.
	ChecksumXXHash ChecksumAlgorithm = "xxhash"
)

// CanChecksum indicates the filesystem supports integrity verification.
type CanChecksum interface {
	// Checksum calculates the checksum of a file using the specified algorithm.
	// Returns the checksum as a hex-encoded string.
	Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error)

	// Checksums calculates multiple checksums in a single read pass.
	Checksums(ctx context.Context, path string, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error)
}

// ============================================================================
// File Watching Interface (ChangeToken Pattern)
// ============================================================================

// ChangeToken represents a change notification token.
//
// Consumers can either poll HasChanged() or register a callback via
// RegisterChangeCallback(). Tokens are single-use: once changed they stay changed.
type ChangeToken interface {
	HasChanged() bool

	// ActiveChangeCallbacks indicates if the token proactively raises callbacks.
	ActiveChangeCallbacks() bool

	// RegisterChangeCallback registers a callback to be invoked when change occurs.
	// Returns a function to unregister the callback.
	RegisterChangeCallback(callback func()) (unregister func())
}

// CanWatch indicates the filesystem supports file change notifications.
type CanWatch interface {
	// Watch creates a change token for the specified glob pattern
	// ("**/*.txt", "pages/*", "*.json"). The token signals when any matching
	// file is created, modified, or deleted.
	Watch(ctx context.Context, pattern string) (ChangeToken, error)
}
