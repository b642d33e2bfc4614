package storage

import (
	"bytes"
	"context"
	"crypto/md5"  //nolint:gosec // MD5 used for checksum verification, not security
	"crypto/sha1" //nolint:gosec // SHA1 used for checksum verification, not security
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/cespare/xxhash/v2"
)

// NewHasher creates a new hash.Hash for the given algorithm.
func NewHasher(algorithm ChecksumAlgorithm) (hash.Hash, error) {
	switch algorithm {
	case ChecksumMD5:
		return md5.New(), nil //nolint:gosec
	case ChecksumSHA1:
		return sha1.New(), nil //nolint:gosec
	case ChecksumSHA256:
		return sha256.New(), nil
	case ChecksumSHA512:
		return sha512.New(), nil
	case ChecksumCRC32:
		return crc32.NewIEEE(), nil
	case ChecksumXXHash:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported checksum algorithm: %s", ErrNotSupported, algorithm)
	}
}

// CalculateChecksum reads from the reader and returns the hex-encoded checksum.
func CalculateChecksum(r io.Reader, algorithm ChecksumAlgorithm) (string, error) {
	h, err := NewHasher(algorithm)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// CalculateChecksums computes several checksums in a single pass over r.
func CalculateChecksums(r io.Reader, algorithms []ChecksumAlgorithm) (map[ChecksumAlgorithm]string, error) {
	if len(algorithms) == 0 {
		return nil, fmt.Errorf("no algorithms specified")
	}

	hashers := make(map[ChecksumAlgorithm]hash.Hash, len(algorithms))
	writers := make([]io.Writer, 0, len(algorithms))

	for _, algo := range algorithms {
		h, err := NewHasher(algo)
		if err != nil {
			return nil, err
		}
		hashers[algo] = h
		writers = append(writers, h)
	}

	if _, err := io.Copy(io.MultiWriter(writers...), r); err != nil {
		return nil, fmt.Errorf("failed to calculate checksums: %w", err)
	}

	results := make(map[ChecksumAlgorithm]string, len(algorithms))
	for algo, h := range hashers {
		results[algo] = hex.EncodeToString(h.Sum(nil))
	}

	return results, nil
}

// ContentDigest returns the xxhash digest of data, hex encoded.
func ContentDigest(data []byte) string {
	var buf [8]byte
	sum := xxhash.Sum64(data)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(sum)
		sum >>= 8
	}
	return hex.EncodeToString(buf[:])
}

// SameContent reports whether the file at path already holds data.
// A missing file is never the same. Backends without CanChecksum are
// compared byte for byte.
func SameContent(ctx context.Context, fs FileReader, path string, data []byte) (bool, error) {
	if cs, ok := fs.(CanChecksum); ok {
		existing, err := cs.Checksum(ctx, path, ChecksumXXHash)
		if err != nil {
			if errors.Is(err, ErrNotExist) {
				return false, nil
			}
			return false, err
		}
		return existing == ContentDigest(data), nil
	}

	existing, err := fs.ReadAll(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(existing, data), nil
}
