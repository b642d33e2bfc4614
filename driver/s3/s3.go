// Package s3 stores files as objects in an S3 bucket. It is meant as an
// output backend: assembled files are published under a key prefix.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gobeaver/assemblefs/storage"
)

// Client is the subset of *s3.Client the adapter needs.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Adapter provides an S3 implementation of storage.FileSystem
type Adapter struct {
	client       Client
	bucket       string
	prefix       string
	pollInterval time.Duration
}

// AdapterOption configures an Adapter
type AdapterOption func(*Adapter)

// WithPrefix stores every object below prefix.
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		a.prefix = prefix
	}
}

// WithPollInterval sets how often Watch lists the bucket. Default 30s.
func WithPollInterval(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		if d > 0 {
			a.pollInterval = d
		}
	}
}

// New creates a new S3 filesystem adapter
func New(client Client, bucket string, options ...AdapterOption) *Adapter {
	a := &Adapter{
		client:       client,
		bucket:       bucket,
		pollInterval: 30 * time.Second,
	}
	for _, option := range options {
		option(a)
	}
	return a
}

func (a *Adapter) key(p string) string {
	p = strings.Trim(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	return a.prefix + p
}

func (a *Adapter) dirKey(p string) string {
	k := a.key(p)
	if k != "" && !strings.HasSuffix(k, "/") {
		k += "/"
	}
	return k
}

// relative strips the adapter prefix from an object key.
func (a *Adapter) relative(key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, a.prefix), "/")
}

// Write uploads content. Seekable readers are streamed, anything else is
// buffered so the request carries a content length.
func (a *Adapter) Write(ctx context.Context, filePath string, content io.Reader, options ...storage.Option) error {
	opts := storage.ApplyOptions(options...)

	var (
		body   io.Reader
		length int64 = -1
	)
	switch r := content.(type) {
	case *bytes.Reader:
		body, length = r, int64(r.Len())
	case *strings.Reader:
		body, length = r, int64(r.Len())
	case io.ReadSeeker:
		if pos, err := r.Seek(0, io.SeekCurrent); err == nil {
			if end, err := r.Seek(0, io.SeekEnd); err == nil {
				length = end - pos
				if _, err := r.Seek(pos, io.SeekStart); err != nil {
					return &storage.PathError{Op: "write", Path: filePath, Err: err}
				}
			}
		}
		body = r
	default:
		data, err := io.ReadAll(content)
		if err != nil {
			return &storage.PathError{Op: "write", Path: filePath, Err: err}
		}
		body, length = bytes.NewReader(data), int64(len(data))
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(filePath)),
		Body:   body,
	}
	if length >= 0 {
		input.ContentLength = aws.Int64(length)
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = make(map[string]string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			input.Metadata[k] = v
		}
	}
	if opts.NoOverwrite {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return mapS3Error("write", filePath, err)
	}
	return nil
}

// Read implements storage.FileReader
func (a *Adapter) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(filePath)),
	})
	if err != nil {
		return nil, mapS3Error("read", filePath, err)
	}
	return resp.Body, nil
}

// ReadAll implements storage.FileReader
func (a *Adapter) ReadAll(ctx context.Context, filePath string) ([]byte, error) {
	rc, err := a.Read(ctx, filePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete implements storage.FileSystem
func (a *Adapter) Delete(ctx context.Context, filePath string) error {
	if ok, err := a.FileExists(ctx, filePath); err != nil {
		return err
	} else if !ok {
		return &storage.PathError{Op: "delete", Path: filePath, Err: storage.ErrNotExist}
	}

	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(filePath)),
	})
	if err != nil {
		return mapS3Error("delete", filePath, err)
	}
	return nil
}

// FileExists implements storage.FileReader
func (a *Adapter) FileExists(ctx context.Context, filePath string) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(filePath)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, mapS3Error("fileexists", filePath, err)
	}
	return true, nil
}

// DirExists reports whether any object lives below dirPath. The bucket root
// always exists.
func (a *Adapter) DirExists(ctx context.Context, dirPath string) (bool, error) {
	prefix := a.dirKey(dirPath)
	if prefix == a.prefix {
		return true, nil
	}

	resp, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, mapS3Error("direxists", dirPath, err)
	}
	return len(resp.Contents) > 0 || len(resp.CommonPrefixes) > 0, nil
}

// Stat implements storage.FileReader. Prefixes without an object of their
// own are reported as directories.
func (a *Adapter) Stat(ctx context.Context, filePath string) (*storage.FileInfo, error) {
	resp, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(filePath)),
	})
	if err == nil {
		return &storage.FileInfo{
			Name:        path.Base(a.relative(a.key(filePath))),
			Path:        a.relative(a.key(filePath)),
			Size:        aws.ToInt64(resp.ContentLength),
			ModTime:     aws.ToTime(resp.LastModified),
			ContentType: aws.ToString(resp.ContentType),
			Metadata:    resp.Metadata,
		}, nil
	}
	if !isNotFound(err) {
		return nil, mapS3Error("stat", filePath, err)
	}

	ok, err := a.DirExists(ctx, filePath)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &storage.PathError{Op: "stat", Path: filePath, Err: storage.ErrNotExist}
	}
	rel := a.relative(a.key(filePath))
	return &storage.FileInfo{Name: path.Base(rel), Path: rel, IsDir: true}, nil
}

// ListContents implements storage.FileReader. Recursive listings synthesize
// the intermediate directories S3 does not store.
func (a *Adapter) ListContents(ctx context.Context, dir string, recursive bool) ([]storage.FileInfo, error) {
	listPrefix := a.dirKey(dir)
	if ok, err := a.DirExists(ctx, dir); err != nil {
		return nil, err
	} else if !ok {
		return nil, &storage.PathError{Op: "listcontents", Path: dir, Err: storage.ErrNotExist}
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(listPrefix),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	var files []storage.FileInfo
	seen := make(map[string]bool)
	addDir := func(rel string) {
		if rel == "" || seen[rel] {
			return
		}
		seen[rel] = true
		files = append(files, storage.FileInfo{Name: path.Base(rel), Path: rel, IsDir: true})
	}

	paginator := s3.NewListObjectsV2Paginator(a.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("listcontents", dir, err)
		}

		for _, p := range page.CommonPrefixes {
			addDir(a.relative(aws.ToString(p.Prefix)))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == listPrefix {
				continue
			}
			rel := a.relative(key)
			if strings.HasSuffix(key, "/") {
				addDir(rel)
				continue
			}
			if recursive {
				base := strings.TrimSuffix(a.relative(listPrefix), "/")
				for d := path.Dir(rel); d != "." && d != base && d != "/"; d = path.Dir(d) {
					addDir(d)
				}
			}
			if seen[rel] {
				continue
			}
			seen[rel] = true
			files = append(files, storage.FileInfo{
				Name:    path.Base(rel),
				Path:    rel,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	return files, nil
}

// CreateDir stores an empty marker object with a trailing slash.
func (a *Adapter) CreateDir(ctx context.Context, dirPath string) error {
	key := a.dirKey(dirPath)
	if key == a.prefix {
		return nil
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(nil),
		ContentType: aws.String("application/x-directory"),
	})
	if err != nil {
		return mapS3Error("createdir", dirPath, err)
	}
	return nil
}

// DeleteDir removes every object below dirPath.
func (a *Adapter) DeleteDir(ctx context.Context, dirPath string) error {
	prefix := a.dirKey(dirPath)
	if prefix == a.prefix {
		return &storage.PathError{Op: "deletedir", Path: dirPath, Err: storage.ErrNotAllowed}
	}

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	deleted := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return mapS3Error("deletedir", dirPath, err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		objects := make([]types.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			objects[i] = types.ObjectIdentifier{Key: obj.Key}
		}
		_, err = a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return mapS3Error("deletedir", dirPath, err)
		}
		deleted += len(objects)
	}
	if deleted == 0 {
		return &storage.PathError{Op: "deletedir", Path: dirPath, Err: storage.ErrNotExist}
	}
	return nil
}

// Copy uses CopyObject so the data never leaves the bucket.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	_, err := a.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		CopySource: aws.String(fmt.Sprintf("%s/%s", a.bucket, a.key(src))),
		Key:        aws.String(a.key(dst)),
	})
	if err != nil {
		return mapS3Error("copy", src, err)
	}
	return nil
}

// Move is a copy followed by a delete; S3 has no rename.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if err := a.Copy(ctx, src, dst); err != nil {
		return err
	}
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(src)),
	})
	if err != nil {
		return mapS3Error("move", src, err)
	}
	return nil
}

// Checksum implements storage.CanChecksum by reading and hashing the object.
func (a *Adapter) Checksum(ctx context.Context, filePath string, algorithm storage.ChecksumAlgorithm) (string, error) {
	rc, err := a.Read(ctx, filePath)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	sum, err := storage.CalculateChecksum(rc, algorithm)
	if err != nil {
		return "", &storage.PathError{Op: "checksum", Path: filePath, Err: err}
	}
	return sum, nil
}

// Checksums implements storage.CanChecksum in a single read.
func (a *Adapter) Checksums(ctx context.Context, filePath string, algorithms []storage.ChecksumAlgorithm) (map[storage.ChecksumAlgorithm]string, error) {
	rc, err := a.Read(ctx, filePath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	sums, err := storage.CalculateChecksums(rc, algorithms)
	if err != nil {
		return nil, &storage.PathError{Op: "checksums", Path: filePath, Err: err}
	}
	return sums, nil
}

// Watch polls the bucket and signals once the set of objects matching
// pattern changes. Polling stops when ctx is done or the token fires.
func (a *Adapter) Watch(ctx context.Context, pattern string) (storage.ChangeToken, error) {
	sel, err := storage.Glob(pattern)
	if err != nil {
		return nil, &storage.PathError{Op: "watch", Path: pattern, Err: err}
	}

	initial, err := a.snapshot(ctx, sel)
	if err != nil {
		return nil, err
	}

	token := storage.NewCallbackChangeToken()
	var once sync.Once
	go func() {
		ticker := time.NewTicker(a.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current, err := a.snapshot(ctx, sel)
				if err != nil {
					continue
				}
				if !sameState(initial, current) {
					once.Do(token.SignalChange)
					return
				}
			}
		}
	}()
	return token, nil
}

type objectState struct {
	modTime time.Time
	size    int64
}

func (a *Adapter) snapshot(ctx context.Context, sel storage.FileSelector) (map[string]objectState, error) {
	state := make(map[string]objectState)
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("watch", a.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			info := &storage.FileInfo{Path: a.relative(key)}
			if sel.Match(info) {
				state[info.Path] = objectState{modTime: aws.ToTime(obj.LastModified), size: aws.ToInt64(obj.Size)}
			}
		}
	}
	return state, nil
}

func sameState(a, b map[string]objectState) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || !v.modTime.Equal(w.modTime) || v.size != w.size {
			return false
		}
	}
	return true
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &notFound)
}

// mapS3Error maps S3 errors to storage errors
func mapS3Error(op, filePath string, err error) error {
	if isNotFound(err) {
		return &storage.PathError{Op: op, Path: filePath, Err: storage.ErrNotExist}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
		return &storage.PathError{Op: op, Path: filePath, Err: storage.ErrExist}
	}
	return &storage.PathError{Op: op, Path: filePath, Err: err}
}

// Ensure Adapter implements interfaces
var (
	_ storage.FileSystem  = (*Adapter)(nil)
	_ storage.CanCopy     = (*Adapter)(nil)
	_ storage.CanMove     = (*Adapter)(nil)
	_ storage.CanChecksum = (*Adapter)(nil)
	_ storage.CanWatch    = (*Adapter)(nil)
	_ Client              = (*s3.Client)(nil)
)
