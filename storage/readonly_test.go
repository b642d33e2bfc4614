package storage_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gobeaver/assemblefs/driver/memory"
	"github.com/gobeaver/assemblefs/storage"
)

func TestReadOnlyFileSystem(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	if err := base.Write(ctx, "a.txt", strings.NewReader("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var refused []string
	ro := storage.NewReadOnly(base, storage.WithWriteAttemptHandler(func(op, path string) {
		refused = append(refused, op+":"+path)
	}))

	data, err := ro.ReadAll(ctx, "a.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "a" {
		t.Errorf("ReadAll = %q", data)
	}
	if ok, _ := ro.FileExists(ctx, "a.txt"); !ok {
		t.Error("FileExists = false")
	}

	writes := []struct {
		name string
		fn   func() error
	}{
		{"write", func() error { return ro.Write(ctx, "b.txt", strings.NewReader("b")) }},
		{"delete", func() error { return ro.Delete(ctx, "a.txt") }},
		{"createdir", func() error { return ro.CreateDir(ctx, "dir") }},
		{"deletedir", func() error { return ro.DeleteDir(ctx, "dir") }},
		{"copy", func() error { return ro.Copy(ctx, "a.txt", "c.txt") }},
		{"move", func() error { return ro.Move(ctx, "a.txt", "d.txt") }},
		{"symlink", func() error { return ro.Symlink(ctx, "a.txt", "link") }},
	}
	for _, tt := range writes {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, storage.ErrReadOnly) || !storage.IsReadOnlyError(err) {
				t.Errorf("error = %v, want ErrReadOnly", err)
			}
		})
	}

	if len(refused) != len(writes) {
		t.Errorf("handler saw %d attempts, want %d", len(refused), len(writes))
	}
	if ok, _ := base.FileExists(ctx, "a.txt"); !ok {
		t.Error("wrapped file was removed")
	}
	if ok, _ := base.FileExists(ctx, "b.txt"); ok {
		t.Error("write reached wrapped filesystem")
	}
	if ro.Unwrap() != storage.FileSystem(base) {
		t.Error("Unwrap returned a different filesystem")
	}
}
