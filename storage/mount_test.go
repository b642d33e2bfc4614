package storage_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gobeaver/assemblefs/driver/memory"
	"github.com/gobeaver/assemblefs/storage"
)

func newMounts(t *testing.T) (*storage.Mounts, *memory.Adapter, *memory.Adapter) {
	t.Helper()
	ctx := context.Background()

	base := memory.New()
	for _, p := range []string{"a.txt", "src/b.txt", "public/stale.txt"} {
		if err := base.Write(ctx, p, strings.NewReader(p)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	out := memory.New()
	if err := out.Write(ctx, "index.html", strings.NewReader("<html>")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := storage.NewMounts()
	if err := m.Mount("", base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Mount("/public/", out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m, base, out
}

func listPaths(t *testing.T, m *storage.Mounts, dir string, recursive bool) []string {
	t.Helper()
	files, err := m.ListContents(context.Background(), dir, recursive)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths
}

func TestMountsRouting(t *testing.T) {
	ctx := context.Background()
	m, base, out := newMounts(t)

	data, err := m.ReadAll(ctx, "public/index.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "<html>" {
		t.Errorf("ReadAll = %q", data)
	}

	if err := m.Write(ctx, "public/new.txt", strings.NewReader("new")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := out.FileExists(ctx, "new.txt"); !ok {
		t.Error("write did not reach the nested mount")
	}
	if ok, _ := base.FileExists(ctx, "public/new.txt"); ok {
		t.Error("write leaked into the root mount")
	}

	if ok, _ := m.FileExists(ctx, "public/stale.txt"); ok {
		t.Error("root mount entry visible below nested mount")
	}

	info, err := m.Stat(ctx, "public")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.IsDir || info.Path != "public" {
		t.Errorf("Stat(public) = %+v", info)
	}

	info, err = m.Stat(ctx, "public/index.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Path != "public/index.html" {
		t.Errorf("Stat path = %q", info.Path)
	}
}

func TestMountsListContents(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newMounts(t)
	if err := m.Write(ctx, "public/css/site.css", strings.NewReader("css")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := listPaths(t, m, "", false), []string{"a.txt", "public", "src"}; !reflect.DeepEqual(got, want) {
		t.Errorf("flat listing = %v, want %v", got, want)
	}

	want := []string{"a.txt", "public", "public/css", "public/css/site.css", "public/index.html", "src", "src/b.txt"}
	if got := listPaths(t, m, "", true); !reflect.DeepEqual(got, want) {
		t.Errorf("recursive listing = %v, want %v", got, want)
	}

	if got, want := listPaths(t, m, "public", false), []string{"public/css", "public/index.html"}; !reflect.DeepEqual(got, want) {
		t.Errorf("nested listing = %v, want %v", got, want)
	}
}

func TestMountsCopyMove(t *testing.T) {
	ctx := context.Background()
	m, base, out := newMounts(t)

	if err := m.Copy(ctx, "src/b.txt", "public/b.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := out.FileExists(ctx, "b.txt"); !ok {
		t.Error("cross-mount copy missing")
	}

	if err := m.Move(ctx, "public/b.txt", "moved.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := out.FileExists(ctx, "b.txt"); ok {
		t.Error("moved source still present")
	}
	data, err := base.ReadAll(ctx, "moved.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "src/b.txt" {
		t.Errorf("moved content = %q", data)
	}

	if err := m.Copy(ctx, "a.txt", "a-copy.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := base.FileExists(ctx, "a-copy.txt"); !ok {
		t.Error("same-mount copy missing")
	}
}

func TestMountsErrors(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newMounts(t)

	if err := m.Mount("public", memory.New()); !errors.Is(err, storage.ErrMountExists) {
		t.Errorf("duplicate mount error = %v", err)
	}
	if err := m.Mount("other", nil); !errors.Is(err, storage.ErrNilDriver) {
		t.Errorf("nil driver error = %v", err)
	}
	if err := m.Unmount("missing"); !errors.Is(err, storage.ErrMountNotFound) {
		t.Errorf("unmount error = %v", err)
	}
	if err := m.DeleteDir(ctx, "public"); !errors.Is(err, storage.ErrNotAllowed) {
		t.Errorf("delete mount point error = %v", err)
	}

	if got := m.MountPaths(); !reflect.DeepEqual(got, []string{"public", ""}) {
		t.Errorf("MountPaths = %v", got)
	}
	if err := m.Unmount(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.ReadAll(ctx, "a.txt"); !errors.Is(err, storage.ErrMountNotFound) {
		t.Errorf("read without root mount error = %v", err)
	}
}

func TestMountsWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m, _, _ := newMounts(t)

	token, err := m.Watch(ctx, "public/*.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Write(ctx, "public/about.html", strings.NewReader("about")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for !token.HasChanged() {
		if time.Now().After(deadline) {
			t.Fatal("token did not fire")
		}
		time.Sleep(10 * time.Millisecond)
	}

	all, err := m.Watch(ctx, "**/*.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Write(ctx, "public/docs/notes.txt", strings.NewReader("n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deadline = time.Now().Add(time.Second)
	for !all.HasChanged() {
		if time.Now().After(deadline) {
			t.Fatal("composite token did not fire")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
