package vfs

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gobeaver/assemblefs/driver/local"
	"github.com/gobeaver/assemblefs/driver/memory"
	"github.com/gobeaver/assemblefs/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, fs storage.FileSystem, files map[string]string) {
	t.Helper()
	for p, body := range files {
		require.NoError(t, fs.Write(context.Background(), p, strings.NewReader(body)))
	}
}

func collectFiles(t *testing.T, e *Engine, patterns []string, opts Options) []*File {
	t.Helper()
	s, err := e.Source(context.Background(), patterns, opts)
	require.NoError(t, err)
	items, err := s.Collect()
	require.NoError(t, err)
	files := make([]*File, 0, len(items))
	for _, item := range items {
		files = append(files, item.File())
	}
	return files
}

func paths(files []*File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, filepath.ToSlash(f.Path()))
	}
	return out
}

func TestSource(t *testing.T) {
	fs := memory.New()
	seed(t, fs, map[string]string{
		"a.txt":           "alpha",
		"b.txt":           "beta",
		"c.md":            "gamma",
		"docs/x/one.md":   "one",
		"docs/two.md":     "two",
		"docs/.hidden.md": "hidden",
	})
	e := New(fs, "/")

	tests := []struct {
		name     string
		patterns []string
		opts     func(*Options)
		want     []string
	}{
		{"glob", []string{"*.txt"}, nil, []string{"/a.txt", "/b.txt"}},
		{"literal", []string{"c.md"}, nil, []string{"/c.md"}},
		{"pattern order", []string{"c.md", "*.txt"}, nil, []string{"/c.md", "/a.txt", "/b.txt"}},
		{"dedup", []string{"a.txt", "*.txt"}, nil, []string{"/a.txt", "/b.txt"}},
		{"negation", []string{"*.txt", "!b.txt"}, nil, []string{"/a.txt"}},
		{"negated literal", []string{"a.txt", "c.md", "!a.txt"}, nil, []string{"/c.md"}},
		{"negated directory", []string{"**/*.md", "!docs/**"}, nil, []string{"/c.md"}},
		{"globstar", []string{"docs/**/*.md"}, nil, []string{"/docs/two.md", "/docs/x/one.md"}},
		{"dot", []string{"docs/*.md"}, func(o *Options) { o.Dot = true }, []string{"/docs/.hidden.md", "/docs/two.md"}},
		{"cwd", []string{"*.md"}, func(o *Options) { o.Cwd = "docs" }, []string{"/docs/two.md"}},
		{"directories", []string{"docs/*"}, nil, []string{"/docs/two.md", "/docs/x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			assert.Equal(t, tt.want, paths(collectFiles(t, e, tt.patterns, opts)))
		})
	}
}

func TestSourceContents(t *testing.T) {
	fs := memory.New()
	seed(t, fs, map[string]string{"a.txt": "alpha", "dir/b.txt": "beta"})
	e := New(fs, "/")

	t.Run("buffered", func(t *testing.T) {
		files := collectFiles(t, e, []string{"a.txt"}, DefaultOptions())
		require.Len(t, files, 1)
		assert.True(t, files[0].IsBuffer())
		data, err := files[0].Bytes()
		require.NoError(t, err)
		assert.Equal(t, "alpha", string(data))
	})

	t.Run("streamed", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Buffer = false
		files := collectFiles(t, e, []string{"a.txt"}, opts)
		require.Len(t, files, 1)
		assert.True(t, files[0].IsStream())
		data, err := io.ReadAll(files[0].Reader())
		require.NoError(t, err)
		assert.Equal(t, "alpha", string(data))
		assert.True(t, files[0].IsNull())
	})

	t.Run("read disabled", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Read = false
		files := collectFiles(t, e, []string{"a.txt"}, opts)
		require.Len(t, files, 1)
		assert.True(t, files[0].IsNull())
		assert.Equal(t, int64(5), files[0].Stat.Size)
	})

	t.Run("directory is null", func(t *testing.T) {
		files := collectFiles(t, e, []string{"dir"}, DefaultOptions())
		require.Len(t, files, 1)
		assert.True(t, files[0].IsDirectory())
		assert.True(t, files[0].IsNull())
	})

	t.Run("relative to glob parent", func(t *testing.T) {
		files := collectFiles(t, e, []string{"dir/**/*.txt"}, DefaultOptions())
		require.Len(t, files, 1)
		assert.Equal(t, "b.txt", files[0].Relative())
		assert.Equal(t, "b", files[0].Stem())
		assert.Equal(t, ".txt", files[0].Extname())
	})

	t.Run("explicit base", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Base = "/"
		files := collectFiles(t, e, []string{"dir/*.txt"}, opts)
		require.Len(t, files, 1)
		assert.Equal(t, filepath.FromSlash("dir/b.txt"), files[0].Relative())
	})
}

func TestSourceEmpty(t *testing.T) {
	e := New(memory.New(), "/")
	ctx := context.Background()

	t.Run("error without allow empty", func(t *testing.T) {
		s, err := e.Source(ctx, []string{"*.nope"}, DefaultOptions())
		require.NoError(t, err)
		require.ErrorIs(t, s.Wait(), ErrNoMatch)
	})

	t.Run("missing literal", func(t *testing.T) {
		s, err := e.Source(ctx, []string{"missing.txt"}, DefaultOptions())
		require.NoError(t, err)
		require.ErrorIs(t, s.Wait(), ErrNoMatch)
	})

	t.Run("allowed", func(t *testing.T) {
		opts := DefaultOptions()
		opts.AllowEmpty = true
		assert.Empty(t, collectFiles(t, e, []string{"*.nope"}, opts))
	})

	t.Run("excluded matches are not missing", func(t *testing.T) {
		fs := memory.New()
		seed(t, fs, map[string]string{"a.txt": "a"})
		s, err := New(fs, "/").Source(ctx, []string{"*.txt", "!a.txt"}, DefaultOptions())
		require.NoError(t, err)
		items, err := s.Collect()
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("only negations", func(t *testing.T) {
		_, err := e.Source(ctx, []string{"!*.txt"}, DefaultOptions())
		require.ErrorIs(t, err, ErrNoPatterns)
	})

	t.Run("outside root", func(t *testing.T) {
		e := New(memory.New(), "/srv/site")
		_, err := e.Source(ctx, []string{"../*.txt"}, DefaultOptions())
		require.ErrorIs(t, err, storage.ErrNotAllowed)
	})
}

func TestSourceSince(t *testing.T) {
	ctx := context.Background()
	fs := memory.New()
	old := time.Now().Add(-time.Hour)
	require.NoError(t, fs.Write(ctx, "old.txt", strings.NewReader("o"), storage.WithModTime(old)))
	require.NoError(t, fs.Write(ctx, "new.txt", strings.NewReader("n")))

	opts := DefaultOptions()
	opts.Since = old.Add(time.Minute)
	files := collectFiles(t, New(fs, "/"), []string{"*.txt"}, opts)
	assert.Equal(t, []string{"/new.txt"}, paths(files))

	files = collectFiles(t, New(fs, "/"), []string{"old.txt", "new.txt"}, opts)
	assert.Equal(t, []string{"/new.txt"}, paths(files))
}

func writeAll(t *testing.T, e *Engine, dest Dest, opts Options, files ...*File) []*File {
	t.Helper()
	ctx := context.Background()
	s, err := e.Sink(ctx, dest, opts)
	require.NoError(t, err)
	for _, f := range files {
		require.NoError(t, s.Write(ctx, f))
	}
	s.End()
	items, err := s.Collect()
	require.NoError(t, err)
	out := make([]*File, 0, len(items))
	for _, item := range items {
		out = append(out, item.File())
	}
	return out
}

func bufferFile(p, base, body string) *File {
	f := NewFile(p)
	f.Base = base
	f.SetContents([]byte(body))
	return f
}

func TestSink(t *testing.T) {
	ctx := context.Background()

	t.Run("writes below dest and rebases", func(t *testing.T) {
		fs := memory.New()
		e := New(fs, "/")
		out := writeAll(t, e, DestDir("out"), DefaultOptions(), bufferFile("/src/a/b.txt", "/src", "hello"))

		require.Len(t, out, 1)
		assert.Equal(t, "/out/a/b.txt", filepath.ToSlash(out[0].Path()))
		assert.Equal(t, []string{"/src/a/b.txt", "/out/a/b.txt"}, func() []string {
			var h []string
			for _, p := range out[0].History() {
				h = append(h, filepath.ToSlash(p))
			}
			return h
		}())
		data, err := fs.ReadAll(ctx, "out/a/b.txt")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
		assert.NotNil(t, out[0].Stat)
	})

	t.Run("dest function", func(t *testing.T) {
		fs := memory.New()
		e := New(fs, "/")
		dest := DestFunc(func(f *File) (string, error) { return "by-ext/" + strings.TrimPrefix(f.Extname(), "."), nil })
		writeAll(t, e, dest, DefaultOptions(), bufferFile("/a.md", "/", "md"))
		ok, _ := fs.FileExists(ctx, "by-ext/md/a.md")
		assert.True(t, ok)
	})

	t.Run("null files pass unwritten", func(t *testing.T) {
		fs := memory.New()
		e := New(fs, "/")
		out := writeAll(t, e, DestDir("out"), DefaultOptions(), NewFile("/x.txt"))
		require.Len(t, out, 1)
		ok, _ := fs.FileExists(ctx, "out/x.txt")
		assert.False(t, ok)
	})

	t.Run("directories are created", func(t *testing.T) {
		fs := memory.New()
		e := New(fs, "/")
		dir := NewFile("/src/sub")
		dir.Base = "/src"
		dir.Stat = &storage.FileInfo{IsDir: true}
		writeAll(t, e, DestDir("out"), DefaultOptions(), dir)
		ok, _ := fs.DirExists(ctx, "out/sub")
		assert.True(t, ok)
	})

	t.Run("overwrite disabled keeps existing", func(t *testing.T) {
		fs := memory.New()
		seed(t, fs, map[string]string{"out/a.txt": "old"})
		opts := DefaultOptions()
		opts.Overwrite = false
		writeAll(t, New(fs, "/"), DestDir("out"), opts, bufferFile("/a.txt", "/", "new"))
		data, _ := fs.ReadAll(ctx, "out/a.txt")
		assert.Equal(t, "old", string(data))
	})

	t.Run("append", func(t *testing.T) {
		fs := memory.New()
		seed(t, fs, map[string]string{"out/a.txt": "one,"})
		opts := DefaultOptions()
		opts.Append = true
		writeAll(t, New(fs, "/"), DestDir("out"), opts, bufferFile("/a.txt", "/", "two"))
		data, _ := fs.ReadAll(ctx, "out/a.txt")
		assert.Equal(t, "one,two", string(data))
	})

	t.Run("skip unchanged", func(t *testing.T) {
		fs := memory.New()
		stamp := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, fs.Write(ctx, "out/a.txt", strings.NewReader("same"), storage.WithModTime(stamp)))
		opts := DefaultOptions()
		opts.SkipUnchanged = true
		writeAll(t, New(fs, "/"), DestDir("out"), opts, bufferFile("/a.txt", "/", "same"))
		info, err := fs.Stat(ctx, "out/a.txt")
		require.NoError(t, err)
		assert.True(t, info.ModTime.Equal(stamp))
	})

	t.Run("stream contents are readable after write", func(t *testing.T) {
		fs := memory.New()
		seed(t, fs, map[string]string{"src/a.txt": "streamed"})
		e := New(fs, "/")
		opts := DefaultOptions()
		opts.Buffer = false
		in := collectFiles(t, e, []string{"src/*.txt"}, opts)
		out := writeAll(t, e, DestDir("out"), DefaultOptions(), in...)
		require.Len(t, out, 1)
		data, err := out[0].Bytes()
		require.NoError(t, err)
		assert.Equal(t, "streamed", string(data))
		written, _ := fs.ReadAll(ctx, "out/a.txt")
		assert.Equal(t, "streamed", string(written))
	})

	t.Run("missing dest", func(t *testing.T) {
		_, err := New(memory.New(), "/").Sink(ctx, Dest{}, DefaultOptions())
		require.ErrorIs(t, err, ErrNoDest)
	})

	t.Run("dest function failure aborts", func(t *testing.T) {
		e := New(memory.New(), "/")
		s, err := e.Sink(ctx, DestFunc(func(*File) (string, error) { return "", nil }), DefaultOptions())
		require.NoError(t, err)
		require.NoError(t, s.Write(ctx, bufferFile("/a.txt", "/", "x")))
		s.End()
		require.ErrorIs(t, s.Wait(), ErrNoDest)
	})
}

func TestLink(t *testing.T) {
	ctx := context.Background()
	fs := memory.New()
	seed(t, fs, map[string]string{"src/a.txt": "alpha"})
	e := New(fs, "/")

	opts := DefaultOptions()
	opts.RelativeSymlinks = true
	s, err := e.Link(ctx, DestDir("out"), opts)
	require.NoError(t, err)

	in := collectFiles(t, e, []string{"src/*.txt"}, DefaultOptions())
	require.Len(t, in, 1)
	require.NoError(t, s.Write(ctx, in[0]))
	s.End()
	require.NoError(t, s.Wait())

	target, err := fs.Readlink(ctx, "out/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "../src/a.txt", target)
	assert.Equal(t, "/out/a.txt", filepath.ToSlash(in[0].Path()))

	data, err := fs.ReadAll(ctx, "out/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := local.New(t.TempDir())
	require.NoError(t, err)
	seed(t, fs, map[string]string{"src/a.txt": "A", "src/nested/b.txt": "B"})

	e := New(fs, fs.Root())
	src, err := e.Source(ctx, []string{"src/**/*.txt"}, DefaultOptions())
	require.NoError(t, err)
	sink, err := e.Sink(ctx, DestDir("dist"), DefaultOptions())
	require.NoError(t, err)

	out, err := src.Pipe(sink).Collect()
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, filepath.Join(fs.Root(), "dist", "a.txt"), out[0].File().Path())

	data, err := fs.ReadAll(ctx, "dist/nested/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "B", string(data))

	t.Run("absolute link", func(t *testing.T) {
		s, err := e.Link(ctx, DestDir("links"), DefaultOptions())
		require.NoError(t, err)
		f := NewFile(filepath.Join(fs.Root(), "src", "a.txt"))
		f.Base = filepath.Join(fs.Root(), "src")
		require.NoError(t, s.Write(ctx, f))
		s.End()
		require.NoError(t, s.Wait())

		data, err := fs.ReadAll(ctx, "links/a.txt")
		require.NoError(t, err)
		assert.Equal(t, "A", string(data))
	})
}
