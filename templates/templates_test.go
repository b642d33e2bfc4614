package templates

import (
	"context"
	"errors"
	"testing"

	"github.com/gobeaver/assemblefs/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(path, body string) *vfs.File {
	f := vfs.NewFile(path)
	if body != "" {
		f.SetContents([]byte(body))
	}
	return f
}

func TestHandlers(t *testing.T) {
	ctx := context.Background()
	app := New("/site")

	t.Run("unregistered", func(t *testing.T) {
		assert.False(t, app.HasHandler("preRender"))
		require.ErrorIs(t, app.Handle(ctx, "preRender", file("/a", "x")), ErrNoHandler)
		require.ErrorIs(t, app.Observe("preRender", "", nil), ErrNoHandler)
	})

	t.Run("observers run in order", func(t *testing.T) {
		app.Handler("preRender")
		var calls []string
		require.NoError(t, app.Observe("preRender", "", func(context.Context, vfs.Item) error {
			calls = append(calls, "first")
			return nil
		}))
		require.NoError(t, app.Observe("preRender", "", func(context.Context, vfs.Item) error {
			calls = append(calls, "second")
			return nil
		}))

		app.Handler("preRender")
		assert.Equal(t, 2, app.Observers("preRender"))

		require.NoError(t, app.Handle(ctx, "preRender", file("/a", "x")))
		assert.Equal(t, []string{"first", "second"}, calls)
	})

	t.Run("filter", func(t *testing.T) {
		app.Handler("filtered")
		var seen []string
		require.NoError(t, app.Observe("filtered", `\.md$`, func(_ context.Context, item vfs.Item) error {
			seen = append(seen, item.File().Basename())
			return nil
		}))
		require.NoError(t, app.Handle(ctx, "filtered", file("/a.md", "x")))
		require.NoError(t, app.Handle(ctx, "filtered", file("/b.txt", "x")))
		assert.Equal(t, []string{"a.md"}, seen)

		assert.Error(t, app.Observe("filtered", "(", func(context.Context, vfs.Item) error { return nil }))
	})

	t.Run("first failure stops dispatch", func(t *testing.T) {
		app.Handler("failing")
		boom := errors.New("boom")
		ran := false
		require.NoError(t, app.Observe("failing", "", func(context.Context, vfs.Item) error { return boom }))
		require.NoError(t, app.Observe("failing", "", func(context.Context, vfs.Item) error {
			ran = true
			return nil
		}))
		require.ErrorIs(t, app.Handle(ctx, "failing", file("/a", "x")), boom)
		assert.False(t, ran)
	})
}

func TestEmitter(t *testing.T) {
	ctx := context.Background()
	e := NewEmitter()

	var got []string
	first := e.On("dest", func(_ context.Context, ev Event) error {
		got = append(got, "first:"+ev.Payload.(string))
		return nil
	})
	e.On("dest", func(_ context.Context, ev Event) error {
		got = append(got, "second:"+ev.Payload.(string))
		return nil
	})
	assert.Equal(t, 2, e.ListenerCount("dest"))

	require.NoError(t, e.Emit(ctx, Event{Name: "dest", Payload: "a"}))
	assert.True(t, e.Off(first))
	assert.False(t, e.Off(first))
	require.NoError(t, e.Emit(ctx, Event{Name: "dest", Payload: "b"}))

	assert.Equal(t, []string{"first:a", "second:a", "second:b"}, got)
	require.NoError(t, e.Emit(ctx, Event{Name: "nobody"}))

	boom := errors.New("listener failed")
	e.On("fail", func(context.Context, Event) error { return boom })
	require.ErrorIs(t, e.Emit(ctx, Event{Name: "fail"}), boom)
}

func TestCollections(t *testing.T) {
	ctx := context.Background()
	app := New("/site")

	pages := app.Create("pages")
	assert.Same(t, pages, app.Create("pages"))
	got, ok := app.Collection("pages")
	require.True(t, ok)
	assert.Same(t, pages, got)
	_, ok = app.Collection("posts")
	assert.False(t, ok)
	app.Create("posts")
	assert.Equal(t, []string{"pages", "posts"}, app.Collections())

	t.Run("set keeps one view per key", func(t *testing.T) {
		first, err := pages.Add(ctx, file("/a.md", "one"))
		require.NoError(t, err)
		second, err := pages.Add(ctx, file("/a.md", "two"))
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, pages.Len())
		stored, ok := pages.Get("/a.md")
		require.True(t, ok)
		assert.Same(t, first, stored)
		data, _ := stored.File().Bytes()
		assert.Equal(t, "two", string(data))
		assert.Equal(t, "pages", stored.Collection)
	})

	t.Run("insertion order", func(t *testing.T) {
		_, err := pages.Set(ctx, "b", file("/b.md", "b"))
		require.NoError(t, err)
		_, err = pages.Set(ctx, "c", file("/c.md", "c"))
		require.NoError(t, err)
		assert.Equal(t, []string{"/a.md", "b", "c"}, pages.Keys())
		assert.Len(t, pages.Views(), 3)

		assert.True(t, pages.Delete("b"))
		assert.False(t, pages.Delete("b"))
		assert.Equal(t, []string{"/a.md", "c"}, pages.Keys())
	})

	t.Run("collections share dispatch points", func(t *testing.T) {
		pages.Handler("shared")
		assert.True(t, app.HasHandler("shared"))
		assert.Equal(t, "/site", pages.Root())
	})
}

func TestCollectionOnLoad(t *testing.T) {
	ctx := context.Background()
	app := New("/site")
	app.Handler(LoadHook)

	var loads int
	require.NoError(t, app.Observe(LoadHook, "", func(_ context.Context, item vfs.Item) error {
		loads++
		if item.File().Basename() == "bad.md" {
			return errors.New("cannot load")
		}
		return nil
	}))

	docs := app.Create("docs")
	view, err := docs.Add(ctx, file("/ok.md", "ok"))
	require.NoError(t, err)
	assert.NotNil(t, view)

	_, err = docs.Add(ctx, file("/bad.md", "bad"))
	require.Error(t, err)
	assert.Equal(t, 2, loads)
	assert.Equal(t, 1, docs.Len())
}

func TestCollectionOnLoadKeepsPreviousFile(t *testing.T) {
	ctx := context.Background()
	app := New("/site")
	app.Handler(LoadHook)

	fail := false
	require.NoError(t, app.Observe(LoadHook, "", func(_ context.Context, _ vfs.Item) error {
		if fail {
			return errors.New("cannot load")
		}
		return nil
	}))

	docs := app.Create("docs")
	first, err := docs.Set(ctx, "/a.txt", file("/a.txt", "first"))
	require.NoError(t, err)

	fail = true
	_, err = docs.Set(ctx, "/a.txt", file("/a.txt", "second"))
	require.Error(t, err)

	stored, ok := docs.Get("/a.txt")
	require.True(t, ok)
	assert.Same(t, first, stored)
	data, err := stored.File().Bytes()
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	assert.Equal(t, 1, docs.Len())
}

func TestFrontMatter(t *testing.T) {
	ctx := context.Background()
	mw := FrontMatter()

	tests := []struct {
		name     string
		body     string
		wantBody string
		wantData map[string]any
		wantErr  bool
	}{
		{"none", "# Title\n", "# Title\n", map[string]any{}, false},
		{"fields", "---\ntitle: Home\nweight: 2\n---\n# Home\n", "# Home\n", map[string]any{"title": "Home", "weight": 2}, false},
		{"crlf", "---\r\ntitle: Home\r\n---\r\nbody", "body", map[string]any{"title": "Home"}, false},
		{"empty block", "---\n---\nbody", "body", map[string]any{}, false},
		{"unclosed", "---\ntitle: x\n", "", nil, true},
		{"invalid yaml", "---\ntitle: [unclosed\n---\nbody", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := file("/page.md", tt.body)
			err := mw(ctx, f)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			data, _ := f.Bytes()
			assert.Equal(t, tt.wantBody, string(data))
			assert.Equal(t, tt.wantData, f.Data)
		})
	}

	t.Run("null file", func(t *testing.T) {
		require.NoError(t, mw(ctx, vfs.NewFile("/dir")))
	})
}
