package assemblefs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/assemblefs/stream"
	"github.com/gobeaver/assemblefs/templates"
	"github.com/gobeaver/assemblefs/vfs"
)

func TestResolveTarget(t *testing.T) {
	app := templates.New("")
	existing := app.Create("pages")

	tests := []struct {
		name       string
		host       any
		collection string
		want       HostKind
		wantName   string
	}{
		{name: "nil host", host: nil, want: KindPlain},
		{name: "plain value", host: struct{}{}, want: KindPlain},
		{name: "app without collection", host: app, want: KindStandalone},
		{name: "app with existing collection", host: app, collection: "pages", want: KindCollection, wantName: "pages"},
		{name: "app with new collection", host: app, collection: "posts", want: KindCollection, wantName: "posts"},
		{name: "collection host", host: existing, want: KindCollection, wantName: "pages"},
		{name: "collection host ignores name", host: existing, collection: "other", want: KindCollection, wantName: "pages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTarget(tt.host, tt.collection)
			assert.Equal(t, tt.want, got.Kind)
			if tt.wantName != "" {
				require.NotNil(t, got.Collection)
				assert.Equal(t, tt.wantName, got.Collection.Name())
			}
		})
	}

	c, ok := app.Collection("posts")
	require.True(t, ok)
	assert.Same(t, c, ResolveTarget(app, "posts").Collection)
	assert.Equal(t, "standalone", KindStandalone.String())
}

func TestMaterialize(t *testing.T) {
	ctx := context.Background()

	t.Run("collection identity", func(t *testing.T) {
		app := templates.New("")
		EnsureHandlers(app, Lifecycle...)

		got, err := writeAll(t, stream.Through(ctx, Materialize(app, "files")),
			bufferFile("/a.txt", "a"),
			bufferFile("/b.txt", "b"),
		)
		require.NoError(t, err)
		require.Len(t, got, 2)

		c, ok := app.Collection("files")
		require.True(t, ok)
		for _, item := range got {
			stored, ok := c.Get(item.File().Path())
			require.True(t, ok)
			assert.Same(t, stored, item)
		}
	})

	t.Run("standalone runs onLoad once", func(t *testing.T) {
		app := templates.New("")
		EnsureHandlers(app, Lifecycle...)
		calls := 0
		countObserver(t, app, OnLoad, &calls)

		got, err := writeAll(t, stream.Through(ctx, Materialize(app, "")), bufferFile("/a.txt", "a"))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.IsType(t, &templates.View{}, got[0])
		assert.Equal(t, 1, calls)
		assert.Empty(t, app.Collections())
	})

	t.Run("null files are not materialized", func(t *testing.T) {
		app := templates.New("")
		EnsureHandlers(app, Lifecycle...)
		calls := 0
		countObserver(t, app, OnLoad, &calls)

		dir := vfs.NewFile("/docs")
		got, err := writeAll(t, stream.Through(ctx, Materialize(app, "files")), dir)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Same(t, dir, got[0])
		assert.Equal(t, 0, calls)

		c, _ := app.Collection("files")
		assert.Equal(t, 0, c.Len())
	})

	t.Run("plain host wraps only", func(t *testing.T) {
		got, err := writeAll(t, stream.Through(ctx, Materialize(nil, "")), bufferFile("/a.txt", "a"))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.IsType(t, &templates.View{}, got[0])
	})

	t.Run("onLoad failure aborts", func(t *testing.T) {
		app := templates.New("")
		EnsureHandlers(app, Lifecycle...)
		boom := errors.New("boom")
		require.NoError(t, app.Observe(OnLoad, "", func(context.Context, vfs.Item) error { return boom }))

		_, err := writeAll(t, stream.Through(ctx, Materialize(app, "files")), bufferFile("/a.txt", "a"))
		require.ErrorIs(t, err, boom)
		assert.True(t, IsHookError(err))

		c, _ := app.Collection("files")
		assert.Equal(t, 0, c.Len())

		_, err = writeAll(t, stream.Through(ctx, Materialize(app, "")), bufferFile("/a.txt", "a"))
		require.ErrorIs(t, err, boom)
	})
}
