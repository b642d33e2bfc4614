package vfs

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePaths(t *testing.T) {
	root := filepath.FromSlash("/site")
	f := NewFile(filepath.Join(root, "pages", "index.html"))
	f.Base = root

	assert.Equal(t, "index.html", f.Basename())
	assert.Equal(t, ".html", f.Extname())
	assert.Equal(t, "index", f.Stem())
	assert.Equal(t, filepath.Join(root, "pages"), f.Dirname())
	assert.Equal(t, filepath.Join("pages", "index.html"), f.Relative())

	f.SetPath(filepath.Join(root, "out", "index.html"))
	f.SetPath(filepath.Join(root, "out", "index.html"))
	assert.Len(t, f.History(), 2)
}

func TestFileContents(t *testing.T) {
	t.Run("null", func(t *testing.T) {
		f := NewFile("/a.txt")
		assert.True(t, f.IsNull())
		assert.Nil(t, f.Reader())
		assert.False(t, f.Empty())
	})

	t.Run("empty", func(t *testing.T) {
		assert.True(t, (&File{}).Empty())
	})

	t.Run("buffer", func(t *testing.T) {
		f := NewFile("/a.txt")
		f.SetContents([]byte("abc"))
		assert.True(t, f.IsBuffer())
		data, err := io.ReadAll(f.Reader())
		require.NoError(t, err)
		assert.Equal(t, "abc", string(data))
		assert.True(t, f.IsBuffer())
	})

	t.Run("stream buffered on demand", func(t *testing.T) {
		f := NewFile("/a.txt")
		f.SetReader(io.NopCloser(strings.NewReader("xyz")))
		assert.True(t, f.IsStream())
		data, err := f.Bytes()
		require.NoError(t, err)
		assert.Equal(t, "xyz", string(data))
		assert.True(t, f.IsBuffer())
	})

	t.Run("clone", func(t *testing.T) {
		f := NewFile("/a.txt")
		f.SetContents([]byte("abc"))
		f.SetData("k", "v")
		c, err := f.Clone()
		require.NoError(t, err)
		c.SetData("k", "changed")
		c.SetContents([]byte("zzz"))
		data, _ := f.Bytes()
		assert.Equal(t, "abc", string(data))
		assert.Equal(t, "v", f.Data["k"])
	})
}
