package assemblefs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobeaver/assemblefs/driver/memory"
	"github.com/gobeaver/assemblefs/stream"
	"github.com/gobeaver/assemblefs/templates"
	"github.com/gobeaver/assemblefs/vfs"
)

func newMemoryAssembler(t *testing.T, app *templates.App, files map[string]string, options ...AssemblerOption) (*Assembler, *memory.Adapter) {
	t.Helper()
	fs := memory.New()
	for p, body := range files {
		require.NoError(t, fs.Write(context.Background(), p, strings.NewReader(body)))
	}
	a, err := Apply(app, vfs.New(fs, "/"), options...)
	require.NoError(t, err)
	return a, fs
}

func bufferFile(path, body string) *vfs.File {
	f := vfs.NewFile(path)
	f.SetContents([]byte(body))
	return f
}

func writeAll(t *testing.T, s *stream.Stream[vfs.Item], items ...vfs.Item) ([]vfs.Item, error) {
	t.Helper()
	go func() {
		for _, item := range items {
			if err := s.Write(context.Background(), item); err != nil {
				return
			}
		}
		s.End()
	}()
	return s.Collect()
}

func countObserver(t *testing.T, host templates.Host, hook string, n *int) {
	t.Helper()
	require.NoError(t, host.Observe(hook, "", func(context.Context, vfs.Item) error {
		*n++
		return nil
	}))
}

func newMemoryFS(t *testing.T, files map[string]string) *memory.Adapter {
	t.Helper()
	fs := memory.New()
	for p, body := range files {
		require.NoError(t, fs.Write(context.Background(), p, strings.NewReader(body)))
	}
	return fs
}

func bytesReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
