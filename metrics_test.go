package assemblefs

import (
	"context"
	"errors"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/assemblefs/templates"
	"github.com/gobeaver/assemblefs/vfs"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncItem(OnStream)
	r.IncItem(OnStream)
	r.IncHookResult(PreWrite, ResultError)
	r.ObserveHookDuration(PreWrite, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.items.WithLabelValues(OnStream)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.hookResults.WithLabelValues(PreWrite, ResultError)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.hookDuration))
}

func TestAssemblerRecordsHooks(t *testing.T) {
	r := NewPrometheusRecorder(nil)
	app := templates.New("")
	a, _ := newMemoryAssembler(t, app, map[string]string{"a.txt": "a", "b.txt": "b"}, WithRecorder(r))

	s, err := a.Src(context.Background(), []string{"*.txt"}, WithCollection("files"))
	require.NoError(t, err)
	require.NoError(t, s.Wait())

	assert.Equal(t, 2.0, testutil.ToFloat64(r.hookResults.WithLabelValues(OnStream, ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.items.WithLabelValues("materialize")))

	boom := errors.New("boom")
	require.NoError(t, app.Observe(PreWrite, "", func(context.Context, vfs.Item) error { return boom }))
	d, err := a.Dest(context.Background(), vfs.DestDir("out"))
	require.NoError(t, err)
	_, err = writeAll(t, d, bufferFile("/a.txt", "a"))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.hookResults.WithLabelValues(PreWrite, ResultError)))
}
