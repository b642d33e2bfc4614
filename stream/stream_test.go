package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func double(_ context.Context, n int, push func(int) error) error {
	return push(n * 2)
}

func TestFromSliceCollect(t *testing.T) {
	items, err := FromSlice(context.Background(), []int{1, 2, 3}).Collect()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, items)
}

func TestThroughPreservesOrder(t *testing.T) {
	ctx := context.Background()
	in := make([]int, 100)
	for i := range in {
		in[i] = i
	}

	out, err := FromSlice(ctx, in).Pipe(Through(ctx, double, double)).Collect()
	require.NoError(t, err)
	require.Len(t, out, 100)
	for i, n := range out {
		assert.Equal(t, i*4, n)
	}
}

func TestTransformMayDropAndSplit(t *testing.T) {
	ctx := context.Background()
	evensTwice := func(_ context.Context, n int, push func(int) error) error {
		if n%2 != 0 {
			return nil
		}
		if err := push(n); err != nil {
			return err
		}
		return push(n)
	}

	out, err := FromSlice(ctx, []int{1, 2, 3, 4}).Pipe(Through(ctx, evensTwice)).Collect()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 4, 4}, out)
}

func TestWriteEndWait(t *testing.T) {
	ctx := context.Background()
	var seen atomic.Int32
	s := Through(ctx, func(_ context.Context, n int, push func(int) error) error {
		seen.Add(1)
		return push(n)
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Write(ctx, i))
	}
	s.End()
	s.End()

	require.NoError(t, s.Wait())
	assert.Equal(t, int32(5), seen.Load())
	assert.ErrorIs(t, s.Write(ctx, 6), ErrEnded)
}

func TestStageErrorAbortsPipeline(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	var after atomic.Int32

	s := Through(ctx,
		func(_ context.Context, n int, push func(int) error) error {
			if n == 3 {
				return boom
			}
			return push(n)
		},
		func(_ context.Context, n int, push func(int) error) error {
			after.Add(1)
			return push(n)
		},
	)

	go func() {
		for i := 0; i < 10; i++ {
			if err := s.Write(ctx, i); err != nil {
				return
			}
		}
		s.End()
	}()

	out, err := s.Collect()
	require.ErrorIs(t, err, boom)
	assert.NotContains(t, out, 3)
	assert.LessOrEqual(t, after.Load(), int32(3))
	assert.ErrorIs(t, s.Err(), boom)
}

func TestProducerError(t *testing.T) {
	boom := errors.New("producer failed")
	s := Readable(context.Background(), func(_ context.Context, push func(int) error) error {
		if err := push(1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, s.Wait(), boom)
}

func TestPipePropagatesDownstreamFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("sink failed")
	var produced atomic.Int32

	src := Readable(ctx, func(ctx context.Context, push func(int) error) error {
		for i := 0; ; i++ {
			produced.Add(1)
			if err := push(i); err != nil {
				return err
			}
		}
	})
	dst := src.Pipe(Through(ctx, func(_ context.Context, n int, push func(int) error) error {
		if n == 5 {
			return boom
		}
		return push(n)
	}))

	require.ErrorIs(t, dst.Wait(), boom)

	select {
	case <-src.Done():
	case <-time.After(time.Second):
		t.Fatal("expected upstream to stop")
	}
	require.Error(t, src.Err())
}

func TestPipePropagatesUpstreamFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("source failed")
	src := Readable(ctx, func(_ context.Context, push func(int) error) error {
		return boom
	})
	dst := src.Pipe(Through[int](ctx))
	require.ErrorIs(t, dst.Wait(), boom)
}

func TestAbort(t *testing.T) {
	ctx := context.Background()
	stop := errors.New("stopped")
	s := Through[int](ctx)
	s.Abort(stop)

	require.ErrorIs(t, s.Wait(), stop)
	assert.ErrorIs(t, s.Write(ctx, 1), stop)
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := Readable(ctx, func(ctx context.Context, push func(int) error) error {
		for {
			if err := push(1); err != nil {
				return err
			}
		}
	})
	cancel()
	require.ErrorIs(t, s.Wait(), context.Canceled)
}

func TestBackpressure(t *testing.T) {
	ctx := context.Background()
	var produced atomic.Int32
	s := Readable(ctx, func(ctx context.Context, push func(int) error) error {
		for i := 0; i < 1000; i++ {
			if err := push(i); err != nil {
				return err
			}
			produced.Add(1)
		}
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, produced.Load(), int32(HighWaterMark+1))

	require.NoError(t, s.Wait())
	assert.Equal(t, int32(1000), produced.Load())
}

func TestReadableIsNotWritable(t *testing.T) {
	s := FromSlice(context.Background(), []int{1})
	assert.ErrorIs(t, s.Write(context.Background(), 2), ErrNotWritable)
	require.NoError(t, s.Wait())
}

func TestJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("writes through every part", func(t *testing.T) {
		j := Join(Through(ctx, double), Through[int](ctx), Through(ctx, double))
		go func() {
			for i := 1; i <= 3; i++ {
				_ = j.Write(ctx, i)
			}
			j.End()
		}()
		out, err := j.Collect()
		require.NoError(t, err)
		assert.Equal(t, []int{4, 8, 12}, out)
	})

	t.Run("failure in the tail fails the whole", func(t *testing.T) {
		boom := errors.New("tail")
		head := Through[int](ctx)
		tail := Through(ctx, func(_ context.Context, n int, push func(int) error) error {
			return boom
		})
		j := Join(head, tail)
		require.NoError(t, j.Write(ctx, 1))

		require.ErrorIs(t, j.Wait(), boom)
		<-head.Done()
		assert.ErrorIs(t, head.Err(), boom)
	})
}
