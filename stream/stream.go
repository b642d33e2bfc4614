package stream

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// HighWaterMark is the capacity of the channel between two stages.
const HighWaterMark = 16

var (
	// ErrNotWritable is returned by Write on a stream without a writable side.
	ErrNotWritable = errors.New("stream: not writable")

	// ErrEnded is returned by Write after End.
	ErrEnded = errors.New("stream: write after end")
)

// Transform processes one item. It may push zero or more items downstream;
// push fails once the pipeline is cancelled. A non-nil return aborts the
// pipeline.
type Transform[T any] func(ctx context.Context, item T, push func(T) error) error

// Producer feeds a readable stream.
type Producer[T any] func(ctx context.Context, push func(T) error) error

// Stream is a running pipeline. The writable side (Write, End) exists for
// streams built with Through; every stream has a readable side (Items).
type Stream[T any] struct {
	in  chan T
	out chan T

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
	err    error

	mu    sync.RWMutex
	ended bool
}

func newStream[T any](ctx context.Context) (*Stream[T], *errgroup.Group, context.Context) {
	base, cancel := context.WithCancelCause(ctx)
	g, gctx := errgroup.WithContext(base)
	s := &Stream[T]{
		out:    make(chan T, HighWaterMark),
		ctx:    gctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	return s, g, gctx
}

func (s *Stream[T]) finish(g *errgroup.Group) {
	go func() {
		s.err = g.Wait()
		s.cancel(s.err)
		close(s.done)
	}()
}

// Readable starts a stream fed by produce.
func Readable[T any](ctx context.Context, produce Producer[T]) *Stream[T] {
	s, g, gctx := newStream[T](ctx)
	g.Go(func() error {
		defer close(s.out)
		err := produce(gctx, pusher(gctx, s.out))
		if err != nil {
			s.cancel(err)
		}
		return err
	})
	s.finish(g)
	return s
}

// FromSlice starts a readable stream emitting items in order.
func FromSlice[T any](ctx context.Context, items []T) *Stream[T] {
	return Readable(ctx, func(ctx context.Context, push func(T) error) error {
		for _, item := range items {
			if err := push(item); err != nil {
				return err
			}
		}
		return nil
	})
}

// Through starts a writable stream running transforms in order. With no
// transforms items pass through unchanged.
func Through[T any](ctx context.Context, transforms ...Transform[T]) *Stream[T] {
	if len(transforms) == 0 {
		transforms = []Transform[T]{Identity[T]}
	}

	s, g, gctx := newStream[T](ctx)
	s.in = make(chan T, HighWaterMark)

	in := s.in
	for i, fn := range transforms {
		out := s.out
		if i < len(transforms)-1 {
			out = make(chan T, HighWaterMark)
		}
		src, dst, fn := in, out, fn
		g.Go(func() error {
			defer close(dst)
			err := s.runStage(gctx, src, dst, fn)
			if err != nil {
				s.cancel(err)
			}
			return err
		})
		in = out
	}

	s.finish(g)
	return s
}

// Identity pushes every item unchanged.
func Identity[T any](_ context.Context, item T, push func(T) error) error {
	return push(item)
}

func pusher[T any](ctx context.Context, out chan<- T) func(T) error {
	return func(item T) error {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		select {
		case out <- item:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

func (s *Stream[T]) runStage(ctx context.Context, in <-chan T, out chan<- T, fn Transform[T]) error {
	push := pusher(ctx, out)
	for {
		select {
		case item, ok := <-in:
			// an upstream failure cancels before it closes
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			if !ok {
				return nil
			}
			if err := fn(ctx, item, push); err != nil {
				return err
			}
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

// Items returns the readable side. It is closed when the pipeline finishes,
// successfully or not; check Wait afterwards.
func (s *Stream[T]) Items() <-chan T {
	return s.out
}

// Done is closed once every stage has returned.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the failure that ended the stream, or nil while it is running
// or after it finished successfully.
func (s *Stream[T]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait discards unread items until the stream finishes and returns its
// failure, if any. A writable stream finishes only after End.
func (s *Stream[T]) Wait() error {
	for range s.out {
	}
	<-s.done
	return s.err
}

// Collect reads every item and then waits.
func (s *Stream[T]) Collect() ([]T, error) {
	var items []T
	for item := range s.out {
		items = append(items, item)
	}
	<-s.done
	return items, s.err
}

// Write sends item into the first stage. It blocks while the stage buffers
// are full.
func (s *Stream[T]) Write(ctx context.Context, item T) error {
	if s.in == nil {
		return ErrNotWritable
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ended {
		return ErrEnded
	}
	if s.ctx.Err() != nil {
		return context.Cause(s.ctx)
	}

	select {
	case s.in <- item:
		return nil
	case <-s.ctx.Done():
		return context.Cause(s.ctx)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End closes the writable side. Calling it more than once is harmless.
func (s *Stream[T]) End() {
	if s.in == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		close(s.in)
	}
}

// Abort cancels the pipeline with err. It has no effect once the stream
// finished.
func (s *Stream[T]) Abort(err error) {
	if err == nil {
		err = context.Canceled
	}
	s.cancel(err)
}

// Pipe forwards every item of s into dst and ends dst when s finishes. A
// failure of either side aborts the other. It returns dst.
func (s *Stream[T]) Pipe(dst *Stream[T]) *Stream[T] {
	go func() {
		for item := range s.out {
			if err := dst.Write(context.Background(), item); err != nil {
				s.Abort(err)
				for range s.out {
				}
				return
			}
		}
		<-s.done
		if s.err != nil {
			dst.Abort(s.err)
			return
		}
		dst.End()
	}()
	return dst
}
