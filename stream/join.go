package stream

import (
	"context"
	"sync"
)

// Join pipes streams into each other and returns a single stream that is
// written through the first one and read from the last one. A failure in
// any part aborts all of them; Wait reports the first failure and returns
// only after every part finished.
func Join[T any](streams ...*Stream[T]) *Stream[T] {
	switch len(streams) {
	case 0:
		return Through[T](context.Background())
	case 1:
		return streams[0]
	}

	for i := 0; i < len(streams)-1; i++ {
		streams[i].Pipe(streams[i+1])
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	var (
		once     sync.Once
		firstErr error
	)
	abort := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel(err)
			for _, s := range streams {
				s.Abort(err)
			}
		})
	}

	j := &Stream[T]{
		in:     streams[0].in,
		out:    streams[len(streams)-1].out,
		ctx:    ctx,
		cancel: abort,
		done:   make(chan struct{}),
	}

	var wg sync.WaitGroup
	for _, s := range streams {
		wg.Add(1)
		go func(s *Stream[T]) {
			defer wg.Done()
			<-s.done
			if s.err != nil {
				abort(s.err)
			}
		}(s)
	}

	go func() {
		wg.Wait()
		once.Do(func() {})
		j.err = firstErr
		cancel(j.err)
		close(j.done)
	}()

	return j
}
