// Package stream provides a small generic item pipeline.
//
// A Stream is a chain of stages joined by bounded channels. Every stage runs
// in its own goroutine, so a slow consumer pauses producers once the
// HighWaterMark buffers fill up. The first stage to fail cancels the whole
// pipeline; every stage stops and Wait reports that failure.
//
//	s := stream.FromSlice(ctx, []int{1, 2, 3}).Pipe(stream.Through(ctx, double))
//	out, err := s.Collect()
package stream
