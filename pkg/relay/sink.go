package relay

import (
	"context"
	"errors"

	"github.com/backkem/rf24relay/pkg/reading"
)

// Sink consumes verified reading batches.
type Sink interface {
	Publish(ctx context.Context, b *reading.Batch) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, b *reading.Batch) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, b *reading.Batch) error {
	return f(ctx, b)
}

// Fanout publishes every batch to all sinks. A failing sink does not stop
// the others; the errors are joined.
type Fanout []Sink

// Publish implements Sink.
func (f Fanout) Publish(ctx context.Context, b *reading.Batch) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
