package progress

import "context"

// Sink consumes batches of run events. The hub calls every sink of a batch
// concurrently, so implementations must be safe for concurrent use and honor
// ctx deadlines. A sink must not retain the batch slice.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// SinkFunc adapts a function to a Sink with a no-op Close.
type SinkFunc func(ctx context.Context, batch []Event) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

// Close implements Sink.
func (SinkFunc) Close(context.Context) error {
	return nil
}

// Emitter publishes individual events. Run reports through it so commands
// stay agnostic about how events are buffered or persisted.
type Emitter interface {
	Emit(evt Event)
}
