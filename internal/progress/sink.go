package progress

import "context"

// Sink consumes batches of export run events. Implementations must be safe
// for repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies this interface so the
// pipeline stays agnostic about how events are buffered and exported.
type Emitter interface {
	Emit(evt Event)
}
