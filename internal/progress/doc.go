// Package progress provides durable checkpointing for export runs plus the
// event primitives, non-blocking hub, and emitter interfaces that the
// pipeline uses to report per-bookmark progress. Events are batched on a
// background goroutine and fanned out to pluggable sinks such as Prometheus
// metrics or structured logging.
package progress
