// Package progress provides the event primitives, non-blocking hub and run
// recorder that crawl, ingest and aggregation runs use to report progress.
// Events are batched on a background goroutine and fanned out to pluggable
// sinks such as structured logs, Prometheus metrics or run summary artifacts.
package progress
