package riftlens

import "errors"

var (
	// ErrNotFound marks a legitimate negative answer from the telemetry API.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable marks a transient failure: timeout, 5xx, 429, reset or bad payload.
	ErrUnavailable = errors.New("unavailable")
	// ErrStoreUnavailable marks a persistent store failure. It is fatal for a run.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrVersionConflict is returned by conditional writes when the stored version moved.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidReport is returned when a report fails construction-time validation.
	ErrInvalidReport = errors.New("invalid report")
	// ErrQueueClosed is returned by Dequeue once a closed queue is drained.
	ErrQueueClosed = errors.New("queue closed")
)
