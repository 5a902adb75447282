package riftlens

import (
	"context"
	"io"
	"time"
)

// TelemetryClient issues the three read-only telemetry API operations plus the
// by-id account lookup used for name resolution.
type TelemetryClient interface {
	ResolveAccount(ctx context.Context, name, tag string) (Account, error)
	LookupAccount(ctx context.Context, id EntityID) (Account, error)
	ListRecentMatches(ctx context.Context, id EntityID, count int) ([]string, error)
	FetchMatchDetail(ctx context.Context, matchID string) (RawMatch, error)
}

// Throttle gates every outbound telemetry call.
type Throttle interface {
	Acquire(ctx context.Context) error
}

// ReportStore is the key-value persistence collaborator.
type ReportStore interface {
	// Get returns the report and whether it exists.
	Get(ctx context.Context, id EntityID) (EntityReport, bool, error)
	// Put writes the whole report. When expectedVersion does not match the stored
	// version (0 meaning "absent") it returns ErrVersionConflict.
	Put(ctx context.Context, report EntityReport, expectedVersion int64) error
	// Scan returns up to limit reports after cursor. No ordering guarantee.
	Scan(ctx context.Context, cursor string, limit int) (ScanPage, error)
	Close() error
}

// BlobStore writes and reads artifacts such as the manifest.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// Publisher pushes report notifications to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Queue provides enqueue/dequeue semantics for ingest work.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// QueueItem is one entity to ingest.
type QueueItem struct {
	RunID  string
	Entity ManifestEntry
}
