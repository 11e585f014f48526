package ports

import (
	"context"
	"time"
)

// Archive batch status values.
const (
	BatchStatusArchived = "archived"
	BatchStatusRestored = "restored"
)

// ArchiveBatch scopes one reversible bulk removal.
type ArchiveBatch struct {
	BatchID      string
	Status       string
	Reason       string
	ScopeJSON    string
	ProductCount int64
	EventCount   int64
	CreatedAt    time.Time
	RestoredAt   *time.Time
}

// ArchiveFilter selects the rows a cleanup touches. Zero-value fields are
// ignored.
type ArchiveFilter struct {
	SourceKey  string
	HiddenOnly bool
	Before     time.Time
}

// ArchiveCounts is the exact blast radius of an archive or restore pass.
type ArchiveCounts struct {
	Products     int64
	ChangeEvents int64
}

type ArchiveRepository interface {
	// CountMatching returns the counts an execute pass would touch, without
	// mutating anything. Dry-run and execute share this query.
	CountMatching(ctx context.Context, filter ArchiveFilter) (ArchiveCounts, error)
	// ArchiveAndDelete copies matching products and their change events to
	// the archive tables, then deletes the originals. Copy strictly
	// precedes delete inside the supplied transaction context.
	ArchiveAndDelete(ctx context.Context, filter ArchiveFilter, batch ArchiveBatch) (ArchiveCounts, error)
	GetBatch(ctx context.Context, batchID string) (ArchiveBatch, error)
	CountBatch(ctx context.Context, batchID string) (ArchiveCounts, error)
	// Restore copies the batch's rows back into the canonical tables and
	// marks the batch restored. Restoring an unknown or already-restored
	// batch is rejected before any mutation.
	Restore(ctx context.Context, batchID string, restoredAt time.Time) (ArchiveCounts, error)
	// RestoredEventWindow reports the min/max occurred_at over the batch's
	// archived change events, for downstream metric recomputation.
	RestoredEventWindow(ctx context.Context, batchID string) (from, to time.Time, ok bool, err error)
}
