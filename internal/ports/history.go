package ports

import (
	"context"
	"errors"
	"time"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is a full point-in-time capture of a registration's structured
// fields for one source run. One row per (registration, run).
type Snapshot struct {
	SnapshotID     uint64
	RegistrationID uint64
	SourceRunID    string
	SourceKey      string
	FieldsJSON     string
	ObservedAt     time.Time
}

// FieldDiff is the delta between two consecutive snapshots for one field.
type FieldDiff struct {
	FieldDiffID    uint64
	SnapshotID     uint64
	RegistrationID uint64
	Field          string
	Before         string
	After          string
	Kind           string
	Severity       string
	Confidence     float64
}

// ChangeEvent is the append-only change trail entry. Only the archival
// manager may remove rows, and only after copying them to the archive.
type ChangeEvent struct {
	ChangeEventID uint64
	EntityType    string
	EntityID      uint64
	Kind          string
	Field         string
	Before        string
	After         string
	SourceRunID   string
	OccurredAt    time.Time
}

type HistoryRepository interface {
	LatestSnapshot(ctx context.Context, registrationID uint64) (Snapshot, error)
	// InsertSnapshot is idempotent on (registration, run): created=false
	// means this run already wrote its snapshot.
	InsertSnapshot(ctx context.Context, snapshot Snapshot) (id uint64, created bool, err error)
	InsertFieldDiffs(ctx context.Context, diffs []FieldDiff) error
	ListFieldDiffs(ctx context.Context, registrationID uint64, limit int) ([]FieldDiff, error)
	AppendChangeEvent(ctx context.Context, event ChangeEvent) error
	// ListChangeEvents returns events newest first.
	ListChangeEvents(ctx context.Context, entityType string, entityID uint64, limit int) ([]ChangeEvent, error)
	ListChangeEventsBetween(ctx context.Context, from, to time.Time) ([]ChangeEvent, error)
	CountChangeEventsByRun(ctx context.Context, sourceRunID string) (int64, error)
}
