package ports

import (
	"context"
	"time"
)

// DailyMetric is one day of recomputable aggregates over the canonical
// change trail. Rows are idempotently upserted per day.
type DailyMetric struct {
	Day              string
	NewRegistrations int64
	Updates          int64
	Cancellations    int64
	Expirations      int64
	ConflictsOpened  int64
	PendingOpened    int64
	DevicesBound     int64
	ComputedAt       time.Time
}

type MetricsRepository interface {
	UpsertDay(ctx context.Context, metric DailyMetric) error
	GetDay(ctx context.Context, day string) (DailyMetric, bool, error)
	ListDays(ctx context.Context, from, to string) ([]DailyMetric, error)
}

// CheckpointStore persists resumable cursors for long-running jobs so a
// restart continues instead of rescanning from zero.
type CheckpointStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
