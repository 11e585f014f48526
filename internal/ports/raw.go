package ports

import (
	"context"
	"time"
)

// Raw record parse status values.
const (
	ParseStatusPending = "pending"
	ParseStatusParsed  = "parsed"
	ParseStatusFailed  = "failed"
)

// RawRecord is one immutable logical record as fetched: hashed before any
// interpretation, never edited, only superseded by a newer record.
type RawRecord struct {
	RawRecordID   uint64
	SourceKey     string
	SourceRunID   string
	PayloadHash   string
	EvidenceGrade string
	Payload       string
	ObservedAt    time.Time
	ParseStatus   string
	ParseErrClass string
	ParseErrMsg   string
}

// RawRunStats aggregates parse outcomes for one run.
type RawRunStats struct {
	Total   int64
	Parsed  int64
	Failed  int64
	Pending int64
}

type RawRepository interface {
	// InsertIgnore persists the record unless (run, hash) already exists.
	// created=false means the identical payload was already ingested in
	// this run and the insert was a no-op.
	InsertIgnore(ctx context.Context, record RawRecord) (id uint64, created bool, err error)
	Get(ctx context.Context, id uint64) (RawRecord, error)
	ListByRun(ctx context.Context, sourceRunID string) ([]RawRecord, error)
	MarkParsed(ctx context.Context, id uint64) error
	MarkParseFailed(ctx context.Context, id uint64, class string, msg string) error
	RunStats(ctx context.Context, sourceRunID string) (RawRunStats, error)
}
