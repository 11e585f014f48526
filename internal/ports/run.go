package ports

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRunNotFound          = errors.New("source run not found")
	ErrSourceConfigNotFound = errors.New("source config not found")
)

// Source run status values.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
)

// SourceRun is the bookkeeping row for one batch job.
type SourceRun struct {
	SourceRunID string
	SourceKey   string
	Status      string
	Counters    RunCounters
	StartedAt   time.Time
	FinishedAt  *time.Time
	FailReason  string
}

// RunCounters are the per-run statistics surfaced to operators.
type RunCounters struct {
	Fetched       int64
	FetchFailed   int64
	Parsed        int64
	ParseFailed   int64
	Anchored      int64
	AnchorPending int64
	Changes       int64
	Conflicts     int64
	DIBound       int64
	DIPending     int64
	DISkipped     int64
}

type RunRepository interface {
	Create(ctx context.Context, run SourceRun) error
	Get(ctx context.Context, sourceRunID string) (SourceRun, error)
	// HasActiveRun guards the one-in-flight-run-per-source rule.
	HasActiveRun(ctx context.Context, sourceKey string) (bool, error)
	Finish(ctx context.Context, sourceRunID string, status string, counters RunCounters, failReason string) error
}

// SourceConfig is the mutable runtime half of a source definition.
type SourceConfig struct {
	SourceKey  string
	Enabled    bool
	Schedule   string
	FeedURL    string
	ParamsJSON string
	UpdatedAt  time.Time
}

type SourceConfigRepository interface {
	// Seed inserts missing rows for the static catalog; existing rows keep
	// their runtime state.
	Seed(ctx context.Context, configs []SourceConfig) error
	List(ctx context.Context) ([]SourceConfig, error)
	Get(ctx context.Context, sourceKey string) (SourceConfig, error)
	SetEnabled(ctx context.Context, sourceKey string, enabled bool) error
}
