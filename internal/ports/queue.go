package ports

import (
	"context"
	"errors"
	"time"
)

var (
	ErrPendingItemNotFound  = errors.New("pending item not found")
	ErrPendingLinkNotFound  = errors.New("pending link not found")
	ErrConflictCaseNotFound = errors.New("conflict case not found")
	ErrOutlierCaseNotFound  = errors.New("outlier case not found")
)

// Queue entry status values shared by pending items, pending links and
// cases.
const (
	QueueStatusOpen     = "open"
	QueueStatusResolved = "resolved"
	QueueStatusIgnored  = "ignored"
)

// Pending item kinds.
const (
	PendingKindRecord   = "record"
	PendingKindDocument = "document"
)

// PendingItem is a payload or document that failed anchor resolution,
// queued for retry instead of being dropped or guessed.
type PendingItem struct {
	PendingItemID uint64
	Kind          string
	SourceKey     string
	DedupeKey     string
	ReasonCode    string
	RawRecordID   *uint64
	PayloadJSON   string
	Attempts      int
	NextRetryAt   *time.Time
	Terminal      bool
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PendingLink is an unmatched device identifier awaiting binding.
type PendingLink struct {
	PendingLinkID uint64
	DI            string
	ReasonCode    string
	RawRecordID   *uint64
	PayloadJSON   string
	Attempts      int
	NextRetryAt   *time.Time
	Terminal      bool
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Candidate resolution values.
const (
	CandidatePending  = "pending"
	CandidateApplied  = "applied"
	CandidateRejected = "rejected"
)

// ConflictCase tracks disagreeing sources on one (registration, field).
type ConflictCase struct {
	ConflictCaseID uint64
	RegistrationID uint64
	Field          string
	Status         string
	WinningValue   string
	WinningSource  string
	ResolvedBy     string
	ResolveReason  string
	ResolvedAt     *time.Time
	CreatedAt      time.Time
}

// ConflictCandidate is one observed value inside a case, preserved whether
// it wins or loses.
type ConflictCandidate struct {
	ConflictCandidateID uint64
	ConflictCaseID      uint64
	Position            int
	Value               string
	SourceKey           string
	EvidenceGrade       string
	Confidence          float64
	Resolution          string
	SourceRunID         string
	RawRecordID         *uint64
	ObservedAt          time.Time
}

// OutlierCase quarantines a registration whose bound-DI count crossed the
// configured threshold.
type OutlierCase struct {
	OutlierCaseID  uint64
	RegistrationID uint64
	DICount        int64
	Threshold      int64
	Status         string
	ResolveReason  string
	ResolvedAt     *time.Time
	CreatedAt      time.Time
}

type QueueRepository interface {
	// UpsertPendingItem opens a new item or touches the existing open one
	// for the same (kind, dedupe key); re-ingesting the same failure never
	// duplicates backlog. created=false means an open item already existed.
	UpsertPendingItem(ctx context.Context, item PendingItem) (PendingItem, bool, error)
	GetPendingItem(ctx context.Context, id uint64) (PendingItem, error)
	ListOpenPendingItems(ctx context.Context, limit int) ([]PendingItem, error)
	ListDuePendingItems(ctx context.Context, now time.Time, limit int) ([]PendingItem, error)
	ReschedulePendingItem(ctx context.Context, id uint64, attempts int, nextRetryAt *time.Time, terminal bool, updatedAt time.Time) error
	SetPendingItemStatus(ctx context.Context, id uint64, status string, updatedAt time.Time) error

	UpsertPendingLink(ctx context.Context, link PendingLink) (PendingLink, bool, error)
	ListDuePendingLinks(ctx context.Context, now time.Time, limit int) ([]PendingLink, error)
	ReschedulePendingLink(ctx context.Context, id uint64, attempts int, nextRetryAt *time.Time, terminal bool, updatedAt time.Time) error
	SetPendingLinkStatus(ctx context.Context, id uint64, status string, updatedAt time.Time) error

	GetOpenConflict(ctx context.Context, registrationID uint64, field string) (ConflictCase, error)
	GetConflict(ctx context.Context, id uint64) (ConflictCase, error)
	CreateConflict(ctx context.Context, c ConflictCase) (ConflictCase, error)
	AppendCandidate(ctx context.Context, candidate ConflictCandidate) (ConflictCandidate, error)
	ListCandidates(ctx context.Context, conflictCaseID uint64) ([]ConflictCandidate, error)
	ListOpenConflicts(ctx context.Context, limit int) ([]ConflictCase, error)
	// ResolveConflict closes the case and stamps every candidate as applied
	// or rejected; the audit trail keeps all of them.
	ResolveConflict(ctx context.Context, id uint64, winner ConflictCandidate, resolvedBy string, reason string, resolvedAt time.Time) error

	HasOpenOutlier(ctx context.Context, registrationID uint64) (bool, error)
	// ClearedOutlierCount is the highest DI count an operator has already
	// signed off for the registration; zero when no case was resolved.
	ClearedOutlierCount(ctx context.Context, registrationID uint64) (int64, error)
	CreateOutlier(ctx context.Context, c OutlierCase) (OutlierCase, bool, error)
	ListOpenOutliers(ctx context.Context, limit int) ([]OutlierCase, error)
	ResolveOutlier(ctx context.Context, id uint64, reason string, resolvedAt time.Time) error
}
