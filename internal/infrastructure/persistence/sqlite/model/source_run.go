package model

import "time"

type SourceRun struct {
	SourceRunID   string     `gorm:"column:source_run_id;type:text;primaryKey"`
	SourceKey     string     `gorm:"column:source_key;type:text;not null;index"`
	Status        string     `gorm:"column:status;type:text;not null;index"`
	Fetched       int64      `gorm:"column:fetched;not null;default:0"`
	FetchFailed   int64      `gorm:"column:fetch_failed;not null;default:0"`
	Parsed        int64      `gorm:"column:parsed;not null;default:0"`
	ParseFailed   int64      `gorm:"column:parse_failed;not null;default:0"`
	Anchored      int64      `gorm:"column:anchored;not null;default:0"`
	AnchorPending int64      `gorm:"column:anchor_pending;not null;default:0"`
	Changes       int64      `gorm:"column:changes;not null;default:0"`
	Conflicts     int64      `gorm:"column:conflicts;not null;default:0"`
	DIBound       int64      `gorm:"column:di_bound;not null;default:0"`
	DIPending     int64      `gorm:"column:di_pending;not null;default:0"`
	DISkipped     int64      `gorm:"column:di_skipped;not null;default:0"`
	FailReason    string     `gorm:"column:fail_reason;type:text;not null;default:''"`
	StartedAt     time.Time  `gorm:"column:started_at;not null"`
	FinishedAt    *time.Time `gorm:"column:finished_at"`
}

func (SourceRun) TableName() string {
	return "source_runs"
}
