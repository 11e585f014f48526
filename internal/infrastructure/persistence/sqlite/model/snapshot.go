package model

import "time"

// Snapshot keeps the per-run time series dense: one row per (registration,
// source run) whether or not any field changed.
type Snapshot struct {
	SnapshotID     uint64    `gorm:"column:snapshot_id;primaryKey;autoIncrement"`
	RegistrationID uint64    `gorm:"column:registration_id;not null;uniqueIndex:uq_snapshot_reg_run"`
	SourceRunID    string    `gorm:"column:source_run_id;type:text;not null;uniqueIndex:uq_snapshot_reg_run"`
	SourceKey      string    `gorm:"column:source_key;type:text;not null"`
	FieldsJSON     string    `gorm:"column:fields_json;type:text;not null"`
	ObservedAt     time.Time `gorm:"column:observed_at;not null;index"`
}

func (Snapshot) TableName() string {
	return "snapshots"
}
