package model

import "time"

// RawRecord rows are write-once evidence. Reruns of an identical payload
// within a run collide on (source_run_id, payload_hash) and become no-ops.
type RawRecord struct {
	RawRecordID   uint64    `gorm:"column:raw_record_id;primaryKey;autoIncrement"`
	SourceKey     string    `gorm:"column:source_key;type:text;not null;index"`
	SourceRunID   string    `gorm:"column:source_run_id;type:text;not null;uniqueIndex:uq_raw_run_hash"`
	PayloadHash   string    `gorm:"column:payload_hash;type:text;not null;uniqueIndex:uq_raw_run_hash"`
	EvidenceGrade string    `gorm:"column:evidence_grade;type:text;not null"`
	Payload       string    `gorm:"column:payload;type:text;not null"`
	ObservedAt    time.Time `gorm:"column:observed_at;not null;index"`
	ParseStatus   string    `gorm:"column:parse_status;type:text;not null;default:pending"`
	ParseErrClass string    `gorm:"column:parse_err_class;type:text;not null;default:''"`
	ParseErrMsg   string    `gorm:"column:parse_err_msg;type:text;not null;default:''"`
}

func (RawRecord) TableName() string {
	return "raw_records"
}
