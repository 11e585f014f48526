package model

import "time"

type ConflictCandidate struct {
	ConflictCandidateID uint64    `gorm:"column:conflict_candidate_id;primaryKey;autoIncrement"`
	ConflictCaseID      uint64    `gorm:"column:conflict_case_id;not null;index"`
	Position            int       `gorm:"column:position;not null"`
	Value               string    `gorm:"column:value;type:text;not null"`
	SourceKey           string    `gorm:"column:source_key;type:text;not null"`
	EvidenceGrade       string    `gorm:"column:evidence_grade;type:text;not null"`
	Confidence          float64   `gorm:"column:confidence;not null;default:1"`
	Resolution          string    `gorm:"column:resolution;type:text;not null;default:pending"`
	SourceRunID         string    `gorm:"column:source_run_id;type:text;not null;default:''"`
	RawRecordID         *uint64   `gorm:"column:raw_record_id"`
	ObservedAt          time.Time `gorm:"column:observed_at;not null"`
}

func (ConflictCandidate) TableName() string {
	return "conflict_candidates"
}
