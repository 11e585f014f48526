package model

import "time"

// SchemaLog records additive, idempotent schema evolution: one row per
// applied schema version.
type SchemaLog struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Version   int       `gorm:"column:version;uniqueIndex;not null"`
	AppliedAt time.Time `gorm:"column:applied_at;not null"`
}

func (SchemaLog) TableName() string {
	return "schema_log"
}
