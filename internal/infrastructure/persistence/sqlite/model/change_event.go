package model

import "time"

// ChangeEvent rows are append-only; deletion happens only through the
// archival manager after an archive copy exists.
type ChangeEvent struct {
	ChangeEventID uint64    `gorm:"column:change_event_id;primaryKey;autoIncrement"`
	EntityType    string    `gorm:"column:entity_type;type:text;not null;index:idx_change_entity"`
	EntityID      uint64    `gorm:"column:entity_id;not null;index:idx_change_entity"`
	Kind          string    `gorm:"column:kind;type:text;not null"`
	Field         string    `gorm:"column:field;type:text;not null;default:''"`
	Before        string    `gorm:"column:before_value;type:text;not null;default:''"`
	After         string    `gorm:"column:after_value;type:text;not null;default:''"`
	SourceRunID   string    `gorm:"column:source_run_id;type:text;not null;index"`
	OccurredAt    time.Time `gorm:"column:occurred_at;not null;index"`
}

func (ChangeEvent) TableName() string {
	return "change_events"
}
