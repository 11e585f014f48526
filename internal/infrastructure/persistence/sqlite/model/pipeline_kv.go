package model

import "time"

// PipelineKV backs resumable checkpoints (cursor + metadata) for
// long-running jobs such as full UDI backfills.
type PipelineKV struct {
	Key       string    `gorm:"column:key;type:text;primaryKey"`
	Value     string    `gorm:"column:value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (PipelineKV) TableName() string {
	return "pipeline_kv"
}
