package model

import "time"

// PendingItem backlog allows at most one open row per (kind, dedupe_key);
// the partial unique index backs up the repository's lookup-then-insert.
type PendingItem struct {
	PendingItemID uint64     `gorm:"column:pending_item_id;primaryKey;autoIncrement"`
	Kind          string     `gorm:"column:kind;type:text;not null;index:idx_pending_kind_key;index:uq_pending_open_key,unique,where:status = 'open'"`
	SourceKey     string     `gorm:"column:source_key;type:text;not null"`
	DedupeKey     string     `gorm:"column:dedupe_key;type:text;not null;index:idx_pending_kind_key;index:uq_pending_open_key,unique,where:status = 'open'"`
	ReasonCode    string     `gorm:"column:reason_code;type:text;not null"`
	RawRecordID   *uint64    `gorm:"column:raw_record_id"`
	PayloadJSON   string     `gorm:"column:payload_json;type:text;not null;default:'{}'"`
	Attempts      int        `gorm:"column:attempts;not null;default:0"`
	NextRetryAt   *time.Time `gorm:"column:next_retry_at;index"`
	Terminal      bool       `gorm:"column:terminal;not null;default:0"`
	Status        string     `gorm:"column:status;type:text;not null;index"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;not null"`
}

func (PendingItem) TableName() string {
	return "pending_items"
}
