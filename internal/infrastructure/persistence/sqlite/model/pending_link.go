package model

import "time"

// PendingLink allows at most one open row per DI; the partial unique index
// backs up the repository's lookup-then-insert.
type PendingLink struct {
	PendingLinkID uint64     `gorm:"column:pending_link_id;primaryKey;autoIncrement"`
	DI            string     `gorm:"column:di;type:text;not null;index;index:uq_pending_open_di,unique,where:status = 'open'"`
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

func (PendingLink) TableName() string {
	return "pending_links"
}
