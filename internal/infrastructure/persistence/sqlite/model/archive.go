package model

import "time"

type ArchiveBatch struct {
	BatchID      string     `gorm:"column:batch_id;type:text;primaryKey"`
	Status       string     `gorm:"column:status;type:text;not null"`
	Reason       string     `gorm:"column:reason;type:text;not null;default:''"`
	ScopeJSON    string     `gorm:"column:scope_json;type:text;not null;default:'{}'"`
	ProductCount int64      `gorm:"column:product_count;not null;default:0"`
	EventCount   int64      `gorm:"column:event_count;not null;default:0"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null"`
	RestoredAt   *time.Time `gorm:"column:restored_at"`
}

func (ArchiveBatch) TableName() string {
	return "archive_batches"
}

// ArchivedProduct mirrors the canonical product columns plus the batch
// scope, so a full restore is a single filtered copy-back.
type ArchivedProduct struct {
	ArchivedProductID uint64    `gorm:"column:archived_product_id;primaryKey;autoIncrement"`
	BatchID           string    `gorm:"column:batch_id;type:text;not null;index"`
	ArchivedAt        time.Time `gorm:"column:archived_at;not null"`
	Reason            string    `gorm:"column:reason;type:text;not null;default:''"`

	ProductID      uint64    `gorm:"column:product_id;not null"`
	RegNo          string    `gorm:"column:reg_no;type:text;not null"`
	SourceKey      string    `gorm:"column:source_key;type:text;not null"`
	RegistrationID *uint64   `gorm:"column:registration_id"`
	Name           string    `gorm:"column:name;type:text;not null;default:''"`
	CompanyName    string    `gorm:"column:company_name;type:text;not null;default:''"`
	Hidden         bool      `gorm:"column:hidden;not null;default:0"`
	SupersededByID *uint64   `gorm:"column:superseded_by_id"`
	RawRecordID    *uint64   `gorm:"column:raw_record_id"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

func (ArchivedProduct) TableName() string {
	return "archived_products"
}

type ArchivedChangeEvent struct {
	ArchivedChangeEventID uint64    `gorm:"column:archived_change_event_id;primaryKey;autoIncrement"`
	BatchID               string    `gorm:"column:batch_id;type:text;not null;index"`
	ArchivedAt            time.Time `gorm:"column:archived_at;not null"`
	Reason                string    `gorm:"column:reason;type:text;not null;default:''"`

	ChangeEventID uint64    `gorm:"column:change_event_id;not null"`
	EntityType    string    `gorm:"column:entity_type;type:text;not null"`
	EntityID      uint64    `gorm:"column:entity_id;not null"`
	Kind          string    `gorm:"column:kind;type:text;not null"`
	Field         string    `gorm:"column:field;type:text;not null;default:''"`
	Before        string    `gorm:"column:before_value;type:text;not null;default:''"`
	After         string    `gorm:"column:after_value;type:text;not null;default:''"`
	SourceRunID   string    `gorm:"column:source_run_id;type:text;not null"`
	OccurredAt    time.Time `gorm:"column:occurred_at;not null"`
}

func (ArchivedChangeEvent) TableName() string {
	return "archived_change_events"
}
