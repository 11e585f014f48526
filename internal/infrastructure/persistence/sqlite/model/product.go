package model

import "time"

// Product rows are soft-hidden (duplicate suppression) rather than deleted;
// superseded_by_id is a one-directional canonical pointer, cycle-checked at
// write time.
type Product struct {
	ProductID      uint64    `gorm:"column:product_id;primaryKey;autoIncrement"`
	RegNo          string    `gorm:"column:reg_no;type:text;not null;uniqueIndex:uq_product_reg_source"`
	SourceKey      string    `gorm:"column:source_key;type:text;not null;uniqueIndex:uq_product_reg_source"`
	RegistrationID *uint64   `gorm:"column:registration_id;index"`
	Name           string    `gorm:"column:name;type:text;not null;default:''"`
	CompanyName    string    `gorm:"column:company_name;type:text;not null;default:''"`
	Hidden         bool      `gorm:"column:hidden;not null;default:0"`
	SupersededByID *uint64   `gorm:"column:superseded_by_id"`
	RawRecordID    *uint64   `gorm:"column:raw_record_id"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

func (Product) TableName() string {
	return "products"
}
