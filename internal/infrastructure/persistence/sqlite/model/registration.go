package model

import "time"

// Registration is the canonical anchor. Rows are never deleted directly;
// removal goes through the archival manager with a recorded batch id.
type Registration struct {
	RegistrationID uint64    `gorm:"column:registration_id;primaryKey;autoIncrement"`
	RegistrationNo string    `gorm:"column:registration_no;type:text;not null;uniqueIndex"`
	Status         string    `gorm:"column:status;type:text;not null;default:''"`
	ApprovedAt     string    `gorm:"column:approved_at;type:text;not null;default:''"`
	ExpiresAt      string    `gorm:"column:expires_at;type:text;not null;default:''"`
	ProductName    string    `gorm:"column:product_name;type:text;not null;default:''"`
	CompanyName    string    `gorm:"column:company_name;type:text;not null;default:''"`
	Category       string    `gorm:"column:category;type:text;not null;default:''"`
	Model          string    `gorm:"column:model;type:text;not null;default:''"`
	Description    string    `gorm:"column:description;type:text;not null;default:''"`
	MetaJSON       string    `gorm:"column:meta_json;type:text;not null;default:'{}'"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

func (Registration) TableName() string {
	return "registrations"
}
