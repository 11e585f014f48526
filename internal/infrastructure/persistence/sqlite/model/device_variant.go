package model

import "time"

type DeviceVariant struct {
	DeviceVariantID uint64    `gorm:"column:device_variant_id;primaryKey;autoIncrement"`
	DI              string    `gorm:"column:di;type:text;not null;uniqueIndex"`
	RegistrationID  *uint64   `gorm:"column:registration_id;index"`
	PackagingLevel  string    `gorm:"column:packaging_level;type:text;not null;default:''"`
	Model           string    `gorm:"column:model;type:text;not null;default:''"`
	AttrsJSON       string    `gorm:"column:attrs_json;type:text;not null;default:'{}'"`
	MatchConfidence float64   `gorm:"column:match_confidence;not null;default:0"`
	MatchReason     string    `gorm:"column:match_reason;type:text;not null;default:''"`
	Reversible      bool      `gorm:"column:reversible;not null;default:0"`
	RawRecordID     *uint64   `gorm:"column:raw_record_id"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null"`
}

func (DeviceVariant) TableName() string {
	return "device_variants"
}
