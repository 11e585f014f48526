package model

import "time"

// OutlierCase marks a registration whose bound-DI count crossed the
// threshold. While a case is open the DI linker skips further bindings to
// that registration.
type OutlierCase struct {
	OutlierCaseID  uint64     `gorm:"column:outlier_case_id;primaryKey;autoIncrement"`
	RegistrationID uint64     `gorm:"column:registration_id;not null;index"`
	DICount        int64      `gorm:"column:di_count;not null"`
	Threshold      int64      `gorm:"column:threshold;not null"`
	Status         string     `gorm:"column:status;type:text;not null;index"`
	ResolveReason  string     `gorm:"column:resolve_reason;type:text;not null;default:''"`
	ResolvedAt     *time.Time `gorm:"column:resolved_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
}

func (OutlierCase) TableName() string {
	return "outlier_cases"
}
