package model

import "time"

// ConflictCase holds disagreeing sources on one (registration, field); the
// repository guarantees at most one open case per pair, later observations
// append candidates to it.
type ConflictCase struct {
	ConflictCaseID uint64     `gorm:"column:conflict_case_id;primaryKey;autoIncrement"`
	RegistrationID uint64     `gorm:"column:registration_id;not null;index:idx_conflict_reg_field"`
	Field          string     `gorm:"column:field;type:text;not null;index:idx_conflict_reg_field"`
	Status         string     `gorm:"column:status;type:text;not null;index"`
	WinningValue   string     `gorm:"column:winning_value;type:text;not null;default:''"`
	WinningSource  string     `gorm:"column:winning_source;type:text;not null;default:''"`
	ResolvedBy     string     `gorm:"column:resolved_by;type:text;not null;default:''"`
	ResolveReason  string     `gorm:"column:resolve_reason;type:text;not null;default:''"`
	ResolvedAt     *time.Time `gorm:"column:resolved_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;not null"`
}

func (ConflictCase) TableName() string {
	return "conflict_cases"
}
