package model

type FieldDiff struct {
	FieldDiffID    uint64  `gorm:"column:field_diff_id;primaryKey;autoIncrement"`
	SnapshotID     uint64  `gorm:"column:snapshot_id;not null;index"`
	RegistrationID uint64  `gorm:"column:registration_id;not null;index"`
	Field          string  `gorm:"column:field;type:text;not null"`
	Before         string  `gorm:"column:before_value;type:text;not null;default:''"`
	After          string  `gorm:"column:after_value;type:text;not null;default:''"`
	Kind           string  `gorm:"column:kind;type:text;not null"`
	Severity       string  `gorm:"column:severity;type:text;not null"`
	Confidence     float64 `gorm:"column:confidence;not null;default:1"`
}

func (FieldDiff) TableName() string {
	return "field_diffs"
}
