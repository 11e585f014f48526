package model

import "time"

// SourceConfig is the mutable runtime row per source; the immutable half
// (grade, parser, authoritative flag) lives in the static catalog.
type SourceConfig struct {
	SourceKey  string    `gorm:"column:source_key;type:text;primaryKey"`
	Enabled    bool      `gorm:"column:enabled;not null;default:1"`
	Schedule   string    `gorm:"column:schedule;type:text;not null;default:''"`
	FeedURL    string    `gorm:"column:feed_url;type:text;not null;default:''"`
	ParamsJSON string    `gorm:"column:params_json;type:text;not null;default:'{}'"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (SourceConfig) TableName() string {
	return "source_configs"
}
