package model

import "time"

type DailyMetric struct {
	Day              string    `gorm:"column:day;type:text;primaryKey"`
	NewRegistrations int64     `gorm:"column:new_registrations;not null;default:0"`
	Updates          int64     `gorm:"column:updates;not null;default:0"`
	Cancellations    int64     `gorm:"column:cancellations;not null;default:0"`
	Expirations      int64     `gorm:"column:expirations;not null;default:0"`
	ConflictsOpened  int64     `gorm:"column:conflicts_opened;not null;default:0"`
	PendingOpened    int64     `gorm:"column:pending_opened;not null;default:0"`
	DevicesBound     int64     `gorm:"column:devices_bound;not null;default:0"`
	ComputedAt       time.Time `gorm:"column:computed_at;not null"`
}

func (DailyMetric) TableName() string {
	return "daily_metrics"
}
