package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ivdhub/internal/errs"
	"ivdhub/internal/infrastructure/persistence/sqlite/model"
	"ivdhub/internal/ports"
)

type MetricsRepository struct {
	db *gorm.DB
}

var _ ports.MetricsRepository = (*MetricsRepository)(nil)

func NewMetricsRepository(db *gorm.DB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

// UpsertDay replaces the whole row for the day; recomputation is idempotent
// because every value is derived from the change trail, never incremented.
func (r *MetricsRepository) UpsertDay(ctx context.Context, metric ports.DailyMetric) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.DailyMetric{
		Day:              metric.Day,
		NewRegistrations: metric.NewRegistrations,
		Updates:          metric.Updates,
		Cancellations:    metric.Cancellations,
		Expirations:      metric.Expirations,
		ConflictsOpened:  metric.ConflictsOpened,
		PendingOpened:    metric.PendingOpened,
		DevicesBound:     metric.DevicesBound,
		ComputedAt:       metric.ComputedAt,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"new_registrations", "updates", "cancellations", "expirations",
			"conflicts_opened", "pending_opened", "devices_bound", "computed_at",
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert daily metric")
	}
	return nil
}

func (r *MetricsRepository) GetDay(ctx context.Context, day string) (ports.DailyMetric, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.DailyMetric{}, false, err
	}

	var row model.DailyMetric
	if err := db.Where("day = ?", day).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.DailyMetric{}, false, nil
		}
		return ports.DailyMetric{}, false, errs.Wrap(err, "query daily metric")
	}
	return mapDailyMetric(row), true, nil
}

func (r *MetricsRepository) ListDays(ctx context.Context, from, to string) ([]ports.DailyMetric, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.DailyMetric{}).Order("day asc")
	if from != "" {
		query = query.Where("day >= ?", from)
	}
	if to != "" {
		query = query.Where("day <= ?", to)
	}

	var rows []model.DailyMetric
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query daily metrics")
	}

	items := make([]ports.DailyMetric, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapDailyMetric(row))
	}
	return items, nil
}

func mapDailyMetric(row model.DailyMetric) ports.DailyMetric {
	return ports.DailyMetric{
		Day:              row.Day,
		NewRegistrations: row.NewRegistrations,
		Updates:          row.Updates,
		Cancellations:    row.Cancellations,
		Expirations:      row.Expirations,
		ConflictsOpened:  row.ConflictsOpened,
		PendingOpened:    row.PendingOpened,
		DevicesBound:     row.DevicesBound,
		ComputedAt:       row.ComputedAt,
	}
}
