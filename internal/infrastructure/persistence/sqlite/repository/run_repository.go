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

type RunRepository struct {
	db *gorm.DB
}

var _ ports.RunRepository = (*RunRepository)(nil)

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(ctx context.Context, run ports.SourceRun) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.SourceRun{
		SourceRunID: run.SourceRunID,
		SourceKey:   run.SourceKey,
		Status:      run.Status,
		StartedAt:   run.StartedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "insert source run")
	}
	return nil
}

func (r *RunRepository) Get(ctx context.Context, sourceRunID string) (ports.SourceRun, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.SourceRun{}, err
	}

	var row model.SourceRun
	if err := db.Where("source_run_id = ?", sourceRunID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.SourceRun{}, ports.ErrRunNotFound
		}
		return ports.SourceRun{}, errs.Wrap(err, "query source run")
	}
	return mapSourceRun(row), nil
}

func (r *RunRepository) HasActiveRun(ctx context.Context, sourceKey string) (bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return false, err
	}

	var n int64
	if err := db.Model(&model.SourceRun{}).
		Where("source_key = ? AND status = ?", sourceKey, ports.RunStatusRunning).
		Count(&n).Error; err != nil {
		return false, errs.Wrap(err, "count active runs")
	}
	return n > 0, nil
}

func (r *RunRepository) Finish(ctx context.Context, sourceRunID string, status string, counters ports.RunCounters, failReason string) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	now := nowUTC()
	if err := db.Model(&model.SourceRun{}).
		Where("source_run_id = ?", sourceRunID).
		Updates(map[string]any{
			"status":         status,
			"fetched":        counters.Fetched,
			"fetch_failed":   counters.FetchFailed,
			"parsed":         counters.Parsed,
			"parse_failed":   counters.ParseFailed,
			"anchored":       counters.Anchored,
			"anchor_pending": counters.AnchorPending,
			"changes":        counters.Changes,
			"conflicts":      counters.Conflicts,
			"di_bound":       counters.DIBound,
			"di_pending":     counters.DIPending,
			"di_skipped":     counters.DISkipped,
			"fail_reason":    failReason,
			"finished_at":    now,
		}).Error; err != nil {
		return errs.Wrap(err, "finish source run")
	}
	return nil
}

func mapSourceRun(row model.SourceRun) ports.SourceRun {
	return ports.SourceRun{
		SourceRunID: row.SourceRunID,
		SourceKey:   row.SourceKey,
		Status:      row.Status,
		Counters: ports.RunCounters{
			Fetched:       row.Fetched,
			FetchFailed:   row.FetchFailed,
			Parsed:        row.Parsed,
			ParseFailed:   row.ParseFailed,
			Anchored:      row.Anchored,
			AnchorPending: row.AnchorPending,
			Changes:       row.Changes,
			Conflicts:     row.Conflicts,
			DIBound:       row.DIBound,
			DIPending:     row.DIPending,
			DISkipped:     row.DISkipped,
		},
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
		FailReason: row.FailReason,
	}
}

type SourceConfigRepository struct {
	db *gorm.DB
}

var _ ports.SourceConfigRepository = (*SourceConfigRepository)(nil)

func NewSourceConfigRepository(db *gorm.DB) *SourceConfigRepository {
	return &SourceConfigRepository{db: db}
}

func (r *SourceConfigRepository) Seed(ctx context.Context, configs []ports.SourceConfig) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	for _, cfg := range configs {
		row := model.SourceConfig{
			SourceKey:  cfg.SourceKey,
			Enabled:    cfg.Enabled,
			Schedule:   cfg.Schedule,
			FeedURL:    cfg.FeedURL,
			ParamsJSON: cfg.ParamsJSON,
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_key"}},
			DoNothing: true,
		}).Create(&row).Error; err != nil {
			return errs.Wrapf(err, "seed source config %q", cfg.SourceKey)
		}
	}
	return nil
}

func (r *SourceConfigRepository) List(ctx context.Context) ([]ports.SourceConfig, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.SourceConfig
	if err := db.Order("source_key asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query source configs")
	}

	items := make([]ports.SourceConfig, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapSourceConfig(row))
	}
	return items, nil
}

func (r *SourceConfigRepository) Get(ctx context.Context, sourceKey string) (ports.SourceConfig, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.SourceConfig{}, err
	}

	var row model.SourceConfig
	if err := db.Where("source_key = ?", sourceKey).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.SourceConfig{}, ports.ErrSourceConfigNotFound
		}
		return ports.SourceConfig{}, errs.Wrap(err, "query source config")
	}
	return mapSourceConfig(row), nil
}

func (r *SourceConfigRepository) SetEnabled(ctx context.Context, sourceKey string, enabled bool) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.SourceConfig{}).
		Where("source_key = ?", sourceKey).
		Update("enabled", enabled)
	if result.Error != nil {
		return errs.Wrap(result.Error, "update source config enabled")
	}
	if result.RowsAffected == 0 {
		return ports.ErrSourceConfigNotFound
	}
	return nil
}

func mapSourceConfig(row model.SourceConfig) ports.SourceConfig {
	return ports.SourceConfig{
		SourceKey:  row.SourceKey,
		Enabled:    row.Enabled,
		Schedule:   row.Schedule,
		FeedURL:    row.FeedURL,
		ParamsJSON: row.ParamsJSON,
		UpdatedAt:  row.UpdatedAt,
	}
}
