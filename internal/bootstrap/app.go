package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ivdhub/internal/bootstrap/config"
	"ivdhub/internal/bootstrap/database"
	"ivdhub/internal/bootstrap/logging"
	"ivdhub/internal/errs"
	"ivdhub/internal/infrastructure/persistence/sqlite/model"
)

// schemaVersion bumps whenever InitSchema learns a new additive migration.
const schemaVersion = 1

type App struct {
	Config config.Config
	DB     *gorm.DB
}

func New(ctx context.Context, configFile string) (*App, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "loading application config", slog.String("config_file", configFile))

	cfg, err := config.Load(logCtx, configFile)
	if err != nil {
		return nil, errs.Wrap(err, "load config")
	}

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, errs.Wrap(err, "open database")
	}

	logging.Info(logCtx, "application bootstrap completed", slog.String("database_driver", cfg.Database.Driver))

	return &App{
		Config: cfg,
		DB:     db,
	}, nil
}

// InitSchema applies the additive schema. AutoMigrate only ever adds tables
// and columns, so re-running it against an existing database is safe.
func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := a.DB.WithContext(ctx).AutoMigrate(
		&model.RawRecord{},
		&model.SourceConfig{},
		&model.SourceRun{},
		&model.Registration{},
		&model.Product{},
		&model.DeviceVariant{},
		&model.Snapshot{},
		&model.FieldDiff{},
		&model.ChangeEvent{},
		&model.PendingItem{},
		&model.PendingLink{},
		&model.ConflictCase{},
		&model.ConflictCandidate{},
		&model.OutlierCase{},
		&model.ArchiveBatch{},
		&model.ArchivedProduct{},
		&model.ArchivedChangeEvent{},
		&model.DailyMetric{},
		&model.PipelineKV{},
		&model.SchemaLog{},
	); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logRow := model.SchemaLog{Version: schemaVersion, AppliedAt: time.Now().UTC()}
	if err := a.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "version"}},
		DoNothing: true,
	}).Create(&logRow).Error; err != nil {
		return errs.Wrap(err, "record schema version")
	}

	logging.Info(logCtx, "schema migration completed", slog.Int("version", schemaVersion))
	return nil
}

func (a *App) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	sqlDB, err := a.DB.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}

	if err := sqlDB.Close(); err != nil {
		return errs.Wrap(err, "close sql db")
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "bootstrap.app")), "database connection closed")
	return nil
}
