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

// CheckpointStore keeps job cursors in the pipeline_kv table so interrupted
// backfills resume where they stopped.
type CheckpointStore struct {
	db *gorm.DB
}

var _ ports.CheckpointStore = (*CheckpointStore)(nil)

func NewCheckpointStore(db *gorm.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

func (s *CheckpointStore) Get(ctx context.Context, key string) (string, bool, error) {
	db, err := dbFromContext(ctx, s.db)
	if err != nil {
		return "", false, err
	}

	var row model.PipelineKV
	if err := db.Where("key = ?", key).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errs.Wrap(err, "query checkpoint")
	}
	return row.Value, true, nil
}

func (s *CheckpointStore) Set(ctx context.Context, key string, value string) error {
	db, err := dbFromContext(ctx, s.db)
	if err != nil {
		return err
	}

	row := model.PipelineKV{
		Key:       key,
		Value:     value,
		UpdatedAt: nowUTC(),
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert checkpoint")
	}
	return nil
}

func (s *CheckpointStore) Delete(ctx context.Context, key string) error {
	db, err := dbFromContext(ctx, s.db)
	if err != nil {
		return err
	}

	if err := db.Where("key = ?", key).Delete(&model.PipelineKV{}).Error; err != nil {
		return errs.Wrap(err, "delete checkpoint")
	}
	return nil
}
