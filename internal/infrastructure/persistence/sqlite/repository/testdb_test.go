package repository

import (
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ivdhub/internal/infrastructure/persistence/sqlite/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(
		&model.SourceConfig{},
		&model.SourceRun{},
		&model.RawRecord{},
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
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}
