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

var ErrRawRecordNotFound = errors.New("raw record not found")

type RawRepository struct {
	db *gorm.DB
}

var _ ports.RawRepository = (*RawRepository)(nil)

func NewRawRepository(db *gorm.DB) *RawRepository {
	return &RawRepository{db: db}
}

func (r *RawRepository) InsertIgnore(ctx context.Context, record ports.RawRecord) (uint64, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, false, err
	}

	row := model.RawRecord{
		SourceKey:     record.SourceKey,
		SourceRunID:   record.SourceRunID,
		PayloadHash:   record.PayloadHash,
		EvidenceGrade: record.EvidenceGrade,
		Payload:       record.Payload,
		ObservedAt:    record.ObservedAt,
		ParseStatus:   ports.ParseStatusPending,
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_run_id"}, {Name: "payload_hash"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return 0, false, errs.Wrap(result.Error, "insert raw record")
	}

	if result.RowsAffected == 0 {
		var existing model.RawRecord
		if err := db.
			Where("source_run_id = ? AND payload_hash = ?", record.SourceRunID, record.PayloadHash).
			Take(&existing).Error; err != nil {
			return 0, false, errs.Wrap(err, "load existing raw record")
		}
		return existing.RawRecordID, false, nil
	}

	return row.RawRecordID, true, nil
}

func (r *RawRepository) Get(ctx context.Context, id uint64) (ports.RawRecord, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.RawRecord{}, err
	}

	var row model.RawRecord
	if err := db.Where("raw_record_id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.RawRecord{}, ErrRawRecordNotFound
		}
		return ports.RawRecord{}, errs.Wrap(err, "query raw record")
	}
	return mapRawRecord(row), nil
}

func (r *RawRepository) ListByRun(ctx context.Context, sourceRunID string) ([]ports.RawRecord, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.RawRecord
	if err := db.
		Where("source_run_id = ?", sourceRunID).
		Order("raw_record_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query raw records by run")
	}

	items := make([]ports.RawRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapRawRecord(row))
	}
	return items, nil
}

func (r *RawRepository) MarkParsed(ctx context.Context, id uint64) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	if err := db.Model(&model.RawRecord{}).
		Where("raw_record_id = ?", id).
		Update("parse_status", ports.ParseStatusParsed).Error; err != nil {
		return errs.Wrap(err, "mark raw record parsed")
	}
	return nil
}

func (r *RawRepository) MarkParseFailed(ctx context.Context, id uint64, class string, msg string) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	if err := db.Model(&model.RawRecord{}).
		Where("raw_record_id = ?", id).
		Updates(map[string]any{
			"parse_status":    ports.ParseStatusFailed,
			"parse_err_class": class,
			"parse_err_msg":   msg,
		}).Error; err != nil {
		return errs.Wrap(err, "mark raw record parse failed")
	}
	return nil
}

func (r *RawRepository) RunStats(ctx context.Context, sourceRunID string) (ports.RawRunStats, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.RawRunStats{}, err
	}

	var stats ports.RawRunStats
	type row struct {
		ParseStatus string
		N           int64
	}
	var rows []row
	if err := db.Model(&model.RawRecord{}).
		Select("parse_status, count(*) as n").
		Where("source_run_id = ?", sourceRunID).
		Group("parse_status").
		Find(&rows).Error; err != nil {
		return ports.RawRunStats{}, errs.Wrap(err, "query raw run stats")
	}

	for _, r := range rows {
		stats.Total += r.N
		switch r.ParseStatus {
		case ports.ParseStatusParsed:
			stats.Parsed = r.N
		case ports.ParseStatusFailed:
			stats.Failed = r.N
		case ports.ParseStatusPending:
			stats.Pending = r.N
		}
	}
	return stats, nil
}

func mapRawRecord(row model.RawRecord) ports.RawRecord {
	return ports.RawRecord{
		RawRecordID:   row.RawRecordID,
		SourceKey:     row.SourceKey,
		SourceRunID:   row.SourceRunID,
		PayloadHash:   row.PayloadHash,
		EvidenceGrade: row.EvidenceGrade,
		Payload:       row.Payload,
		ObservedAt:    row.ObservedAt,
		ParseStatus:   row.ParseStatus,
		ParseErrClass: row.ParseErrClass,
		ParseErrMsg:   row.ParseErrMsg,
	}
}
