package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ivdhub/internal/errs"
	"ivdhub/internal/infrastructure/persistence/sqlite/model"
	"ivdhub/internal/ports"
)

type HistoryRepository struct {
	db *gorm.DB
}

var _ ports.HistoryRepository = (*HistoryRepository)(nil)

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) LatestSnapshot(ctx context.Context, registrationID uint64) (ports.Snapshot, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Snapshot{}, err
	}

	var row model.Snapshot
	if err := db.
		Where("registration_id = ?", registrationID).
		Order("snapshot_id desc").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Snapshot{}, ports.ErrSnapshotNotFound
		}
		return ports.Snapshot{}, errs.Wrap(err, "query latest snapshot")
	}
	return mapSnapshot(row), nil
}

func (r *HistoryRepository) InsertSnapshot(ctx context.Context, snapshot ports.Snapshot) (uint64, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, false, err
	}

	row := model.Snapshot{
		RegistrationID: snapshot.RegistrationID,
		SourceRunID:    snapshot.SourceRunID,
		SourceKey:      snapshot.SourceKey,
		FieldsJSON:     snapshot.FieldsJSON,
		ObservedAt:     snapshot.ObservedAt,
	}

	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "registration_id"}, {Name: "source_run_id"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return 0, false, errs.Wrap(result.Error, "insert snapshot")
	}

	if result.RowsAffected == 0 {
		var existing model.Snapshot
		if err := db.
			Where("registration_id = ? AND source_run_id = ?", snapshot.RegistrationID, snapshot.SourceRunID).
			Take(&existing).Error; err != nil {
			return 0, false, errs.Wrap(err, "load existing snapshot")
		}
		return existing.SnapshotID, false, nil
	}
	return row.SnapshotID, true, nil
}

func (r *HistoryRepository) InsertFieldDiffs(ctx context.Context, diffs []ports.FieldDiff) error {
	if len(diffs) == 0 {
		return nil
	}

	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	rows := make([]model.FieldDiff, 0, len(diffs))
	for _, diff := range diffs {
		rows = append(rows, model.FieldDiff{
			SnapshotID:     diff.SnapshotID,
			RegistrationID: diff.RegistrationID,
			Field:          diff.Field,
			Before:         diff.Before,
			After:          diff.After,
			Kind:           diff.Kind,
			Severity:       diff.Severity,
			Confidence:     diff.Confidence,
		})
	}
	if err := db.Create(&rows).Error; err != nil {
		return errs.Wrap(err, "insert field diffs")
	}
	return nil
}

func (r *HistoryRepository) ListFieldDiffs(ctx context.Context, registrationID uint64, limit int) ([]ports.FieldDiff, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.FieldDiff{}).
		Where("registration_id = ?", registrationID).
		Order("field_diff_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.FieldDiff
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query field diffs")
	}

	items := make([]ports.FieldDiff, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.FieldDiff{
			FieldDiffID:    row.FieldDiffID,
			SnapshotID:     row.SnapshotID,
			RegistrationID: row.RegistrationID,
			Field:          row.Field,
			Before:         row.Before,
			After:          row.After,
			Kind:           row.Kind,
			Severity:       row.Severity,
			Confidence:     row.Confidence,
		})
	}
	return items, nil
}

func (r *HistoryRepository) AppendChangeEvent(ctx context.Context, event ports.ChangeEvent) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	row := model.ChangeEvent{
		EntityType:  event.EntityType,
		EntityID:    event.EntityID,
		Kind:        event.Kind,
		Field:       event.Field,
		Before:      event.Before,
		After:       event.After,
		SourceRunID: event.SourceRunID,
		OccurredAt:  event.OccurredAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return errs.Wrap(err, "append change event")
	}
	return nil
}

// ListChangeEvents returns the newest events first so a limited read still
// sees the most recent assertions for long-lived registrations.
func (r *HistoryRepository) ListChangeEvents(ctx context.Context, entityType string, entityID uint64, limit int) ([]ports.ChangeEvent, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.ChangeEvent{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("change_event_id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.ChangeEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query change events")
	}
	return mapChangeEvents(rows), nil
}

func (r *HistoryRepository) ListChangeEventsBetween(ctx context.Context, from, to time.Time) ([]ports.ChangeEvent, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.ChangeEvent
	if err := db.Model(&model.ChangeEvent{}).
		Where("occurred_at >= ? AND occurred_at < ?", from, to).
		Order("change_event_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query change events between")
	}
	return mapChangeEvents(rows), nil
}

func (r *HistoryRepository) CountChangeEventsByRun(ctx context.Context, sourceRunID string) (int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := db.Model(&model.ChangeEvent{}).
		Where("source_run_id = ?", sourceRunID).
		Count(&n).Error; err != nil {
		return 0, errs.Wrap(err, "count change events by run")
	}
	return n, nil
}

func mapSnapshot(row model.Snapshot) ports.Snapshot {
	return ports.Snapshot{
		SnapshotID:     row.SnapshotID,
		RegistrationID: row.RegistrationID,
		SourceRunID:    row.SourceRunID,
		SourceKey:      row.SourceKey,
		FieldsJSON:     row.FieldsJSON,
		ObservedAt:     row.ObservedAt,
	}
}

func mapChangeEvents(rows []model.ChangeEvent) []ports.ChangeEvent {
	items := make([]ports.ChangeEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.ChangeEvent{
			ChangeEventID: row.ChangeEventID,
			EntityType:    row.EntityType,
			EntityID:      row.EntityID,
			Kind:          row.Kind,
			Field:         row.Field,
			Before:        row.Before,
			After:         row.After,
			SourceRunID:   row.SourceRunID,
			OccurredAt:    row.OccurredAt,
		})
	}
	return items
}
