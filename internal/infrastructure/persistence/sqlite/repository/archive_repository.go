package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/errs"
	"ivdhub/internal/infrastructure/persistence/sqlite/model"
	"ivdhub/internal/ports"
)

type ArchiveRepository struct {
	db *gorm.DB
}

var _ ports.ArchiveRepository = (*ArchiveRepository)(nil)

func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

func archiveProductQuery(db *gorm.DB, filter ports.ArchiveFilter) *gorm.DB {
	query := db.Model(&model.Product{})
	if filter.SourceKey != "" {
		query = query.Where("source_key = ?", filter.SourceKey)
	}
	if filter.HiddenOnly {
		query = query.Where("hidden = ?", true)
	}
	if !filter.Before.IsZero() {
		query = query.Where("updated_at < ?", filter.Before)
	}
	return query
}

func archiveEventQuery(db *gorm.DB, filter ports.ArchiveFilter) *gorm.DB {
	return db.Model(&model.ChangeEvent{}).
		Where("entity_type = ?", "product").
		Where("entity_id IN (?)", archiveProductQuery(db.Session(&gorm.Session{NewDB: true}), filter).Select("product_id"))
}

func (r *ArchiveRepository) CountMatching(ctx context.Context, filter ports.ArchiveFilter) (ports.ArchiveCounts, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.ArchiveCounts{}, err
	}

	var counts ports.ArchiveCounts
	if err := archiveProductQuery(db, filter).Count(&counts.Products).Error; err != nil {
		return ports.ArchiveCounts{}, errs.Wrap(err, "count archivable products")
	}
	if err := archiveEventQuery(db, filter).Count(&counts.ChangeEvents).Error; err != nil {
		return ports.ArchiveCounts{}, errs.Wrap(err, "count archivable change events")
	}
	return counts, nil
}

// ArchiveAndDelete copies first and deletes second; the caller wraps both in
// one transaction so a failure anywhere leaves the canonical tables intact.
func (r *ArchiveRepository) ArchiveAndDelete(ctx context.Context, filter ports.ArchiveFilter, batch ports.ArchiveBatch) (ports.ArchiveCounts, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.ArchiveCounts{}, err
	}

	var products []model.Product
	if err := archiveProductQuery(db, filter).Order("product_id asc").Find(&products).Error; err != nil {
		return ports.ArchiveCounts{}, errs.Wrap(err, "load archivable products")
	}

	productIDs := make([]uint64, 0, len(products))
	for _, p := range products {
		productIDs = append(productIDs, p.ProductID)
	}

	var events []model.ChangeEvent
	if len(productIDs) > 0 {
		if err := db.Model(&model.ChangeEvent{}).
			Where("entity_type = ? AND entity_id IN ?", "product", productIDs).
			Order("change_event_id asc").
			Find(&events).Error; err != nil {
			return ports.ArchiveCounts{}, errs.Wrap(err, "load archivable change events")
		}
	}

	batchRow := model.ArchiveBatch{
		BatchID:      batch.BatchID,
		Status:       ports.BatchStatusArchived,
		Reason:       batch.Reason,
		ScopeJSON:    orDefault(batch.ScopeJSON, "{}"),
		ProductCount: int64(len(products)),
		EventCount:   int64(len(events)),
		CreatedAt:    batch.CreatedAt,
	}
	if err := db.Create(&batchRow).Error; err != nil {
		return ports.ArchiveCounts{}, errs.Wrap(err, "insert archive batch")
	}

	if len(products) > 0 {
		archived := make([]model.ArchivedProduct, 0, len(products))
		for _, p := range products {
			archived = append(archived, model.ArchivedProduct{
				BatchID:        batch.BatchID,
				ArchivedAt:     batch.CreatedAt,
				Reason:         batch.Reason,
				ProductID:      p.ProductID,
				RegNo:          p.RegNo,
				SourceKey:      p.SourceKey,
				RegistrationID: p.RegistrationID,
				Name:           p.Name,
				CompanyName:    p.CompanyName,
				Hidden:         p.Hidden,
				SupersededByID: p.SupersededByID,
				RawRecordID:    p.RawRecordID,
				CreatedAt:      p.CreatedAt,
				UpdatedAt:      p.UpdatedAt,
			})
		}
		if err := db.CreateInBatches(archived, 200).Error; err != nil {
			return ports.ArchiveCounts{}, errs.Wrap(err, "copy products to archive")
		}
	}

	if len(events) > 0 {
		archived := make([]model.ArchivedChangeEvent, 0, len(events))
		for _, e := range events {
			archived = append(archived, model.ArchivedChangeEvent{
				BatchID:       batch.BatchID,
				ArchivedAt:    batch.CreatedAt,
				Reason:        batch.Reason,
				ChangeEventID: e.ChangeEventID,
				EntityType:    e.EntityType,
				EntityID:      e.EntityID,
				Kind:          e.Kind,
				Field:         e.Field,
				Before:        e.Before,
				After:         e.After,
				SourceRunID:   e.SourceRunID,
				OccurredAt:    e.OccurredAt,
			})
		}
		if err := db.CreateInBatches(archived, 200).Error; err != nil {
			return ports.ArchiveCounts{}, errs.Wrap(err, "copy change events to archive")
		}
	}

	if len(events) > 0 {
		if err := db.Where("entity_type = ? AND entity_id IN ?", "product", productIDs).
			Delete(&model.ChangeEvent{}).Error; err != nil {
			return ports.ArchiveCounts{}, errs.Wrap(err, "delete archived change events")
		}
	}
	if len(productIDs) > 0 {
		if err := db.Where("product_id IN ?", productIDs).
			Delete(&model.Product{}).Error; err != nil {
			return ports.ArchiveCounts{}, errs.Wrap(err, "delete archived products")
		}
	}

	return ports.ArchiveCounts{
		Products:     int64(len(products)),
		ChangeEvents: int64(len(events)),
	}, nil
}

func (r *ArchiveRepository) GetBatch(ctx context.Context, batchID string) (ports.ArchiveBatch, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.ArchiveBatch{}, err
	}

	var row model.ArchiveBatch
	if err := db.Where("batch_id = ?", batchID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ArchiveBatch{}, pipeline.ErrBatchNotFound
		}
		return ports.ArchiveBatch{}, errs.Wrap(err, "query archive batch")
	}
	return mapArchiveBatch(row), nil
}

func (r *ArchiveRepository) CountBatch(ctx context.Context, batchID string) (ports.ArchiveCounts, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.ArchiveCounts{}, err
	}

	var counts ports.ArchiveCounts
	if err := db.Model(&model.ArchivedProduct{}).
		Where("batch_id = ?", batchID).
		Count(&counts.Products).Error; err != nil {
		return ports.ArchiveCounts{}, errs.Wrap(err, "count archived products")
	}
	if err := db.Model(&model.ArchivedChangeEvent{}).
		Where("batch_id = ?", batchID).
		Count(&counts.ChangeEvents).Error; err != nil {
		return ports.ArchiveCounts{}, errs.Wrap(err, "count archived change events")
	}
	return counts, nil
}

// Restore copies a batch back into the canonical tables with the original
// primary keys preserved, so references from snapshots and diffs line up
// again.
func (r *ArchiveRepository) Restore(ctx context.Context, batchID string, restoredAt time.Time) (ports.ArchiveCounts, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.ArchiveCounts{}, err
	}

	var batch model.ArchiveBatch
	if err := db.Where("batch_id = ?", batchID).Take(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ArchiveCounts{}, pipeline.ErrBatchNotFound
		}
		return ports.ArchiveCounts{}, errs.Wrap(err, "query archive batch")
	}
	if batch.Status == ports.BatchStatusRestored {
		return ports.ArchiveCounts{}, pipeline.ErrBatchAlreadyRestored
	}

	var archivedProducts []model.ArchivedProduct
	if err := db.Where("batch_id = ?", batchID).
		Order("archived_product_id asc").
		Find(&archivedProducts).Error; err != nil {
		return ports.ArchiveCounts{}, errs.Wrap(err, "load archived products")
	}

	var archivedEvents []model.ArchivedChangeEvent
	if err := db.Where("batch_id = ?", batchID).
		Order("archived_change_event_id asc").
		Find(&archivedEvents).Error; err != nil {
		return ports.ArchiveCounts{}, errs.Wrap(err, "load archived change events")
	}

	if len(archivedProducts) > 0 {
		restored := make([]model.Product, 0, len(archivedProducts))
		for _, p := range archivedProducts {
			restored = append(restored, model.Product{
				ProductID:      p.ProductID,
				RegNo:          p.RegNo,
				SourceKey:      p.SourceKey,
				RegistrationID: p.RegistrationID,
				Name:           p.Name,
				CompanyName:    p.CompanyName,
				Hidden:         p.Hidden,
				SupersededByID: p.SupersededByID,
				RawRecordID:    p.RawRecordID,
				CreatedAt:      p.CreatedAt,
				UpdatedAt:      p.UpdatedAt,
			})
		}
		if err := db.CreateInBatches(restored, 200).Error; err != nil {
			return ports.ArchiveCounts{}, errs.Wrap(err, "restore products")
		}
	}

	if len(archivedEvents) > 0 {
		restored := make([]model.ChangeEvent, 0, len(archivedEvents))
		for _, e := range archivedEvents {
			restored = append(restored, model.ChangeEvent{
				ChangeEventID: e.ChangeEventID,
				EntityType:    e.EntityType,
				EntityID:      e.EntityID,
				Kind:          e.Kind,
				Field:         e.Field,
				Before:        e.Before,
				After:         e.After,
				SourceRunID:   e.SourceRunID,
				OccurredAt:    e.OccurredAt,
			})
		}
		if err := db.CreateInBatches(restored, 200).Error; err != nil {
			return ports.ArchiveCounts{}, errs.Wrap(err, "restore change events")
		}
	}

	if err := db.Model(&model.ArchiveBatch{}).
		Where("batch_id = ?", batchID).
		Updates(map[string]any{
			"status":      ports.BatchStatusRestored,
			"restored_at": restoredAt,
		}).Error; err != nil {
		return ports.ArchiveCounts{}, errs.Wrap(err, "mark batch restored")
	}

	return ports.ArchiveCounts{
		Products:     int64(len(archivedProducts)),
		ChangeEvents: int64(len(archivedEvents)),
	}, nil
}

func (r *ArchiveRepository) RestoredEventWindow(ctx context.Context, batchID string) (time.Time, time.Time, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}

	// typed reads of the occurred_at column; an aggregate min/max comes back
	// from sqlite as text and will not scan into time.Time
	var earliest model.ArchivedChangeEvent
	err = db.Where("batch_id = ?", batchID).
		Order("occurred_at asc").
		Take(&earliest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, time.Time{}, false, errs.Wrap(err, "query archived event window")
	}

	var latest model.ArchivedChangeEvent
	if err := db.Where("batch_id = ?", batchID).
		Order("occurred_at desc").
		Take(&latest).Error; err != nil {
		return time.Time{}, time.Time{}, false, errs.Wrap(err, "query archived event window")
	}
	return earliest.OccurredAt, latest.OccurredAt, true, nil
}

func mapArchiveBatch(row model.ArchiveBatch) ports.ArchiveBatch {
	return ports.ArchiveBatch{
		BatchID:      row.BatchID,
		Status:       row.Status,
		Reason:       row.Reason,
		ScopeJSON:    row.ScopeJSON,
		ProductCount: row.ProductCount,
		EventCount:   row.EventCount,
		CreatedAt:    row.CreatedAt,
		RestoredAt:   row.RestoredAt,
	}
}
