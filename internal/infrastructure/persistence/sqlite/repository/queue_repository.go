package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"ivdhub/internal/errs"
	"ivdhub/internal/infrastructure/persistence/sqlite/model"
	"ivdhub/internal/ports"
)

type QueueRepository struct {
	db *gorm.DB
}

var _ ports.QueueRepository = (*QueueRepository)(nil)

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// UpsertPendingItem keeps exactly one open item per (kind, dedupe key):
// re-ingesting the same failure touches the existing row instead of
// duplicating backlog.
func (r *QueueRepository) UpsertPendingItem(ctx context.Context, item ports.PendingItem) (ports.PendingItem, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.PendingItem{}, false, err
	}

	var existing model.PendingItem
	err = db.
		Where("kind = ? AND dedupe_key = ? AND status = ?", item.Kind, item.DedupeKey, ports.QueueStatusOpen).
		Take(&existing).Error
	switch {
	case err == nil:
		if err := db.Model(&model.PendingItem{}).
			Where("pending_item_id = ?", existing.PendingItemID).
			Updates(map[string]any{
				"reason_code":   item.ReasonCode,
				"raw_record_id": item.RawRecordID,
				"payload_json":  orDefault(item.PayloadJSON, "{}"),
				"updated_at":    item.UpdatedAt,
			}).Error; err != nil {
			return ports.PendingItem{}, false, errs.Wrap(err, "touch pending item")
		}
		refreshed, getErr := r.GetPendingItem(ctx, existing.PendingItemID)
		return refreshed, false, getErr
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := model.PendingItem{
			Kind:        item.Kind,
			SourceKey:   item.SourceKey,
			DedupeKey:   item.DedupeKey,
			ReasonCode:  item.ReasonCode,
			RawRecordID: item.RawRecordID,
			PayloadJSON: orDefault(item.PayloadJSON, "{}"),
			Attempts:    item.Attempts,
			NextRetryAt: item.NextRetryAt,
			Status:      ports.QueueStatusOpen,
			CreatedAt:   item.CreatedAt,
			UpdatedAt:   item.UpdatedAt,
		}
		if err := db.Create(&row).Error; err != nil {
			return ports.PendingItem{}, false, errs.Wrap(err, "insert pending item")
		}
		return mapPendingItem(row), true, nil
	default:
		return ports.PendingItem{}, false, errs.Wrap(err, "query open pending item")
	}
}

func (r *QueueRepository) GetPendingItem(ctx context.Context, id uint64) (ports.PendingItem, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.PendingItem{}, err
	}

	var row model.PendingItem
	if err := db.Where("pending_item_id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.PendingItem{}, ports.ErrPendingItemNotFound
		}
		return ports.PendingItem{}, errs.Wrap(err, "query pending item")
	}
	return mapPendingItem(row), nil
}

func (r *QueueRepository) ListOpenPendingItems(ctx context.Context, limit int) ([]ports.PendingItem, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.PendingItem{}).
		Where("status = ?", ports.QueueStatusOpen).
		Order("pending_item_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.PendingItem
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query open pending items")
	}
	return mapPendingItems(rows), nil
}

func (r *QueueRepository) ListDuePendingItems(ctx context.Context, now time.Time, limit int) ([]ports.PendingItem, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.PendingItem{}).
		Where("status = ? AND terminal = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			ports.QueueStatusOpen, false, now).
		Order("pending_item_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.PendingItem
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query due pending items")
	}
	return mapPendingItems(rows), nil
}

func (r *QueueRepository) ReschedulePendingItem(ctx context.Context, id uint64, attempts int, nextRetryAt *time.Time, terminal bool, updatedAt time.Time) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.PendingItem{}).
		Where("pending_item_id = ?", id).
		Updates(map[string]any{
			"attempts":      attempts,
			"next_retry_at": nextRetryAt,
			"terminal":      terminal,
			"updated_at":    updatedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "reschedule pending item")
	}
	if result.RowsAffected == 0 {
		return ports.ErrPendingItemNotFound
	}
	return nil
}

func (r *QueueRepository) SetPendingItemStatus(ctx context.Context, id uint64, status string, updatedAt time.Time) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.PendingItem{}).
		Where("pending_item_id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "update pending item status")
	}
	if result.RowsAffected == 0 {
		return ports.ErrPendingItemNotFound
	}
	return nil
}

func (r *QueueRepository) UpsertPendingLink(ctx context.Context, link ports.PendingLink) (ports.PendingLink, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.PendingLink{}, false, err
	}

	var existing model.PendingLink
	err = db.
		Where("di = ? AND status = ?", link.DI, ports.QueueStatusOpen).
		Take(&existing).Error
	switch {
	case err == nil:
		if err := db.Model(&model.PendingLink{}).
			Where("pending_link_id = ?", existing.PendingLinkID).
			Updates(map[string]any{
				"reason_code":   link.ReasonCode,
				"raw_record_id": link.RawRecordID,
				"payload_json":  orDefault(link.PayloadJSON, "{}"),
				"updated_at":    link.UpdatedAt,
			}).Error; err != nil {
			return ports.PendingLink{}, false, errs.Wrap(err, "touch pending link")
		}
		var refreshed model.PendingLink
		if err := db.Where("pending_link_id = ?", existing.PendingLinkID).Take(&refreshed).Error; err != nil {
			return ports.PendingLink{}, false, errs.Wrap(err, "reload pending link")
		}
		return mapPendingLink(refreshed), false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := model.PendingLink{
			DI:          link.DI,
			ReasonCode:  link.ReasonCode,
			RawRecordID: link.RawRecordID,
			PayloadJSON: orDefault(link.PayloadJSON, "{}"),
			Attempts:    link.Attempts,
			NextRetryAt: link.NextRetryAt,
			Status:      ports.QueueStatusOpen,
			CreatedAt:   link.CreatedAt,
			UpdatedAt:   link.UpdatedAt,
		}
		if err := db.Create(&row).Error; err != nil {
			return ports.PendingLink{}, false, errs.Wrap(err, "insert pending link")
		}
		return mapPendingLink(row), true, nil
	default:
		return ports.PendingLink{}, false, errs.Wrap(err, "query open pending link")
	}
}

func (r *QueueRepository) ListDuePendingLinks(ctx context.Context, now time.Time, limit int) ([]ports.PendingLink, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.PendingLink{}).
		Where("status = ? AND terminal = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)",
			ports.QueueStatusOpen, false, now).
		Order("pending_link_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.PendingLink
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query due pending links")
	}

	items := make([]ports.PendingLink, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapPendingLink(row))
	}
	return items, nil
}

func (r *QueueRepository) ReschedulePendingLink(ctx context.Context, id uint64, attempts int, nextRetryAt *time.Time, terminal bool, updatedAt time.Time) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.PendingLink{}).
		Where("pending_link_id = ?", id).
		Updates(map[string]any{
			"attempts":      attempts,
			"next_retry_at": nextRetryAt,
			"terminal":      terminal,
			"updated_at":    updatedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "reschedule pending link")
	}
	if result.RowsAffected == 0 {
		return ports.ErrPendingLinkNotFound
	}
	return nil
}

func (r *QueueRepository) SetPendingLinkStatus(ctx context.Context, id uint64, status string, updatedAt time.Time) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.PendingLink{}).
		Where("pending_link_id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "update pending link status")
	}
	if result.RowsAffected == 0 {
		return ports.ErrPendingLinkNotFound
	}
	return nil
}

func (r *QueueRepository) GetOpenConflict(ctx context.Context, registrationID uint64, field string) (ports.ConflictCase, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.ConflictCase{}, err
	}

	var row model.ConflictCase
	if err := db.
		Where("registration_id = ? AND field = ? AND status = ?", registrationID, field, ports.QueueStatusOpen).
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ConflictCase{}, ports.ErrConflictCaseNotFound
		}
		return ports.ConflictCase{}, errs.Wrap(err, "query open conflict case")
	}
	return mapConflictCase(row), nil
}

func (r *QueueRepository) GetConflict(ctx context.Context, id uint64) (ports.ConflictCase, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.ConflictCase{}, err
	}

	var row model.ConflictCase
	if err := db.Where("conflict_case_id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ConflictCase{}, ports.ErrConflictCaseNotFound
		}
		return ports.ConflictCase{}, errs.Wrap(err, "query conflict case")
	}
	return mapConflictCase(row), nil
}

func (r *QueueRepository) CreateConflict(ctx context.Context, c ports.ConflictCase) (ports.ConflictCase, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.ConflictCase{}, err
	}

	row := model.ConflictCase{
		RegistrationID: c.RegistrationID,
		Field:          c.Field,
		Status:         ports.QueueStatusOpen,
		CreatedAt:      c.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.ConflictCase{}, errs.Wrap(err, "insert conflict case")
	}
	return mapConflictCase(row), nil
}

func (r *QueueRepository) AppendCandidate(ctx context.Context, candidate ports.ConflictCandidate) (ports.ConflictCandidate, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.ConflictCandidate{}, err
	}

	var maxPos int
	if err := db.Model(&model.ConflictCandidate{}).
		Where("conflict_case_id = ?", candidate.ConflictCaseID).
		Select("coalesce(max(position), 0)").
		Scan(&maxPos).Error; err != nil {
		return ports.ConflictCandidate{}, errs.Wrap(err, "query max candidate position")
	}

	row := model.ConflictCandidate{
		ConflictCaseID: candidate.ConflictCaseID,
		Position:       maxPos + 1,
		Value:          candidate.Value,
		SourceKey:      candidate.SourceKey,
		EvidenceGrade:  candidate.EvidenceGrade,
		Confidence:     candidate.Confidence,
		Resolution:     ports.CandidatePending,
		SourceRunID:    candidate.SourceRunID,
		RawRecordID:    candidate.RawRecordID,
		ObservedAt:     candidate.ObservedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.ConflictCandidate{}, errs.Wrap(err, "insert conflict candidate")
	}
	return mapConflictCandidate(row), nil
}

func (r *QueueRepository) ListCandidates(ctx context.Context, conflictCaseID uint64) ([]ports.ConflictCandidate, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.ConflictCandidate
	if err := db.
		Where("conflict_case_id = ?", conflictCaseID).
		Order("position asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query conflict candidates")
	}

	items := make([]ports.ConflictCandidate, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapConflictCandidate(row))
	}
	return items, nil
}

func (r *QueueRepository) ListOpenConflicts(ctx context.Context, limit int) ([]ports.ConflictCase, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.ConflictCase{}).
		Where("status = ?", ports.QueueStatusOpen).
		Order("conflict_case_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.ConflictCase
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query open conflict cases")
	}

	items := make([]ports.ConflictCase, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapConflictCase(row))
	}
	return items, nil
}

// ResolveConflict closes the case and stamps every candidate: the winner
// applied, everyone else rejected. Losing values stay on record as the
// audit trail.
func (r *QueueRepository) ResolveConflict(ctx context.Context, id uint64, winner ports.ConflictCandidate, resolvedBy string, reason string, resolvedAt time.Time) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.ConflictCase{}).
		Where("conflict_case_id = ? AND status = ?", id, ports.QueueStatusOpen).
		Updates(map[string]any{
			"status":         ports.QueueStatusResolved,
			"winning_value":  winner.Value,
			"winning_source": winner.SourceKey,
			"resolved_by":    resolvedBy,
			"resolve_reason": reason,
			"resolved_at":    resolvedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "resolve conflict case")
	}
	if result.RowsAffected == 0 {
		return ports.ErrConflictCaseNotFound
	}

	if err := db.Model(&model.ConflictCandidate{}).
		Where("conflict_case_id = ?", id).
		Update("resolution", ports.CandidateRejected).Error; err != nil {
		return errs.Wrap(err, "reject conflict candidates")
	}
	if err := db.Model(&model.ConflictCandidate{}).
		Where("conflict_candidate_id = ?", winner.ConflictCandidateID).
		Update("resolution", ports.CandidateApplied).Error; err != nil {
		return errs.Wrap(err, "apply winning candidate")
	}
	return nil
}

func (r *QueueRepository) HasOpenOutlier(ctx context.Context, registrationID uint64) (bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return false, err
	}

	var n int64
	if err := db.Model(&model.OutlierCase{}).
		Where("registration_id = ? AND status = ?", registrationID, ports.QueueStatusOpen).
		Count(&n).Error; err != nil {
		return false, errs.Wrap(err, "count open outlier cases")
	}
	return n > 0, nil
}

func (r *QueueRepository) ClearedOutlierCount(ctx context.Context, registrationID uint64) (int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, err
	}

	var cleared int64
	if err := db.Model(&model.OutlierCase{}).
		Where("registration_id = ? AND status = ?", registrationID, ports.QueueStatusResolved).
		Select("COALESCE(MAX(di_count), 0)").
		Scan(&cleared).Error; err != nil {
		return 0, errs.Wrap(err, "query cleared outlier count")
	}
	return cleared, nil
}

func (r *QueueRepository) CreateOutlier(ctx context.Context, c ports.OutlierCase) (ports.OutlierCase, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.OutlierCase{}, false, err
	}

	var existing model.OutlierCase
	err = db.
		Where("registration_id = ? AND status = ?", c.RegistrationID, ports.QueueStatusOpen).
		Take(&existing).Error
	switch {
	case err == nil:
		return mapOutlierCase(existing), false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		row := model.OutlierCase{
			RegistrationID: c.RegistrationID,
			DICount:        c.DICount,
			Threshold:      c.Threshold,
			Status:         ports.QueueStatusOpen,
			CreatedAt:      c.CreatedAt,
		}
		if err := db.Create(&row).Error; err != nil {
			return ports.OutlierCase{}, false, errs.Wrap(err, "insert outlier case")
		}
		return mapOutlierCase(row), true, nil
	default:
		return ports.OutlierCase{}, false, errs.Wrap(err, "query open outlier case")
	}
}

func (r *QueueRepository) ListOpenOutliers(ctx context.Context, limit int) ([]ports.OutlierCase, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.OutlierCase{}).
		Where("status = ?", ports.QueueStatusOpen).
		Order("outlier_case_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.OutlierCase
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query open outlier cases")
	}

	items := make([]ports.OutlierCase, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapOutlierCase(row))
	}
	return items, nil
}

func (r *QueueRepository) ResolveOutlier(ctx context.Context, id uint64, reason string, resolvedAt time.Time) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.OutlierCase{}).
		Where("outlier_case_id = ? AND status = ?", id, ports.QueueStatusOpen).
		Updates(map[string]any{
			"status":         ports.QueueStatusResolved,
			"resolve_reason": reason,
			"resolved_at":    resolvedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "resolve outlier case")
	}
	if result.RowsAffected == 0 {
		return ports.ErrOutlierCaseNotFound
	}
	return nil
}

func mapPendingItem(row model.PendingItem) ports.PendingItem {
	return ports.PendingItem{
		PendingItemID: row.PendingItemID,
		Kind:          row.Kind,
		SourceKey:     row.SourceKey,
		DedupeKey:     row.DedupeKey,
		ReasonCode:    row.ReasonCode,
		RawRecordID:   row.RawRecordID,
		PayloadJSON:   row.PayloadJSON,
		Attempts:      row.Attempts,
		NextRetryAt:   row.NextRetryAt,
		Terminal:      row.Terminal,
		Status:        row.Status,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func mapPendingItems(rows []model.PendingItem) []ports.PendingItem {
	items := make([]ports.PendingItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapPendingItem(row))
	}
	return items
}

func mapPendingLink(row model.PendingLink) ports.PendingLink {
	return ports.PendingLink{
		PendingLinkID: row.PendingLinkID,
		DI:            row.DI,
		ReasonCode:    row.ReasonCode,
		RawRecordID:   row.RawRecordID,
		PayloadJSON:   row.PayloadJSON,
		Attempts:      row.Attempts,
		NextRetryAt:   row.NextRetryAt,
		Terminal:      row.Terminal,
		Status:        row.Status,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func mapConflictCase(row model.ConflictCase) ports.ConflictCase {
	return ports.ConflictCase{
		ConflictCaseID: row.ConflictCaseID,
		RegistrationID: row.RegistrationID,
		Field:          row.Field,
		Status:         row.Status,
		WinningValue:   row.WinningValue,
		WinningSource:  row.WinningSource,
		ResolvedBy:     row.ResolvedBy,
		ResolveReason:  row.ResolveReason,
		ResolvedAt:     row.ResolvedAt,
		CreatedAt:      row.CreatedAt,
	}
}

func mapConflictCandidate(row model.ConflictCandidate) ports.ConflictCandidate {
	return ports.ConflictCandidate{
		ConflictCandidateID: row.ConflictCandidateID,
		ConflictCaseID:      row.ConflictCaseID,
		Position:            row.Position,
		Value:               row.Value,
		SourceKey:           row.SourceKey,
		EvidenceGrade:       row.EvidenceGrade,
		Confidence:          row.Confidence,
		Resolution:          row.Resolution,
		SourceRunID:         row.SourceRunID,
		RawRecordID:         row.RawRecordID,
		ObservedAt:          row.ObservedAt,
	}
}

func mapOutlierCase(row model.OutlierCase) ports.OutlierCase {
	return ports.OutlierCase{
		OutlierCaseID:  row.OutlierCaseID,
		RegistrationID: row.RegistrationID,
		DICount:        row.DICount,
		Threshold:      row.Threshold,
		Status:         row.Status,
		ResolveReason:  row.ResolveReason,
		ResolvedAt:     row.ResolvedAt,
		CreatedAt:      row.CreatedAt,
	}
}
