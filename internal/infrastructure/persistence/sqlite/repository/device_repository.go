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

type DeviceRepository struct {
	db *gorm.DB
}

var _ ports.DeviceRepository = (*DeviceRepository)(nil)

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

func (r *DeviceRepository) GetByDI(ctx context.Context, di string) (ports.DeviceVariant, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.DeviceVariant{}, err
	}

	var row model.DeviceVariant
	if err := db.Where("di = ?", di).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.DeviceVariant{}, ports.ErrDeviceNotFound
		}
		return ports.DeviceVariant{}, errs.Wrap(err, "query device variant")
	}
	return mapDeviceVariant(row), nil
}

func (r *DeviceRepository) Upsert(ctx context.Context, variant ports.DeviceVariant) (ports.DeviceVariant, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.DeviceVariant{}, err
	}

	row := model.DeviceVariant{
		DI:              variant.DI,
		RegistrationID:  variant.RegistrationID,
		PackagingLevel:  variant.PackagingLevel,
		Model:           variant.Model,
		AttrsJSON:       orDefault(variant.AttrsJSON, "{}"),
		MatchConfidence: variant.MatchConfidence,
		MatchReason:     variant.MatchReason,
		Reversible:      variant.Reversible,
		RawRecordID:     variant.RawRecordID,
		CreatedAt:       variant.CreatedAt,
		UpdatedAt:       variant.UpdatedAt,
	}

	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "di"}},
		DoUpdates: clause.Assignments(map[string]any{
			"registration_id":  row.RegistrationID,
			"packaging_level":  row.PackagingLevel,
			"model":            row.Model,
			"match_confidence": row.MatchConfidence,
			"match_reason":     row.MatchReason,
			"reversible":       row.Reversible,
			"raw_record_id":    row.RawRecordID,
			"updated_at":       row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return ports.DeviceVariant{}, errs.Wrap(err, "upsert device variant")
	}

	var saved model.DeviceVariant
	if err := db.Where("di = ?", variant.DI).Take(&saved).Error; err != nil {
		return ports.DeviceVariant{}, errs.Wrap(err, "reload device variant")
	}
	return mapDeviceVariant(saved), nil
}

func (r *DeviceRepository) CountBound(ctx context.Context, registrationID uint64) (int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := db.Model(&model.DeviceVariant{}).
		Where("registration_id = ?", registrationID).
		Count(&n).Error; err != nil {
		return 0, errs.Wrap(err, "count bound device variants")
	}
	return n, nil
}

func (r *DeviceRepository) ListBound(ctx context.Context, registrationID uint64) ([]ports.DeviceVariant, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.DeviceVariant
	if err := db.
		Where("registration_id = ?", registrationID).
		Order("device_variant_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query bound device variants")
	}

	items := make([]ports.DeviceVariant, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapDeviceVariant(row))
	}
	return items, nil
}

func (r *DeviceRepository) UpdateAttrs(ctx context.Context, deviceVariantID uint64, attrsJSON string, rawRecordID uint64, updatedAt time.Time) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.DeviceVariant{}).
		Where("device_variant_id = ?", deviceVariantID).
		Updates(map[string]any{
			"attrs_json":    attrsJSON,
			"raw_record_id": rawRecordID,
			"updated_at":    updatedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "update device variant attrs")
	}
	if result.RowsAffected == 0 {
		return ports.ErrDeviceNotFound
	}
	return nil
}

func (r *DeviceRepository) Unbind(ctx context.Context, deviceVariantID uint64, reason string, updatedAt time.Time) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	result := db.Model(&model.DeviceVariant{}).
		Where("device_variant_id = ?", deviceVariantID).
		Updates(map[string]any{
			"registration_id":  nil,
			"match_confidence": 0,
			"match_reason":     reason,
			"reversible":       false,
			"updated_at":       updatedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "unbind device variant")
	}
	if result.RowsAffected == 0 {
		return ports.ErrDeviceNotFound
	}
	return nil
}

func mapDeviceVariant(row model.DeviceVariant) ports.DeviceVariant {
	return ports.DeviceVariant{
		DeviceVariantID: row.DeviceVariantID,
		DI:              row.DI,
		RegistrationID:  row.RegistrationID,
		PackagingLevel:  row.PackagingLevel,
		Model:           row.Model,
		AttrsJSON:       row.AttrsJSON,
		MatchConfidence: row.MatchConfidence,
		MatchReason:     row.MatchReason,
		Reversible:      row.Reversible,
		RawRecordID:     row.RawRecordID,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}
