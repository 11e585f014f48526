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

type RegistrationRepository struct {
	db *gorm.DB
}

var _ ports.RegistrationRepository = (*RegistrationRepository)(nil)

func NewRegistrationRepository(db *gorm.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) GetByRegNo(ctx context.Context, regNo string) (ports.Registration, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Registration{}, err
	}

	var row model.Registration
	if err := db.Where("registration_no = ?", regNo).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Registration{}, ports.ErrRegistrationNotFound
		}
		return ports.Registration{}, errs.Wrap(err, "query registration by number")
	}
	return mapRegistration(row), nil
}

func (r *RegistrationRepository) Get(ctx context.Context, id uint64) (ports.Registration, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Registration{}, err
	}

	var row model.Registration
	if err := db.Where("registration_id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Registration{}, ports.ErrRegistrationNotFound
		}
		return ports.Registration{}, errs.Wrap(err, "query registration")
	}
	return mapRegistration(row), nil
}

func (r *RegistrationRepository) Create(ctx context.Context, reg ports.Registration) (ports.Registration, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Registration{}, err
	}

	row := model.Registration{
		RegistrationNo: reg.RegistrationNo,
		Status:         reg.Status,
		ApprovedAt:     reg.ApprovedAt,
		ExpiresAt:      reg.ExpiresAt,
		ProductName:    reg.ProductName,
		CompanyName:    reg.CompanyName,
		Category:       reg.Category,
		Model:          reg.Model,
		Description:    reg.Description,
		MetaJSON:       orDefault(reg.MetaJSON, "{}"),
		CreatedAt:      reg.CreatedAt,
		UpdatedAt:      reg.UpdatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.Registration{}, errs.Wrap(err, "insert registration")
	}
	return mapRegistration(row), nil
}

// UpdateFields applies canonical-vocabulary fields onto the registration
// columns. Unknown field names are ignored rather than failing the run.
func (r *RegistrationRepository) UpdateFields(ctx context.Context, id uint64, fields map[string]string, updatedAt time.Time) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	updates := map[string]any{"updated_at": updatedAt}
	for field, value := range fields {
		if column, ok := registrationColumnForField(field); ok {
			updates[column] = value
		}
	}

	if err := db.Model(&model.Registration{}).
		Where("registration_id = ?", id).
		Updates(updates).Error; err != nil {
		return errs.Wrap(err, "update registration fields")
	}
	return nil
}

func (r *RegistrationRepository) List(ctx context.Context, limit int) ([]ports.Registration, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.Registration{}).Order("registration_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.Registration
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query registrations")
	}

	items := make([]ports.Registration, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapRegistration(row))
	}
	return items, nil
}

func registrationColumnForField(field string) (string, bool) {
	switch field {
	case pipeline.FieldStatus:
		return "status", true
	case pipeline.FieldApprovedAt:
		return "approved_at", true
	case pipeline.FieldExpiresAt:
		return "expires_at", true
	case pipeline.FieldProductName:
		return "product_name", true
	case pipeline.FieldCompanyName:
		return "company_name", true
	case pipeline.FieldCategory:
		return "category", true
	case pipeline.FieldModel:
		return "model", true
	case pipeline.FieldDescription:
		return "description", true
	}
	return "", false
}

func mapRegistration(row model.Registration) ports.Registration {
	return ports.Registration{
		RegistrationID: row.RegistrationID,
		RegistrationNo: row.RegistrationNo,
		Status:         row.Status,
		ApprovedAt:     row.ApprovedAt,
		ExpiresAt:      row.ExpiresAt,
		ProductName:    row.ProductName,
		CompanyName:    row.CompanyName,
		Category:       row.Category,
		Model:          row.Model,
		Description:    row.Description,
		MetaJSON:       row.MetaJSON,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}
