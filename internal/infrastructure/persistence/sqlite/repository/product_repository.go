package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/errs"
	"ivdhub/internal/infrastructure/persistence/sqlite/model"
	"ivdhub/internal/ports"
)

type ProductRepository struct {
	db *gorm.DB
}

var _ ports.ProductRepository = (*ProductRepository)(nil)

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) GetByRegNo(ctx context.Context, regNo string, sourceKey string) (ports.Product, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Product{}, err
	}

	var row model.Product
	if err := db.Where("reg_no = ? AND source_key = ?", regNo, sourceKey).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Product{}, ports.ErrProductNotFound
		}
		return ports.Product{}, errs.Wrap(err, "query product")
	}
	return mapProduct(row), nil
}

func (r *ProductRepository) Upsert(ctx context.Context, product ports.Product) (ports.Product, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.Product{}, err
	}

	row := model.Product{
		RegNo:          product.RegNo,
		SourceKey:      product.SourceKey,
		RegistrationID: product.RegistrationID,
		Name:           product.Name,
		CompanyName:    product.CompanyName,
		Hidden:         product.Hidden,
		SupersededByID: product.SupersededByID,
		RawRecordID:    product.RawRecordID,
		CreatedAt:      product.CreatedAt,
		UpdatedAt:      product.UpdatedAt,
	}

	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "reg_no"}, {Name: "source_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"registration_id": row.RegistrationID,
			"name":            row.Name,
			"company_name":    row.CompanyName,
			"raw_record_id":   row.RawRecordID,
			"updated_at":      row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return ports.Product{}, errs.Wrap(err, "upsert product")
	}

	// The conflict path does not report the surviving primary key; reload.
	var saved model.Product
	if err := db.Where("reg_no = ? AND source_key = ?", product.RegNo, product.SourceKey).Take(&saved).Error; err != nil {
		return ports.Product{}, errs.Wrap(err, "reload product")
	}
	return mapProduct(saved), nil
}

// Supersede soft-hides dup behind canonical. The superseded-by chain is a
// one-directional canonical pointer; walking it before the write rejects
// pointers that would close a cycle.
func (r *ProductRepository) Supersede(ctx context.Context, dupID uint64, canonicalID uint64) error {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return err
	}

	if dupID == canonicalID {
		return pipeline.ErrSupersededCycle
	}

	seen := map[uint64]struct{}{dupID: {}}
	cursor := canonicalID
	for cursor != 0 {
		if _, ok := seen[cursor]; ok {
			return pipeline.ErrSupersededCycle
		}
		seen[cursor] = struct{}{}

		var next model.Product
		if err := db.Select("superseded_by_id").Where("product_id = ?", cursor).Take(&next).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ports.ErrProductNotFound
			}
			return errs.Wrap(err, "walk superseded chain")
		}
		if next.SupersededByID == nil {
			break
		}
		cursor = *next.SupersededByID
	}

	result := db.Model(&model.Product{}).
		Where("product_id = ?", dupID).
		Updates(map[string]any{
			"hidden":           true,
			"superseded_by_id": canonicalID,
			"updated_at":       nowUTC(),
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "supersede product")
	}
	if result.RowsAffected == 0 {
		return ports.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) ListByRegistration(ctx context.Context, registrationID uint64) ([]ports.Product, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.Product
	if err := db.
		Where("registration_id = ?", registrationID).
		Order("product_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query products by registration")
	}

	items := make([]ports.Product, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapProduct(row))
	}
	return items, nil
}

func mapProduct(row model.Product) ports.Product {
	return ports.Product{
		ProductID:      row.ProductID,
		RegNo:          row.RegNo,
		SourceKey:      row.SourceKey,
		RegistrationID: row.RegistrationID,
		Name:           row.Name,
		CompanyName:    row.CompanyName,
		Hidden:         row.Hidden,
		SupersededByID: row.SupersededByID,
		RawRecordID:    row.RawRecordID,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}
