package ports

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrDeviceNotFound       = errors.New("device variant not found")
)

// Registration is the canonical anchor entity, keyed by the normalized
// registration number.
type Registration struct {
	RegistrationID uint64
	RegistrationNo string
	Status         string
	ApprovedAt     string
	ExpiresAt      string
	ProductName    string
	CompanyName    string
	Category       string
	Model          string
	Description    string
	// MetaJSON keeps the opaque raw blob for audit; business logic never
	// reads it back.
	MetaJSON  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product is one commercial view tied to at most one registration.
type Product struct {
	ProductID      uint64
	RegNo          string
	RegistrationID *uint64
	Name           string
	CompanyName    string
	SourceKey      string
	Hidden         bool
	SupersededByID *uint64
	RawRecordID    *uint64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeviceVariant binds a device identifier to a registration.
type DeviceVariant struct {
	DeviceVariantID uint64
	DI              string
	RegistrationID  *uint64
	PackagingLevel  string
	Model           string
	AttrsJSON       string
	MatchConfidence float64
	MatchReason     string
	Reversible      bool
	RawRecordID     *uint64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type RegistrationRepository interface {
	GetByRegNo(ctx context.Context, regNo string) (Registration, error)
	Get(ctx context.Context, id uint64) (Registration, error)
	Create(ctx context.Context, reg Registration) (Registration, error)
	// UpdateFields applies only the given canonical-vocabulary fields.
	UpdateFields(ctx context.Context, id uint64, fields map[string]string, updatedAt time.Time) error
	List(ctx context.Context, limit int) ([]Registration, error)
}

type ProductRepository interface {
	GetByRegNo(ctx context.Context, regNo string, sourceKey string) (Product, error)
	Upsert(ctx context.Context, product Product) (Product, error)
	// Supersede soft-hides dup in favor of canonical. The repository walks
	// the superseded-by chain and rejects pointers that would form a cycle.
	Supersede(ctx context.Context, dupID uint64, canonicalID uint64) error
	ListByRegistration(ctx context.Context, registrationID uint64) ([]Product, error)
}

type DeviceRepository interface {
	GetByDI(ctx context.Context, di string) (DeviceVariant, error)
	Upsert(ctx context.Context, variant DeviceVariant) (DeviceVariant, error)
	CountBound(ctx context.Context, registrationID uint64) (int64, error)
	ListBound(ctx context.Context, registrationID uint64) ([]DeviceVariant, error)
	// UpdateAttrs merges allowlisted structured attributes extracted from a
	// raw payload; the raw record id is the evidence back-pointer.
	UpdateAttrs(ctx context.Context, deviceVariantID uint64, attrsJSON string, rawRecordID uint64, updatedAt time.Time) error
	Unbind(ctx context.Context, deviceVariantID uint64, reason string, updatedAt time.Time) error
}
