package pipeline

import (
	"time"

	"ivdhub/internal/domain/evidence"
)

// Canonical field vocabulary. Parsers map native source schemas onto these
// names; everything downstream (snapshots, diffs, conflicts) speaks only
// this vocabulary.
const (
	FieldStatus      = "status"
	FieldApprovedAt  = "approved_at"
	FieldExpiresAt   = "expires_at"
	FieldProductName = "product_name"
	FieldCompanyName = "company_name"
	FieldCategory    = "category"
	FieldModel       = "model"
	FieldDescription = "description"
)

// Registration status values in canonical form.
const (
	StatusActive    = "ACTIVE"
	StatusCancelled = "CANCELLED"
	StatusExpired   = "EXPIRED"
)

// StructuredFields lists every field tracked by the change detector, in
// diff emission order.
var StructuredFields = []string{
	FieldStatus,
	FieldApprovedAt,
	FieldExpiresAt,
	FieldProductName,
	FieldCompanyName,
	FieldCategory,
	FieldModel,
	FieldDescription,
}

// NormalizedPayload is a parser's output: one logical record translated
// into the canonical vocabulary, keyed by the normalized registration
// number and tagged with the source's evidence grade. RawRecordID is the
// evidence back-pointer carried onto every structured write derived from
// this payload.
type NormalizedPayload struct {
	SourceKey        string
	Grade            evidence.Grade
	RegistrationNo   string
	Fields           map[string]string
	DeviceIdentifier string
	ObservedAt       time.Time
	RawRecordID      uint64
}

// Field returns the canonical value or "" when the source did not supply it.
func (p NormalizedPayload) Field(name string) string {
	if p.Fields == nil {
		return ""
	}
	return p.Fields[name]
}
