package pipeline

// Severity ranks how much a field change matters to consumers. Status and
// expiry drive lifecycle signals and are high; cosmetic text is low.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

var fieldSeverity = map[string]Severity{
	FieldStatus:      SeverityHigh,
	FieldExpiresAt:   SeverityHigh,
	FieldApprovedAt:  SeverityMedium,
	FieldCompanyName: SeverityMedium,
	FieldCategory:    SeverityMedium,
	FieldProductName: SeverityLow,
	FieldModel:       SeverityLow,
	FieldDescription: SeverityLow,
}

func SeverityForField(field string) Severity {
	if sev, ok := fieldSeverity[field]; ok {
		return sev
	}
	return SeverityLow
}

// ChangeKind classifies a change event.
type ChangeKind string

const (
	ChangeNew    ChangeKind = "new"
	ChangeUpdate ChangeKind = "update"
	ChangeCancel ChangeKind = "cancel"
	ChangeExpire ChangeKind = "expire"
)

// KindForFieldChange derives the event kind from a field transition.
// Status moves into CANCELLED/EXPIRED are lifecycle events; everything else
// is a plain update.
func KindForFieldChange(field, before, after string) ChangeKind {
	if field != FieldStatus {
		return ChangeUpdate
	}
	switch after {
	case StatusCancelled:
		return ChangeCancel
	case StatusExpired:
		return ChangeExpire
	}
	return ChangeUpdate
}
