package feed

import (
	"encoding/json"
	"errors"
	"time"

	"ivdhub/internal/domain/evidence"
	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/domain/regnum"
	"ivdhub/internal/domain/source"
	"ivdhub/internal/ports"
)

// RegistryJSON handles the primary registration certificate feed, the only
// source allowed to create registrations.
type RegistryJSON struct{}

func NewRegistryJSON() RegistryJSON {
	return RegistryJSON{}
}

func (RegistryJSON) ID() string {
	return source.ParserRegistryJSON
}

func (RegistryJSON) Split(body []byte, fetchedAt time.Time) ([]Record, error) {
	payloads, err := splitJSONArray(body)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(payloads))
	for _, p := range payloads {
		records = append(records, Record{Payload: p, ObservedAt: fetchedAt})
	}
	return records, nil
}

type registryRecord struct {
	RegistrationNo string `json:"registration_no"`
	Status         string `json:"status"`
	ApprovedDate   string `json:"approved_date"`
	ExpiryDate     string `json:"expiry_date"`
	ProductName    string `json:"product_name"`
	CompanyName    string `json:"company_name"`
	Category       string `json:"category"`
	Model          string `json:"model"`
	Description    string `json:"description"`
}

func (RegistryJSON) Parse(raw ports.RawRecord) (pipeline.NormalizedPayload, error) {
	var rec registryRecord
	if err := json.Unmarshal([]byte(raw.Payload), &rec); err != nil {
		return pipeline.NormalizedPayload{}, pipeline.GenericParseError("malformed registry record: " + err.Error())
	}

	regNo, err := normalizeRegNo(rec.RegistrationNo)
	if err != nil {
		return pipeline.NormalizedPayload{}, err
	}

	fields := map[string]string{}
	status, err := canonStatus(rec.Status)
	if err != nil {
		return pipeline.NormalizedPayload{}, err
	}
	if status != "" {
		fields[pipeline.FieldStatus] = status
	}
	if err := putDateField(fields, pipeline.FieldApprovedAt, rec.ApprovedDate); err != nil {
		return pipeline.NormalizedPayload{}, err
	}
	if err := putDateField(fields, pipeline.FieldExpiresAt, rec.ExpiryDate); err != nil {
		return pipeline.NormalizedPayload{}, err
	}
	for _, fv := range []struct{ name, value string }{
		{pipeline.FieldProductName, rec.ProductName},
		{pipeline.FieldCompanyName, rec.CompanyName},
		{pipeline.FieldCategory, rec.Category},
		{pipeline.FieldModel, rec.Model},
		{pipeline.FieldDescription, rec.Description},
	} {
		if err := putField(fields, fv.name, fv.value); err != nil {
			return pipeline.NormalizedPayload{}, err
		}
	}

	return pipeline.NormalizedPayload{
		SourceKey:      raw.SourceKey,
		Grade:          evidence.Grade(raw.EvidenceGrade),
		RegistrationNo: regNo,
		Fields:         fields,
		ObservedAt:     raw.ObservedAt,
		RawRecordID:    raw.RawRecordID,
	}, nil
}

// normalizeRegNo maps the domain normalization errors onto the parse
// taxonomy.
func normalizeRegNo(raw string) (string, error) {
	normalized, err := regnum.Normalize(raw)
	switch {
	case err == nil:
		return normalized, nil
	case errors.Is(err, regnum.ErrEmpty):
		return "", pipeline.MissingField("registration_no")
	case errors.Is(err, regnum.ErrTooLong):
		return "", pipeline.ValueTooLong("registration_no", regnum.MaxLength)
	default:
		return "", pipeline.GenericParseError(err.Error())
	}
}

func putDateField(fields map[string]string, name, raw string) error {
	canonical, err := canonDate(name, raw)
	if err != nil {
		return err
	}
	if canonical != "" {
		fields[name] = canonical
	}
	return nil
}
