package feed

import (
	"encoding/json"
	"strings"
	"time"

	"ivdhub/internal/domain/evidence"
	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/domain/source"
	"ivdhub/internal/ports"
)

// UDIJSON handles the device identifier feed. Records carry a DI and
// usually a claimed registration number; the linker decides whether the
// claim holds.
type UDIJSON struct{}

func NewUDIJSON() UDIJSON {
	return UDIJSON{}
}

func (UDIJSON) ID() string {
	return source.ParserUDIJSON
}

func (UDIJSON) Split(body []byte, fetchedAt time.Time) ([]Record, error) {
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

type udiRecord struct {
	DI             string `json:"di"`
	RegistrationNo string `json:"registration_no"`
	ProductName    string `json:"product_name"`
	CompanyName    string `json:"company_name"`
	Model          string `json:"model"`
}

func (UDIJSON) Parse(raw ports.RawRecord) (pipeline.NormalizedPayload, error) {
	var rec udiRecord
	if err := json.Unmarshal([]byte(raw.Payload), &rec); err != nil {
		return pipeline.NormalizedPayload{}, pipeline.GenericParseError("malformed udi record: " + err.Error())
	}

	di := strings.TrimSpace(rec.DI)
	if di == "" {
		return pipeline.NormalizedPayload{}, pipeline.MissingField("di")
	}
	if len(di) > maxFieldBytes {
		return pipeline.NormalizedPayload{}, pipeline.ValueTooLong("di", maxFieldBytes)
	}

	// The claimed registration number may be absent or garbage; an empty
	// result routes the record to the DI linker's fuzzy path instead of
	// failing the parse.
	regNo := ""
	if strings.TrimSpace(rec.RegistrationNo) != "" {
		normalized, err := normalizeRegNo(rec.RegistrationNo)
		if err != nil {
			return pipeline.NormalizedPayload{}, err
		}
		regNo = normalized
	}

	fields := map[string]string{}
	for _, fv := range []struct{ name, value string }{
		{pipeline.FieldProductName, rec.ProductName},
		{pipeline.FieldCompanyName, rec.CompanyName},
		{pipeline.FieldModel, rec.Model},
	} {
		if err := putField(fields, fv.name, fv.value); err != nil {
			return pipeline.NormalizedPayload{}, err
		}
	}

	return pipeline.NormalizedPayload{
		SourceKey:        raw.SourceKey,
		Grade:            evidence.Grade(raw.EvidenceGrade),
		RegistrationNo:   regNo,
		Fields:           fields,
		DeviceIdentifier: di,
		ObservedAt:       raw.ObservedAt,
		RawRecordID:      raw.RawRecordID,
	}, nil
}
