package feed

import (
	"errors"
	"strings"
	"testing"
	"time"

	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/ports"
)

func TestRegistryJSONSplitBareArrayAndEnvelope(t *testing.T) {
	strategy := NewRegistryJSON()
	fetchedAt := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	records, err := strategy.Split([]byte(`[{"registration_no":"A1"},{"registration_no":"A2"}]`), fetchedAt)
	if err != nil {
		t.Fatalf("split bare array: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("bare array records = %d, want 2", len(records))
	}
	if !records[0].ObservedAt.Equal(fetchedAt) {
		t.Fatalf("record observed at = %v, want %v", records[0].ObservedAt, fetchedAt)
	}

	records, err = strategy.Split([]byte(`{"records":[{"registration_no":"A1"}]}`), fetchedAt)
	if err != nil {
		t.Fatalf("split envelope: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("envelope records = %d, want 1", len(records))
	}

	if _, err := strategy.Split([]byte(`{"nope":true}`), fetchedAt); err == nil {
		t.Fatalf("non-array document should fail")
	}
}

func TestRegistryJSONSplitCompactsPayloads(t *testing.T) {
	strategy := NewRegistryJSON()
	records, err := strategy.Split([]byte("[\n  { \"registration_no\" : \"A1\" }\n]"), time.Now())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if got := records[0].Payload; got != `{"registration_no":"A1"}` {
		t.Fatalf("payload = %q, want compact JSON", got)
	}
}

func TestRegistryJSONParseCanonicalizes(t *testing.T) {
	strategy := NewRegistryJSON()
	observedAt := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	payload, err := strategy.Parse(ports.RawRecord{
		RawRecordID:   7,
		SourceKey:     "nmpa_registry",
		EvidenceGrade: "A",
		Payload:       `{"registration_no":"gxzz-2024 0001","status":"在册","approved_date":"2024/03/05","expiry_date":"2029-03-04","product_name":"HBV assay kit","company_name":"Acme Diagnostics","category":"II"}`,
		ObservedAt:    observedAt,
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if payload.RegistrationNo != "GXZZ20240001" {
		t.Fatalf("registration no = %q", payload.RegistrationNo)
	}
	if got := payload.Field(pipeline.FieldStatus); got != pipeline.StatusActive {
		t.Fatalf("status = %q, want ACTIVE", got)
	}
	if got := payload.Field(pipeline.FieldApprovedAt); got != "2024-03-05" {
		t.Fatalf("approved_at = %q, want 2024-03-05", got)
	}
	if got := payload.Field(pipeline.FieldExpiresAt); got != "2029-03-04" {
		t.Fatalf("expires_at = %q", got)
	}
	if payload.RawRecordID != 7 {
		t.Fatalf("raw record id = %d, want 7", payload.RawRecordID)
	}
	if !payload.ObservedAt.Equal(observedAt) {
		t.Fatalf("observed at = %v", payload.ObservedAt)
	}
}

func TestRegistryJSONParseFailures(t *testing.T) {
	strategy := NewRegistryJSON()

	wantClass := func(payloadJSON string, want pipeline.ParseErrorClass) {
		t.Helper()
		_, err := strategy.Parse(ports.RawRecord{Payload: payloadJSON})
		if err == nil {
			t.Fatalf("parse %s: expected error", payloadJSON)
		}
		var pe *pipeline.ParseError
		if !errors.As(err, &pe) || pe.Class != want {
			t.Fatalf("parse %s: err = %v, want class %s", payloadJSON, err, want)
		}
	}

	wantClass(`{"status":"active"}`, pipeline.ParseErrFieldMissing)
	wantClass(`{"registration_no":"A1","status":"limbo"}`, pipeline.ParseErrTypeMismatch)
	wantClass(`{"registration_no":"A1","approved_date":"not a date"}`, pipeline.ParseErrTypeMismatch)
	wantClass(`{"registration_no":"A1","description":"`+strings.Repeat("x", maxFieldBytes+1)+`"}`, pipeline.ParseErrValueTooLong)
	wantClass(`not json`, pipeline.ParseErrGeneric)
}
