package feed

import (
	"errors"
	"testing"

	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/ports"
)

func TestUDIJSONParseWithClaim(t *testing.T) {
	strategy := NewUDIJSON()

	payload, err := strategy.Parse(ports.RawRecord{
		SourceKey:     "udi_device",
		EvidenceGrade: "B",
		Payload:       `{"di":"06901234567892","registration_no":"gxzz 2024 0001","product_name":"HBV assay kit","company_name":"Acme Diagnostics","model":"X-200"}`,
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if payload.DeviceIdentifier != "06901234567892" {
		t.Fatalf("di = %q", payload.DeviceIdentifier)
	}
	if payload.RegistrationNo != "GXZZ20240001" {
		t.Fatalf("claimed registration no = %q", payload.RegistrationNo)
	}
	if got := payload.Field(pipeline.FieldModel); got != "X-200" {
		t.Fatalf("model = %q", got)
	}
}

func TestUDIJSONParseEmptyClaimGoesToFuzzyPath(t *testing.T) {
	strategy := NewUDIJSON()

	payload, err := strategy.Parse(ports.RawRecord{
		Payload: `{"di":"06901234567892","product_name":"HBV assay kit"}`,
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if payload.RegistrationNo != "" {
		t.Fatalf("registration no = %q, want empty for fuzzy matching", payload.RegistrationNo)
	}
	if payload.DeviceIdentifier == "" {
		t.Fatalf("di must survive an absent claim")
	}
}

func TestUDIJSONParseMissingDI(t *testing.T) {
	strategy := NewUDIJSON()

	_, err := strategy.Parse(ports.RawRecord{Payload: `{"registration_no":"A1"}`})
	var pe *pipeline.ParseError
	if !errors.As(err, &pe) || pe.Class != pipeline.ParseErrFieldMissing {
		t.Fatalf("err = %v, want field_missing on di", err)
	}
}
