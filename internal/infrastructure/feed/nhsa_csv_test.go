package feed

import (
	"errors"
	"testing"
	"time"

	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/ports"
)

func TestNHSACSVSplitCarriesHeader(t *testing.T) {
	strategy := NewNHSACSV()
	body := "registration_no,product_name,company_name,category\r\nGXZZ20240001,HBV assay kit,Acme Diagnostics,II\r\nGXZZ20240002,HCV assay kit,Acme Diagnostics,II\r\n"

	records, err := strategy.Split([]byte(body), time.Now())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	want := "registration_no,product_name,company_name,category\nGXZZ20240001,HBV assay kit,Acme Diagnostics,II"
	if records[0].Payload != want {
		t.Fatalf("payload = %q, want header plus row", records[0].Payload)
	}
}

func TestNHSACSVSplitNoHeader(t *testing.T) {
	strategy := NewNHSACSV()
	if _, err := strategy.Split([]byte("\n\n"), time.Now()); err == nil {
		t.Fatalf("empty export should fail")
	}
}

func TestNHSACSVParse(t *testing.T) {
	strategy := NewNHSACSV()

	payload, err := strategy.Parse(ports.RawRecord{
		SourceKey:     "nhsa_codes",
		EvidenceGrade: "C",
		Payload:       "Registration_No,Product_Name,Company_Name,Category\ngxzz-20240001,HBV assay kit,Acme Diagnostics,II",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if payload.RegistrationNo != "GXZZ20240001" {
		t.Fatalf("registration no = %q", payload.RegistrationNo)
	}
	if got := payload.Field(pipeline.FieldCategory); got != "II" {
		t.Fatalf("category = %q", got)
	}
}

func TestNHSACSVParseColumnMismatch(t *testing.T) {
	strategy := NewNHSACSV()

	_, err := strategy.Parse(ports.RawRecord{
		Payload: "registration_no,product_name\n\"GXZZ20240001\",\"kit\",\"extra\"",
	})
	var pe *pipeline.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want parse error", err)
	}
}
