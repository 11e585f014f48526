package feed

import (
	"errors"
	"testing"
	"time"

	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/ports"
)

const listingPage = `<html><body>
<table>
<tr><th>注册证号</th><th>产品名称</th><th>企业名称</th><th>地区</th><th>挂网价</th></tr>
<tr><td>GXZZ-20240001</td><td>HBV assay kit</td><td>Acme Diagnostics</td><td>Jiangsu</td><td>120.00</td></tr>
<tr><td>GXZZ-20240002</td><td>HCV assay kit</td><td>Acme Diagnostics</td><td>Jiangsu</td><td>98.00</td></tr>
</table>
</body></html>`

func TestProcurementHTMLSplitSkipsHeaderRow(t *testing.T) {
	strategy := NewProcurementHTML()

	records, err := strategy.Split([]byte(listingPage), time.Now())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 data rows", len(records))
	}
}

func TestProcurementHTMLParseRow(t *testing.T) {
	strategy := NewProcurementHTML()

	records, err := strategy.Split([]byte(listingPage), time.Now())
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	payload, err := strategy.Parse(ports.RawRecord{
		SourceKey:     "procurement",
		EvidenceGrade: "D",
		Payload:       records[0].Payload,
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if payload.RegistrationNo != "GXZZ20240001" {
		t.Fatalf("registration no = %q", payload.RegistrationNo)
	}
	if got := payload.Field(pipeline.FieldProductName); got != "HBV assay kit" {
		t.Fatalf("product name = %q", got)
	}
	if got := payload.Field(pipeline.FieldCompanyName); got != "Acme Diagnostics" {
		t.Fatalf("company name = %q", got)
	}
}

func TestProcurementHTMLParseShortRow(t *testing.T) {
	strategy := NewProcurementHTML()

	_, err := strategy.Parse(ports.RawRecord{Payload: `<tr><td>GXZZ20240001</td><td>kit</td></tr>`})
	var pe *pipeline.ParseError
	if !errors.As(err, &pe) || pe.Class != pipeline.ParseErrTypeMismatch {
		t.Fatalf("err = %v, want type_mismatch", err)
	}
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(NewRegistryJSON(), NewUDIJSON(), NewNHSACSV(), NewProcurementHTML())

	for _, id := range []string{"registry_json", "udi_json", "nhsa_csv", "procurement_html"} {
		strategy, err := registry.Resolve(id)
		if err != nil {
			t.Fatalf("resolve %s: %v", id, err)
		}
		if strategy.ID() != id {
			t.Fatalf("resolved %s, want %s", strategy.ID(), id)
		}
	}

	if _, err := registry.Resolve("made_up"); err == nil {
		t.Fatalf("unknown parser id should fail")
	}
}
