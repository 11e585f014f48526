package feed

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ivdhub/internal/domain/evidence"
	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/domain/source"
	"ivdhub/internal/ports"
)

// ProcurementHTML handles provincial procurement listing pages. Each table
// row becomes one logical record; the stored payload is the row's HTML so
// the hash covers exactly what was published.
type ProcurementHTML struct{}

func NewProcurementHTML() ProcurementHTML {
	return ProcurementHTML{}
}

func (ProcurementHTML) ID() string {
	return source.ParserProcurementHTML
}

func (ProcurementHTML) Split(body []byte, fetchedAt time.Time) ([]Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, pipeline.GenericParseError("malformed listing page: " + err.Error())
	}

	var records []Record
	var splitErr error
	doc.Find("table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		// Header rows carry th cells, data rows td cells.
		if row.Find("td").Length() == 0 {
			return true
		}
		html, err := goquery.OuterHtml(row)
		if err != nil {
			splitErr = pipeline.GenericParseError("extract listing row: " + err.Error())
			return false
		}
		records = append(records, Record{
			Payload:    strings.TrimSpace(html),
			ObservedAt: fetchedAt,
		})
		return true
	})
	if splitErr != nil {
		return nil, splitErr
	}
	return records, nil
}

// Column order on the listing pages: registration number, product name,
// company name, region, listed price.
func (ProcurementHTML) Parse(raw ports.RawRecord) (pipeline.NormalizedPayload, error) {
	// The payload is a bare tr fragment; the html parser discards table rows
	// found outside a table, so give it one back before re-parsing.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<table><tbody>" + raw.Payload + "</tbody></table>"))
	if err != nil {
		return pipeline.NormalizedPayload{}, pipeline.GenericParseError("malformed listing row: " + err.Error())
	}

	cells := doc.Find("td")
	if cells.Length() < 3 {
		return pipeline.NormalizedPayload{}, pipeline.TypeMismatch("row", "listing row has fewer than 3 cells")
	}

	cell := func(i int) string {
		return strings.TrimSpace(cells.Eq(i).Text())
	}

	regNo, err := normalizeRegNo(cell(0))
	if err != nil {
		return pipeline.NormalizedPayload{}, err
	}

	fields := map[string]string{}
	if err := putField(fields, pipeline.FieldProductName, cell(1)); err != nil {
		return pipeline.NormalizedPayload{}, err
	}
	if err := putField(fields, pipeline.FieldCompanyName, cell(2)); err != nil {
		return pipeline.NormalizedPayload{}, err
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
