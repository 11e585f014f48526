package feed

import (
	"encoding/csv"
	"strings"
	"time"

	"ivdhub/internal/domain/evidence"
	"ivdhub/internal/domain/pipeline"
	"ivdhub/internal/domain/source"
	"ivdhub/internal/ports"
)

// NHSACSV handles the reimbursement code export. Each stored record is the
// header line plus one data line so a row stays parseable on its own.
type NHSACSV struct{}

func NewNHSACSV() NHSACSV {
	return NHSACSV{}
}

func (NHSACSV) ID() string {
	return source.ParserNHSACSV
}

func (NHSACSV) Split(body []byte, fetchedAt time.Time) ([]Record, error) {
	lines := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n")

	header := ""
	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if header == "" {
			header = line
			continue
		}
		records = append(records, Record{
			Payload:    header + "\n" + line,
			ObservedAt: fetchedAt,
		})
	}
	if header == "" {
		return nil, pipeline.GenericParseError("csv export has no header line")
	}
	return records, nil
}

func (NHSACSV) Parse(raw ports.RawRecord) (pipeline.NormalizedPayload, error) {
	reader := csv.NewReader(strings.NewReader(raw.Payload))
	rows, err := reader.ReadAll()
	if err != nil {
		return pipeline.NormalizedPayload{}, pipeline.GenericParseError("malformed csv record: " + err.Error())
	}
	if len(rows) != 2 {
		return pipeline.NormalizedPayload{}, pipeline.GenericParseError("csv record must be header plus one row")
	}

	header, row := rows[0], rows[1]
	if len(row) != len(header) {
		return pipeline.NormalizedPayload{}, pipeline.TypeMismatch("row", "column count differs from header")
	}

	byName := make(map[string]string, len(header))
	for i, name := range header {
		byName[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(row[i])
	}

	regNo, err := normalizeRegNo(byName["registration_no"])
	if err != nil {
		return pipeline.NormalizedPayload{}, err
	}

	fields := map[string]string{}
	for _, fv := range []struct{ name, value string }{
		{pipeline.FieldProductName, byName["product_name"]},
		{pipeline.FieldCompanyName, byName["company_name"]},
		{pipeline.FieldCategory, byName["category"]},
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
