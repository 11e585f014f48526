package source

import (
	"errors"
	"fmt"

	"ivdhub/internal/domain/evidence"
)

// Well-known source keys. The static catalog below is the authoritative
// list; mutable runtime state (enabled flag, schedule, fetch params) lives
// in the source_configs table and is joined at job start.
const (
	KeyRegistry    = "nmpa_registry"
	KeyUDI         = "udi_device"
	KeyNHSACodes   = "nhsa_codes"
	KeyProcurement = "procurement"
)

// Parser identifiers resolved through the feed parser registry.
const (
	ParserRegistryJSON    = "registry_json"
	ParserUDIJSON         = "udi_json"
	ParserNHSACSV         = "nhsa_csv"
	ParserProcurementHTML = "procurement_html"
)

var ErrUnknownSource = errors.New("unknown source key")

// Definition is the immutable part of a source: what it is and how much we
// trust it. Only the primary registry may create registrations.
type Definition struct {
	Key           string
	Name          string
	Grade         evidence.Grade
	Parser        string
	Authoritative bool
}

var catalog = []Definition{
	{
		Key:           KeyRegistry,
		Name:          "NMPA registration certificate feed",
		Grade:         evidence.GradeA,
		Parser:        ParserRegistryJSON,
		Authoritative: true,
	},
	{
		Key:    KeyUDI,
		Name:   "UDI device identifier feed",
		Grade:  evidence.GradeB,
		Parser: ParserUDIJSON,
	},
	{
		Key:    KeyNHSACodes,
		Name:   "NHSA reimbursement code export",
		Grade:  evidence.GradeC,
		Parser: ParserNHSACSV,
	},
	{
		Key:    KeyProcurement,
		Name:   "provincial procurement listings",
		Grade:  evidence.GradeD,
		Parser: ParserProcurementHTML,
	},
}

// Catalog returns a copy of the static source catalog.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

func ByKey(key string) (Definition, error) {
	for _, def := range catalog {
		if def.Key == key {
			return def, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %q", ErrUnknownSource, key)
}
