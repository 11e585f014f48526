package pipeline

import "fmt"

// ParseErrorClass is the closed taxonomy used for triage. A failed parse is
// recorded on the raw record and surfaced in run statistics; it is never
// retried automatically.
type ParseErrorClass string

const (
	ParseErrFieldMissing ParseErrorClass = "field_missing"
	ParseErrTypeMismatch ParseErrorClass = "type_mismatch"
	ParseErrValueTooLong ParseErrorClass = "value_too_long"
	ParseErrGeneric      ParseErrorClass = "parse_error"
)

// ParseError carries the class plus the offending field for run statistics.
type ParseError struct {
	Class ParseErrorClass
	Field string
	Msg   string
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field %q: %s", e.Class, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Msg)
}

func MissingField(field string) *ParseError {
	return &ParseError{Class: ParseErrFieldMissing, Field: field, Msg: "required field absent"}
}

func TypeMismatch(field, msg string) *ParseError {
	return &ParseError{Class: ParseErrTypeMismatch, Field: field, Msg: msg}
}

func ValueTooLong(field string, limit int) *ParseError {
	return &ParseError{Class: ParseErrValueTooLong, Field: field, Msg: fmt.Sprintf("exceeds %d bytes", limit)}
}

func GenericParseError(msg string) *ParseError {
	return &ParseError{Class: ParseErrGeneric, Msg: msg}
}

// ClassifyParseError maps any parse failure onto the closed taxonomy,
// folding unknown errors into the generic class.
func ClassifyParseError(err error) ParseErrorClass {
	if err == nil {
		return ""
	}
	if pe, ok := err.(*ParseError); ok {
		return pe.Class
	}
	return ParseErrGeneric
}
