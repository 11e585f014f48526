package pipeline

import (
	"errors"
	"testing"
)

func TestKindForFieldChange(t *testing.T) {
	cases := []struct {
		field, before, after string
		want                 ChangeKind
	}{
		{FieldStatus, StatusActive, StatusCancelled, ChangeCancel},
		{FieldStatus, StatusActive, StatusExpired, ChangeExpire},
		{FieldStatus, StatusCancelled, StatusActive, ChangeUpdate},
		{FieldCompanyName, "a", "b", ChangeUpdate},
	}
	for _, tc := range cases {
		if got := KindForFieldChange(tc.field, tc.before, tc.after); got != tc.want {
			t.Fatalf("KindForFieldChange(%s, %s, %s) = %s, want %s",
				tc.field, tc.before, tc.after, got, tc.want)
		}
	}
}

func TestSeverityForField(t *testing.T) {
	if got := SeverityForField(FieldStatus); got != SeverityHigh {
		t.Fatalf("status severity = %s, want high", got)
	}
	if got := SeverityForField(FieldApprovedAt); got != SeverityMedium {
		t.Fatalf("approved_at severity = %s, want medium", got)
	}
	if got := SeverityForField("made_up_field"); got != SeverityLow {
		t.Fatalf("unknown field severity = %s, want low", got)
	}
}

func TestClassifyParseError(t *testing.T) {
	if got := ClassifyParseError(MissingField("status")); got != ParseErrFieldMissing {
		t.Fatalf("missing field class = %s", got)
	}
	if got := ClassifyParseError(TypeMismatch("status", "bad value")); got != ParseErrTypeMismatch {
		t.Fatalf("type mismatch class = %s", got)
	}
	if got := ClassifyParseError(ValueTooLong("description", 2048)); got != ParseErrValueTooLong {
		t.Fatalf("too long class = %s", got)
	}
	if got := ClassifyParseError(errors.New("boom")); got != ParseErrGeneric {
		t.Fatalf("unknown error class = %s", got)
	}
	if got := ClassifyParseError(nil); got != "" {
		t.Fatalf("nil error class = %q, want empty", got)
	}
}
