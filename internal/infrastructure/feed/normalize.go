package feed

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"ivdhub/internal/domain/pipeline"
)

// maxFieldBytes caps every canonical field value; oversized values are a
// parse failure, not a silent truncation.
const maxFieldBytes = 2048

const canonicalDateLayout = "2006-01-02"

var dateLayouts = []string{
	canonicalDateLayout,
	"2006/01/02",
	"2006.01.02",
	time.RFC3339,
}

var statusAliases = map[string]string{
	"active":    pipeline.StatusActive,
	"valid":     pipeline.StatusActive,
	"在册":        pipeline.StatusActive,
	"有效":        pipeline.StatusActive,
	"cancelled": pipeline.StatusCancelled,
	"canceled":  pipeline.StatusCancelled,
	"revoked":   pipeline.StatusCancelled,
	"注销":        pipeline.StatusCancelled,
	"expired":   pipeline.StatusExpired,
	"失效":        pipeline.StatusExpired,
	"过期":        pipeline.StatusExpired,
}

// canonStatus folds source status spellings onto the canonical set. An
// unknown non-empty value is a type mismatch so it lands in triage rather
// than in the canonical store.
func canonStatus(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	if canonical, ok := statusAliases[strings.ToLower(trimmed)]; ok {
		return canonical, nil
	}
	return "", pipeline.TypeMismatch(pipeline.FieldStatus, "unknown status "+strings.ToLower(trimmed))
}

func canonDate(field, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format(canonicalDateLayout), nil
		}
	}
	return "", pipeline.TypeMismatch(field, "unparseable date "+trimmed)
}

// putField stores a non-empty value after the length check.
func putField(fields map[string]string, name, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if len(value) > maxFieldBytes {
		return pipeline.ValueTooLong(name, maxFieldBytes)
	}
	fields[name] = value
	return nil
}

// splitJSONArray carves a JSON document into compact per-element payloads.
// Both a bare array and a {"records": [...]} envelope are accepted.
func splitJSONArray(body []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(body)

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		// Any object unmarshals into the envelope struct, so require the
		// records key explicitly; an upstream error page must fail the run,
		// not masquerade as an empty feed.
		var envelope struct {
			Records *[]json.RawMessage `json:"records"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil || envelope.Records == nil {
			return nil, pipeline.GenericParseError("document is neither a JSON array nor a records envelope")
		}
		items = *envelope.Records
	}

	payloads := make([]string, 0, len(items))
	for _, item := range items {
		var buf bytes.Buffer
		if err := json.Compact(&buf, item); err != nil {
			return nil, pipeline.GenericParseError("malformed array element")
		}
		payloads = append(payloads, buf.String())
	}
	return payloads, nil
}
