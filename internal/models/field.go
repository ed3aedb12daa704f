package models

import (
	"fmt"
	"strings"
)

// Field names a categorical roster column that aggregates can group by.
type Field string

const (
	FieldStream          Field = "stream"
	FieldCaste           Field = "caste"
	FieldSecondLanguage  Field = "second_language"
	FieldAdmissionStatus Field = "admission_status"
)

var fieldAliases = map[string]Field{
	"stream":           FieldStream,
	"caste":            FieldCaste,
	"second_language":  FieldSecondLanguage,
	"language":         FieldSecondLanguage,
	"admission_status": FieldAdmissionStatus,
	"status":           FieldAdmissionStatus,
}

// ParseField resolves a field name or alias, case-insensitively.
func ParseField(raw string) (Field, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	if field, ok := fieldAliases[key]; ok {
		return field, nil
	}
	return "", fmt.Errorf("unknown field %q", raw)
}

// Value extracts the field's value from a record.
func (f Field) Value(r StudentRecord) string {
	switch f {
	case FieldStream:
		return string(r.Stream)
	case FieldCaste:
		return string(r.Caste)
	case FieldSecondLanguage:
		return string(r.SecondLanguage)
	case FieldAdmissionStatus:
		return string(r.AdmissionStatus)
	default:
		return ""
	}
}

// Domain lists the closed set of values for the field in canonical order.
func (f Field) Domain() []string {
	var values []string
	switch f {
	case FieldStream:
		for _, v := range Streams {
			values = append(values, string(v))
		}
	case FieldCaste:
		for _, v := range Castes {
			values = append(values, string(v))
		}
	case FieldSecondLanguage:
		for _, v := range SecondLanguages {
			values = append(values, string(v))
		}
	case FieldAdmissionStatus:
		for _, v := range AdmissionStatuses {
			values = append(values, string(v))
		}
	}
	return values
}
