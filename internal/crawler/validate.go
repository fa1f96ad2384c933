package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// RejectKind enumerates why a raw mapping was not accepted as a Record
type RejectKind string

const (
	// RejectMissingField means a required field was absent from the mapping
	RejectMissingField RejectKind = "missing_field"
	// RejectEmptyValue means a required field was present but empty
	RejectEmptyValue RejectKind = "empty_value"
	// RejectTypeMismatch means a value did not satisfy its field type
	RejectTypeMismatch RejectKind = "type_mismatch"
)

// Rejection carries the reason a raw mapping was dropped
type Rejection struct {
	Kind   RejectKind
	Field  string
	Detail string
}

func (r *Rejection) String() string {
	if r.Detail == "" {
		return fmt.Sprintf("%s: %s", r.Kind, r.Field)
	}
	return fmt.Sprintf("%s: %s (%s)", r.Kind, r.Field, r.Detail)
}

// Validate checks a raw mapping against a schema and returns either a
// validated Record or the first Rejection found, in schema field order.
// It is deterministic and side-effect free. The returned Record carries
// only schema fields.
func Validate(raw RawRecord, provider string, schema Schema) (Record, *Rejection) {
	fields := make(map[string]string, len(schema.Fields))

	for _, f := range schema.Fields {
		value, present := raw[f.Name]
		value = strings.TrimSpace(value)

		if !present {
			if f.Required {
				return Record{}, &Rejection{Kind: RejectMissingField, Field: f.Name}
			}
			fields[f.Name] = ""
			continue
		}

		if value == "" {
			if f.Required {
				return Record{}, &Rejection{Kind: RejectEmptyValue, Field: f.Name}
			}
			fields[f.Name] = ""
			continue
		}

		if rej := checkType(f, value); rej != nil {
			return Record{}, rej
		}
		fields[f.Name] = value
	}

	return Record{Provider: provider, Fields: fields}, nil
}

// checkType verifies that a non-empty value is coercible to the field type
func checkType(f Field, value string) *Rejection {
	switch f.Type {
	case FieldNumber, FieldOptionalNumber:
		cleaned := strings.ReplaceAll(value, ",", "")
		if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
			return &Rejection{
				Kind:   RejectTypeMismatch,
				Field:  f.Name,
				Detail: fmt.Sprintf("expected number, got %q", value),
			}
		}
	case FieldURL:
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &Rejection{
				Kind:   RejectTypeMismatch,
				Field:  f.Name,
				Detail: fmt.Sprintf("expected absolute URL, got %q", value),
			}
		}
	}
	return nil
}
