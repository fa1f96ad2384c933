package crawler

import (
	"dvanchev/offerworker/helpers"
)

// FieldType constrains the value a schema field accepts
type FieldType string

const (
	// FieldText is a required-to-parse-as-is string field
	FieldText FieldType = "text"
	// FieldNumber must parse as a number
	FieldNumber FieldType = "number"
	// FieldOptionalText is a string field that may be absent
	FieldOptionalText FieldType = "optional_text"
	// FieldOptionalNumber must parse as a number when present
	FieldOptionalNumber FieldType = "optional_number"
	// FieldURL must parse as an absolute URL
	FieldURL FieldType = "url"
)

// Field describes one schema field
type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

// Schema is the ordered, data-only description of a site's records.
// It is defined once per site and immutable for the duration of a run.
type Schema struct {
	Fields []Field
	// DedupFields identify the same logical record across pages
	DedupFields []string
}

// FieldNames returns the field names in schema order
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// RequiredNames returns the required field names in schema order
func (s Schema) RequiredNames() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// DedupKey builds the normalized dedup key for a validated record's fields
func (s Schema) DedupKey(fields map[string]string) string {
	values := make([]string, len(s.DedupFields))
	for i, name := range s.DedupFields {
		values[i] = fields[name]
	}
	return helpers.JoinKeyFields(values)
}
