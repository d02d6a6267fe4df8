// Package canonical turns a record's semantic fields into the exact bytes that
// are fingerprinted and published to the integrity ledger.
//
// The encoding is canonical JSON: object keys sorted, no insignificant
// whitespace, no HTML escaping, NFC-normalized strings (invalid UTF-8 is
// rejected) and dates as YYYY-MM-DD. The scheme version is part of the encoded envelope, so bytes
// produced under different schema versions never collide.
//
// Changing anything here changes every fingerprint already on the ledger.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"carebook/internal/integrity/models"
)

const dateLayout = "2006-01-02"

// EncodingError reports a field set that cannot be encoded under its schema.
// Nothing is hashed when encoding fails.
type EncodingError struct {
	Kind   models.RecordKind
	Field  string
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cannot encode %s record: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("cannot encode %s record: field %q %s", e.Kind, e.Field, e.Reason)
}

// Encoder encodes field sets against a fixed schema registry.
// It holds no mutable state and is safe for concurrent use.
type Encoder struct {
	schemas map[models.RecordKind]Schema
}

// NewEncoder registers the given schemas, or DefaultSchemas when none are passed.
func NewEncoder(schemas ...Schema) *Encoder {
	if len(schemas) == 0 {
		schemas = DefaultSchemas()
	}
	e := &Encoder{schemas: make(map[models.RecordKind]Schema, len(schemas))}
	for _, s := range schemas {
		e.schemas[s.Kind] = s
	}
	return e
}

// Schema returns the registered schema for kind.
func (e *Encoder) Schema(kind models.RecordKind) (Schema, bool) {
	s, ok := e.schemas[kind]
	return s, ok
}

// Encode produces the canonical bytes for fields under kind's schema.
// Required fields must be present and non-blank, present fields must match
// their declared type, and fields outside the schema are rejected.
// Absent optional fields are omitted; a nil value counts as absent.
func (e *Encoder) Encode(kind models.RecordKind, fields models.Fields) ([]byte, error) {
	schema, rendered, err := e.render(kind, fields)
	if err != nil {
		return nil, err
	}
	return marshalEnvelope(kind, schema.Version, rendered)
}

// Normalize validates fields and returns them in their canonical string
// form (NFC strings, YYYY-MM-DD dates). Storing normalized fields keeps
// re-encoding after a storage round trip byte-identical.
func (e *Encoder) Normalize(kind models.RecordKind, fields models.Fields) (models.Fields, error) {
	_, rendered, err := e.render(kind, fields)
	if err != nil {
		return nil, err
	}
	out := make(models.Fields, len(rendered))
	for k, v := range rendered {
		out[k] = v
	}
	return out, nil
}

func (e *Encoder) render(kind models.RecordKind, fields models.Fields) (Schema, map[string]string, error) {
	schema, ok := e.schemas[kind]
	if !ok {
		return Schema{}, nil, &EncodingError{Kind: kind, Reason: "unknown record kind"}
	}

	for name := range fields {
		if !utf8.ValidString(name) {
			return Schema{}, nil, &EncodingError{Kind: kind, Field: name, Reason: "name must be valid UTF-8"}
		}
		if _, known := schema.field(name); !known {
			return Schema{}, nil, &EncodingError{Kind: kind, Field: name, Reason: "is not part of the schema"}
		}
	}

	rendered := make(map[string]string, len(schema.Fields))
	for _, spec := range schema.Fields {
		raw, present := fields[spec.Name]
		if !present || raw == nil {
			if spec.Required {
				return Schema{}, nil, &EncodingError{Kind: kind, Field: spec.Name, Reason: "is required"}
			}
			continue
		}
		value, err := renderValue(spec, raw)
		if err != nil {
			return Schema{}, nil, &EncodingError{Kind: kind, Field: spec.Name, Reason: err.Error()}
		}
		if spec.Required && strings.TrimSpace(value) == "" {
			return Schema{}, nil, &EncodingError{Kind: kind, Field: spec.Name, Reason: "is required"}
		}
		rendered[spec.Name] = value
	}
	return schema, rendered, nil
}

func renderValue(spec FieldSpec, raw any) (string, error) {
	switch spec.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("must be a string, got %T", raw)
		}
		// NFC and the JSON writer both pass invalid bytes through as U+FFFD,
		// which would let distinct values share a fingerprint.
		if !utf8.ValidString(s) {
			return "", fmt.Errorf("must be valid UTF-8")
		}
		return norm.NFC.String(s), nil
	case TypeDate:
		switch v := raw.(type) {
		case time.Time:
			// The calendar day is taken in UTC so one instant has one date.
			return v.UTC().Format(dateLayout), nil
		case string:
			t, err := time.Parse(dateLayout, strings.TrimSpace(v))
			if err != nil {
				return "", fmt.Errorf("must be a date in YYYY-MM-DD form")
			}
			return t.Format(dateLayout), nil
		default:
			return "", fmt.Errorf("must be a date, got %T", raw)
		}
	}
	return "", fmt.Errorf("has unsupported schema type %q", spec.Type)
}

// marshalEnvelope writes {"fields":{...},"kind":"...","v":N}. Top-level keys
// are already in sorted order; schema field names are ASCII so byte order
// matches UTF-16 code unit order.
func marshalEnvelope(kind models.RecordKind, version int, fields map[string]string) ([]byte, error) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	var buf bytes.Buffer
	buf.WriteString(`{"fields":{`)
	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(&buf, name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeString(&buf, fields[name]); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`},"kind":`)
	if err := writeString(&buf, string(kind)); err != nil {
		return nil, err
	}
	fmt.Fprintf(&buf, `,"v":%d}`, version)
	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("canonical: invalid UTF-8 in %q", s)
	}
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// json.Encoder appends a newline.
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}
