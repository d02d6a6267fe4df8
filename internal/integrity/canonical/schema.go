package canonical

import (
	"carebook/internal/integrity/models"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	TypeString FieldType = "string"
	// TypeDate is a calendar date rendered as YYYY-MM-DD.
	TypeDate FieldType = "date"
)

// FieldSpec declares one fingerprinted field.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
}

// Schema is the versioned set of fields that make up a record kind's
// fingerprint. Fields outside the schema are never hashed; adding one requires
// a new version.
type Schema struct {
	Kind    models.RecordKind
	Version int
	Fields  []FieldSpec
}

func (s Schema) field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// CredentialV1 covers a professional's license credential.
var CredentialV1 = Schema{
	Kind:    models.KindCredential,
	Version: 1,
	Fields: []FieldSpec{
		{Name: "name", Type: TypeString, Required: true},
		{Name: "license", Type: TypeString, Required: true},
		{Name: "university", Type: TypeString},
		{Name: "date_of_license", Type: TypeDate},
	},
}

// ClinicalNoteV1 covers a note written after a session. The note's recorded
// timestamp is deliberately absent.
var ClinicalNoteV1 = Schema{
	Kind:    models.KindClinicalNote,
	Version: 1,
	Fields: []FieldSpec{
		{Name: "booking_id", Type: TypeString, Required: true},
		{Name: "diagnosis", Type: TypeString, Required: true},
		{Name: "prescription", Type: TypeString},
		{Name: "notes", Type: TypeString},
	},
}

// DefaultSchemas returns the current schema for every supported kind.
func DefaultSchemas() []Schema {
	return []Schema{CredentialV1, ClinicalNoteV1}
}
