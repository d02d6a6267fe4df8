package canonical

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carebook/internal/integrity/models"
)

func TestEncode_CredentialEnvelope(t *testing.T) {
	enc := NewEncoder()

	out, err := enc.Encode(models.KindCredential, models.Fields{"name": "A", "license": "L1"})
	require.NoError(t, err)
	assert.Equal(t, `{"fields":{"license":"L1","name":"A"},"kind":"credential","v":1}`, string(out))
}

func TestEncode_Determinism(t *testing.T) {
	enc := NewEncoder()
	fields := models.Fields{
		"name":            "Dr. Ana Souza",
		"license":         "CRP-06/123",
		"university":      "USP",
		"date_of_license": "2019-07-01",
	}
	want, err := enc.Encode(models.KindCredential, fields)
	require.NoError(t, err)

	keys := []string{"name", "license", "university", "date_of_license"}
	for i := 0; i < 50; i++ {
		rand.Shuffle(len(keys), func(a, b int) { keys[a], keys[b] = keys[b], keys[a] })
		shuffled := make(models.Fields, len(keys))
		for _, k := range keys {
			shuffled[k] = fields[k]
		}
		got, err := enc.Encode(models.KindCredential, shuffled)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestEncode_Normalization(t *testing.T) {
	enc := NewEncoder()

	t.Run("strings are NFC normalized", func(t *testing.T) {
		composed, err := enc.Encode(models.KindCredential, models.Fields{"name": "Jos\u00e9", "license": "L1"})
		require.NoError(t, err)
		decomposed, err := enc.Encode(models.KindCredential, models.Fields{"name": "Jose\u0301", "license": "L1"})
		require.NoError(t, err)
		assert.Equal(t, composed, decomposed)
	})

	t.Run("html characters are not escaped", func(t *testing.T) {
		out, err := enc.Encode(models.KindClinicalNote, models.Fields{"booking_id": "b-1", "diagnosis": "<a & b>"})
		require.NoError(t, err)
		assert.Contains(t, string(out), `"diagnosis":"<a & b>"`)
	})

	t.Run("dates accept time values", func(t *testing.T) {
		fromString, err := enc.Encode(models.KindCredential, models.Fields{"name": "A", "license": "L1", "date_of_license": "2020-02-29"})
		require.NoError(t, err)
		fromTime, err := enc.Encode(models.KindCredential, models.Fields{
			"name": "A", "license": "L1",
			"date_of_license": time.Date(2020, 2, 29, 15, 4, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.Equal(t, fromString, fromTime)
	})

	t.Run("time values use the UTC calendar day", func(t *testing.T) {
		instant := time.Date(2020, 3, 1, 2, 0, 0, 0, time.UTC)
		saoPaulo := time.FixedZone("BRT", -3*60*60)
		utc, err := enc.Encode(models.KindCredential, models.Fields{"name": "A", "license": "L1", "date_of_license": instant})
		require.NoError(t, err)
		local, err := enc.Encode(models.KindCredential, models.Fields{"name": "A", "license": "L1", "date_of_license": instant.In(saoPaulo)})
		require.NoError(t, err)
		assert.Equal(t, utc, local)
		assert.Contains(t, string(utc), `"date_of_license":"2020-03-01"`)
	})

	t.Run("nil optional is absent", func(t *testing.T) {
		withNil, err := enc.Encode(models.KindCredential, models.Fields{"name": "A", "license": "L1", "university": nil})
		require.NoError(t, err)
		without, err := enc.Encode(models.KindCredential, models.Fields{"name": "A", "license": "L1"})
		require.NoError(t, err)
		assert.Equal(t, without, withNil)
	})
}

func TestEncode_Errors(t *testing.T) {
	enc := NewEncoder()

	tests := []struct {
		name   string
		kind   models.RecordKind
		fields models.Fields
		field  string
	}{
		{"unknown kind", models.RecordKind("prescription"), models.Fields{"name": "A"}, ""},
		{"missing required", models.KindCredential, models.Fields{"name": "A"}, "license"},
		{"blank required", models.KindCredential, models.Fields{"name": "A", "license": "   "}, "license"},
		{"wrong type", models.KindCredential, models.Fields{"name": "A", "license": 42.0}, "license"},
		{"bad date", models.KindCredential, models.Fields{"name": "A", "license": "L1", "date_of_license": "01/02/2020"}, "date_of_license"},
		{"unknown field", models.KindCredential, models.Fields{"name": "A", "license": "L1", "timestamp": "now"}, "timestamp"},
		{"invalid utf8 value", models.KindCredential, models.Fields{"name": "A", "license": "L1\xff"}, "license"},
		{"invalid utf8 field name", models.KindCredential, models.Fields{"name": "A", "license": "L1", "\xffname": "x"}, "\xffname"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := enc.Encode(tt.kind, tt.fields)
			require.Error(t, err)
			assert.Nil(t, out)

			var encErr *EncodingError
			require.True(t, errors.As(err, &encErr))
			assert.Equal(t, tt.field, encErr.Field)
		})
	}
}

func TestEncode_InvalidUTF8NeverCollides(t *testing.T) {
	enc := NewEncoder()

	// Both would render as "L1\ufffd" if the bytes were passed through.
	for _, license := range []string{"L1\xff", "L1\xfe", "L1\ufffd\xff"} {
		fp, err := enc.ComputeFingerprint(models.KindCredential, models.Fields{"name": "A", "license": license})
		require.Error(t, err, "license %q", license)
		assert.True(t, fp.IsZero())

		var encErr *EncodingError
		require.ErrorAs(t, err, &encErr)
		assert.Contains(t, encErr.Error(), "valid UTF-8")
	}

	replacement, err := enc.Encode(models.KindCredential, models.Fields{"name": "A", "license": "L1\ufffd"})
	require.NoError(t, err)
	assert.Contains(t, string(replacement), "L1\ufffd")
}

func TestFingerprint(t *testing.T) {
	enc := NewEncoder()

	t.Run("domain separated from plain sha256", func(t *testing.T) {
		encoded, err := enc.Encode(models.KindCredential, models.Fields{"name": "A", "license": "L1"})
		require.NoError(t, err)
		fp := Fingerprint(encoded)
		assert.False(t, fp.IsZero())
		assert.Equal(t, fp, Fingerprint(encoded))
	})

	t.Run("content change changes fingerprint", func(t *testing.T) {
		a, err := enc.ComputeFingerprint(models.KindCredential, models.Fields{"name": "A", "license": "L1"})
		require.NoError(t, err)
		b, err := enc.ComputeFingerprint(models.KindCredential, models.Fields{"name": "A", "license": "L2"})
		require.NoError(t, err)
		assert.False(t, a.Equal(b))
	})

	t.Run("kinds never collide on identical values", func(t *testing.T) {
		custom := NewEncoder(
			Schema{Kind: "a", Version: 1, Fields: []FieldSpec{{Name: "x", Type: TypeString, Required: true}}},
			Schema{Kind: "b", Version: 1, Fields: []FieldSpec{{Name: "x", Type: TypeString, Required: true}}},
		)
		a, err := custom.ComputeFingerprint("a", models.Fields{"x": "1"})
		require.NoError(t, err)
		b, err := custom.ComputeFingerprint("b", models.Fields{"x": "1"})
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("encoding failure yields no fingerprint", func(t *testing.T) {
		fp, err := enc.ComputeFingerprint(models.KindCredential, models.Fields{"name": "A"})
		require.Error(t, err)
		assert.True(t, fp.IsZero())
	})
}

func TestNormalize_SurvivesStorageRoundTrip(t *testing.T) {
	enc := NewEncoder()
	fields := models.Fields{
		"name":            "Jose\u0301",
		"license":         "L1",
		"date_of_license": time.Date(2019, 7, 1, 12, 0, 0, 0, time.UTC),
	}

	normalized, err := enc.Normalize(models.KindCredential, fields)
	require.NoError(t, err)
	assert.Equal(t, "2019-07-01", normalized["date_of_license"])
	assert.Equal(t, "Jos\u00e9", normalized["name"])

	before, err := enc.Encode(models.KindCredential, fields)
	require.NoError(t, err)
	after, err := enc.Encode(models.KindCredential, normalized)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
