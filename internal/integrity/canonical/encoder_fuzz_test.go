package canonical

import (
	"bytes"
	"encoding/json"
	"testing"

	"golang.org/x/text/unicode/norm"

	"carebook/internal/integrity/models"
)

// FuzzEncode checks that encoding never panics and that whatever it accepts
// is valid JSON, stable across calls and decodes back to the normalized input.
func FuzzEncode(f *testing.F) {
	f.Add("A", "L1", "")
	f.Add("José", "<script>", "2020-01-01")
	f.Add("", "", "not-a-date")
	f.Add(" ", "\"quoted\"", "2020-13-01")
	f.Add("A", "L1\xff", "")

	enc := NewEncoder()
	f.Fuzz(func(t *testing.T, name, license, date string) {
		fields := models.Fields{"name": name, "license": license}
		if date != "" {
			fields["date_of_license"] = date
		}
		first, err := enc.Encode(models.KindCredential, fields)
		if err != nil {
			return
		}
		if !json.Valid(first) {
			t.Fatalf("encoded output is not valid JSON: %q", first)
		}
		second, err := enc.Encode(models.KindCredential, fields)
		if err != nil {
			t.Fatalf("second encode failed: %v", err)
		}
		if string(first) != string(second) {
			t.Fatalf("encoding is not deterministic")
		}

		var decoded struct {
			Fields map[string]string `json:"fields"`
		}
		if err := json.Unmarshal(first, &decoded); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got, want := decoded.Fields["name"], norm.NFC.String(name); got != want {
			t.Fatalf("name lost in encoding: got %q want %q", got, want)
		}
		if got, want := decoded.Fields["license"], norm.NFC.String(license); got != want {
			t.Fatalf("license lost in encoding: got %q want %q", got, want)
		}
	})
}

// FuzzEncodeInjective checks that values differing after normalization never
// encode to the same bytes.
func FuzzEncodeInjective(f *testing.F) {
	f.Add("L1\xff", "L1\xfe")
	f.Add("L1", "L2")
	f.Add("José", "José")
	f.Add("L1�", "L1\xff")

	enc := NewEncoder()
	f.Fuzz(func(t *testing.T, a, b string) {
		encA, errA := enc.Encode(models.KindCredential, models.Fields{"name": "A", "license": a})
		encB, errB := enc.Encode(models.KindCredential, models.Fields{"name": "A", "license": b})
		if errA != nil || errB != nil {
			return
		}
		if norm.NFC.String(a) != norm.NFC.String(b) && bytes.Equal(encA, encB) {
			t.Fatalf("distinct licenses %q and %q share an encoding", a, b)
		}
	})
}
