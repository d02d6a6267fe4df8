package canonical

import (
	"crypto/sha256"

	"carebook/internal/integrity/models"
)

// FingerprintDomain separates record fingerprints from any other SHA-256
// digest computed over the same bytes.
const FingerprintDomain = "carebook/record/v1"

// Fingerprint hashes canonical bytes as SHA-256(domain || 0x00 || encoded).
func Fingerprint(encoded []byte) models.Fingerprint {
	h := sha256.New()
	h.Write([]byte(FingerprintDomain))
	h.Write([]byte{0x00})
	h.Write(encoded)
	var fp models.Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// ComputeFingerprint encodes fields under kind's schema and hashes the result.
func (e *Encoder) ComputeFingerprint(kind models.RecordKind, fields models.Fields) (models.Fingerprint, error) {
	encoded, err := e.Encode(kind, fields)
	if err != nil {
		return models.Fingerprint{}, err
	}
	return Fingerprint(encoded), nil
}
