package models

import (
	"encoding/hex"
	"strings"
	"time"

	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
)

// FingerprintSize is the digest length in bytes (SHA-256).
const FingerprintSize = 32

const fingerprintPrefix = "sha256:"

// Fingerprint is the 256-bit digest of a record's canonical encoding.
// The zero value means "no fingerprint".
type Fingerprint [FingerprintSize]byte

// ParseFingerprint accepts "sha256:<hex>", bare hex, or the "0x<hex>" form
// used by contract-backed ledgers.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), fingerprintPrefix), "0x")
	if len(raw) != hex.EncodedLen(FingerprintSize) {
		return fp, dErrors.New(dErrors.CodeInvalidInput, "fingerprint must be 64 hex characters")
	}
	if _, err := hex.Decode(fp[:], []byte(raw)); err != nil {
		return fp, dErrors.New(dErrors.CodeInvalidInput, "fingerprint is not valid hex")
	}
	return fp, nil
}

func (f Fingerprint) String() string {
	if f.IsZero() {
		return ""
	}
	return fingerprintPrefix + hex.EncodeToString(f[:])
}

// Hex is the bare lowercase hex digest.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// Equal compares byte for byte.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f == other
}

func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fingerprint) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*f = Fingerprint{}
		return nil
	}
	parsed, err := ParseFingerprint(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Proof is what the ledger holds for a record: the published fingerprint, the
// signer that wrote it and the ledger-assigned publication time.
type Proof struct {
	RecordID    id.RecordID
	Fingerprint Fingerprint
	SignerID    string
	PublishedAt time.Time
}

// ProofReceipt acknowledges a publish. Replayed is true when the ledger
// already held the same fingerprint and returned the original proof.
type ProofReceipt struct {
	Proof
	Replayed bool
}
