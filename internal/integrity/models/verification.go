package models

import (
	"time"

	id "carebook/pkg/domain"
)

// VerificationStatus discriminates the outcome of a verification.
type VerificationStatus string

const (
	VerificationVerified    VerificationStatus = "verified"
	VerificationTampered    VerificationStatus = "tampered"
	VerificationNoProof     VerificationStatus = "no_proof"
	VerificationNotFound    VerificationStatus = "not_found"
	VerificationUnavailable VerificationStatus = "unavailable"
)

// IsFinal is false only for unavailable, which must never be cached or
// shown as an integrity verdict.
func (s VerificationStatus) IsFinal() bool {
	return s != VerificationUnavailable
}

// VerificationResult is exactly one of the five outcomes. Fingerprint and
// PublishedAt are set for verified and tampered; Recomputed only for tampered.
type VerificationResult struct {
	Status      VerificationStatus
	RecordID    id.RecordID
	Fingerprint Fingerprint
	Recomputed  Fingerprint
	PublishedAt time.Time
	// Reason explains unavailable and unencodable-tampered outcomes for logs.
	Reason string
}

func Verified(recordID id.RecordID, fp Fingerprint, publishedAt time.Time) *VerificationResult {
	return &VerificationResult{Status: VerificationVerified, RecordID: recordID, Fingerprint: fp, PublishedAt: publishedAt}
}

func Tampered(recordID id.RecordID, published, recomputed Fingerprint, publishedAt time.Time) *VerificationResult {
	return &VerificationResult{
		Status:      VerificationTampered,
		RecordID:    recordID,
		Fingerprint: published,
		Recomputed:  recomputed,
		PublishedAt: publishedAt,
	}
}

func NoProof(recordID id.RecordID) *VerificationResult {
	return &VerificationResult{Status: VerificationNoProof, RecordID: recordID}
}

func RecordNotFound(recordID id.RecordID) *VerificationResult {
	return &VerificationResult{Status: VerificationNotFound, RecordID: recordID}
}

func Unavailable(recordID id.RecordID, reason string) *VerificationResult {
	return &VerificationResult{Status: VerificationUnavailable, RecordID: recordID, Reason: reason}
}
