package handler

import (
	"time"

	"carebook/internal/integrity/models"
)

// VerificationResponse is the public verification view. Fingerprints are
// present only for verified and tampered outcomes.
type VerificationResponse struct {
	RecordID              string     `json:"recordId"`
	Status                string     `json:"status"`
	Fingerprint           string     `json:"fingerprint,omitempty"`
	RecomputedFingerprint string     `json:"recomputedFingerprint,omitempty"`
	PublishedAt           *time.Time `json:"publishedAt,omitempty"`
}

func toVerificationResponse(r *models.VerificationResult) VerificationResponse {
	resp := VerificationResponse{
		RecordID: r.RecordID.String(),
		Status:   string(r.Status),
	}
	switch r.Status {
	case models.VerificationTampered:
		resp.RecomputedFingerprint = r.Recomputed.String()
		fallthrough
	case models.VerificationVerified:
		resp.Fingerprint = r.Fingerprint.String()
		publishedAt := r.PublishedAt
		resp.PublishedAt = &publishedAt
	}
	return resp
}

type RecordResponse struct {
	RecordID   string         `json:"recordId"`
	Kind       string         `json:"kind"`
	OwnerID    string         `json:"ownerId"`
	AuthorID   string         `json:"authorId"`
	Status     string         `json:"status"`
	Fields     map[string]any `json:"fields"`
	ReviewerID string         `json:"reviewerId,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	ReviewedAt *time.Time     `json:"reviewedAt,omitempty"`
}

func toRecordResponse(r *models.Record) RecordResponse {
	return RecordResponse{
		RecordID:   r.ID.String(),
		Kind:       string(r.Kind),
		OwnerID:    r.OwnerID.String(),
		AuthorID:   r.AuthorID.String(),
		Status:     string(r.Status),
		Fields:     r.Fields,
		ReviewerID: r.ReviewerID.String(),
		Reason:     r.Reason,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		ReviewedAt: r.ReviewedAt,
	}
}

// ApprovalResponse is returned by POST /records/{recordId}/approve.
type ApprovalResponse struct {
	RecordID    string    `json:"recordId"`
	Fingerprint string    `json:"fingerprint"`
	PublishedAt time.Time `json:"publishedAt"`
	Replayed    bool      `json:"replayed"`
}
