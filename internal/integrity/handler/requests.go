package handler

import (
	"strings"

	"carebook/internal/integrity/models"
	id "carebook/pkg/domain"
	dErrors "carebook/pkg/domain-errors"
)

// maxFields bounds the number of fields accepted per record.
const maxFields = 32

// SubmitRecordRequest is the body of POST /records.
type SubmitRecordRequest struct {
	RecordID string         `json:"recordId"`
	Kind     string         `json:"kind"`
	OwnerID  string         `json:"ownerId,omitempty"`
	Fields   map[string]any `json:"fields"`

	recordID id.RecordID
	kind     models.RecordKind
	ownerID  id.UserID
}

// Validate implements httputil.Validatable.
func (r *SubmitRecordRequest) Validate() error {
	var err error
	if r.recordID, err = id.ParseRecordID(strings.TrimSpace(r.RecordID)); err != nil {
		return err
	}
	if r.kind, err = models.ParseRecordKind(strings.TrimSpace(r.Kind)); err != nil {
		return err
	}
	if owner := strings.TrimSpace(r.OwnerID); owner != "" {
		if r.ownerID, err = id.ParseUserID(owner); err != nil {
			return err
		}
	}
	return validateFields(r.Fields)
}

// EditRecordRequest is the body of PUT /records/{recordId}.
type EditRecordRequest struct {
	Fields map[string]any `json:"fields"`
}

func (r *EditRecordRequest) Validate() error {
	return validateFields(r.Fields)
}

// RejectRecordRequest is the body of POST /records/{recordId}/reject.
type RejectRecordRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectRecordRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > 1024 {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 1024 characters")
	}
	return nil
}

// VerifyBatchRequest is the body of POST /verify.
type VerifyBatchRequest struct {
	RecordIDs []string `json:"recordIds"`

	recordIDs []id.RecordID
}

const maxBatchVerify = 100

func (r *VerifyBatchRequest) Validate() error {
	if len(r.RecordIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "recordIds is required")
	}
	if len(r.RecordIDs) > maxBatchVerify {
		return dErrors.New(dErrors.CodeValidation, "at most 100 recordIds per request")
	}
	r.recordIDs = make([]id.RecordID, 0, len(r.RecordIDs))
	for _, raw := range r.RecordIDs {
		recordID, err := id.ParseRecordID(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		r.recordIDs = append(r.recordIDs, recordID)
	}
	return nil
}

func validateFields(fields map[string]any) error {
	if len(fields) == 0 {
		return dErrors.New(dErrors.CodeValidation, "fields are required")
	}
	if len(fields) > maxFields {
		return dErrors.New(dErrors.CodeValidation, "too many fields")
	}
	return nil
}
