// Package ledger defines the port to the append-only integrity ledger and the
// failure taxonomy every adapter maps into.
//
// A ledger entry is write-once per record id: Publish with the fingerprint
// already on record is a no-op returning the original proof, and Publish with
// a different fingerprint fails with ErrAlreadyPublished. Entries are never
// updated or deleted.
package ledger

//go:generate mockgen -source=ledger.go -destination=mocks/mocks.go -package=mocks Client

import (
	"context"
	"slices"

	"carebook/internal/integrity/models"
	id "carebook/pkg/domain"
)

// Client is the ledger port.
type Client interface {
	// Publish anchors fp for recordID and returns the ledger's receipt.
	Publish(ctx context.Context, recordID id.RecordID, fp models.Fingerprint) (*models.ProofReceipt, error)
	// Fetch returns the proof for recordID, or nil, nil when none was published.
	Fetch(ctx context.Context, recordID id.RecordID) (*models.Proof, error)
}

// Signer is the identity an adapter writes as, plus the set of identities the
// ledger accepts writes from.
type Signer struct {
	ID      string
	Allowed []string
}

// Authorize fails with ErrUnauthorizedSigner when the signer may not write.
func (s Signer) Authorize(recordID id.RecordID) error {
	if s.ID == "" || !slices.Contains(s.Allowed, s.ID) {
		return NewError(CategoryUnauthorizedSigner, recordID, "signer "+s.ID+" may not publish", nil)
	}
	return nil
}

// Receipt builds the receipt for a stored proof. The ledger is idempotent,
// so publishing the stored fingerprint replays the original proof.
func Receipt(stored models.Proof, requested models.Fingerprint, inserted bool) (*models.ProofReceipt, error) {
	if !stored.Fingerprint.Equal(requested) {
		return nil, NewError(CategoryAlreadyPublished, stored.RecordID,
			"a different fingerprint is already published", nil)
	}
	return &models.ProofReceipt{Proof: stored, Replayed: !inserted}, nil
}
