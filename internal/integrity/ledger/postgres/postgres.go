// Package postgres is a write-once ledger backed by the ledger_proofs table.
// Rows are only ever inserted; the primary key plus ON CONFLICT DO NOTHING
// makes the first publisher for a record id the only one.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"carebook/internal/integrity/ledger"
	"carebook/internal/integrity/models"
	id "carebook/pkg/domain"
)

type Ledger struct {
	db     *sql.DB
	signer ledger.Signer
}

func New(db *sql.DB, signer ledger.Signer) *Ledger {
	return &Ledger{db: db, signer: signer}
}

func (l *Ledger) Publish(ctx context.Context, recordID id.RecordID, fp models.Fingerprint) (*models.ProofReceipt, error) {
	if err := l.signer.Authorize(recordID); err != nil {
		return nil, err
	}
	if fp.IsZero() {
		return nil, ledger.NewError(ledger.CategoryBadData, recordID, "empty fingerprint", nil)
	}

	var publishedAt time.Time
	err := l.db.QueryRowContext(ctx, `
		INSERT INTO ledger_proofs (record_id, fingerprint, signer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_id) DO NOTHING
		RETURNING published_at
	`, recordID.String(), fp[:], l.signer.ID).Scan(&publishedAt)

	switch {
	case err == nil:
		return &models.ProofReceipt{Proof: models.Proof{
			RecordID:    recordID,
			Fingerprint: fp,
			SignerID:    l.signer.ID,
			PublishedAt: publishedAt.UTC(),
		}}, nil
	case errors.Is(err, sql.ErrNoRows):
		// Lost the insert: someone already published. Compare with what is stored.
		stored, fetchErr := l.Fetch(ctx, recordID)
		if fetchErr != nil {
			return nil, fetchErr
		}
		if stored == nil {
			return nil, ledger.NewError(ledger.CategoryUnavailable, recordID, "proof vanished after conflict", nil)
		}
		return ledger.Receipt(*stored, fp, false)
	default:
		return nil, ledger.Classify(recordID, "publish", err)
	}
}

func (l *Ledger) Fetch(ctx context.Context, recordID id.RecordID) (*models.Proof, error) {
	var (
		raw   []byte
		proof = models.Proof{RecordID: recordID}
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT fingerprint, signer_id, published_at
		FROM ledger_proofs
		WHERE record_id = $1
	`, recordID.String()).Scan(&raw, &proof.SignerID, &proof.PublishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ledger.Classify(recordID, "fetch", err)
	}
	if len(raw) != models.FingerprintSize {
		return nil, ledger.NewError(ledger.CategoryBadData, recordID, "stored fingerprint has wrong length", nil)
	}
	copy(proof.Fingerprint[:], raw)
	proof.PublishedAt = proof.PublishedAt.UTC()
	return &proof, nil
}
