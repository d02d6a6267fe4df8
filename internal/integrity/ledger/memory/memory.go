// Package memory is an in-process write-once ledger for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"carebook/internal/integrity/ledger"
	"carebook/internal/integrity/models"
	id "carebook/pkg/domain"
)

type Ledger struct {
	mu     sync.RWMutex
	proofs map[id.RecordID]models.Proof
	signer ledger.Signer
	now    func() time.Time
}

type Option func(*Ledger)

// WithClock sets the ledger's publication clock.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func New(signer ledger.Signer, opts ...Option) *Ledger {
	l := &Ledger{
		proofs: make(map[id.RecordID]models.Proof),
		signer: signer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Publish(ctx context.Context, recordID id.RecordID, fp models.Fingerprint) (*models.ProofReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.signer.Authorize(recordID); err != nil {
		return nil, err
	}
	if fp.IsZero() {
		return nil, ledger.NewError(ledger.CategoryBadData, recordID, "empty fingerprint", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.proofs[recordID]; ok {
		return ledger.Receipt(existing, fp, false)
	}
	proof := models.Proof{
		RecordID:    recordID,
		Fingerprint: fp,
		SignerID:    l.signer.ID,
		PublishedAt: l.now().UTC(),
	}
	l.proofs[recordID] = proof
	return &models.ProofReceipt{Proof: proof}, nil
}

func (l *Ledger) Fetch(ctx context.Context, recordID id.RecordID) (*models.Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	proof, ok := l.proofs[recordID]
	if !ok {
		return nil, nil
	}
	return &proof, nil
}
