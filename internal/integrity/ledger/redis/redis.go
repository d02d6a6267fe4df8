// Package redis is a write-once ledger on Redis. Each proof is a JSON value
// under ledger:proof:{recordId} written with SETNX and never overwritten.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"carebook/internal/integrity/ledger"
	"carebook/internal/integrity/models"
	id "carebook/pkg/domain"
)

const keyPrefix = "ledger:proof:"

type Ledger struct {
	client redis.Cmdable
	signer ledger.Signer
}

func New(client redis.Cmdable, signer ledger.Signer) *Ledger {
	return &Ledger{client: client, signer: signer}
}

type storedProof struct {
	Fingerprint models.Fingerprint `json:"fingerprint"`
	SignerID    string             `json:"signer_id"`
	PublishedAt time.Time          `json:"published_at"`
}

func key(recordID id.RecordID) string {
	return keyPrefix + recordID.String()
}

func (l *Ledger) Publish(ctx context.Context, recordID id.RecordID, fp models.Fingerprint) (*models.ProofReceipt, error) {
	if err := l.signer.Authorize(recordID); err != nil {
		return nil, err
	}
	if fp.IsZero() {
		return nil, ledger.NewError(ledger.CategoryBadData, recordID, "empty fingerprint", nil)
	}

	// Publication time comes from the Redis server, not this process.
	now, err := l.client.Time(ctx).Result()
	if err != nil {
		return nil, ledger.Classify(recordID, "publish", err)
	}
	proof := storedProof{Fingerprint: fp, SignerID: l.signer.ID, PublishedAt: now.UTC()}
	value, err := json.Marshal(proof)
	if err != nil {
		return nil, ledger.NewError(ledger.CategoryBadData, recordID, "encode proof", err)
	}

	inserted, err := l.client.SetNX(ctx, key(recordID), value, 0).Result()
	if err != nil {
		return nil, ledger.Classify(recordID, "publish", err)
	}
	if inserted {
		return &models.ProofReceipt{Proof: proof.toProof(recordID)}, nil
	}

	stored, err := l.Fetch(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ledger.NewError(ledger.CategoryUnavailable, recordID, "proof vanished after SETNX conflict", nil)
	}
	return ledger.Receipt(*stored, fp, false)
}

func (l *Ledger) Fetch(ctx context.Context, recordID id.RecordID) (*models.Proof, error) {
	raw, err := l.client.Get(ctx, key(recordID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, ledger.Classify(recordID, "fetch", err)
	}
	var stored storedProof
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, ledger.NewError(ledger.CategoryBadData, recordID, "decode stored proof", err)
	}
	if stored.Fingerprint.IsZero() {
		return nil, ledger.NewError(ledger.CategoryBadData, recordID, "stored proof has no fingerprint", nil)
	}
	proof := stored.toProof(recordID)
	return &proof, nil
}

func (p storedProof) toProof(recordID id.RecordID) models.Proof {
	return models.Proof{
		RecordID:    recordID,
		Fingerprint: p.Fingerprint,
		SignerID:    p.SignerID,
		PublishedAt: p.PublishedAt,
	}
}
