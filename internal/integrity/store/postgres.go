package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carebook/internal/integrity/models"
	"carebook/internal/platform/postgres"
	id "carebook/pkg/domain"
	"carebook/pkg/platform/sentinel"
	txcontext "carebook/pkg/platform/tx"
)

// Postgres stores records in the records table with fields as JSONB.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const recordColumns = `id, kind, owner_id, author_id, fields, status, reviewer_id, reason, created_at, updated_at, reviewed_at`

func (s *Postgres) Create(ctx context.Context, record *models.Record) error {
	fields, err := json.Marshal(record.Fields)
	if err != nil {
		return fmt.Errorf("marshal record fields: %w", err)
	}
	_, err = txcontext.Or(ctx, s.db).ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		record.ID.String(), string(record.Kind), record.OwnerID.String(), record.AuthorID.String(),
		fields, string(record.Status), record.ReviewerID.String(), record.Reason,
		record.CreatedAt, record.UpdatedAt, record.ReviewedAt,
	)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, recordID id.RecordID) (*models.Record, error) {
	row := txcontext.Or(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1`, recordID.String())
	return scanRecord(row)
}

// Execute locks the row with SELECT ... FOR UPDATE for the duration of
// validate and mutate, then writes the result back. When ctx carries a
// transaction the work joins it and the caller commits.
func (s *Postgres) Execute(ctx context.Context, recordID id.RecordID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.execute(ctx, tx, recordID, validate, mutate)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin record tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	record, err := s.execute(ctx, tx, recordID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record tx: %w", err)
	}
	return record, nil
}

func (s *Postgres) execute(ctx context.Context, tx *sql.Tx, recordID id.RecordID, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	record, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1 FOR UPDATE`, recordID.String()))
	if err != nil {
		return nil, err
	}
	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)

	fields, err := json.Marshal(record.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal record fields: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE records
		SET fields = $2, status = $3, reviewer_id = $4, reason = $5, updated_at = $6, reviewed_at = $7
		WHERE id = $1
	`, recordID.String(), fields, string(record.Status), record.ReviewerID.String(), record.Reason,
		record.UpdatedAt, record.ReviewedAt)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}
	return record, nil
}

func scanRecord(row *sql.Row) (*models.Record, error) {
	var (
		r                             models.Record
		recordID, kind, owner, author string
		status, reviewer              string
		rawFields                     []byte
		reviewedAt                    sql.NullTime
		createdAt, updatedAt          time.Time
	)
	err := row.Scan(&recordID, &kind, &owner, &author, &rawFields, &status, &reviewer, &r.Reason,
		&createdAt, &updatedAt, &reviewedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	if err := json.Unmarshal(rawFields, &r.Fields); err != nil {
		return nil, fmt.Errorf("decode record fields: %w", err)
	}
	r.ID = id.RecordID(recordID)
	r.Kind = models.RecordKind(kind)
	r.OwnerID = id.UserID(owner)
	r.AuthorID = id.UserID(author)
	r.Status = models.RecordStatus(status)
	r.ReviewerID = id.UserID(reviewer)
	r.CreatedAt = createdAt.UTC()
	r.UpdatedAt = updatedAt.UTC()
	if reviewedAt.Valid {
		t := reviewedAt.Time.UTC()
		r.ReviewedAt = &t
	}
	return &r, nil
}
