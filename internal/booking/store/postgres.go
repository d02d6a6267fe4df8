package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"carebook/internal/booking/models"
	"carebook/internal/platform/postgres"
	id "carebook/pkg/domain"
	"carebook/pkg/platform/sentinel"
)

// Postgres stores one row per slot in the bookings table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const bookingColumns = `id, user_id, resource_id, slot_date, slot_time, kind, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) Get(ctx context.Context, key id.BookingID) (*models.Booking, error) {
	return scanBooking(s.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, key.String()))
}

// Transact locks the slot's row for the whole decision. A slot with no row
// cannot be locked, so the first write is an INSERT ... ON CONFLICT DO
// NOTHING; a writer that loses that race re-reads the winner's row under
// lock and decides again.
func (s *Postgres) Transact(ctx context.Context, key id.BookingID, fn TransactFunc) (*models.Booking, error) {
	ctx, cancel := withDefaultTimeout(ctx, defaultTxTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(err, "begin booking tx")
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := lockBooking(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}

	if current == nil {
		inserted, err := insertBooking(ctx, tx, next)
		if err != nil {
			return nil, err
		}
		if !inserted {
			current, err = lockBooking(ctx, tx, key)
			if err != nil {
				return nil, err
			}
			if next, err = fn(current); err != nil || next == nil {
				return nil, err
			}
			if err := updateBooking(ctx, tx, next); err != nil {
				return nil, err
			}
		}
	} else if err := updateBooking(ctx, tx, next); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err, "commit booking tx")
	}
	return clone(next), nil
}

func (s *Postgres) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Booking, error) {
	return s.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC, id`, userID.String())
}

func (s *Postgres) ListByResource(ctx context.Context, resourceID id.ResourceID) ([]*models.Booking, error) {
	return s.list(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE resource_id = $1 ORDER BY created_at DESC, id`, resourceID.String())
}

func (s *Postgres) list(ctx context.Context, query string, arg string) ([]*models.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, classify(err, "list bookings")
	}
	defer rows.Close()

	out := make([]*models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list bookings")
	}
	return out, nil
}

func lockBooking(ctx context.Context, tx *sql.Tx, key id.BookingID) (*models.Booking, error) {
	b, err := scanBooking(tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, key.String()))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	return b, err
}

func insertBooking(ctx context.Context, tx *sql.Tx, b *models.Booking) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, b.ID.String(), b.UserID.String(), b.ResourceID.String(), b.Date, b.TimeOfDay,
		string(b.Kind), string(b.Status), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return false, classify(err, "insert booking")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(err, "insert booking")
	}
	return n == 1, nil
}

func updateBooking(ctx context.Context, tx *sql.Tx, b *models.Booking) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET user_id = $2, resource_id = $3, slot_date = $4, slot_time = $5,
		    kind = $6, status = $7, created_at = $8, updated_at = $9
		WHERE id = $1
	`, b.ID.String(), b.UserID.String(), b.ResourceID.String(), b.Date, b.TimeOfDay,
		string(b.Kind), string(b.Status), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return classify(err, "update booking")
	}
	return nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                                           models.Booking
		bookingID, userID, resourceID, kind, status string
	)
	err := row.Scan(&bookingID, &userID, &resourceID, &b.Date, &b.TimeOfDay, &kind, &status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "scan booking")
	}
	b.ID = id.BookingID(bookingID)
	b.UserID = id.UserID(userID)
	b.ResourceID = id.ResourceID(resourceID)
	b.Kind = models.Kind(kind)
	b.Status = models.Status(status)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

// classify marks serialization and deadlock failures as unavailable so callers
// can retry; anything else is wrapped as is.
func classify(err error, action string) error {
	if postgres.IsRetryable(err) {
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}
