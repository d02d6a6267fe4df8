package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"carebook/internal/booking/models"
	id "carebook/pkg/domain"
	"carebook/pkg/platform/sentinel"
)

const (
	slotPrefix     = "booking:slot:"
	userPrefix     = "booking:user:"
	resourcePrefix = "booking:resource:"

	// maxTxAttempts bounds optimistic retries when another writer touches
	// the same slot between WATCH and EXEC.
	maxTxAttempts = 16
)

// Redis keeps one JSON document per slot and a sorted set per user and per
// resource, scored by creation time, for listings.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

type storedBooking struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ResourceID string    `json:"resource_id"`
	Date       string    `json:"date"`
	TimeOfDay  string    `json:"time"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toStored(b *models.Booking) storedBooking {
	return storedBooking{
		ID:         b.ID.String(),
		UserID:     b.UserID.String(),
		ResourceID: b.ResourceID.String(),
		Date:       b.Date,
		TimeOfDay:  b.TimeOfDay,
		Kind:       string(b.Kind),
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt.UTC(),
		UpdatedAt:  b.UpdatedAt.UTC(),
	}
}

func decodeBooking(raw []byte) (*models.Booking, error) {
	var doc storedBooking
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode booking: %w", err)
	}
	return &models.Booking{
		ID:         id.BookingID(doc.ID),
		UserID:     id.UserID(doc.UserID),
		ResourceID: id.ResourceID(doc.ResourceID),
		Date:       doc.Date,
		TimeOfDay:  doc.TimeOfDay,
		Kind:       models.Kind(doc.Kind),
		Status:     models.Status(doc.Status),
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}

func slotKey(key id.BookingID) string           { return slotPrefix + key.String() }
func userKey(userID id.UserID) string           { return userPrefix + userID.String() }
func resourceKey(resource id.ResourceID) string { return resourcePrefix + resource.String() }

func (s *Redis) Get(ctx context.Context, key id.BookingID) (*models.Booking, error) {
	b, err := readBooking(ctx, s.client, key)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, sentinel.ErrNotFound
	}
	return b, nil
}

// Transact watches the slot document, runs fn on what it read and commits
// with MULTI/EXEC. EXEC fails if the document changed in between, in which
// case the whole read-decide-write cycle runs again.
func (s *Redis) Transact(ctx context.Context, key id.BookingID, fn TransactFunc) (*models.Booking, error) {
	ctx, cancel := withDefaultTimeout(ctx, defaultTxTimeout)
	defer cancel()

	var (
		result   *models.Booking
		decision error
	)
	txf := func(tx *redis.Tx) error {
		result, decision = nil, nil
		current, err := readBooking(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			decision = err
			return err
		}
		if next == nil {
			return nil
		}
		payload, err := json.Marshal(toStored(next))
		if err != nil {
			return fmt.Errorf("encode booking: %w", err)
		}
		score := float64(next.CreatedAt.UnixMicro())
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, slotKey(key), payload, 0)
			if current != nil && current.UserID != next.UserID {
				pipe.ZRem(ctx, userKey(current.UserID), key.String())
			}
			pipe.ZAdd(ctx, userKey(next.UserID), redis.Z{Score: score, Member: key.String()})
			pipe.ZAdd(ctx, resourceKey(next.ResourceID), redis.Z{Score: score, Member: key.String()})
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, slotKey(key))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if decision != nil {
			return nil, decision
		}
		if err != nil {
			return nil, unavailable(err, "booking transaction")
		}
		return clone(result), nil
	}
	return nil, fmt.Errorf("booking transaction on %s: %w: too much contention", key, sentinel.ErrUnavailable)
}

func (s *Redis) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Booking, error) {
	return s.list(ctx, userKey(userID))
}

func (s *Redis) ListByResource(ctx context.Context, resourceID id.ResourceID) ([]*models.Booking, error) {
	return s.list(ctx, resourceKey(resourceID))
}

func (s *Redis) list(ctx context.Context, index string) ([]*models.Booking, error) {
	members, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, unavailable(err, "list bookings")
	}
	out := make([]*models.Booking, 0, len(members))
	if len(members) == 0 {
		return out, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = slotPrefix + m
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(err, "list bookings")
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		b, err := decodeBooking([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	newestFirst(out)
	return out, nil
}

func readBooking(ctx context.Context, client redis.Cmdable, key id.BookingID) (*models.Booking, error) {
	raw, err := client.Get(ctx, slotKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err, "read booking")
	}
	return decodeBooking(raw)
}

// unavailable tags Redis failures other than the context ending.
func unavailable(err error, action string) error {
	if errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", action, err)
	}
	return fmt.Errorf("%s: %w: %w", action, sentinel.ErrUnavailable, err)
}
